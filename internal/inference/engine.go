package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/kstaniek/zl-offload/internal/logging"
	"github.com/kstaniek/zl-offload/internal/metrics"
	"github.com/kstaniek/zl-offload/internal/model"
	"github.com/kstaniek/zl-offload/internal/scheduler"
	"github.com/rs/xid"
)

// Config controls the engine's input dimensions and postprocessing
// thresholds (§6: confidence_threshold, nms_threshold).
type Config struct {
	InputWidth  int
	InputHeight int
	ClassCount  int
	Postprocess PostprocessConfig
	// UseZeroCopy selects PreprocessZeroCopy over Preprocess (§6
	// optimization.use_zero_copy); both build the same tensor today, but
	// callers that promise not to mutate the payload concurrently take the
	// zero-copy contract instead of the defensive-copy one.
	UseZeroCopy bool
}

// ModelInfo records what's currently loaded, for status reporting (§4.3
// "{path, hash, loaded_at}").
type ModelInfo struct {
	Path     string
	Hash     string
	LoadedAt time.Time
}

// Engine wires preprocessing, a Backend, and postprocessing into the
// scheduler.InferFunc shape, with simulation-mode fallback and content-hash
// hot-reload (§4.3). The session lock is held across every Run call,
// matching the single exclusive lock named in §5.
type Engine struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger

	mu      sync.RWMutex // guards session/info/simulation swap; held exclusively across backend.Run
	session Session
	info    ModelInfo
	simMode bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New loads modelPath via backend. If the file does not exist, the engine
// starts in simulation mode instead of failing (§4.3).
func New(modelPath string, backend Backend, cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.L()
	}
	if cfg.Postprocess.ClassCount == 0 {
		cfg.Postprocess.ClassCount = cfg.ClassCount
	}
	e := &Engine{backend: backend, cfg: cfg, logger: logger, rng: rand.New(rand.NewSource(1))}
	if err := e.loadOrSimulate(modelPath); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadOrSimulate(path string) error {
	hash, err := hashFile(path)
	if errors.Is(err, os.ErrNotExist) {
		e.mu.Lock()
		e.simMode = true
		e.info = ModelInfo{Path: path, LoadedAt: time.Now()}
		e.mu.Unlock()
		metrics.SetSimulationMode(true)
		e.logger.Warn("model_missing_simulation_mode", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	session, err := e.backend.Load(path)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.session = session
	e.simMode = false
	e.info = ModelInfo{Path: path, Hash: hash, LoadedAt: time.Now()}
	e.mu.Unlock()
	metrics.SetSimulationMode(false)
	e.logger.Info("model_loaded", "path", path, "hash", hash)
	return nil
}

// Info returns a snapshot of the currently loaded model's metadata.
func (e *Engine) Info() ModelInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info
}

// SimulationMode reports whether the engine is running without a backend.
func (e *Engine) SimulationMode() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.simMode
}

// WatchForChanges rehashes the model file every interval and hot-swaps the
// session when it changes, publishing a model-updated event; in-flight
// Infer calls complete against the session they already captured (§4.3).
// It returns when ctx is cancelled.
func (e *Engine) WatchForChanges(ctx context.Context, path string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hash, err := hashFile(path)
			if err != nil {
				continue
			}
			e.mu.RLock()
			unchanged := hash == e.info.Hash && !e.simMode
			e.mu.RUnlock()
			if unchanged {
				continue
			}
			eventID := xid.New()
			if err := e.loadOrSimulate(path); err != nil {
				e.logger.Error("model_reload_failed", "event_id", eventID.String(), "path", path, "error", err)
				metrics.IncError(metrics.ErrModelLoad)
				continue
			}
			metrics.IncModelReloads()
			e.logger.Info("model_updated", "event_id", eventID.String(), "path", path)
		}
	}
}

// Infer implements scheduler.InferFunc: it preprocesses, runs the backend
// (or synthesizes detections in simulation mode), and postprocesses every
// request in the batch, returning one GameState per request. A per-item
// backend failure does not abort the rest of the batch, but it must not be
// swallowed either (§4.3/§7: no DETECTION_RESULT may be sent for a frame
// that failed inference) — failed indices are reported via the returned
// BatchInferError so scheduler.workerLoop can set Result.Err only for
// those frames.
func (e *Engine) Infer(ctx context.Context, batch []scheduler.InferenceRequest) ([]model.GameState, error) {
	e.mu.RLock()
	simMode := e.simMode
	session := e.session
	e.mu.RUnlock()

	out := make([]model.GameState, len(batch))
	if simMode {
		for i, req := range batch {
			now := req.TimestampMS
			out[i] = model.GameState{FrameID: req.FrameID, TimestampMS: now, Detections: e.simulate(now)}
		}
		return out, nil
	}

	var itemErrs map[int]error
	ws := NewWorkspace(e.cfg.InputWidth, e.cfg.InputHeight)
	for i, req := range batch {
		var tensor Tensor
		if e.cfg.UseZeroCopy {
			tensor = ws.PreprocessZeroCopy(req.Payload, int(req.Width), int(req.Height))
		} else {
			tensor = ws.Preprocess(req.Payload, int(req.Width), int(req.Height))
		}
		e.mu.Lock()
		raw, err := e.backend.Run(ctx, session, tensor)
		e.mu.Unlock()
		if err != nil {
			metrics.IncInferenceErrors()
			if itemErrs == nil {
				itemErrs = make(map[int]error)
			}
			itemErrs[i] = err
			continue
		}
		dets := Postprocess(raw, e.cfg.Postprocess, req.TimestampMS)
		out[i] = model.GameState{FrameID: req.FrameID, TimestampMS: req.TimestampMS, Detections: dets}
	}
	if len(itemErrs) > 0 {
		return out, &BatchInferError{Errors: itemErrs}
	}
	return out, nil
}

// BatchInferError reports which indices of an Infer batch failed backend
// inference. It implements scheduler.ItemErrorer so the scheduler can
// suppress only the failed frames' results instead of treating the whole
// batch as failed (or, worse, silently forwarding an empty GameState).
type BatchInferError struct {
	Errors map[int]error
}

func (e *BatchInferError) Error() string {
	return fmt.Sprintf("inference: %d batch item(s) failed", len(e.Errors))
}

// ItemError returns the error for batch index i, or nil if that item
// succeeded.
func (e *BatchInferError) ItemError(i int) error { return e.Errors[i] }

func (e *Engine) simulate(nowMS uint64) []model.Detection {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return simulateDetections(e.rng, nowMS)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
