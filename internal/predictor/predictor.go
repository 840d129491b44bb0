// Package predictor implements the client local prediction engine of §4.6:
// a set of per-track Kalman filters fed only by DETECTION_RESULT payloads,
// extrapolated to "now" between server updates. It mirrors the server
// tracker's Kalman usage (internal/tracker) but without data association,
// since the server already assigns track ids.
package predictor

import (
	"sync"

	"github.com/kstaniek/zl-offload/internal/kalman"
	"github.com/kstaniek/zl-offload/internal/model"
)

// Config controls horizon clamping, confidence decay, and the per-track
// Kalman filter's process noise (§4.6 defaults; §6
// prediction.{max_prediction_time, position_uncertainty,
// velocity_uncertainty, min_confidence_threshold} — max_prediction_time
// maps to PredictionHorizonMS, the uncertainty knobs to the filter's
// process noise. prediction.acceleration_uncertainty has no home here: the
// filter is constant-velocity with no acceleration state, noted in
// DESIGN.md).
type Config struct {
	PredictionHorizonMS uint64
	MaxTrackAgeMS       uint64
	ConfidenceDecay     float64
	PositionUncertainty float64
	VelocityUncertainty float64
	MinConfidence       float64
}

// DefaultConfig mirrors the spec's named defaults.
func DefaultConfig() Config {
	return Config{
		PredictionHorizonMS: 200,
		MaxTrackAgeMS:       500,
		ConfidenceDecay:     0.05,
		PositionUncertainty: kalman.DefaultPositionProcessNoise,
		VelocityUncertainty: kalman.DefaultVelocityProcessNoise,
		MinConfidence:       0,
	}
}

type trackedObject struct {
	kf           *kalman.Filter
	classID      uint8
	confidence   float32
	lastUpdateMS uint64
}

// Predictor owns the client's local track set, fed exclusively by server
// detections carrying a nonzero track_id (§4.6).
type Predictor struct {
	cfg Config

	mu     sync.Mutex
	tracks map[uint32]*trackedObject
}

// New constructs an empty Predictor.
func New(cfg Config) *Predictor {
	return &Predictor{cfg: cfg, tracks: make(map[uint32]*trackedObject)}
}

// Ingest applies one incoming detection: updates the matching track or
// creates one. Detections with track_id 0 ("unassociated") are ignored —
// the predictor has no data-association step of its own (§4.6). Detections
// below MinConfidence are dropped (§6 prediction.min_confidence_threshold),
// but an existing track is never deleted by a single low-confidence sample
// — it simply ages toward MaxTrackAgeMS.
func (p *Predictor) Ingest(d model.Detection) {
	if d.TrackID == 0 {
		return
	}
	if float64(d.Confidence) < p.cfg.MinConfidence {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tracks[d.TrackID]
	if !ok {
		t = &trackedObject{
			kf:           kalman.NewFilterWithNoise(d.Box, p.cfg.PositionUncertainty, p.cfg.VelocityUncertainty, kalman.DefaultMeasurementNoise),
			classID:      d.ClassID,
			confidence:   d.Confidence,
			lastUpdateMS: d.TimestampMS,
		}
		p.tracks[d.TrackID] = t
		return
	}
	dt := deltaSeconds(t.lastUpdateMS, d.TimestampMS)
	t.kf.Predict(dt)
	t.kf.Correct(d.Box)
	t.classID = d.ClassID
	t.confidence = d.Confidence
	t.lastUpdateMS = d.TimestampMS
}

// PredictState rolls every track forward to targetMS, clamped to the
// configured prediction horizon, and applies linear confidence decay
// (§4.6). Tracks older than MaxTrackAgeMS are purged first.
func (p *Predictor) PredictState(targetMS uint64) []model.Detection {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, t := range p.tracks {
		if targetMS >= t.lastUpdateMS && targetMS-t.lastUpdateMS > p.cfg.MaxTrackAgeMS {
			delete(p.tracks, id)
		}
	}

	out := make([]model.Detection, 0, len(p.tracks))
	for id, t := range p.tracks {
		deltaMS := targetMS - t.lastUpdateMS
		if targetMS < t.lastUpdateMS {
			deltaMS = 0
		}
		if deltaMS > p.cfg.PredictionHorizonMS {
			deltaMS = p.cfg.PredictionHorizonMS
		}
		// Extrapolate from the filter's last-corrected state rather than
		// calling Predict (which would mutate it); PredictState may be
		// called many times between corrections (e.g. once per render
		// frame), and Δt here is always anchored at last_update_ms (§4.6),
		// not at the previous PredictState call.
		box := extrapolate(t.kf, float64(deltaMS)/1000.0)
		decay := p.cfg.ConfidenceDecay * float64(deltaMS) / 16.67
		conf := float64(t.confidence) - decay
		if conf < 0 {
			conf = 0
		}
		out = append(out, model.Detection{
			Box:         box,
			Confidence:  float32(conf),
			ClassID:     t.classID,
			TrackID:     id,
			TimestampMS: targetMS,
		})
	}
	return out
}

// Count returns the number of live tracks, mostly for tests/diagnostics.
func (p *Predictor) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tracks)
}

// extrapolate computes a constant-velocity projection of kf's current
// committed state by dtSeconds, without mutating the filter, then clamps
// to the unit square (§3 BoundingBox invariant).
func extrapolate(kf *kalman.Filter, dtSeconds float64) model.BoundingBox {
	box := kf.Box()
	vx, vy, vw, vh := kf.Velocity()
	return model.BoundingBox{
		X: box.X + float32(vx*dtSeconds),
		Y: box.Y + float32(vy*dtSeconds),
		W: box.W + float32(vw*dtSeconds),
		H: box.H + float32(vh*dtSeconds),
	}.Clamp()
}

func deltaSeconds(fromMS, toMS uint64) float64 {
	if toMS <= fromMS {
		return kalman.MinDeltaSeconds
	}
	return float64(toMS-fromMS) / 1000.0
}
