// Package scheduler implements the server inference scheduler of §4.3: a
// bounded priority queue, a worker pool paced to target_fps, and an
// optional dynamic batcher. It follows the teacher's goroutine+channel
// shape (internal/server reader/writer pairs, internal/transport/async_tx
// fan-in worker) generalized to a pop-process-deliver pool.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/kstaniek/zl-offload/internal/logging"
	"github.com/kstaniek/zl-offload/internal/metrics"
	"github.com/kstaniek/zl-offload/internal/model"
	"github.com/rs/xid"
	"golang.org/x/time/rate"
)

// Config controls queue capacity, worker count, and batching (§4.3/§6).
type Config struct {
	MaxQueueSize       int
	WorkerThreads      int
	TargetFPS          int
	UseDynamicBatching bool
	MaxBatchSize       int
	BatchWindow        time.Duration
	// UsePriorityScheduling toggles keyframe-first ordering (§6
	// optimization.use_priority_scheduling). When false every request is
	// enqueued at PriorityNormal, so the heap's seq tiebreak degrades it to
	// plain FIFO.
	UsePriorityScheduling bool
}

// DefaultConfig mirrors the spec's named defaults.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:          8,
		WorkerThreads:         runtime.NumCPU(),
		TargetFPS:             30,
		UseDynamicBatching:    false,
		MaxBatchSize:          4,
		BatchWindow:           5 * time.Millisecond,
		UsePriorityScheduling: true,
	}
}

// Result is delivered to the scheduler's callback after inference.
type Result struct {
	ClientID uint32
	FrameID  uint32
	State    model.GameState
	Err      error
}

// InferFunc runs preprocess->infer->postprocess over a batch (size 1 when
// dynamic batching is disabled) and returns one GameState per request, in
// the same order.
type InferFunc func(ctx context.Context, batch []InferenceRequest) ([]model.GameState, error)

// ItemErrorer is an optional error an InferFunc can return to report that
// only some indices of its batch failed, rather than aborting the whole
// batch (§4.3/§7: a failed frame must surface as an error so no
// DETECTION_RESULT is sent for it, but its batch-mates should still
// succeed). workerLoop checks for this via a type assertion on the error
// returned from infer.
type ItemErrorer interface {
	// ItemError returns the error for batch index i, or nil if that item
	// succeeded.
	ItemError(i int) error
}

// Scheduler owns the bounded priority queue and worker pool of §4.3.
type Scheduler struct {
	cfg    Config
	infer  InferFunc
	onDone func(Result)
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   priorityQueue
	seq     uint64
	closed  bool
	dropped uint64

	wg sync.WaitGroup
}

// New constructs a Scheduler. infer performs the actual model call;
// onDone receives every completed (or failed) Result.
func New(cfg Config, infer InferFunc, onDone func(Result), logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.L()
	}
	if cfg.WorkerThreads <= 0 {
		cfg.WorkerThreads = 1
	}
	s := &Scheduler{cfg: cfg, infer: infer, onDone: onDone, logger: logger}
	s.cond = sync.NewCond(&s.mu)
	heap.Init(&s.queue)
	return s
}

// Submit admits a frame per the §4.3 admission policy: if the queue is
// full, a keyframe evicts the oldest non-keyframe; otherwise (or if no
// non-keyframe exists) the request is rejected and counted as dropped.
func (s *Scheduler) Submit(req InferenceRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	metrics.IncFramesSubmitted()
	if s.queue.Len() >= s.cfg.MaxQueueSize {
		if !req.Keyframe {
			s.dropped++
			metrics.IncFramesDropped()
			return false
		}
		idx := s.queue.oldestNonKeyframeIndex()
		if idx == -1 {
			s.dropped++
			metrics.IncFramesDropped()
			return false
		}
		heap.Remove(&s.queue, idx)
		metrics.IncFramesEvicted()
	}
	s.seq++
	heap.Push(&s.queue, &item{req: req, priority: priorityOf(req, s.cfg.UsePriorityScheduling), seq: s.seq})
	metrics.SetQueueDepth(s.queue.Len())
	s.cond.Signal()
	return true
}

// QueueDepth reports the current number of pending requests.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// DroppedCount reports the cumulative number of rejected submissions.
func (s *Scheduler) DroppedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Start launches the worker pool until ctx is cancelled. Dynamic batching,
// when enabled, runs inside each worker's loop.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.cfg.WorkerThreads; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx)
	}
}

// Shutdown stops accepting submissions and waits for in-flight work to
// drain; it wakes every blocked worker immediately (§5 cancellation).
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
	s.wg.Wait()
}

// popBatch blocks until at least one request is queued (or the scheduler is
// closed), then drains up to maxBatch requests without further waiting —
// the dynamic-batching window is applied by the caller via time.Sleep
// before this call, per §4.3's "collects within a 5ms window" wording.
func (s *Scheduler) popBatch(maxBatch int) []InferenceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.queue.Len() == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.queue.Len() == 0 {
		return nil
	}
	n := maxBatch
	if n < 1 {
		n = 1
	}
	if s.queue.Len() < n {
		n = s.queue.Len()
	}
	batch := make([]InferenceRequest, 0, n)
	for i := 0; i < n; i++ {
		it := heap.Pop(&s.queue).(*item)
		batch = append(batch, it.req)
	}
	metrics.SetQueueDepth(s.queue.Len())
	return batch
}

// workerLoop paces itself to target_fps with a token-bucket limiter rather
// than a hand-rolled sleep-remainder calculation (§4.3's "pop one request;
// ... sleep the remainder").
func (s *Scheduler) workerLoop(ctx context.Context) {
	defer s.wg.Done()
	var limiter *rate.Limiter
	if s.cfg.TargetFPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.TargetFPS), 1)
	}
	maxBatch := 1
	if s.cfg.UseDynamicBatching {
		maxBatch = s.cfg.MaxBatchSize
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.cfg.UseDynamicBatching && s.cfg.BatchWindow > 0 {
			time.Sleep(s.cfg.BatchWindow)
		}

		batch := s.popBatch(maxBatch)
		if len(batch) == 0 {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			continue
		}

		requestID := xid.New()
		s.logger.Debug("inference_request", "request_id", requestID.String(), "batch_size", len(batch))

		start := time.Now()
		states, err := s.infer(ctx, batch)
		elapsed := time.Since(start)
		metrics.ObserveInferenceLatencyMS(float64(elapsed.Milliseconds()))
		metrics.ObserveBatchSize(len(batch))

		// An ItemErrorer reports per-item failures without failing the
		// whole batch; the infer func has already counted those errors, so
		// only an unrecognized, batch-wide err counts them here.
		itemErrs, _ := err.(ItemErrorer)

		for i, req := range batch {
			res := Result{ClientID: req.ClientID, FrameID: req.FrameID}
			switch {
			case itemErrs != nil:
				if ie := itemErrs.ItemError(i); ie != nil {
					res.Err = ie
				} else if i < len(states) {
					res.State = states[i]
				}
			case err != nil:
				res.Err = err
				metrics.IncInferenceErrors()
			case i < len(states):
				res.State = states[i]
			}
			if s.onDone != nil {
				s.onDone(res)
			}
		}

		if limiter != nil {
			_ = limiter.Wait(ctx)
		}
	}
}
