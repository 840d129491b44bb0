package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/zl-offload/internal/model"
)

func TestScheduler_AdmissionEvictsOldestNonKeyframe(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 2
	cfg.WorkerThreads = 1
	s := New(cfg, func(ctx context.Context, batch []InferenceRequest) ([]model.GameState, error) {
		return make([]model.GameState, len(batch)), nil
	}, nil, nil)

	if !s.Submit(InferenceRequest{FrameID: 1}) {
		t.Fatalf("expected first submit to succeed")
	}
	if !s.Submit(InferenceRequest{FrameID: 2}) {
		t.Fatalf("expected second submit to succeed")
	}
	if s.Submit(InferenceRequest{FrameID: 3}) {
		t.Fatalf("expected non-keyframe submit to be rejected when full")
	}
	if !s.Submit(InferenceRequest{FrameID: 4, Keyframe: true}) {
		t.Fatalf("expected keyframe submit to evict and succeed")
	}
	if s.QueueDepth() != 2 {
		t.Fatalf("expected queue depth to stay at cap, got %d", s.QueueDepth())
	}
	if s.DroppedCount() != 1 {
		t.Fatalf("expected 1 dropped frame, got %d", s.DroppedCount())
	}
}

func TestScheduler_DeliversAllSubmittedFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 8
	cfg.WorkerThreads = 2
	cfg.TargetFPS = 0

	var mu sync.Mutex
	seen := map[uint32]bool{}
	done := make(chan struct{})

	s := New(cfg, func(ctx context.Context, batch []InferenceRequest) ([]model.GameState, error) {
		return make([]model.GameState, len(batch)), nil
	}, func(r Result) {
		mu.Lock()
		seen[r.FrameID] = true
		n := len(seen)
		mu.Unlock()
		if n == 5 {
			close(done)
		}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Shutdown()

	for i := uint32(1); i <= 5; i++ {
		s.Submit(InferenceRequest{FrameID: i})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out, delivered %d of 5", len(seen))
	}
}

func TestScheduler_DynamicBatchingDegradesToSingleRequest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseDynamicBatching = true
	cfg.MaxBatchSize = 4
	cfg.BatchWindow = time.Millisecond
	cfg.WorkerThreads = 1
	cfg.TargetFPS = 0

	batchSizes := make(chan int, 4)
	s := New(cfg, func(ctx context.Context, batch []InferenceRequest) ([]model.GameState, error) {
		batchSizes <- len(batch)
		return make([]model.GameState, len(batch)), nil
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Shutdown()

	s.Submit(InferenceRequest{FrameID: 1})

	select {
	case n := <-batchSizes:
		if n != 1 {
			t.Fatalf("expected single-request batch, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for batch")
	}
}

func TestScheduler_PrioritySchedulingDisabledIsFIFO(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 3
	cfg.WorkerThreads = 1
	cfg.UsePriorityScheduling = false

	s := New(cfg, func(ctx context.Context, batch []InferenceRequest) ([]model.GameState, error) {
		return make([]model.GameState, len(batch)), nil
	}, nil, nil)

	s.Submit(InferenceRequest{FrameID: 1})
	s.Submit(InferenceRequest{FrameID: 2, Keyframe: true})
	s.Submit(InferenceRequest{FrameID: 3})

	first := s.popBatch(1)
	if len(first) != 1 || first[0].FrameID != 1 {
		t.Fatalf("expected FIFO order to surface frame 1 first regardless of keyframe flag, got %+v", first)
	}
}

func TestScheduler_PrioritySchedulingOrdersKeyframesFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 3
	cfg.WorkerThreads = 1
	cfg.UsePriorityScheduling = true

	s := New(cfg, func(ctx context.Context, batch []InferenceRequest) ([]model.GameState, error) {
		return make([]model.GameState, len(batch)), nil
	}, nil, nil)

	s.Submit(InferenceRequest{FrameID: 1})
	s.Submit(InferenceRequest{FrameID: 2, Keyframe: true})

	first := s.popBatch(1)
	if len(first) != 1 || first[0].FrameID != 2 {
		t.Fatalf("expected keyframe to surface first when priority scheduling is enabled, got %+v", first)
	}
}

type batchItemError struct{ failed map[int]error }

func (e *batchItemError) Error() string        { return "batch item error" }
func (e *batchItemError) ItemError(i int) error { return e.failed[i] }

func TestScheduler_ItemErrorerOnlyFailsReportedIndices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseDynamicBatching = true
	cfg.MaxBatchSize = 2
	cfg.BatchWindow = 5 * time.Millisecond
	cfg.WorkerThreads = 1
	cfg.TargetFPS = 0

	var mu sync.Mutex
	results := map[uint32]Result{}
	done := make(chan struct{})

	s := New(cfg, func(ctx context.Context, batch []InferenceRequest) ([]model.GameState, error) {
		states := make([]model.GameState, len(batch))
		var failed map[int]error
		for i, req := range batch {
			if req.FrameID == 2 {
				failed = map[int]error{i: context.DeadlineExceeded}
				continue
			}
			states[i] = model.GameState{FrameID: req.FrameID}
		}
		if failed != nil {
			return states, &batchItemError{failed: failed}
		}
		return states, nil
	}, func(r Result) {
		mu.Lock()
		results[r.FrameID] = r
		n := len(results)
		mu.Unlock()
		if n == 2 {
			close(done)
		}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Shutdown()

	s.Submit(InferenceRequest{FrameID: 1})
	s.Submit(InferenceRequest{FrameID: 2})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for both results, got %+v", results)
	}

	mu.Lock()
	defer mu.Unlock()
	if results[1].Err != nil {
		t.Fatalf("expected frame 1 to succeed, got err %v", results[1].Err)
	}
	if results[2].Err == nil {
		t.Fatalf("expected frame 2 to report its item-specific error")
	}
}
