package inference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kstaniek/zl-offload/internal/scheduler"
)

type fakeBackend struct {
	loadCalls int
}

func (b *fakeBackend) Load(path string) (Session, error) {
	b.loadCalls++
	return "session", nil
}

func (b *fakeBackend) Run(ctx context.Context, session Session, input Tensor) (Tensor, error) {
	// 1 class, 1 candidate, high confidence, centered box.
	return Tensor{
		Data:  []float32{0.5, 0.5, 0.2, 0.2, 0.9},
		Shape: []int{1, 5, 1},
	}, nil
}

func TestEngine_SimulationModeWhenModelMissing(t *testing.T) {
	e, err := New(filepath.Join(t.TempDir(), "missing.model"), &fakeBackend{}, Config{InputWidth: 64, InputHeight: 64, ClassCount: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !e.SimulationMode() {
		t.Fatalf("expected simulation mode when model file is absent")
	}
	states, err := e.Infer(context.Background(), []scheduler.InferenceRequest{{FrameID: 1, TimestampMS: 1000}})
	if err != nil || len(states) != 1 {
		t.Fatalf("Infer: states=%v err=%v", states, err)
	}
	if len(states[0].Detections) > 5 {
		t.Fatalf("simulation mode must emit at most 5 detections, got %d", len(states[0].Detections))
	}
}

func TestEngine_BackendPathPostprocesses(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.bin")
	if err := os.WriteFile(modelPath, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	backend := &fakeBackend{}
	e, err := New(modelPath, backend, Config{InputWidth: 8, InputHeight: 8, ClassCount: 1, Postprocess: DefaultPostprocessConfig(1)}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.SimulationMode() {
		t.Fatalf("expected backend mode when model file exists")
	}
	states, err := e.Infer(context.Background(), []scheduler.InferenceRequest{{FrameID: 2, TimestampMS: 2000, Width: 8, Height: 8, Payload: make([]byte, 8*8*3)}})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if len(states[0].Detections) != 1 {
		t.Fatalf("expected 1 detection surviving threshold+NMS, got %d", len(states[0].Detections))
	}
}

type failingBackend struct {
	failIndex int
	calls     int
}

func (b *failingBackend) Load(path string) (Session, error) { return "session", nil }

func (b *failingBackend) Run(ctx context.Context, session Session, input Tensor) (Tensor, error) {
	i := b.calls
	b.calls++
	if i == b.failIndex {
		return Tensor{}, errors.New("backend exploded")
	}
	return Tensor{Data: []float32{0.5, 0.5, 0.2, 0.2, 0.9}, Shape: []int{1, 5, 1}}, nil
}

func TestEngine_BackendFailureReportsOnlyFailedItem(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.bin")
	if err := os.WriteFile(modelPath, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	backend := &failingBackend{failIndex: 1}
	e, err := New(modelPath, backend, Config{InputWidth: 8, InputHeight: 8, ClassCount: 1, Postprocess: DefaultPostprocessConfig(1)}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	batch := []scheduler.InferenceRequest{
		{FrameID: 1, TimestampMS: 1000, Width: 8, Height: 8, Payload: make([]byte, 8*8*3)},
		{FrameID: 2, TimestampMS: 2000, Width: 8, Height: 8, Payload: make([]byte, 8*8*3)},
	}
	states, err := e.Infer(context.Background(), batch)
	if err == nil {
		t.Fatalf("expected a non-nil error when one batch item fails")
	}
	itemErr, ok := err.(scheduler.ItemErrorer)
	if !ok {
		t.Fatalf("expected error to implement scheduler.ItemErrorer, got %T", err)
	}
	if itemErr.ItemError(0) != nil {
		t.Fatalf("expected item 0 to have succeeded, got %v", itemErr.ItemError(0))
	}
	if itemErr.ItemError(1) == nil {
		t.Fatalf("expected item 1 to report its backend error")
	}
	if len(states[0].Detections) != 1 {
		t.Fatalf("expected item 0's detections to still postprocess, got %d", len(states[0].Detections))
	}
}
