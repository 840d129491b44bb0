package fuser

import (
	"math"
	"testing"

	"github.com/go-test/deep"
	"github.com/kstaniek/zl-offload/internal/model"
)

func TestFuse_IdenticalBoxesFuseExactly(t *testing.T) {
	box := model.BoundingBox{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}
	det := model.Detection{Box: box, Confidence: 0.9, ClassID: 1, TrackID: 5, TimestampMS: 1000}
	server := model.GameState{
		FrameID:     1,
		TimestampMS: 1000,
		Detections:  []model.Detection{det},
	}
	local := []model.Detection{det}

	out := Fuse(server, local, 1000, DefaultConfig())
	if len(out.Detections) != 1 {
		t.Fatalf("expected 1 fused detection, got %d", len(out.Detections))
	}
	if diff := deep.Equal(out.Detections[0], det); diff != nil {
		t.Fatalf("expected exact detection match, diff: %v", diff)
	}
}

func TestFuse_InterpolatesTowardServerByWeight(t *testing.T) {
	cfg := DefaultConfig()
	serverBox := model.BoundingBox{X: 0.6, Y: 0.5, W: 0.1, H: 0.1}
	localBox := model.BoundingBox{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}
	server := model.GameState{
		FrameID:     1,
		TimestampMS: 1000,
		Detections:  []model.Detection{{Box: serverBox, Confidence: 0.9, ClassID: 1, TrackID: 5, TimestampMS: 1000}},
	}
	local := []model.Detection{{Box: localBox, Confidence: 0.9, ClassID: 1, TrackID: 5, TimestampMS: 1000}}

	now := uint64(1050) // age=50ms
	out := Fuse(server, local, now, cfg)
	wantWeight := cfg.ServerCorrectionWeight * (1 - 50.0/100.0)
	wantX := localBox.X + float32(wantWeight)*(serverBox.X-localBox.X)

	if diff := math.Abs(float64(out.Detections[0].Box.X - wantX)); diff > 1e-4 {
		t.Fatalf("expected fused x ~%v, got %v", wantX, out.Detections[0].Box.X)
	}
}

func TestFuse_StaleServerYieldsLocalOnly(t *testing.T) {
	server := model.GameState{
		FrameID:     1,
		TimestampMS: 0,
		Detections:  []model.Detection{{Box: model.BoundingBox{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, Confidence: 0.9}},
	}
	local := []model.Detection{{Box: model.BoundingBox{X: 0.9, Y: 0.9, W: 0.1, H: 0.1}, Confidence: 0.9}}

	out := Fuse(server, local, 1000, DefaultConfig())
	if diff := deep.Equal(out.Detections, local); diff != nil {
		t.Fatalf("expected stale server state ignored in favor of local, diff: %v", diff)
	}
}

func TestFuse_EmptyServerYieldsLocal(t *testing.T) {
	out := Fuse(model.GameState{}, []model.Detection{{Confidence: 1}}, 0, DefaultConfig())
	if len(out.Detections) != 1 {
		t.Fatalf("expected local passthrough when server is empty")
	}
}
