package predictor

import (
	"testing"

	"github.com/kstaniek/zl-offload/internal/model"
)

func TestPredictor_IgnoresUnassociatedDetections(t *testing.T) {
	p := New(DefaultConfig())
	p.Ingest(model.Detection{TrackID: 0, Box: model.BoundingBox{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, TimestampMS: 0})
	if p.Count() != 0 {
		t.Fatalf("expected track_id=0 detections to be ignored, got %d tracks", p.Count())
	}
}

func TestPredictor_RepeatedPredictStateIsStable(t *testing.T) {
	p := New(DefaultConfig())
	p.Ingest(model.Detection{TrackID: 1, Box: model.BoundingBox{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, Confidence: 1.0, TimestampMS: 1000})

	first := p.PredictState(1050)
	second := p.PredictState(1050)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 prediction each call")
	}
	if first[0].Box != second[0].Box {
		t.Fatalf("expected identical predictions for the same target time, got %+v vs %+v", first[0].Box, second[0].Box)
	}
}

func TestPredictor_ConfidenceDecaysWithAge(t *testing.T) {
	p := New(DefaultConfig())
	p.Ingest(model.Detection{TrackID: 1, Box: model.BoundingBox{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, Confidence: 1.0, TimestampMS: 0})
	near := p.PredictState(20)
	far := p.PredictState(160)
	if far[0].Confidence >= near[0].Confidence {
		t.Fatalf("expected confidence to decay with age: near=%v far=%v", near[0].Confidence, far[0].Confidence)
	}
}

func TestPredictor_PurgesStaleTracks(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg)
	p.Ingest(model.Detection{TrackID: 1, Box: model.BoundingBox{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, TimestampMS: 0})
	p.PredictState(cfg.MaxTrackAgeMS + 1)
	if p.Count() != 0 {
		t.Fatalf("expected stale track purged, got %d", p.Count())
	}
}

func TestPredictor_DropsDetectionsBelowMinConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.5
	p := New(cfg)
	p.Ingest(model.Detection{TrackID: 1, Box: model.BoundingBox{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, Confidence: 0.2, TimestampMS: 0})
	if p.Count() != 0 {
		t.Fatalf("expected low-confidence detection to be dropped, got %d tracks", p.Count())
	}
}
