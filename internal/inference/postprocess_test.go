package inference

import "testing"

func TestPostprocess_FiltersByConfidenceAndAppliesNMS(t *testing.T) {
	// 2 classes, 3 candidates: one below threshold, two overlapping above it.
	data := []float32{
		// x
		0.5, 0.5, 0.5,
		// y
		0.5, 0.5, 0.5,
		// w
		0.2, 0.2, 0.2,
		// h
		0.2, 0.2, 0.2,
		// class0 conf
		0.1, 0.9, 0.8,
		// class1 conf
		0.0, 0.0, 0.0,
	}
	out := Tensor{Data: data, Shape: []int{1, 6, 3}}
	cfg := DefaultPostprocessConfig(2)
	dets := Postprocess(out, cfg, 1000)
	if len(dets) != 1 {
		t.Fatalf("expected 1 surviving detection after threshold+NMS, got %d", len(dets))
	}
	if dets[0].Confidence != 0.9 {
		t.Fatalf("expected the higher-confidence box to survive NMS, got %v", dets[0].Confidence)
	}
}
