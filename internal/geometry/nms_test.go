package geometry

import (
	"testing"

	"github.com/kstaniek/zl-offload/internal/model"
)

func det(class uint8, conf float32, x, y, w, h float32) model.Detection {
	return model.Detection{ClassID: class, Confidence: conf, Box: box(x, y, w, h)}
}

func TestNMS_SuppressesOverlap(t *testing.T) {
	in := []model.Detection{
		det(0, 0.9, 0.5, 0.5, 0.2, 0.2),
		det(0, 0.8, 0.51, 0.5, 0.2, 0.2), // heavy overlap with above, same class
		det(0, 0.7, 0.9, 0.9, 0.1, 0.1),  // disjoint, survives
		det(1, 0.95, 0.5, 0.5, 0.2, 0.2), // different class, survives despite same box
	}
	out := NMS(in, DefaultNMSThreshold)
	if len(out) != 3 {
		t.Fatalf("got %d survivors, want 3: %+v", len(out), out)
	}
}

func TestNMS_Idempotent(t *testing.T) {
	in := []model.Detection{
		det(0, 0.9, 0.5, 0.5, 0.2, 0.2),
		det(0, 0.8, 0.51, 0.5, 0.2, 0.2),
		det(0, 0.6, 0.2, 0.2, 0.1, 0.1),
	}
	once := NMS(in, DefaultNMSThreshold)
	twice := NMS(once, DefaultNMSThreshold)
	if len(once) != len(twice) {
		t.Fatalf("NMS not idempotent: once=%d twice=%d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("NMS not idempotent at %d: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestNMS_BoundAndMaximaRetained(t *testing.T) {
	in := []model.Detection{
		det(0, 0.5, 0.5, 0.5, 0.2, 0.2),
		det(0, 0.95, 0.5, 0.5, 0.2, 0.2), // higher-confidence duplicate must be retained
	}
	out := NMS(in, DefaultNMSThreshold)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Confidence != 0.95 {
		t.Fatalf("retained confidence = %v, want 0.95 (the cluster maximum)", out[0].Confidence)
	}
	if len(out) > len(in) {
		t.Fatalf("NMS output longer than input")
	}
}
