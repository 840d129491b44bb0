package inference

import (
	"math/rand"

	"github.com/kstaniek/zl-offload/internal/model"
)

// simulateDetections generates 0-5 plausible synthetic boxes with uniform
// position and size, used when no model file is present at startup so
// downstream components remain testable (§4.3).
func simulateDetections(rng *rand.Rand, nowMS uint64) []model.Detection {
	n := rng.Intn(6)
	out := make([]model.Detection, 0, n)
	for i := 0; i < n; i++ {
		w := 0.05 + rng.Float32()*0.15
		h := 0.05 + rng.Float32()*0.15
		x := w/2 + rng.Float32()*(1-w)
		y := h/2 + rng.Float32()*(1-h)
		out = append(out, model.Detection{
			Box:         model.BoundingBox{X: x, Y: y, W: w, H: h}.Clamp(),
			Confidence:  0.5 + rng.Float32()*0.5,
			ClassID:     uint8(rng.Intn(4)),
			TimestampMS: nowMS,
		})
	}
	return out
}
