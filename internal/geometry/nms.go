package geometry

import (
	"sort"

	"github.com/kstaniek/zl-offload/internal/model"
)

// DefaultNMSThreshold is the per-class IoU cluster threshold (§4.5).
const DefaultNMSThreshold = 0.45

// NMS runs per-class non-maximum suppression over candidate detections.
// Detections are sorted by (class_id asc, confidence desc); walking the
// list, any later same-class detection whose IoU against a surviving
// detection exceeds threshold is removed. The input slice is not mutated.
func NMS(detections []model.Detection, threshold float64) []model.Detection {
	if len(detections) == 0 {
		return nil
	}
	sorted := make([]model.Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ClassID != sorted[j].ClassID {
			return sorted[i].ClassID < sorted[j].ClassID
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})

	suppressed := make([]bool, len(sorted))
	out := make([]model.Detection, 0, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		out = append(out, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] || sorted[j].ClassID != sorted[i].ClassID {
				continue
			}
			if IoU(sorted[i].Box, sorted[j].Box) > threshold {
				suppressed[j] = true
			}
		}
	}
	return out
}
