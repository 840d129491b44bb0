package inference

import (
	"github.com/kstaniek/zl-offload/internal/geometry"
	"github.com/kstaniek/zl-offload/internal/model"
)

// PostprocessConfig controls candidate filtering and NMS (§4.3).
type PostprocessConfig struct {
	ClassCount          int
	ConfidenceThreshold float64
	NMSThreshold        float64
}

// DefaultPostprocessConfig mirrors the spec's named defaults.
func DefaultPostprocessConfig(classCount int) PostprocessConfig {
	return PostprocessConfig{ClassCount: classCount, ConfidenceThreshold: 0.5, NMSThreshold: geometry.DefaultNMSThreshold}
}

// Postprocess parses a YOLO-family output tensor shaped [1, 4+C, N]: for
// each of the N candidates, finds the argmax class confidence and, if it
// clears the threshold, emits a Detection with normalized box coordinates,
// track_id 0, and timestamp nowMS. The survivors are then passed through
// per-class NMS (§4.3/§4.5).
func Postprocess(out Tensor, cfg PostprocessConfig, nowMS uint64) []model.Detection {
	if len(out.Shape) != 3 || out.Shape[0] != 1 {
		return nil
	}
	channels := out.Shape[1]
	n := out.Shape[2]
	classCount := cfg.ClassCount
	if classCount <= 0 || channels != 4+classCount {
		classCount = channels - 4
	}
	if classCount <= 0 {
		return nil
	}

	at := func(channel, i int) float32 { return out.Data[channel*n+i] }

	detections := make([]model.Detection, 0, n)
	for i := 0; i < n; i++ {
		bestClass := 0
		bestConf := float32(0)
		for c := 0; c < classCount; c++ {
			conf := at(4+c, i)
			if conf > bestConf {
				bestConf = conf
				bestClass = c
			}
		}
		if float64(bestConf) < cfg.ConfidenceThreshold {
			continue
		}
		box := model.BoundingBox{X: at(0, i), Y: at(1, i), W: at(2, i), H: at(3, i)}.Clamp()
		detections = append(detections, model.Detection{
			Box:         box,
			Confidence:  bestConf,
			ClassID:     uint8(bestClass),
			TimestampMS: nowMS,
		})
	}

	threshold := cfg.NMSThreshold
	if threshold <= 0 {
		threshold = geometry.DefaultNMSThreshold
	}
	return geometry.NMS(detections, threshold)
}
