// Package fuser implements the client dual-engine fuser of §4.7:
// reconciling the last authoritative server GameState with current local
// predictions via a similarity-weighted greedy match and age-gated
// interpolation.
package fuser

import (
	"math"
	"sort"

	"github.com/kstaniek/zl-offload/internal/metrics"
	"github.com/kstaniek/zl-offload/internal/model"
)

// Config controls staleness, matching, and interpolation weight (§4.7).
type Config struct {
	StaleAfterMS           uint64
	SimilarityThreshold    float64
	ServerCorrectionWeight float64
	MinServerConfidence    float64
}

// DefaultConfig mirrors the spec's named defaults.
func DefaultConfig() Config {
	return Config{
		StaleAfterMS:           500,
		SimilarityThreshold:    0.3,
		ServerCorrectionWeight: 0.3,
		MinServerConfidence:    0.4,
	}
}

// Fuse merges the server's last GameState (S) with the client's current
// local predictions (L) at time nowMS, per the rules of §4.7.
func Fuse(server model.GameState, local []model.Detection, nowMS uint64, cfg Config) model.GameState {
	out := model.GameState{FrameID: server.FrameID + 1, TimestampMS: nowMS}

	if len(server.Detections) == 0 || nowMS-server.TimestampMS > cfg.StaleAfterMS {
		out.Detections = local
		return out
	}
	if len(local) == 0 {
		out.Detections = server.Detections
		return out
	}

	ageMS := nowMS - server.TimestampMS
	weight := cfg.ServerCorrectionWeight * (1 - clamp01(float64(ageMS)/100.0))

	matchedServer := make([]bool, len(server.Detections))
	matchedLocal := make([]bool, len(local))

	pairs := buildPairs(server.Detections, local, cfg.SimilarityThreshold)
	fused := make([]model.Detection, 0, len(server.Detections)+len(local))
	for _, p := range pairs {
		if matchedServer[p.si] || matchedLocal[p.li] {
			continue
		}
		matchedServer[p.si] = true
		matchedLocal[p.li] = true
		fused = append(fused, fuseOne(server.Detections[p.si], local[p.li], weight))
		metrics.IncFusionMatches()
	}

	for i, d := range server.Detections {
		if matchedServer[i] {
			continue
		}
		if float64(d.Confidence) >= cfg.MinServerConfidence {
			fused = append(fused, d)
			metrics.IncFusionServerOnly()
		}
	}
	for i, d := range local {
		if matchedLocal[i] {
			continue
		}
		if float64(d.Confidence) >= cfg.MinServerConfidence {
			fused = append(fused, d)
			metrics.IncFusionLocalOnly()
		}
	}

	out.Detections = fused
	return out
}

type pair struct {
	si, li int
	sim    float64
}

// buildPairs computes the same-class similarity matrix and returns
// candidate pairs sorted by descending similarity for greedy matching
// (§4.7 steps 3-4).
func buildPairs(server, local []model.Detection, threshold float64) []pair {
	var pairs []pair
	for si, s := range server {
		for li, l := range local {
			if s.ClassID != l.ClassID {
				continue
			}
			sim := similarity(s, l)
			if sim < threshold {
				continue
			}
			pairs = append(pairs, pair{si: si, li: li, sim: sim})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].sim > pairs[j].sim })
	return pairs
}

// similarity implements §4.7's weighted center/size/confidence formula.
func similarity(s, l model.Detection) float64 {
	dx := float64(s.Box.X - l.Box.X)
	dy := float64(s.Box.Y - l.Box.Y)
	centerDist := math.Sqrt(dx*dx + dy*dy)
	center := math.Exp(-10 * centerDist)

	maxW := math.Max(float64(s.Box.W), float64(l.Box.W))
	maxH := math.Max(float64(s.Box.H), float64(l.Box.H))
	sizeDiff := 0.0
	if maxW > 0 {
		sizeDiff += math.Abs(float64(s.Box.W-l.Box.W)) / maxW
	}
	if maxH > 0 {
		sizeDiff += math.Abs(float64(s.Box.H-l.Box.H)) / maxH
	}
	size := math.Exp(-5 * (sizeDiff / 2))

	conf := float64(s.Confidence) * float64(l.Confidence)

	return 0.6*center + 0.3*size + 0.1*conf
}

// fuseOne linearly interpolates a matched pair toward the server box by
// weight and carries the local track_id and the max confidence (§4.7 step 5).
func fuseOne(s, l model.Detection, weight float64) model.Detection {
	lerp := func(a, b float32) float32 { return a + float32(weight)*(b-a) }
	conf := s.Confidence
	if l.Confidence > conf {
		conf = l.Confidence
	}
	return model.Detection{
		Box: model.BoundingBox{
			X: lerp(l.Box.X, s.Box.X),
			Y: lerp(l.Box.Y, s.Box.Y),
			W: lerp(l.Box.W, s.Box.W),
			H: lerp(l.Box.H, s.Box.H),
		}.Clamp(),
		Confidence:  conf,
		ClassID:     l.ClassID,
		TrackID:     l.TrackID,
		TimestampMS: s.TimestampMS,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
