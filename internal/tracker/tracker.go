// Package tracker implements the multi-object tracker of §4.4: Kalman
// prediction per track, IoU-cost Hungarian data association, and track
// lifecycle management. Tracker is single-writer (§5); external readers
// must go through Snapshot.
package tracker

import (
	"log/slog"

	"github.com/kstaniek/zl-offload/internal/geometry"
	"github.com/kstaniek/zl-offload/internal/logging"
	"github.com/kstaniek/zl-offload/internal/metrics"
	"github.com/kstaniek/zl-offload/internal/model"
)

// Config controls association and lifecycle thresholds (§4.4 defaults).
type Config struct {
	IoUThreshold float64
	MinHits      int
	MaxAgeMS     uint64
}

// DefaultConfig mirrors the spec's named defaults.
func DefaultConfig() Config {
	return Config{IoUThreshold: 0.3, MinHits: 3, MaxAgeMS: 500}
}

// Tracker owns the live track set for one client/session.
type Tracker struct {
	cfg         Config
	logger      *slog.Logger
	tracks      map[uint32]*Track
	nextTrackID uint32
}

// New constructs a Tracker. A nil logger falls back to logging.L().
func New(cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = logging.L()
	}
	return &Tracker{cfg: cfg, logger: logger, tracks: make(map[uint32]*Track), nextTrackID: 1}
}

// Update runs one association cycle: predicts every existing track to now,
// solves the Hungarian assignment against detections, applies matches,
// spawns tracks for unmatched detections, and destroys aged-out tracks.
// It returns the detections to emit to consumers: confirmed tracks,
// matched or predicted, carrying their stable track id (§4.4 step 8).
func (tr *Tracker) Update(detections []model.Detection, nowMS uint64) []model.Detection {
	ids := make([]uint32, 0, len(tr.tracks))
	predicted := make([]model.BoundingBox, 0, len(tr.tracks))
	for id, t := range tr.tracks {
		predicted = append(predicted, t.predict(nowMS))
		ids = append(ids, id)
	}

	matchedDet := make([]bool, len(detections))
	matchedTrack := make([]bool, len(ids))

	if len(detections) > 0 && len(ids) > 0 {
		cost := make([][]float64, len(detections))
		for i, d := range detections {
			cost[i] = make([]float64, len(ids))
			for j, box := range predicted {
				cost[i][j] = 1 - geometry.IoU(d.Box, box)
			}
		}
		assignment := solveAssignment(cost)
		for i, j := range assignment {
			if j < 0 {
				continue
			}
			iou := 1 - cost[i][j]
			if iou < tr.cfg.IoUThreshold {
				continue
			}
			track := tr.tracks[ids[j]]
			track.update(detections[i])
			matchedDet[i] = true
			matchedTrack[j] = true
		}
	}

	for i, t := range detections {
		if matchedDet[i] {
			continue
		}
		id := tr.nextTrackID
		tr.nextTrackID++
		t.TrackID = id
		tr.tracks[id] = newTrack(id, t)
	}

	for j, id := range ids {
		if matchedTrack[j] {
			continue
		}
		tr.tracks[id].markMissed()
	}

	out := make([]model.Detection, 0, len(tr.tracks))
	for id, t := range tr.tracks {
		if t.LastUpdateMS != 0 && nowMS-t.LastUpdateMS > tr.cfg.MaxAgeMS {
			delete(tr.tracks, id)
			metrics.IncTrackerDestroyed()
			continue
		}
		if nowMS-t.CreatedMS > tr.cfg.MaxAgeMS && t.HitCount < tr.cfg.MinHits {
			delete(tr.tracks, id)
			metrics.IncTrackerDestroyed()
			continue
		}
		if t.confirmed(tr.cfg.MinHits) {
			out = append(out, t.toDetection(nowMS))
		}
	}
	metrics.SetTrackerActive(len(tr.tracks))
	return out
}

// Snapshot returns a copy of all live tracks' current state, for read-only
// external consumption (§3 ownership).
func (tr *Tracker) Snapshot() []model.Detection {
	out := make([]model.Detection, 0, len(tr.tracks))
	for _, t := range tr.tracks {
		out = append(out, t.toDetection(t.LastUpdateMS))
	}
	return out
}

// Count returns the number of live (not necessarily confirmed) tracks.
func (tr *Tracker) Count() int { return len(tr.tracks) }
