package tracker

import (
	"github.com/kstaniek/zl-offload/internal/kalman"
	"github.com/kstaniek/zl-offload/internal/model"
)

// MaxHistory bounds the per-track box history ring (§3).
const MaxHistory = 30

// Track is one tracked object, owned exclusively by Tracker (§3 ownership).
type Track struct {
	ID           uint32
	ClassID      uint8
	Confidence   float32
	CreatedMS    uint64
	LastUpdateMS uint64
	HitCount     int
	MissCount    int
	History      []model.BoundingBox

	kf         *kalman.Filter
	lastSyncMS uint64 // internal filter clock, advanced by every Predict call
}

func newTrack(id uint32, d model.Detection) *Track {
	return &Track{
		ID:           id,
		ClassID:      d.ClassID,
		Confidence:   d.Confidence,
		CreatedMS:    d.TimestampMS,
		LastUpdateMS: d.TimestampMS,
		History:      []model.BoundingBox{d.Box},
		kf:           kalman.NewFilter(d.Box),
		lastSyncMS:   d.TimestampMS,
	}
}

// predict advances the track's filter to nowMS and returns the predicted
// box, clamped to the unit square (§4.4).
func (t *Track) predict(nowMS uint64) model.BoundingBox {
	dt := deltaSeconds(t.lastSyncMS, nowMS)
	box := t.kf.Predict(dt)
	t.lastSyncMS = nowMS
	return box
}

// update applies a matched measurement: smooths confidence, resets the miss
// streak, and appends to history (§4.4 "update step"). The filter's
// predict half was already run by predict() as part of data association.
func (t *Track) update(d model.Detection) {
	t.kf.Correct(d.Box)
	t.HitCount++
	t.MissCount = 0
	t.Confidence = 0.7*t.Confidence + 0.3*d.Confidence
	t.LastUpdateMS = d.TimestampMS
	t.History = append(t.History, t.kf.Box().Clamp())
	if len(t.History) > MaxHistory {
		t.History = t.History[len(t.History)-MaxHistory:]
	}
}

// markMissed records a scan cycle with no matching detection.
func (t *Track) markMissed() {
	t.MissCount++
}

func (t *Track) confirmed(minHits int) bool { return t.HitCount >= minHits }

func (t *Track) box() model.BoundingBox { return t.kf.Box().Clamp() }

func (t *Track) toDetection(nowMS uint64) model.Detection {
	return model.Detection{
		Box:         t.box(),
		Confidence:  t.Confidence,
		ClassID:     t.ClassID,
		TrackID:     t.ID,
		TimestampMS: nowMS,
	}
}

func deltaSeconds(fromMS, toMS uint64) float64 {
	if toMS <= fromMS {
		return kalman.MinDeltaSeconds
	}
	return float64(toMS-fromMS) / 1000.0
}
