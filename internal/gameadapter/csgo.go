package gameadapter

import (
	"sync"

	"github.com/kstaniek/zl-offload/internal/model"
)

// csgo class ids follow the same convention as cs16 (T/CT/head).
const (
	csgoClassT    = 0
	csgoClassCT   = 1
	csgoClassHead = 2
)

func init() {
	Register("csgo", newCSGOAdapter)
}

// csgoAdapter ports CSGOGameAdapter: same head-favoring target selection as
// cs16, plus per-weapon recoil compensation driven by Config.Weapons
// (original_source: calculateRecoilCompensation).
type csgoAdapter struct {
	cfg Config

	mu         sync.Mutex
	shotCounts map[uint32]int // clientID -> consecutive shots, reset when firing stops
}

func newCSGOAdapter(cfg Config) (Adapter, error) {
	if cfg.HeadSizeFactor == 0 {
		cfg.HeadSizeFactor = 0.7
	}
	if cfg.AimTargetOffsetY == 0 {
		cfg.AimTargetOffsetY = -0.15
	}
	return &csgoAdapter{cfg: cfg, shotCounts: make(map[uint32]int)}, nil
}

func (a *csgoAdapter) ProcessDetections(clientID uint32, state model.GameState, nowMS uint64) model.GameState {
	for i := range state.Detections {
		if state.Detections[i].ClassID == csgoClassHead {
			state.Detections[i].Box.H *= float32(a.cfg.HeadSizeFactor)
		}
	}
	return state
}

func (a *csgoAdapter) BestTarget(detections []model.Detection) int {
	best := -1
	bestDist := float32(1 << 30)
	for i, d := range detections {
		if d.ClassID != csgoClassT && d.ClassID != csgoClassCT && d.ClassID != csgoClassHead {
			continue
		}
		dx := d.Box.X - 0.5
		dy := d.Box.Y - 0.5
		dist := dx*dx + dy*dy
		if d.ClassID == csgoClassHead {
			dist *= 0.25
		}
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return best
}

func (a *csgoAdapter) AimPoint(detection model.Detection, weaponID string) (dx, dy float64) {
	if detection.ClassID == csgoClassHead {
		return 0, 0
	}
	factor := 0.2
	if isSniperWeapon(weaponID) {
		factor = 0.3
	}
	return 0, -float64(detection.Box.H) * factor
}

// RecoilCompensation implements Adapter.RecoilCompensation: a per-shot aim
// correction for weaponID, scaled by consecutive shot count (recoil climbs
// with sustained fire).
func (a *csgoAdapter) RecoilCompensation(clientID uint32, weaponID string, firing bool) (dx, dy float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !firing {
		a.shotCounts[clientID] = 0
		return 0, 0
	}
	w, ok := a.cfg.Weapons[weaponID]
	if !ok {
		return 0, 0
	}
	a.shotCounts[clientID]++
	shots := a.shotCounts[clientID]
	return 0, -w.RecoilFactor * float64(shots) * 0.01
}
