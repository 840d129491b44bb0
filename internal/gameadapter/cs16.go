package gameadapter

import (
	"strings"
	"sync"

	"github.com/kstaniek/zl-offload/internal/model"
)

// cs16 class ids (original_source common/constants.h, namespace cs16).
const (
	cs16ClassT    = 0
	cs16ClassCT   = 1
	cs16ClassHead = 2
)

// trackedObjectTTLMS is the per-client tracked-object cache expiry
// (original_source: "current_time - detection.timestamp > 100").
const trackedObjectTTLMS = 100

func init() {
	Register("cs16", newCS16Adapter)
}

// cs16Adapter ports CS16GameAdapter: it favors head targets over torso
// targets when picking an aim point, and tracks per-client recent
// detections so callers can reason about target continuity.
type cs16Adapter struct {
	cfg Config

	mu         sync.Mutex
	tracked    map[uint32]map[uint32]model.Detection // clientID -> trackID -> last seen
	shotCounts map[uint32]int                        // clientID -> consecutive shots
}

func newCS16Adapter(cfg Config) (Adapter, error) {
	if cfg.HeadSizeFactor == 0 {
		cfg.HeadSizeFactor = 0.7
	}
	if cfg.AimTargetOffsetY == 0 {
		cfg.AimTargetOffsetY = -0.15
	}
	return &cs16Adapter{
		cfg:        cfg,
		tracked:    make(map[uint32]map[uint32]model.Detection),
		shotCounts: make(map[uint32]int),
	}, nil
}

func (a *cs16Adapter) ProcessDetections(clientID uint32, state model.GameState, nowMS uint64) model.GameState {
	a.mu.Lock()
	defer a.mu.Unlock()

	// original_source processCS16Detections: head boxes are synthesized
	// tighter than the torso detector reports them, so aiming/recoil math
	// downstream sees a head-sized box instead of a full upper-body one.
	for i := range state.Detections {
		if state.Detections[i].ClassID == cs16ClassHead {
			state.Detections[i].Box.H *= float32(a.cfg.HeadSizeFactor)
		}
	}

	client, ok := a.tracked[clientID]
	if !ok {
		client = make(map[uint32]model.Detection)
		a.tracked[clientID] = client
	}
	for _, d := range state.Detections {
		if d.TrackID != 0 {
			client[d.TrackID] = d
		}
	}
	for id, d := range client {
		if nowMS-d.TimestampMS > trackedObjectTTLMS {
			delete(client, id)
		}
	}
	return state
}

func (a *cs16Adapter) BestTarget(detections []model.Detection) int {
	best := -1
	bestDist := float32(1 << 30)
	for i, d := range detections {
		if d.ClassID != cs16ClassT && d.ClassID != cs16ClassHead {
			continue
		}
		dx := d.Box.X - 0.5
		dy := d.Box.Y - 0.5
		dist := dx*dx + dy*dy
		if d.ClassID == cs16ClassHead {
			dist *= 0.25 // original_source halves the linear distance before comparing
		}
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return best
}

// AimPoint ports CS16GameAdapter::getAimPoint: a head detection's box
// center is already the aim point (no offset), while a torso detection
// aims up toward the head by a fraction of its own box height. AWP/Scout
// pull that torso offset in further since a body hit still kills but a
// head hit is worth taking the extra risk for.
func (a *cs16Adapter) AimPoint(detection model.Detection, weaponID string) (dx, dy float64) {
	if detection.ClassID == cs16ClassHead {
		return 0, 0
	}
	factor := 0.2
	if isSniperWeapon(weaponID) {
		factor = 0.3
	}
	return 0, -float64(detection.Box.H) * factor
}

// isSniperWeapon reports whether weaponID names one of the original's
// one-shot-to-torso weapons (original_source: weapon name "AWP"/"Scout").
func isSniperWeapon(weaponID string) bool {
	return strings.EqualFold(weaponID, "awp") || strings.EqualFold(weaponID, "scout")
}

// RecoilCompensation ports CS16GameAdapter::calculateRecoilCompensation's
// vertical term (original_source gates the full pattern on automatic
// weapons only; Config.Weapons here carries one recoil factor per weapon
// regardless of fire mode, so every configured weapon compensates while
// firing).
func (a *cs16Adapter) RecoilCompensation(clientID uint32, weaponID string, firing bool) (dx, dy float64) {
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
