package gameadapter

import (
	"testing"

	"github.com/kstaniek/zl-offload/internal/model"
)

func TestNew_RejectsDisabledConfig(t *testing.T) {
	if _, err := New("cs16", Config{Enabled: false}); err == nil {
		t.Fatalf("expected error for disabled config")
	}
}

func TestNew_RejectsUnknownGame(t *testing.T) {
	if _, err := New("unknown-game", Config{Enabled: true}); err == nil {
		t.Fatalf("expected error for unregistered game")
	}
}

func TestCS16_BestTargetPrefersHead(t *testing.T) {
	a, err := New("cs16", Config{Enabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	detections := []model.Detection{
		{Box: model.BoundingBox{X: 0.6, Y: 0.5}, ClassID: cs16ClassT},
		{Box: model.BoundingBox{X: 0.55, Y: 0.5}, ClassID: cs16ClassHead},
	}
	idx := a.BestTarget(detections)
	if idx != 1 {
		t.Fatalf("expected head detection (index 1) to win, got %d", idx)
	}
}

func TestCSGO_RecoilCompensationGrowsWithShotCount(t *testing.T) {
	a, err := New("csgo", Config{Enabled: true, Weapons: map[string]WeaponConfig{"ak47": {RecoilFactor: 1.0}}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, dy1 := a.RecoilCompensation(1, "ak47", true)
	_, dy2 := a.RecoilCompensation(1, "ak47", true)
	if dy2 >= dy1 {
		t.Fatalf("expected compensation to grow in magnitude with shot count: %v then %v", dy1, dy2)
	}
	_, dyReset := a.RecoilCompensation(1, "ak47", false)
	if dyReset != 0 {
		t.Fatalf("expected reset on stop-firing, got %v", dyReset)
	}
}

func TestCS16_RecoilCompensationGrowsWithShotCount(t *testing.T) {
	a, err := New("cs16", Config{Enabled: true, Weapons: map[string]WeaponConfig{"ak47": {RecoilFactor: 1.0}}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, dy1 := a.RecoilCompensation(1, "ak47", true)
	_, dy2 := a.RecoilCompensation(1, "ak47", true)
	if dy2 >= dy1 {
		t.Fatalf("expected compensation to grow in magnitude with shot count: %v then %v", dy1, dy2)
	}
	_, dyReset := a.RecoilCompensation(1, "ak47", false)
	if dyReset != 0 {
		t.Fatalf("expected reset on stop-firing, got %v", dyReset)
	}
}

func TestCS16_AimPointHeadIsUnshifted(t *testing.T) {
	a, err := New("cs16", Config{Enabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dx, dy := a.AimPoint(model.Detection{Box: model.BoundingBox{H: 0.3}, ClassID: cs16ClassHead}, "ak47")
	if dx != 0 || dy != 0 {
		t.Fatalf("expected head aim point to be unshifted, got dx=%v dy=%v", dx, dy)
	}
}

func TestCS16_AimPointScalesWithBoxHeightForBody(t *testing.T) {
	a, err := New("cs16", Config{Enabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, dy := a.AimPoint(model.Detection{Box: model.BoundingBox{H: 0.5}, ClassID: cs16ClassT}, "ak47")
	want := -0.5 * 0.2
	if dy != want {
		t.Fatalf("expected dy=%v for a non-sniper weapon, got %v", want, dy)
	}
}

func TestCS16_AimPointPullsInFurtherForSniperWeapons(t *testing.T) {
	a, err := New("cs16", Config{Enabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, dy := a.AimPoint(model.Detection{Box: model.BoundingBox{H: 0.5}, ClassID: cs16ClassCT}, "awp")
	want := -0.5 * 0.3
	if dy != want {
		t.Fatalf("expected dy=%v for AWP, got %v", want, dy)
	}
	_, dyHead := a.AimPoint(model.Detection{Box: model.BoundingBox{H: 0.5}, ClassID: cs16ClassHead}, "awp")
	if dyHead != 0 {
		t.Fatalf("expected head aim point to stay unshifted even for AWP, got %v", dyHead)
	}
}
