// Package output defines the client's consumption boundary for fused game
// state. Real input injection and overlay rendering are external
// collaborators (spec: "Output sink: consumes fused state for the
// overlay/aim code (external)"); this package owns the seam plus a logging
// sink that exercises the enable_aim_assist/enable_esp/enable_recoil_control
// toggles of §6 against the registered gameadapter so those flags aren't
// merely accepted-and-ignored.
package output

import (
	"log/slog"

	"github.com/kstaniek/zl-offload/internal/gameadapter"
	"github.com/kstaniek/zl-offload/internal/model"
)

// Config mirrors the client's enable_* feature toggles (§6).
type Config struct {
	ClientID            uint32
	EnableAimAssist     bool
	EnableESP           bool
	EnableRecoilControl bool
	WeaponID            string
}

// Sink consumes one fused GameState per render tick. A real implementation
// forwards to OS input injection / overlay code; it is never implemented
// here.
type Sink interface {
	Consume(state model.GameState)
}

// LogSink is the default Sink: it runs the configured adapter's target
// selection and aim-point math and logs the result, standing in for the
// external aim/ESP/recoil peripherals named in §2.
type LogSink struct {
	cfg     Config
	adapter gameadapter.Adapter
	logger  *slog.Logger
}

// NewLogSink builds a LogSink. adapter may be nil if no game was
// configured, in which case aim-assist/recoil features are silently
// disabled regardless of cfg.
func NewLogSink(cfg Config, adapter gameadapter.Adapter, logger *slog.Logger) *LogSink {
	return &LogSink{cfg: cfg, adapter: adapter, logger: logger}
}

func (s *LogSink) Consume(state model.GameState) {
	if s.cfg.EnableESP {
		s.logger.Debug("esp_overlay", "frame", state.FrameID, "detections", len(state.Detections))
	}
	if s.adapter == nil {
		return
	}
	onTarget := false
	if s.cfg.EnableAimAssist || s.cfg.EnableRecoilControl {
		if idx := s.adapter.BestTarget(state.Detections); idx >= 0 {
			onTarget = true
			if s.cfg.EnableAimAssist {
				dx, dy := s.adapter.AimPoint(state.Detections[idx], s.cfg.WeaponID)
				s.logger.Debug("aim_assist_target", "frame", state.FrameID, "track_id", state.Detections[idx].TrackID, "dx", dx, "dy", dy)
			}
		}
	}
	if s.cfg.EnableRecoilControl {
		// No real trigger-input capture exists on this client, so a locked
		// aim target this tick stands in for "firing"; losing the target
		// resets the adapter's consecutive-shot count.
		dx, dy := s.adapter.RecoilCompensation(s.cfg.ClientID, s.cfg.WeaponID, onTarget)
		s.logger.Debug("recoil_control_tick", "frame", state.FrameID, "weapon", s.cfg.WeaponID, "dx", dx, "dy", dy)
	}
}
