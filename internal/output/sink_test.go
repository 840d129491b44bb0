package output

import (
	"io"
	"log/slog"
	"testing"

	"github.com/kstaniek/zl-offload/internal/gameadapter"
	"github.com/kstaniek/zl-offload/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogSink_NilAdapterSkipsAimAssist(t *testing.T) {
	s := NewLogSink(Config{EnableAimAssist: true}, nil, discardLogger())
	s.Consume(model.GameState{FrameID: 1, Detections: []model.Detection{{TrackID: 1}}})
}

func TestLogSink_ConsumeRunsAimAssistWithAdapter(t *testing.T) {
	adapter, err := gameadapter.New("cs16", gameadapter.Config{Enabled: true})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	s := NewLogSink(Config{EnableAimAssist: true, WeaponID: "ak47"}, adapter, discardLogger())
	state := model.GameState{
		FrameID:    1,
		Detections: []model.Detection{{Box: model.BoundingBox{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, ClassID: 0, TrackID: 1}},
	}
	s.Consume(state)
}
