package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/zl-offload/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"packets_sent", snap.PacketsSent,
					"packets_received", snap.PacketsReceived,
					"packets_dropped", snap.PacketsDropped,
					"packets_retransmitted", snap.PacketsRetransmitted,
					"packets_abandoned", snap.PacketsAbandoned,
					"frames_submitted", snap.FramesSubmitted,
					"frames_dropped", snap.FramesDropped,
					"inference_errors", snap.InferenceErrors,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
