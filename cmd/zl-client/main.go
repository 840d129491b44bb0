package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kstaniek/zl-offload/internal/gameadapter"
	"github.com/kstaniek/zl-offload/internal/metrics"
	"github.com/kstaniek/zl-offload/internal/platform"
	"github.com/kstaniek/zl-offload/internal/transport"
)

// heartbeatIntervalMS is the fixed client heartbeat cadence (§6
// heartbeat_interval_ms default).
const heartbeatIntervalMS = 1000

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go, metrics_logger.go, session.go.

func main() {
	os.Exit(run())
}

func run() int {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("zl-client %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}
	if cfg == nil {
		return 1
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	if cfg.useCPUAffinity {
		if err := platform.PinToCPU(cfg.cpuCoreID); err != nil {
			l.Warn("cpu_affinity_failed", "core", cfg.cpuCoreID, "error", err)
		}
	}
	if cfg.useHighPriority {
		if err := platform.RaisePriority(); err != nil {
			l.Warn("raise_priority_failed", "error", err)
		}
	}

	var adapter gameadapter.Adapter
	if cfg.gameName != "" {
		gcfg := gameadapter.Config{Enabled: true}
		a, err := gameadapter.New(cfg.gameName, gcfg)
		if err != nil {
			l.Error("game_adapter_init_failed", "game", cfg.gameName, "error", err)
			return 1
		}
		adapter = a
	}

	sess := newSession(cfg, adapter, l)

	ep := transport.New(transport.Config{
		ListenAddr:         ":0",
		MaxRetries:         5,
		TimeoutMS:          5000,
		MaxPacketsInFlight: 32,
		AggregationTimeMS:  10,
		MaxAggregationSize: 1400,
		ManagementTickMS:   100,
	}, sess.handlePacket, l)
	sess.ep = ep

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	serveErr := make(chan error, 1)
	go func() { serveErr <- ep.ListenAndServe(ctx) }()

	// ListenAndServe binds the socket asynchronously; give it a moment to
	// come up before the handshake send, mirroring the dial-then-handshake
	// ordering a real UDP client would use.
	time.Sleep(10 * time.Millisecond)
	if err := sess.connect(); err != nil {
		l.Error("connect_failed", "server", cfg.serverIP, "error", err)
		cancel()
		return 1
	}

	metrics.SetReadinessFunc(func() bool { return ep.LocalAddr() != nil && ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sess.runHeartbeat(ctx, heartbeatIntervalMS*time.Millisecond)
	}()

	if cfg.autoStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.runRenderLoop(ctx, cfg.targetFPS)
		}()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
	case err := <-serveErr:
		if err != nil {
			l.Error("endpoint_serve_error", "error", err)
			exitCode = 2
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := ep.Shutdown(shutdownCtx); err != nil {
		l.Warn("endpoint_shutdown_error", "error", err)
	}
	wg.Wait()
	return exitCode
}
