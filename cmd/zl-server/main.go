package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/kstaniek/zl-offload/internal/gameadapter"
	"github.com/kstaniek/zl-offload/internal/inference"
	"github.com/kstaniek/zl-offload/internal/metrics"
	"github.com/kstaniek/zl-offload/internal/platform"
	"github.com/kstaniek/zl-offload/internal/scheduler"
	"github.com/kstaniek/zl-offload/internal/transport"
)

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go, metrics_logger.go, backend.go, dispatcher.go.

func main() {
	os.Exit(run())
}

func run() int {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("zl-server %s (commit %s, built %s)\n", version, commit, date)
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

	adapters, err := buildGameAdapters(cfg)
	if err != nil {
		l.Error("game_adapter_init_failed", "error", err)
		return 1
	}

	workerThreads := cfg.workerThreads
	if workerThreads <= 0 {
		workerThreads = runtime.NumCPU()
	}
	classCount := 2 // {T, CT}, the cs16/csgo adapters' class ids 0 and 1; their head class (2) is not a model output class here
	engine, err := inference.New(cfg.modelPath, unwiredBackend{}, inference.Config{
		InputWidth:  416,
		InputHeight: 416,
		ClassCount:  classCount,
		Postprocess: inference.PostprocessConfig{
			ClassCount:          classCount,
			ConfidenceThreshold: cfg.confidenceThreshold,
			NMSThreshold:        cfg.nmsThreshold,
		},
		UseZeroCopy: cfg.useZeroCopy,
	}, l)
	if err != nil {
		l.Error("inference_engine_init_failed", "error", err)
		return 1
	}

	disp := newDispatcher(cfg, nil, adapters, l)

	sched := scheduler.New(scheduler.Config{
		MaxQueueSize:          cfg.maxQueueSize,
		WorkerThreads:         workerThreads,
		TargetFPS:             cfg.targetFPS,
		UseDynamicBatching:    cfg.useDynamicBatching,
		MaxBatchSize:          4,
		BatchWindow:           5 * time.Millisecond,
		UsePriorityScheduling: cfg.usePriorityScheduling,
	}, engine.Infer, disp.onInferenceDone, l)
	disp.sched = sched

	ep := transport.New(transport.Config{
		ListenAddr:         fmt.Sprintf(":%d", cfg.port),
		MaxRetries:         5,
		TimeoutMS:          5000,
		MaxPacketsInFlight: 32,
		AggregationTimeMS:  10,
		MaxAggregationSize: 1400,
		ManagementTickMS:   100,
	}, disp.handlePacket, l)
	disp.ep = ep

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	if cfg.useModelMonitor {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.WatchForChanges(ctx, cfg.modelPath, 10*time.Second)
		}()
	}

	sched.Start(ctx)

	serveErr := make(chan error, 1)
	go func() { serveErr <- ep.ListenAndServe(ctx) }()

	metrics.SetReadinessFunc(func() bool { return ep.LocalAddr() != nil && ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
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
	sched.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := ep.Shutdown(shutdownCtx); err != nil {
		l.Warn("endpoint_shutdown_error", "error", err)
	}
	wg.Wait()
	return exitCode
}

// buildGameAdapters constructs one Adapter per configured game name, falling
// back to the registry's own disabled default when a name isn't present in
// cfg.games (§6 games.<name>.enabled).
func buildGameAdapters(cfg *appConfig) (map[string]gameadapter.Adapter, error) {
	out := make(map[string]gameadapter.Adapter, len(gameadapter.Names()))
	for _, name := range gameadapter.Names() {
		gcfg, ok := cfg.games[name]
		if !ok {
			gcfg = gameadapter.Config{Enabled: false}
		}
		adapter, err := gameadapter.New(name, gcfg)
		if err != nil {
			if !gcfg.Enabled {
				continue
			}
			return nil, fmt.Errorf("game adapter %q: %w", name, err)
		}
		out[name] = adapter
	}
	return out, nil
}
