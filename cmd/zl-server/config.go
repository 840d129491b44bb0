package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/zl-offload/internal/gameadapter"
)

// appConfig mirrors the server's flat key map of §6: model_path, port,
// max_clients, target_fps, confidence_threshold, nms_threshold,
// max_queue_size, worker_threads, use_cpu_affinity, cpu_core_id,
// use_high_priority, optimization.*, games.<name>.*.
type appConfig struct {
	modelPath           string
	port                int
	maxClients          int
	targetFPS           int
	confidenceThreshold float64
	nmsThreshold        float64
	maxQueueSize        int
	workerThreads       int
	useCPUAffinity      bool
	cpuCoreID           int
	useHighPriority     bool

	useInt8Quantization   bool
	useZeroCopy           bool
	useDynamicBatching    bool
	useModelMonitor       bool
	usePriorityScheduling bool

	gamesConfigPath string
	games           map[string]gameadapter.Config

	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	modelPath := flag.String("model-path", "models/detector.onnx", "Path to the detection model file; absent path enters simulation mode")
	port := flag.Int("port", 7788, "UDP listen port")
	maxClients := flag.Int("max-clients", 10, "Maximum simultaneous clients")
	targetFPS := flag.Int("target-fps", 30, "Target inference rate")
	confidenceThreshold := flag.Float64("confidence-threshold", 0.5, "Minimum detection confidence kept by postprocessing")
	nmsThreshold := flag.Float64("nms-threshold", 0.45, "IoU threshold for non-maximum suppression")
	maxQueueSize := flag.Int("max-queue-size", 8, "Bounded inference queue depth")
	workerThreads := flag.Int("worker-threads", 0, "Inference worker goroutines (0 = runtime.NumCPU())")
	useCPUAffinity := flag.Bool("use-cpu-affinity", false, "Pin the startup OS thread to a CPU core (Linux only; worker goroutines are not locked to it)")
	cpuCoreID := flag.Int("cpu-core-id", 0, "CPU core to pin to when use-cpu-affinity is set")
	useHighPriority := flag.Bool("use-high-priority", false, "Request a near-real-time scheduling priority")
	useInt8Quantization := flag.Bool("use-int8-quantization", false, "optimization.use_int8_quantization")
	useZeroCopy := flag.Bool("use-zero-copy", false, "optimization.use_zero_copy")
	useDynamicBatching := flag.Bool("use-dynamic-batching", false, "optimization.use_dynamic_batching")
	useModelMonitor := flag.Bool("use-model-monitor", true, "optimization.use_model_monitor")
	usePriorityScheduling := flag.Bool("use-priority-scheduling", true, "optimization.use_priority_scheduling")
	gamesConfigPath := flag.String("games-config", "", "Path to a JSON file describing games.<name>.* adapter configuration")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.modelPath = *modelPath
	cfg.port = *port
	cfg.maxClients = *maxClients
	cfg.targetFPS = *targetFPS
	cfg.confidenceThreshold = *confidenceThreshold
	cfg.nmsThreshold = *nmsThreshold
	cfg.maxQueueSize = *maxQueueSize
	cfg.workerThreads = *workerThreads
	cfg.useCPUAffinity = *useCPUAffinity
	cfg.cpuCoreID = *cpuCoreID
	cfg.useHighPriority = *useHighPriority
	cfg.useInt8Quantization = *useInt8Quantization
	cfg.useZeroCopy = *useZeroCopy
	cfg.useDynamicBatching = *useDynamicBatching
	cfg.useModelMonitor = *useModelMonitor
	cfg.usePriorityScheduling = *usePriorityScheduling
	cfg.gamesConfigPath = *gamesConfigPath
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	games, err := loadGamesConfig(cfg.gamesConfigPath)
	if err != nil {
		fmt.Printf("games configuration error: %v\n", err)
		return nil, *showVersion
	}
	cfg.games = games
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not touch the filesystem or network — model_path's absence is a
// legitimate simulation-mode trigger, not a config error.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.port <= 0 || c.port > 65535 {
		return fmt.Errorf("port out of range: %d", c.port)
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	if c.targetFPS <= 0 {
		return fmt.Errorf("target-fps must be > 0 (got %d)", c.targetFPS)
	}
	if c.confidenceThreshold < 0 || c.confidenceThreshold > 1 {
		return fmt.Errorf("confidence-threshold must be in [0,1] (got %v)", c.confidenceThreshold)
	}
	if c.nmsThreshold < 0 || c.nmsThreshold > 1 {
		return fmt.Errorf("nms-threshold must be in [0,1] (got %v)", c.nmsThreshold)
	}
	if c.maxQueueSize <= 0 {
		return fmt.Errorf("max-queue-size must be > 0 (got %d)", c.maxQueueSize)
	}
	if c.workerThreads < 0 {
		return fmt.Errorf("worker-threads must be >= 0")
	}
	if c.cpuCoreID < 0 {
		return fmt.Errorf("cpu-core-id must be >= 0")
	}
	return nil
}

// loadGamesConfig parses the games.<name>.* tree from a JSON file. An empty
// path yields an empty map; callers fall back to gameadapter registry
// defaults (both names registered disabled) when no game is configured.
func loadGamesConfig(path string) (map[string]gameadapter.Config, error) {
	if path == "" {
		return map[string]gameadapter.Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read games config %q: %w", path, err)
	}
	var raw map[string]struct {
		Enabled          bool    `json:"enabled"`
		AimTargetOffsetY float64 `json:"aim_target_offset_y"`
		HeadSizeFactor   float64 `json:"head_size_factor"`
		Weapons          map[string]struct {
			RecoilFactor float64 `json:"recoil_factor"`
			Priority     float64 `json:"priority"`
		} `json:"weapons"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse games config %q: %w", path, err)
	}
	out := make(map[string]gameadapter.Config, len(raw))
	for name, g := range raw {
		weapons := make(map[string]gameadapter.WeaponConfig, len(g.Weapons))
		for wname, w := range g.Weapons {
			weapons[wname] = gameadapter.WeaponConfig{RecoilFactor: w.RecoilFactor, Priority: w.Priority}
		}
		out[name] = gameadapter.Config{
			Enabled:          g.Enabled,
			AimTargetOffsetY: g.AimTargetOffsetY,
			HeadSizeFactor:   g.HeadSizeFactor,
			Weapons:          weapons,
		}
	}
	return out, nil
}

// applyEnvOverrides maps ZL_SERVER_* environment variables onto config
// fields unless a corresponding flag was explicitly set (flag wins).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	setInt := func(flagName, env string, dst *int, allowZero bool) {
		if _, ok := set[flagName]; ok {
			return
		}
		v, ok := get(env)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %w", env, err)
			}
			return
		}
		if n < 0 || (n == 0 && !allowZero) {
			return
		}
		*dst = n
	}
	setFloat := func(flagName, env string, dst *float64) {
		if _, ok := set[flagName]; ok {
			return
		}
		v, ok := get(env)
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %w", env, err)
			}
			return
		}
		*dst = f
	}
	setBool := func(flagName, env string, dst *bool) {
		if _, ok := set[flagName]; ok {
			return
		}
		v, ok := get(env)
		if !ok || v == "" {
			return
		}
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
	setStr := func(flagName, env string, dst *string) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			*dst = v
		}
	}

	setStr("model-path", "ZL_SERVER_MODEL_PATH", &c.modelPath)
	setInt("port", "ZL_SERVER_PORT", &c.port, false)
	setInt("max-clients", "ZL_SERVER_MAX_CLIENTS", &c.maxClients, true)
	setInt("target-fps", "ZL_SERVER_TARGET_FPS", &c.targetFPS, false)
	setFloat("confidence-threshold", "ZL_SERVER_CONFIDENCE_THRESHOLD", &c.confidenceThreshold)
	setFloat("nms-threshold", "ZL_SERVER_NMS_THRESHOLD", &c.nmsThreshold)
	setInt("max-queue-size", "ZL_SERVER_MAX_QUEUE_SIZE", &c.maxQueueSize, false)
	setInt("worker-threads", "ZL_SERVER_WORKER_THREADS", &c.workerThreads, true)
	setBool("use-cpu-affinity", "ZL_SERVER_USE_CPU_AFFINITY", &c.useCPUAffinity)
	setInt("cpu-core-id", "ZL_SERVER_CPU_CORE_ID", &c.cpuCoreID, true)
	setBool("use-high-priority", "ZL_SERVER_USE_HIGH_PRIORITY", &c.useHighPriority)
	setBool("use-int8-quantization", "ZL_SERVER_USE_INT8_QUANTIZATION", &c.useInt8Quantization)
	setBool("use-zero-copy", "ZL_SERVER_USE_ZERO_COPY", &c.useZeroCopy)
	setBool("use-dynamic-batching", "ZL_SERVER_USE_DYNAMIC_BATCHING", &c.useDynamicBatching)
	setBool("use-model-monitor", "ZL_SERVER_USE_MODEL_MONITOR", &c.useModelMonitor)
	setBool("use-priority-scheduling", "ZL_SERVER_USE_PRIORITY_SCHEDULING", &c.usePriorityScheduling)
	setStr("games-config", "ZL_SERVER_GAMES_CONFIG", &c.gamesConfigPath)
	setStr("log-format", "ZL_SERVER_LOG_FORMAT", &c.logFormat)
	setStr("log-level", "ZL_SERVER_LOG_LEVEL", &c.logLevel)
	setStr("metrics-addr", "ZL_SERVER_METRICS", &c.metricsAddr)
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("ZL_SERVER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ZL_SERVER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
