package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/zl-offload/internal/gameadapter"
)

// appConfig mirrors the client's flat key map of §6: server_ip, server_port,
// game_id, target_fps, screen_width, screen_height, auto_connect,
// auto_start, enable_aim_assist, enable_esp, enable_recoil_control,
// use_high_priority, compression.*, prediction.*.
type appConfig struct {
	serverIP     string
	serverPort   int
	gameName     string
	weaponID     string
	targetFPS    int
	screenWidth  int
	screenHeight int

	autoConnect         bool
	autoStart           bool
	enableAimAssist     bool
	enableESP           bool
	enableRecoilControl bool
	useHighPriority     bool
	cpuCoreID           int
	useCPUAffinity      bool

	compressionQuality           int
	compressionKeyframeInterval  int
	compressionUseDifferenceEnc  bool
	compressionUseROIEnc         bool
	compressionROIPadding        int
	predictionMaxPredictionMS    int
	predictionPositionUncertain  float64
	predictionVelocityUncertain  float64
	predictionAccelUncertain     float64
	predictionMinConfidenceGate  float64

	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	serverIP := flag.String("server-ip", "127.0.0.1", "Server IP address")
	serverPort := flag.Int("server-port", 7788, "Server UDP port")
	gameName := flag.String("game", "", "Game adapter name (cs16|csgo); empty disables game-specific post-processing")
	weaponID := flag.String("weapon", "", "Currently held weapon id, passed to the game adapter's AimPoint/recoil math")
	targetFPS := flag.Int("target-fps", 30, "Local render/fuse driver rate")
	screenWidth := flag.Int("screen-width", 1920, "Capture width reported in the handshake")
	screenHeight := flag.Int("screen-height", 1080, "Capture height reported in the handshake")
	autoConnect := flag.Bool("auto-connect", true, "Send CLIENT_INFO immediately on startup")
	autoStart := flag.Bool("auto-start", true, "Start the render/fuse driver immediately on startup")
	enableAimAssist := flag.Bool("enable-aim-assist", false, "enable_aim_assist")
	enableESP := flag.Bool("enable-esp", false, "enable_esp")
	enableRecoilControl := flag.Bool("enable-recoil-control", false, "enable_recoil_control")
	useHighPriority := flag.Bool("use-high-priority", false, "Request a near-real-time scheduling priority")
	useCPUAffinity := flag.Bool("use-cpu-affinity", false, "Pin the startup OS thread to a CPU core (Linux only; other goroutines are not locked to it)")
	cpuCoreID := flag.Int("cpu-core-id", 0, "CPU core to pin to when use-cpu-affinity is set")

	compressionQuality := flag.Int("compression-quality", 75, "compression.quality")
	compressionKeyframeInterval := flag.Int("compression-keyframe-interval", 30, "compression.keyframe_interval")
	compressionUseDifferenceEnc := flag.Bool("compression-use-difference-encoding", false, "compression.use_difference_encoding")
	compressionUseROIEnc := flag.Bool("compression-use-roi-encoding", false, "compression.use_roi_encoding")
	compressionROIPadding := flag.Int("compression-roi-padding", 16, "compression.roi_padding")

	predictionMaxPredictionMS := flag.Int("prediction-max-prediction-time-ms", 200, "prediction.max_prediction_time")
	predictionPositionUncertain := flag.Float64("prediction-position-uncertainty", 1e-2, "prediction.position_uncertainty")
	predictionVelocityUncertain := flag.Float64("prediction-velocity-uncertainty", 5e-2, "prediction.velocity_uncertainty")
	predictionAccelUncertain := flag.Float64("prediction-acceleration-uncertainty", 0, "prediction.acceleration_uncertainty (accepted, unused: the predictor's filter has no acceleration state)")
	predictionMinConfidenceGate := flag.Float64("prediction-min-confidence-threshold", 0, "prediction.min_confidence_threshold")

	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9101); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.serverIP = *serverIP
	cfg.serverPort = *serverPort
	cfg.gameName = *gameName
	cfg.weaponID = *weaponID
	cfg.targetFPS = *targetFPS
	cfg.screenWidth = *screenWidth
	cfg.screenHeight = *screenHeight
	cfg.autoConnect = *autoConnect
	cfg.autoStart = *autoStart
	cfg.enableAimAssist = *enableAimAssist
	cfg.enableESP = *enableESP
	cfg.enableRecoilControl = *enableRecoilControl
	cfg.useHighPriority = *useHighPriority
	cfg.useCPUAffinity = *useCPUAffinity
	cfg.cpuCoreID = *cpuCoreID
	cfg.compressionQuality = *compressionQuality
	cfg.compressionKeyframeInterval = *compressionKeyframeInterval
	cfg.compressionUseDifferenceEnc = *compressionUseDifferenceEnc
	cfg.compressionUseROIEnc = *compressionUseROIEnc
	cfg.compressionROIPadding = *compressionROIPadding
	cfg.predictionMaxPredictionMS = *predictionMaxPredictionMS
	cfg.predictionPositionUncertain = *predictionPositionUncertain
	cfg.predictionVelocityUncertain = *predictionVelocityUncertain
	cfg.predictionAccelUncertain = *predictionAccelUncertain
	cfg.predictionMinConfidenceGate = *predictionMinConfidenceGate
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation; it never touches the
// network (connection failures are runtime errors, not config errors).
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
	if c.serverIP == "" {
		return errors.New("server-ip must not be empty")
	}
	if c.serverPort <= 0 || c.serverPort > 65535 {
		return fmt.Errorf("server-port out of range: %d", c.serverPort)
	}
	if c.targetFPS <= 0 {
		return fmt.Errorf("target-fps must be > 0 (got %d)", c.targetFPS)
	}
	if c.screenWidth <= 0 || c.screenHeight <= 0 {
		return fmt.Errorf("screen dimensions must be > 0 (got %dx%d)", c.screenWidth, c.screenHeight)
	}
	if c.gameName != "" {
		if _, ok := gameadapter.GameIDForName(c.gameName); !ok {
			return fmt.Errorf("unknown game: %q", c.gameName)
		}
	}
	if c.compressionQuality <= 0 || c.compressionQuality > 100 {
		return fmt.Errorf("compression-quality must be in (0,100] (got %d)", c.compressionQuality)
	}
	if c.compressionKeyframeInterval <= 0 {
		return fmt.Errorf("compression-keyframe-interval must be > 0 (got %d)", c.compressionKeyframeInterval)
	}
	if c.compressionROIPadding < 0 {
		return errors.New("compression-roi-padding must be >= 0")
	}
	if c.predictionMaxPredictionMS <= 0 {
		return fmt.Errorf("prediction-max-prediction-time-ms must be > 0 (got %d)", c.predictionMaxPredictionMS)
	}
	if c.predictionMinConfidenceGate < 0 || c.predictionMinConfidenceGate > 1 {
		return fmt.Errorf("prediction-min-confidence-threshold must be in [0,1] (got %v)", c.predictionMinConfidenceGate)
	}
	if c.cpuCoreID < 0 {
		return errors.New("cpu-core-id must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps ZL_CLIENT_* environment variables onto config
// fields unless a corresponding flag was explicitly set (flag wins).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	setInt := func(flagName, env string, dst *int) {
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

	setStr("server-ip", "ZL_CLIENT_SERVER_IP", &c.serverIP)
	setInt("server-port", "ZL_CLIENT_SERVER_PORT", &c.serverPort)
	setStr("game", "ZL_CLIENT_GAME", &c.gameName)
	setStr("weapon", "ZL_CLIENT_WEAPON", &c.weaponID)
	setInt("target-fps", "ZL_CLIENT_TARGET_FPS", &c.targetFPS)
	setInt("screen-width", "ZL_CLIENT_SCREEN_WIDTH", &c.screenWidth)
	setInt("screen-height", "ZL_CLIENT_SCREEN_HEIGHT", &c.screenHeight)
	setBool("auto-connect", "ZL_CLIENT_AUTO_CONNECT", &c.autoConnect)
	setBool("auto-start", "ZL_CLIENT_AUTO_START", &c.autoStart)
	setBool("enable-aim-assist", "ZL_CLIENT_ENABLE_AIM_ASSIST", &c.enableAimAssist)
	setBool("enable-esp", "ZL_CLIENT_ENABLE_ESP", &c.enableESP)
	setBool("enable-recoil-control", "ZL_CLIENT_ENABLE_RECOIL_CONTROL", &c.enableRecoilControl)
	setBool("use-high-priority", "ZL_CLIENT_USE_HIGH_PRIORITY", &c.useHighPriority)
	setBool("use-cpu-affinity", "ZL_CLIENT_USE_CPU_AFFINITY", &c.useCPUAffinity)
	setInt("cpu-core-id", "ZL_CLIENT_CPU_CORE_ID", &c.cpuCoreID)
	setInt("compression-quality", "ZL_CLIENT_COMPRESSION_QUALITY", &c.compressionQuality)
	setInt("compression-keyframe-interval", "ZL_CLIENT_COMPRESSION_KEYFRAME_INTERVAL", &c.compressionKeyframeInterval)
	setBool("compression-use-difference-encoding", "ZL_CLIENT_COMPRESSION_USE_DIFFERENCE_ENCODING", &c.compressionUseDifferenceEnc)
	setBool("compression-use-roi-encoding", "ZL_CLIENT_COMPRESSION_USE_ROI_ENCODING", &c.compressionUseROIEnc)
	setInt("compression-roi-padding", "ZL_CLIENT_COMPRESSION_ROI_PADDING", &c.compressionROIPadding)
	setInt("prediction-max-prediction-time-ms", "ZL_CLIENT_PREDICTION_MAX_PREDICTION_TIME_MS", &c.predictionMaxPredictionMS)
	setFloat("prediction-position-uncertainty", "ZL_CLIENT_PREDICTION_POSITION_UNCERTAINTY", &c.predictionPositionUncertain)
	setFloat("prediction-velocity-uncertainty", "ZL_CLIENT_PREDICTION_VELOCITY_UNCERTAINTY", &c.predictionVelocityUncertain)
	setFloat("prediction-acceleration-uncertainty", "ZL_CLIENT_PREDICTION_ACCELERATION_UNCERTAINTY", &c.predictionAccelUncertain)
	setFloat("prediction-min-confidence-threshold", "ZL_CLIENT_PREDICTION_MIN_CONFIDENCE_THRESHOLD", &c.predictionMinConfidenceGate)
	setStr("log-format", "ZL_CLIENT_LOG_FORMAT", &c.logFormat)
	setStr("log-level", "ZL_CLIENT_LOG_LEVEL", &c.logLevel)
	setStr("metrics-addr", "ZL_CLIENT_METRICS", &c.metricsAddr)
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("ZL_CLIENT_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ZL_CLIENT_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
