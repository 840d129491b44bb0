package main

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kstaniek/zl-offload/internal/capture"
	"github.com/kstaniek/zl-offload/internal/clienttable"
	"github.com/kstaniek/zl-offload/internal/compression"
	"github.com/kstaniek/zl-offload/internal/fuser"
	"github.com/kstaniek/zl-offload/internal/gameadapter"
	"github.com/kstaniek/zl-offload/internal/model"
	"github.com/kstaniek/zl-offload/internal/output"
	"github.com/kstaniek/zl-offload/internal/predictor"
	"github.com/kstaniek/zl-offload/internal/transport"
	"github.com/kstaniek/zl-offload/internal/wire"
)

const protocolVersion = 1

// session owns everything on the client side of the wire protocol: the
// handshake, the heartbeat loop, and the capture/predict/fuse/output
// render driver (§4.6, §4.7). It is the client's analogue of
// cmd/zl-server's dispatcher.
type session struct {
	ep       *transport.Endpoint
	server   *clienttable.Client
	clientID uint32
	gameID   uint8

	predictor *predictor.Predictor
	fuserCfg  fuser.Config
	encoder   *compression.Encoder
	capSource capture.Source
	sink      output.Sink

	cfg    *appConfig
	logger *slog.Logger

	mu         sync.Mutex
	lastServer model.GameState
	frameID    uint32
}

func newSession(cfg *appConfig, adapter gameadapter.Adapter, logger *slog.Logger) *session {
	var gameID uint8
	if cfg.gameName != "" {
		gameID, _ = gameadapter.GameIDForName(cfg.gameName)
	}
	return &session{
		clientID: 1,
		gameID:   gameID,
		predictor: predictor.New(predictor.Config{
			PredictionHorizonMS: uint64(cfg.predictionMaxPredictionMS),
			MaxTrackAgeMS:       500,
			ConfidenceDecay:     0.05,
			PositionUncertainty: cfg.predictionPositionUncertain,
			VelocityUncertainty: cfg.predictionVelocityUncertain,
			MinConfidence:       cfg.predictionMinConfidenceGate,
		}),
		fuserCfg: fuser.DefaultConfig(),
		encoder: compression.NewEncoder(compression.Config{
			Quality:               cfg.compressionQuality,
			KeyframeInterval:      cfg.compressionKeyframeInterval,
			UseDifferenceEncoding: cfg.compressionUseDifferenceEnc,
			UseROIEncoding:        cfg.compressionUseROIEnc,
			ROIPadding:            cfg.compressionROIPadding,
		}),
		capSource: capture.NewSynthetic(cfg.screenWidth, cfg.screenHeight),
		sink: output.NewLogSink(output.Config{
			ClientID:            1,
			EnableAimAssist:     cfg.enableAimAssist,
			EnableESP:           cfg.enableESP,
			EnableRecoilControl: cfg.enableRecoilControl,
			WeaponID:            cfg.weaponID,
		}, adapter, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// handlePacket implements transport.Handler, processing every packet the
// server sends back: SERVER_INFO, DETECTION_RESULT, HEARTBEAT (§4.6).
func (s *session) handlePacket(client *clienttable.Client, pkt wire.Packet) {
	switch body := pkt.Body.(type) {
	case wire.ServerInfo:
		s.logger.Info("server_info_received", "server_id", body.ServerID, "model_version", body.ModelVersion, "max_fps", body.MaxFPS)
	case wire.DetectionResult:
		s.handleDetectionResult(body)
	case wire.Heartbeat:
		s.logger.Debug("heartbeat_echo", "ping_ms", body.PingMS)
	case wire.ErrorBody:
		s.logger.Warn("server_error", "code", body.ErrorCode, "message", body.Message)
	}
}

func (s *session) handleDetectionResult(body wire.DetectionResult) {
	dets := make([]model.Detection, len(body.Detections))
	for i, r := range body.Detections {
		d := model.Detection{
			Box:         model.BoundingBox{X: r.X, Y: r.Y, W: r.W, H: r.H},
			Confidence:  r.Confidence,
			ClassID:     r.ClassID,
			TrackID:     r.TrackID,
			TimestampMS: r.TimestampMS,
		}
		dets[i] = d
		s.predictor.Ingest(d)
	}
	state := model.GameState{FrameID: body.FrameID, TimestampMS: body.TimestampMS, Detections: dets}
	s.mu.Lock()
	s.lastServer = state
	s.mu.Unlock()
}

// connect resolves and registers the server peer, then sends the initial
// CLIENT_INFO handshake if auto-connect is enabled (§4.2, §4.6).
func (s *session) connect() error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.cfg.serverIP, strconv.Itoa(s.cfg.serverPort)))
	if err != nil {
		return err
	}
	s.server = s.ep.Table().Register(addr, nowMSClient())
	if !s.cfg.autoConnect {
		return nil
	}
	info := wire.ClientInfo{
		ClientID:        s.clientID,
		ProtocolVersion: protocolVersion,
		ScreenWidth:     uint16(s.cfg.screenWidth),
		ScreenHeight:    uint16(s.cfg.screenHeight),
		GameID:          s.gameID,
	}
	return s.ep.Send(s.server, wire.PacketClientInfo, info, true)
}

// runHeartbeat sends a HEARTBEAT at the fixed §6 heartbeat_interval_ms
// cadence until ctx is cancelled, paced by a token-bucket limiter rather
// than a raw ticker-plus-drift loop (mirrors the scheduler's pacing).
func (s *session) runHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	limiter := rate.NewLimiter(rate.Limit(time.Second/interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		ping := uint32(time.Now().UnixMilli() % (1 << 31))
		if err := s.ep.Send(s.server, wire.PacketHeartbeat, wire.Heartbeat{PingMS: ping}, false); err != nil {
			s.logger.Warn("heartbeat_send_failed", "error", err)
		}
	}
}

// runRenderLoop is the client's capture -> compress -> send, predict ->
// fuse -> output driver, paced to target_fps (§4.6, §4.7).
func (s *session) runRenderLoop(ctx context.Context, targetFPS int) {
	if targetFPS <= 0 {
		return
	}
	limiter := rate.NewLimiter(rate.Limit(targetFPS), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.tick()
	}
}

func (s *session) tick() {
	now := nowMSClient()
	frame, err := s.capSource.Capture()
	if err != nil {
		s.logger.Warn("capture_failed", "error", err)
		return
	}
	encoded := s.encoder.Encode(frame)
	if !encoded.Empty {
		s.frameID++
		body := wire.FrameDataBody{
			FrameID:     s.frameID,
			TimestampMS: now,
			Width:       uint16(encoded.Width),
			Height:      uint16(encoded.Height),
			Keyframe:    encoded.Keyframe,
			Payload:     encoded.RGB,
		}
		if err := s.ep.Send(s.server, wire.PacketFrameData, body, false); err != nil {
			s.logger.Warn("frame_data_send_failed", "error", err)
		}
	}

	predicted := s.predictor.PredictState(now)
	s.mu.Lock()
	last := s.lastServer
	s.mu.Unlock()
	fused := fuser.Fuse(last, predicted, now, s.fuserCfg)
	s.sink.Consume(fused)
}

func nowMSClient() uint64 { return uint64(time.Now().UnixMilli()) }
