package main

import (
	"log/slog"
	"sync"

	"github.com/kstaniek/zl-offload/internal/clienttable"
	"github.com/kstaniek/zl-offload/internal/gameadapter"
	"github.com/kstaniek/zl-offload/internal/model"
	"github.com/kstaniek/zl-offload/internal/scheduler"
	"github.com/kstaniek/zl-offload/internal/tracker"
	"github.com/kstaniek/zl-offload/internal/transport"
	"github.com/kstaniek/zl-offload/internal/wire"
)

const protocolVersion = 1

// dispatcher wires the transport endpoint, the per-client tracker set, and
// the inference scheduler together: it is the server's Dispatcher module
// (§2, "routes inbound packets by type; submits frames to the inference
// scheduler").
type dispatcher struct {
	ep        *transport.Endpoint
	sched     *scheduler.Scheduler
	trackerCf tracker.Config
	adapters  map[string]gameadapter.Adapter
	cfg       *appConfig
	logger    *slog.Logger

	mu       sync.Mutex
	trackers map[uint32]*tracker.Tracker
	clients  map[uint32]*clienttable.Client
}

func newDispatcher(cfg *appConfig, sched *scheduler.Scheduler, adapters map[string]gameadapter.Adapter, logger *slog.Logger) *dispatcher {
	return &dispatcher{
		sched:     sched,
		trackerCf: tracker.DefaultConfig(),
		adapters:  adapters,
		cfg:       cfg,
		logger:    logger,
		trackers:  make(map[uint32]*tracker.Tracker),
		clients:   make(map[uint32]*clienttable.Client),
	}
}

func (d *dispatcher) trackerFor(clientID uint32) *tracker.Tracker {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.trackers[clientID]
	if !ok {
		t = tracker.New(d.trackerCf, d.logger)
		d.trackers[clientID] = t
	}
	return t
}

func (d *dispatcher) dropTracker(clientID uint32) {
	d.mu.Lock()
	delete(d.trackers, clientID)
	d.mu.Unlock()
}

// handlePacket implements transport.Handler.
func (d *dispatcher) handlePacket(client *clienttable.Client, pkt wire.Packet) {
	d.mu.Lock()
	d.clients[client.ID] = client
	d.mu.Unlock()

	switch body := pkt.Body.(type) {
	case wire.ClientInfo:
		d.handleClientInfo(client, body)
	case wire.Heartbeat:
		// Dual-use field (§9): echoed verbatim, advisory only; RTT is
		// derived by the transport layer from ACK timing, not this value.
		if err := d.ep.Send(client, wire.PacketHeartbeat, body, false); err != nil {
			d.logger.Warn("heartbeat_reply_failed", "client", client.ID, "error", err)
		}
	case wire.FrameDataBody:
		d.handleFrameData(client, body)
	case wire.CommandBody:
		if body.CommandType == wire.CommandDisconnect {
			d.dropTracker(client.ID)
		}
	}
}

func (d *dispatcher) handleClientInfo(client *clienttable.Client, info wire.ClientInfo) {
	reply := wire.ServerInfo{
		ServerID:        1,
		ProtocolVersion: protocolVersion,
		ModelVersion:    1.0,
		MaxClients:      uint8(d.cfg.maxClients),
		MaxFPS:          uint16(d.cfg.targetFPS * 2),
		Status:          0,
	}
	if err := d.ep.Send(client, wire.PacketServerInfo, reply, true); err != nil {
		d.logger.Warn("server_info_send_failed", "client", client.ID, "error", err)
	}
}

func (d *dispatcher) handleFrameData(client *clienttable.Client, frame wire.FrameDataBody) {
	req := scheduler.InferenceRequest{
		ClientID:    client.ID,
		FrameID:     frame.FrameID,
		TimestampMS: frame.TimestampMS,
		Width:       frame.Width,
		Height:      frame.Height,
		Payload:     frame.Payload,
		Keyframe:    frame.Keyframe,
	}
	d.sched.Submit(req)
}

// onInferenceDone is the scheduler's onDone callback: it runs the detections
// through the tracker and the client's game adapter, then sends the
// DETECTION_RESULT back over the endpoint (§2 server pipeline, tail end).
func (d *dispatcher) onInferenceDone(res scheduler.Result) {
	d.mu.Lock()
	client := d.clients[res.ClientID]
	d.mu.Unlock()
	if client == nil {
		return
	}
	if res.Err != nil {
		d.logger.Debug("inference_error", "client", res.ClientID, "frame", res.FrameID, "error", res.Err)
		return
	}
	trk := d.trackerFor(res.ClientID)
	tracked := trk.Update(res.State.Detections, res.State.TimestampMS)
	state := model.GameState{FrameID: res.FrameID, TimestampMS: res.State.TimestampMS, Detections: tracked}

	if gameID, ok := client.GameID(); ok {
		if name, ok := gameadapter.NameForGameID(gameID); ok {
			if adapter, ok := d.adapters[name]; ok {
				state = adapter.ProcessDetections(res.ClientID, state, res.State.TimestampMS)
			}
		}
	}

	records := make([]wire.DetectionRecord, len(state.Detections))
	for i, det := range state.Detections {
		records[i] = wire.DetectionRecord{
			X: det.Box.X, Y: det.Box.Y, W: det.Box.W, H: det.Box.H,
			Confidence:  det.Confidence,
			ClassID:     det.ClassID,
			TrackID:     det.TrackID,
			TimestampMS: det.TimestampMS,
		}
	}
	body := wire.DetectionResult{FrameID: state.FrameID, TimestampMS: state.TimestampMS, Detections: records}
	if err := d.ep.Send(client, wire.PacketDetectionResult, body, false); err != nil {
		d.logger.Warn("detection_result_send_failed", "client", res.ClientID, "error", err)
	}
}
