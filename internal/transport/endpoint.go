// Package transport implements the reliable-UDP endpoint of §4.2: a single
// socket serving every client, with per-client RTT/RTO estimation,
// congestion control, selective retransmission, and small-packet
// aggregation. It generalizes the teacher's TCP accept-loop server
// (internal/server) and fan-in sender (internal/transport/async_tx.go)
// into a single-socket, many-peer UDP endpoint, since both client and
// server roles share the same wire protocol and client-table machinery.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/kstaniek/zl-offload/internal/clienttable"
	"github.com/kstaniek/zl-offload/internal/logging"
	"github.com/kstaniek/zl-offload/internal/metrics"
	"github.com/kstaniek/zl-offload/internal/wire"
)

// Config controls transport timing and limits; defaults match §4.2/§6.
type Config struct {
	ListenAddr         string
	MaxRetries         int
	TimeoutMS          uint64
	MaxPacketsInFlight int
	AggregationTimeMS  uint64
	MaxAggregationSize int
	ManagementTickMS   uint64
}

// DefaultConfig returns the spec's named defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         5,
		TimeoutMS:          5000,
		MaxPacketsInFlight: 32,
		AggregationTimeMS:  10,
		MaxAggregationSize: 1400,
		ManagementTickMS:   100,
	}
}

// Handler is invoked for every accepted, non-ACK packet. client is the
// sender's (possibly just-created) table entry.
type Handler func(client *clienttable.Client, pkt wire.Packet)

// Endpoint is a single-socket reliable-UDP peer, usable as either the
// server or client role (§2: "Transport peer: mirror of server transport").
type Endpoint struct {
	cfg     Config
	logger  *slog.Logger
	handler Handler

	conn  *net.UDPConn
	table *clienttable.Table
	agg   *aggregator

	seqMu   sync.Mutex
	selfSeq uint32 // used for sends with no client handle yet (e.g. before handshake)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Endpoint. A nil logger falls back to logging.L(). The
// handler may be nil if the caller only needs handshake/ACK bookkeeping.
func New(cfg Config, handler Handler, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = logging.L()
	}
	e := &Endpoint{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		table:   clienttable.New(),
		selfSeq: 1,
	}
	e.agg = newAggregator(cfg.AggregationTimeMS, cfg.MaxAggregationSize, e.transmit)
	return e
}

// Table exposes the client registry for dispatcher-level lookups.
func (e *Endpoint) Table() *clienttable.Table { return e.table }

// LocalAddr returns the bound address once ListenAndServe has started.
func (e *Endpoint) LocalAddr() net.Addr {
	if e.conn == nil {
		return nil
	}
	return e.conn.LocalAddr()
}

// ListenAndServe opens the UDP socket and runs the receive and management
// loops until ctx is cancelled. It returns nil on clean cancellation.
func (e *Endpoint) ListenAndServe(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", e.cfg.ListenAddr)
	if err != nil {
		metrics.IncError(mapErrToMetric(ErrSocketError))
		return fmt.Errorf("%w: resolve %q: %v", ErrSocketError, e.cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		metrics.IncError(mapErrToMetric(ErrSocketError))
		return fmt.Errorf("%w: listen %q: %v", ErrSocketError, e.cfg.ListenAddr, err)
	}
	e.conn = conn
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.logger.Info("udp_listen", "addr", conn.LocalAddr().String())

	go func() { <-e.ctx.Done(); _ = conn.Close() }()

	e.wg.Add(2)
	go e.recvLoop()
	go e.managementLoop()
	e.wg.Wait()

	if ctx.Err() != nil || errors.Is(e.ctx.Err(), context.Canceled) {
		return nil
	}
	return nil
}

// Shutdown cancels both loops and waits for them to exit, draining pending
// aggregation buckets. Per §5, cancellation must not block longer than one
// management tick plus in-flight work; callers should pass a bounded ctx.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	// Flush while the socket is still open; cancellation closes it.
	e.agg.FlushAll()
	if e.cancel != nil {
		e.cancel()
	}
	done := make(chan struct{})
	go func() { e.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrTimeout, ctx.Err())
	case <-done:
		return nil
	}
}

func (e *Endpoint) recvLoop() {
	defer e.wg.Done()
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-e.ctx.Done():
				return
			default:
			}
			metrics.IncError(mapErrToMetric(ErrSocketError))
			e.logger.Warn("udp_read_error", "error", err)
			continue
		}
		e.handleDatagram(from, buf[:n])
	}
}

func (e *Endpoint) handleDatagram(from *net.UDPAddr, data []byte) {
	now := nowMS()
	packets, err := wire.DeserializeAll(data)
	if err != nil && len(packets) == 0 {
		metrics.IncPacketsDropped()
		metrics.IncError(mapErrToMetric(ErrProtocolError))
		return
	}
	for _, pkt := range packets {
		metrics.IncPacketsReceived()
		client := e.table.Register(from, now)

		if ack, ok := pkt.Body.(wire.AckBody); ok {
			if sample, ok := client.Ack(ack.AckedSequence, now); ok {
				client.UpdateRTO(sample)
				client.GrowCongestionWindow()
				metrics.SetRTTSmoothedMS(client.RTTSmoothedMS)
				metrics.SetCongestionWindow(client.Cwnd)
			}
			continue
		}

		client.ObserveSequence(pkt.Header.Sequence)
		e.sendAck(from, pkt.Header.Sequence)

		switch body := pkt.Body.(type) {
		case wire.ClientInfo:
			client.MarkConnected(body)
		case wire.CommandBody:
			if body.CommandType == wire.CommandDisconnect {
				client.MarkDisconnected()
			}
		}

		if e.handler != nil {
			e.handler(client, pkt)
		}
	}
}

func (e *Endpoint) sendAck(to *net.UDPAddr, seq uint32) {
	data, err := wire.Serialize(wire.PacketAck, e.nextSelfSeq(), nowMS(), wire.AckBody{AckedSequence: seq})
	if err != nil {
		return
	}
	e.transmit(to, data)
}

func (e *Endpoint) nextSelfSeq() uint32 {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()
	seq := e.selfSeq
	e.selfSeq++
	return seq
}

// Send transmits body to client, reliably if reliable is true. Small
// unreliable/reliable sends may be coalesced by the aggregator (§4.2);
// ACKs and oversize payloads always bypass it.
func (e *Endpoint) Send(client *clienttable.Client, t wire.PacketType, body wire.Body, reliable bool) error {
	seq := client.NextSeq()
	data, err := wire.Serialize(t, seq, nowMS(), body)
	if err != nil {
		metrics.IncError(mapErrToMetric(ErrPacketTooLarge))
		return fmt.Errorf("%w: %v", ErrPacketTooLarge, err)
	}
	if reliable {
		client.RecordUnacked(seq, data, nowMS())
	}
	if len(data) < smallPayloadLimit {
		e.agg.Enqueue(client.RemoteAddr, data, nowMS())
		return nil
	}
	e.transmit(client.RemoteAddr, data)
	return nil
}

func (e *Endpoint) transmit(to *net.UDPAddr, data []byte) {
	if e.conn == nil {
		return
	}
	if _, err := e.conn.WriteToUDP(data, to); err != nil {
		metrics.IncError(mapErrToMetric(ErrSocketError))
		e.logger.Warn("udp_write_error", "to", to.String(), "error", err)
		return
	}
	metrics.IncPacketsSent()
}

func (e *Endpoint) managementLoop() {
	defer e.wg.Done()
	tick := time.Duration(e.cfg.ManagementTickMS) * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.runManagementSweep()
		}
	}
}

func (e *Endpoint) runManagementSweep() {
	now := nowMS()
	for _, c := range e.table.Snapshot() {
		resend, dropped, firstRetry := c.Sweep(now, e.cfg.MaxRetries)
		for _, p := range resend {
			e.transmit(c.RemoteAddr, p.Data)
			metrics.IncPacketsRetransmitted()
		}
		if len(dropped) > 0 {
			c.OnTimeoutLoss()
			for range dropped {
				metrics.IncPacketsAbandoned()
			}
		} else if firstRetry {
			c.OnFirstRetryLoss()
		}
	}
	for range e.table.SweepTimeouts(now, e.cfg.TimeoutMS) {
		// clienttable.Table already updated the active-clients gauge and
		// the timed-out counter; callers needing a disconnect event should
		// poll client.State via a dispatcher-level periodic scan.
	}
	e.agg.FlushDue(now)
}

func nowMS() uint64 { return uint64(time.Now().UnixMilli()) }
