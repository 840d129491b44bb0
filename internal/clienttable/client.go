// Package clienttable implements the transport's per-client state (§3
// ClientConnection, §4.2 client table): registration, RTT/RTO estimation,
// congestion window, and the unacked-send ledger used for retransmission.
// It is the clienttable generalization of the teacher's internal/hub
// package, keyed by remote address instead of holding a live connection.
package clienttable

import (
	"net"
	"sync"

	"github.com/kstaniek/zl-offload/internal/wire"
)

// State is the client-connection state machine of §4.2.
type State int

const (
	StateNew State = iota
	StateConnected
	StateTimedOut
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnected:
		return "connected"
	case StateTimedOut:
		return "timed_out"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Unacked is one outstanding reliable send (§3 ClientConnection.unacked).
type Unacked struct {
	Data        []byte
	FirstSendMS uint64
	LastSendMS  uint64
	Retries     int
}

// Congestion-control defaults (§4.2).
const (
	InitialCwnd     = 1.0
	InitialSsthresh = 16.0
	MinRTOMS        = 200.0
	MaxRTOMS        = 10000.0
	InitialRTOMS    = 1000.0
)

// Client is one ClientConnection (§3): identity, liveness, sequence space,
// RTT/RTO estimators, congestion window, and the unacked-send ledger.
// All mutable fields are guarded by mu since the management task scans
// every client concurrently with the receive path.
type Client struct {
	mu sync.Mutex

	ID           uint32
	RemoteAddr   *net.UDPAddr
	State        State
	LastActiveMS uint64

	NextSendSeq     uint32
	NextExpectedSeq uint32
	unacked         map[uint32]*Unacked

	RTTSmoothedMS  float64
	RTTVariationMS float64
	RTOMS          float64
	Cwnd           float64
	Ssthresh       float64

	Info    wire.ClientInfo
	HasInfo bool
}

func newClient(id uint32, addr *net.UDPAddr, nowMS uint64) *Client {
	return &Client{
		ID:           id,
		RemoteAddr:   addr,
		State:        StateNew,
		LastActiveMS: nowMS,
		NextSendSeq:  1,
		unacked:      make(map[uint32]*Unacked),
		RTOMS:        InitialRTOMS,
		Cwnd:         InitialCwnd,
		Ssthresh:     InitialSsthresh,
	}
}

// Touch refreshes liveness (LastActiveMS) only; the NEW -> CONNECTED
// promotion is done by MarkConnected (§4.2 state machine).
func (c *Client) Touch(nowMS uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastActiveMS = nowMS
}

// MarkConnected transitions NEW -> CONNECTED and records the handshake info.
func (c *Client) MarkConnected(info wire.ClientInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Info = info
	c.HasInfo = true
	if c.State == StateNew {
		c.State = StateConnected
	}
}

// MarkDisconnected transitions to DISCONNECTED on an explicit DISCONNECT
// command (§4.2).
func (c *Client) MarkDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = StateDisconnected
}

// GameID returns the handshake's game_id and whether CLIENT_INFO has been
// received yet, for dispatcher-level game-adapter selection.
func (c *Client) GameID() (uint8, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Info.GameID, c.HasInfo
}

// NextSeq allocates and returns the next outgoing sequence number.
func (c *Client) NextSeq() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.NextSendSeq
	c.NextSendSeq++
	return seq
}

// ObserveSequence updates the reassembly cursor if seq is newer than
// NextExpectedSeq, per the circular comparison of §4.1.
func (c *Client) ObserveSequence(seq uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wire.IsNewer(seq, c.NextExpectedSeq) || c.NextExpectedSeq == 0 {
		c.NextExpectedSeq = seq + 1
	}
}

// RecordUnacked registers a reliable send awaiting acknowledgement.
func (c *Client) RecordUnacked(seq uint32, data []byte, nowMS uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unacked[seq] = &Unacked{Data: data, FirstSendMS: nowMS, LastSendMS: nowMS, Retries: 0}
}

// UnackedCount reports the number of packets in flight, for
// max_packets_in_flight backpressure (§5).
func (c *Client) UnackedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unacked)
}

// Ack resolves a pending send: removes it from the unacked ledger and
// returns the sample RTT for the RFC-6298 update. ok is false if the
// sequence was unknown or already acknowledged (duplicate ACKs are
// ignored per §5).
func (c *Client) Ack(seq uint32, nowMS uint64) (rttSampleMS float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, found := c.unacked[seq]
	if !found {
		return 0, false
	}
	delete(c.unacked, seq)
	return float64(nowMS - u.FirstSendMS), true
}

// UpdateRTO applies the RFC-6298-style smoothed RTT and RTO recomputation
// (§4.2: α=1/8, β=1/4, clamp [200ms, 10000ms]).
func (c *Client) UpdateRTO(sampleMS float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RTTSmoothedMS == 0 {
		c.RTTSmoothedMS = sampleMS
		c.RTTVariationMS = sampleMS / 2
	} else {
		c.RTTVariationMS = 0.75*c.RTTVariationMS + 0.25*absF(c.RTTSmoothedMS-sampleMS)
		c.RTTSmoothedMS = 0.875*c.RTTSmoothedMS + 0.125*sampleMS
	}
	rto := c.RTTSmoothedMS + 4*c.RTTVariationMS
	c.RTOMS = clampF(rto, MinRTOMS, MaxRTOMS)
}

// GrowCongestionWindow applies the slow-start/avoidance step on a
// successful ACK (§4.2).
func (c *Client) GrowCongestionWindow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Cwnd < c.Ssthresh {
		c.Cwnd++
	} else {
		c.Cwnd += 1 / c.Cwnd
	}
}

// OnTimeoutLoss applies the timeout-loss congestion reduction (§4.2).
func (c *Client) OnTimeoutLoss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ssthresh = maxF(c.Cwnd/2, 2)
	c.Cwnd = 1
}

// OnFirstRetryLoss applies the triple-duplicate-style loss reduction,
// modelled as a packet's first retry (§4.2).
func (c *Client) OnFirstRetryLoss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ssthresh = maxF(c.Cwnd/2, 2)
	c.Cwnd = c.Ssthresh + 3
}

// DuePacket names one unacked send found due for retransmission or drop by
// Sweep, copied out so callers never touch Client internals under its lock.
type DuePacket struct {
	Seq     uint32
	Data    []byte
	Retries int
}

// Sweep scans the unacked ledger for entries overdue per client.rto_ms.
// toResend are candidates for retransmission (their Retries/LastSendMS are
// bumped in place); toDrop have exceeded maxRetries and are removed.
// firstRetry reports whether any packet is being retried for the first
// time this sweep, which the caller uses to trigger the loss-congestion
// event exactly once per sweep (§4.2 "first retry ... triggers a loss
// event").
func (c *Client) Sweep(nowMS uint64, maxRetries int) (toResend, toDrop []DuePacket, firstRetry bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for seq, u := range c.unacked {
		if float64(nowMS-u.LastSendMS) <= c.RTOMS {
			continue
		}
		if u.Retries >= maxRetries {
			toDrop = append(toDrop, DuePacket{Seq: seq, Data: u.Data, Retries: u.Retries})
			delete(c.unacked, seq)
			continue
		}
		if u.Retries == 0 {
			firstRetry = true
		}
		u.Retries++
		u.LastSendMS = nowMS
		toResend = append(toResend, DuePacket{Seq: seq, Data: u.Data, Retries: u.Retries})
	}
	return toResend, toDrop, firstRetry
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
