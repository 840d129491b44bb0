package transport

import (
	"errors"

	"github.com/kstaniek/zl-offload/internal/metrics"
)

// Sentinel errors mirroring the language-neutral kinds of §7, narrowed to
// what the transport itself can raise.
var (
	ErrInvalidPacket  = errors.New("invalid_packet")
	ErrProtocolError  = errors.New("protocol_error")
	ErrPacketTooLarge = errors.New("packet_too_large")
	ErrSocketError    = errors.New("socket_error")
	ErrTimeout        = errors.New("timeout")
	ErrClosed         = errors.New("transport closed")
)

func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPacket), errors.Is(err, ErrProtocolError):
		return metrics.ErrInvalidPkt
	case errors.Is(err, ErrPacketTooLarge):
		return metrics.ErrInvalidPkt
	case errors.Is(err, ErrSocketError):
		return metrics.ErrSocket
	default:
		return metrics.ErrProtocol
	}
}
