package wire

import (
	"encoding/binary"
	"errors"
)

// Errors returned by Deserialize. Callers map these onto the InvalidPacket /
// ProtocolError kinds of §7; packets failing any of these checks are
// silently dropped by the transport per §4.1.
var (
	ErrTooShort    = errors.New("wire: datagram shorter than header")
	ErrBadMagic    = errors.New("wire: bad magic")
	ErrBadVersion  = errors.New("wire: unsupported version")
	ErrBadLength   = errors.New("wire: length field does not match body")
	ErrBadChecksum = errors.New("wire: checksum mismatch")
	ErrUnknownType = errors.New("wire: unknown packet type")
	ErrInvalidBody = errors.New("wire: malformed body for packet type")
	ErrTooLarge    = errors.New("wire: datagram exceeds max size")
)

// Packet is a decoded datagram: header plus typed body.
type Packet struct {
	Header Header
	Body   Body
}

// Serialize encodes a packet. sequence and timestampMS populate the header;
// the checksum is computed over the full datagram with the checksum field
// zeroed, per §4.1.
func Serialize(t PacketType, sequence uint32, timestampMS uint64, body Body) ([]byte, error) {
	payload := body.marshal()
	if HeaderSize+len(payload) > MaxDatagramSize {
		return nil, ErrTooLarge
	}
	buf := make([]byte, HeaderSize+len(payload))
	h := Header{
		Magic:     Magic,
		Version:   Version,
		Type:      t,
		Length:    uint16(len(payload)),
		Sequence:  sequence,
		Timestamp: timestampMS,
		Checksum:  0,
	}
	putHeader(buf, h)
	copy(buf[HeaderSize:], payload)
	crc := CRC16(buf)
	binary.LittleEndian.PutUint16(buf[20:22], crc)
	return buf, nil
}

// Deserialize validates and decodes a datagram. Any failure of magic,
// version, length or checksum returns a non-nil error and no packet; the
// caller must drop the datagram (§4.1).
func Deserialize(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, ErrTooShort
	}
	if len(buf) > MaxDatagramSize {
		return Packet{}, ErrTooLarge
	}
	h := getHeader(buf)
	if h.Magic != Magic {
		return Packet{}, ErrBadMagic
	}
	if h.Version != Version {
		return Packet{}, ErrBadVersion
	}
	if int(h.Length) != len(buf)-HeaderSize {
		return Packet{}, ErrBadLength
	}
	want := h.Checksum
	verify := make([]byte, len(buf))
	copy(verify, buf)
	verify[20], verify[21] = 0, 0
	if CRC16(verify) != want {
		return Packet{}, ErrBadChecksum
	}

	body := buf[HeaderSize:]
	b, err := decodeBody(h.Type, body)
	if err != nil {
		return Packet{}, err
	}
	return Packet{Header: h, Body: b}, nil
}

// DeserializeAll splits a datagram that may carry more than one aggregated
// packet back-to-back (§4.2 aggregation) and decodes each in turn. It stops
// and returns what it decoded so far on the first malformed sub-packet.
func DeserializeAll(buf []byte) ([]Packet, error) {
	var out []Packet
	for len(buf) > 0 {
		if len(buf) < HeaderSize {
			return out, ErrTooShort
		}
		h := getHeader(buf)
		total := HeaderSize + int(h.Length)
		if total > len(buf) {
			return out, ErrBadLength
		}
		pkt, err := Deserialize(buf[:total])
		if err != nil {
			return out, err
		}
		out = append(out, pkt)
		buf = buf[total:]
	}
	return out, nil
}

func decodeBody(t PacketType, body []byte) (Body, error) {
	switch t {
	case PacketHeartbeat:
		return unmarshalHeartbeat(body)
	case PacketClientInfo:
		return unmarshalClientInfo(body)
	case PacketServerInfo:
		return unmarshalServerInfo(body)
	case PacketFrameData:
		return unmarshalFrameData(body)
	case PacketDetectionResult:
		return unmarshalDetectionResult(body)
	case PacketError:
		return unmarshalError(body)
	case PacketCommand:
		return unmarshalCommand(body)
	case PacketAck:
		return unmarshalAck(body)
	default:
		return nil, ErrUnknownType
	}
}
