package wire

import "encoding/binary"

// Magic identifies a zero-latency offload datagram ("ZLTY" in little-endian
// hex, §4.1).
const Magic uint32 = 0x59544C5A

// Version is the only protocol version this module speaks.
const Version uint8 = 1

// HeaderSize is the encoded size, in bytes, of a Header: the sum of its
// fields (magic 4 + version 1 + type 1 + length 2 + sequence 4 +
// timestamp 8 + checksum 2 = 22, matching §4.1's field table even though
// that section's prose calls it a "16-byte header").
const HeaderSize = 22

// MaxDatagramSize is the largest legal wire datagram (§4.1).
const MaxDatagramSize = 65536

// Header is the fixed prefix carried by every datagram.
type Header struct {
	Magic     uint32
	Version   uint8
	Type      PacketType
	Length    uint16
	Sequence  uint32
	Timestamp uint64
	Checksum  uint16
}

// Valid reports whether the magic and version fields are well-formed. It
// does not check the checksum; Deserialize does that.
func (h Header) Valid() bool {
	return h.Magic == Magic && h.Version == Version
}

func putHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = byte(h.Type)
	binary.LittleEndian.PutUint16(buf[6:8], h.Length)
	binary.LittleEndian.PutUint32(buf[8:12], h.Sequence)
	binary.LittleEndian.PutUint64(buf[12:20], h.Timestamp)
	binary.LittleEndian.PutUint16(buf[20:22], h.Checksum)
}

func getHeader(buf []byte) Header {
	return Header{
		Magic:     binary.LittleEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Type:      PacketType(buf[5]),
		Length:    binary.LittleEndian.Uint16(buf[6:8]),
		Sequence:  binary.LittleEndian.Uint32(buf[8:12]),
		Timestamp: binary.LittleEndian.Uint64(buf[12:20]),
		Checksum:  binary.LittleEndian.Uint16(buf[20:22]),
	}
}

// IsNewer implements the circular sequence comparison of §4.1: a is newer
// than b iff (a-b) mod 2^32 is nonzero and < 2^31, so equal sequences are
// not newer.
func IsNewer(a, b uint32) bool {
	return int32(a-b) > 0
}
