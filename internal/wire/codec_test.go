package wire

import (
	"testing"
)

func TestCodec_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		typ  PacketType
		body Body
	}{
		{"heartbeat", PacketHeartbeat, Heartbeat{PingMS: 42}},
		{"client_info", PacketClientInfo, ClientInfo{ClientID: 7, ProtocolVersion: 1, ScreenWidth: 1920, ScreenHeight: 1080, GameID: 1}},
		{"server_info", PacketServerInfo, ServerInfo{ServerID: 1, ProtocolVersion: 1, ModelVersion: 1.0, MaxClients: 10, MaxFPS: 60, Status: 0}},
		{"frame_data", PacketFrameData, FrameDataBody{FrameID: 42, TimestampMS: 1000, Width: 640, Height: 480, Keyframe: true, Payload: []byte{1, 2, 3, 4, 5}}},
		{"frame_data_empty_payload", PacketFrameData, FrameDataBody{FrameID: 1, TimestampMS: 2, Width: 1, Height: 1}},
		{"detection_result", PacketDetectionResult, DetectionResult{FrameID: 5, TimestampMS: 123, Detections: []DetectionRecord{
			{X: 0.5, Y: 0.5, W: 0.1, H: 0.2, Confidence: 0.9, ClassID: 2, TrackID: 9, TimestampMS: 123},
		}}},
		{"detection_result_empty", PacketDetectionResult, DetectionResult{FrameID: 5, TimestampMS: 123}},
		{"error", PacketError, ErrorBody{ErrorCode: 3, Message: "model not found"}},
		{"command", PacketCommand, CommandBody{CommandType: CommandDisconnect, Data: []byte("bye")}},
		{"ack", PacketAck, AckBody{AckedSequence: 99}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wire, err := Serialize(tc.typ, 17, 555, tc.body)
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			pkt, err := Deserialize(wire)
			if err != nil {
				t.Fatalf("Deserialize: %v", err)
			}
			if pkt.Header.Sequence != 17 || pkt.Header.Timestamp != 555 {
				t.Fatalf("header mismatch: %+v", pkt.Header)
			}
			if pkt.Body.Type() != tc.typ {
				t.Fatalf("type mismatch: got %v want %v", pkt.Body.Type(), tc.typ)
			}
		})
	}
}

func TestCodec_CRCDetectsCorruption(t *testing.T) {
	wire, err := Serialize(PacketHeartbeat, 1, 1, Heartbeat{PingMS: 20})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	for i := 0; i < len(wire)*8; i++ {
		if i/8 == 20 || i/8 == 21 { // checksum field itself is exempt
			continue
		}
		corrupt := make([]byte, len(wire))
		copy(corrupt, wire)
		corrupt[i/8] ^= 1 << uint(i%8)
		if _, err := Deserialize(corrupt); err == nil {
			t.Fatalf("bit flip at byte %d bit %d: expected error, got none", i/8, i%8)
		}
	}
}

func TestCodec_RejectsBadMagic(t *testing.T) {
	wire, _ := Serialize(PacketHeartbeat, 1, 1, Heartbeat{PingMS: 1})
	wire[0] ^= 0xFF
	if _, err := Deserialize(wire); err != ErrBadMagic && err != ErrBadChecksum {
		t.Fatalf("got %v, want ErrBadMagic or checksum failure", err)
	}
}

func TestCodec_RejectsTruncated(t *testing.T) {
	wire, _ := Serialize(PacketFrameData, 1, 1, FrameDataBody{Payload: []byte{1, 2, 3}})
	if _, err := Deserialize(wire[:HeaderSize+1]); err == nil {
		t.Fatalf("expected error for truncated body")
	}
}

func TestCodec_RejectsOversize(t *testing.T) {
	body := FrameDataBody{Payload: make([]byte, MaxDatagramSize)}
	if _, err := Serialize(PacketFrameData, 1, 1, body); err != ErrTooLarge {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}

func TestIsNewer(t *testing.T) {
	cases := []struct {
		a, b uint32
		want bool
	}{
		{10, 5, true}, {5, 10, false}, {0, 1, false},
		// Exactly half the space apart: (a-b) mod 2^32 == 2^31 is not below
		// 2^31, so a is not newer even though a > b.
		{1 << 31, 0, false},
	}
	for _, c := range cases {
		if IsNewer(c.a, c.b) != c.want {
			t.Fatalf("IsNewer(%d,%d) = %v, want %v", c.a, c.b, !c.want, c.want)
		}
	}
	// Wraparound: sequence 1, just past max, is newer than max.
	if !IsNewer(1, ^uint32(0)) {
		t.Fatalf("IsNewer(1, max) should be true across wraparound")
	}
}

func BenchmarkSerialize(b *testing.B) {
	body := DetectionResult{FrameID: 1, TimestampMS: 1, Detections: make([]DetectionRecord, 32)}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Serialize(PacketDetectionResult, uint32(i), 1, body)
	}
}

func BenchmarkDeserialize(b *testing.B) {
	body := DetectionResult{FrameID: 1, TimestampMS: 1, Detections: make([]DetectionRecord, 32)}
	wire, _ := Serialize(PacketDetectionResult, 1, 1, body)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Deserialize(wire)
	}
}
