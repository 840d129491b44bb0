package wire

import "testing"

// FuzzDeserialize ensures arbitrary input never panics; the corpus is
// seeded with valid serialized packets.
func FuzzDeserialize(f *testing.F) {
	seed, _ := Serialize(PacketHeartbeat, 1, 1, Heartbeat{PingMS: 20})
	f.Add(seed)
	seed2, _ := Serialize(PacketDetectionResult, 2, 2, DetectionResult{Detections: []DetectionRecord{{Confidence: 0.5}}})
	f.Add(seed2)
	f.Add([]byte{0, 0, 0, 1, 0})
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = Deserialize(data)
	})
}
