// Package model holds the value types shared by every component on both
// peers: bounding boxes, detections, frames and game state. None of these
// types own a mutex or a goroutine; they are passed by value or as
// snapshotted slices between components (§3, §9 "cyclic ownership").
package model

// BoundingBox is a normalized, centre-format box. X and Y are the centre
// coordinates in [0,1]; W and H are the extents in (0,1]. The zero value is
// not a valid box (W, H must be positive before use).
type BoundingBox struct {
	X, Y, W, H float32
}

// Clamp returns a box translated/resized minimally so it stays inside the
// unit square, preserving centre and extent where possible.
func (b BoundingBox) Clamp() BoundingBox {
	out := b
	if out.W <= 0 {
		out.W = 1e-3
	}
	if out.H <= 0 {
		out.H = 1e-3
	}
	if out.W > 1 {
		out.W = 1
	}
	if out.H > 1 {
		out.H = 1
	}
	halfW, halfH := out.W/2, out.H/2
	if out.X-halfW < 0 {
		out.X = halfW
	}
	if out.X+halfW > 1 {
		out.X = 1 - halfW
	}
	if out.Y-halfH < 0 {
		out.Y = halfH
	}
	if out.Y+halfH > 1 {
		out.Y = 1 - halfH
	}
	return out
}

// Detection is one observed or predicted object, either decoded from the
// wire or produced locally by the tracker/predictor/fuser.
type Detection struct {
	Box         BoundingBox
	Confidence  float32
	ClassID     uint8
	TrackID     uint32 // 0 == unassociated
	TimestampMS uint64
}

// FrameData is a capture-layer frame submitted for inference. Payload is
// opaque to the core pipeline (§3): it may be raw RGB or codec-specific.
type FrameData struct {
	FrameID     uint32
	TimestampMS uint64
	Width       uint16
	Height      uint16
	Keyframe    bool
	Payload     []byte
}

// GameState is the detection set produced for one frame, either by the
// server tracker or by the client fuser.
type GameState struct {
	FrameID     uint32
	TimestampMS uint64
	Detections  []Detection
}
