// Package capture defines the client's frame source boundary. Real screen
// capture is an external collaborator (spec: "Deliberately OUT of scope
// ... screen capture ... treated as replaceable peripherals"); this package
// only owns the seam a real capturer plugs into, plus a synthetic source
// used when none is wired, mirroring the inference engine's simulation-mode
// fallback (internal/inference/engine.go's loadOrSimulate).
package capture

import (
	"math/rand"
	"sync"
)

// Frame is one raw RGB24 capture, srcW*srcH*3 bytes, row-major.
type Frame struct {
	Width, Height int
	RGB           []byte
}

// Source produces frames on demand. A real implementation wraps a
// platform capture API (DXGI, X11, etc.); it is never implemented here.
type Source interface {
	Capture() (Frame, error)
}

// Synthetic is a Source that fabricates deterministic noise frames, for
// running the client pipeline without a real capturer wired in.
type Synthetic struct {
	width, height int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthetic builds a Source emitting width x height RGB24 noise frames.
func NewSynthetic(width, height int) *Synthetic {
	return &Synthetic{width: width, height: height, rng: rand.New(rand.NewSource(1))}
}

func (s *Synthetic) Capture() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, s.width*s.height*3)
	s.rng.Read(buf)
	return Frame{Width: s.width, Height: s.height, RGB: buf}, nil
}
