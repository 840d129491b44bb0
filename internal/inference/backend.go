// Package inference implements the server's model backend, preprocessing,
// postprocessing, and simulation fallback of §4.3. The retrieved example
// corpus carries no ML-runtime binding (no ONNX/TensorFlow/Gorgonia
// dependency anywhere in the pack), so Backend is an interface the caller
// supplies; the engine itself only ever exercises the interface, content
// hashing (crypto/sha256, justified in DESIGN.md) and the geometry/NMS
// pack component.
package inference

import "context"

// Tensor is a flat, shape-tagged numeric buffer passed to and from Backend.
type Tensor struct {
	Data  []float32
	Shape []int // e.g. [1, 3, H, W] input, [1, 4+C, N] output
}

// Session is an opaque loaded-model handle owned by a Backend.
type Session interface{}

// Backend loads a model file and runs inference on it. Implementations are
// expected to be safe for concurrent Run calls on different Sessions but
// need not be safe for concurrent Run calls on the *same* Session — the
// engine serializes those itself (§5: "Inference session handle: one
// exclusive lock, held across run").
type Backend interface {
	Load(path string) (Session, error)
	Run(ctx context.Context, session Session, input Tensor) (Tensor, error)
}
