package main

import (
	"context"
	"errors"

	"github.com/kstaniek/zl-offload/internal/inference"
)

// errNoBackendWired is returned by unwiredBackend when a model_path points at
// a real file but this build carries no concrete model runtime. Swap this
// type for a real ONNX/TensorRT/etc. binding in a production build; absent
// that, point model-path at a nonexistent file to run in simulation mode.
var errNoBackendWired = errors.New("inference: no model backend compiled into this build")

type unwiredBackend struct{}

func (unwiredBackend) Load(path string) (inference.Session, error) {
	return nil, errNoBackendWired
}

func (unwiredBackend) Run(ctx context.Context, session inference.Session, input inference.Tensor) (inference.Tensor, error) {
	return inference.Tensor{}, errNoBackendWired
}
