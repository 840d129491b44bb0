//go:build !linux

package platform

import "errors"

// ErrUnsupported is returned by every platform knob on non-Linux targets.
var ErrUnsupported = errors.New("platform: not supported on this OS")

// PinToCPU is a no-op stub outside Linux.
func PinToCPU(coreID int) error { return ErrUnsupported }

// RaisePriority is a no-op stub outside Linux.
func RaisePriority() error { return ErrUnsupported }
