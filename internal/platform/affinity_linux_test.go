//go:build linux

package platform

import (
	"runtime"
	"testing"
)

func TestPinToCPU_ValidCore(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := PinToCPU(0); err != nil {
		t.Fatalf("PinToCPU(0): %v", err)
	}
}
