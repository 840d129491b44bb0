//go:build linux

// Package platform implements the optional CPU-affinity and scheduling
// priority knobs of §6 (use_cpu_affinity, cpu_core_id, use_high_priority).
// The retrieved example pack reaches for golang.org/x/sys/unix for this
// class of raw syscall access rather than hand-rolled syscall numbers.
package platform

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PinToCPU restricts the current OS thread to a single core. Callers that
// want a specific worker pinned must first call runtime.LockOSThread.
func PinToCPU(coreID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(coreID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("platform: set affinity to core %d: %w", coreID, err)
	}
	return nil
}

// RaisePriority requests a near-real-time scheduling priority for the
// current process. Failure is common without elevated privileges and is
// returned, not fatal, so callers can log and continue at normal priority.
func RaisePriority() error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, os.Getpid(), -10); err != nil {
		return fmt.Errorf("platform: raise priority: %w", err)
	}
	return nil
}
