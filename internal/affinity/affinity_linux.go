//go:build linux

// Package affinity pins the calling OS thread to a single CPU, so a
// scheduler instance spawned by the cross-domain bridge (spec.md §5) stays
// on the core it started on instead of migrating and cooling its caches.
package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin binds the current thread (runtime.LockOSThread must already have been
// called by the caller) to CPU index%NumCPU.
func Pin(index int) error {
	var mask unix.CPUSet
	mask.Zero()

	cpu := index % runtime.NumCPU()
	mask.Set(cpu)

	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return fmt.Errorf("affinity: SchedSetaffinity(cpu=%d): %w", cpu, err)
	}
	return nil
}
