//go:build linux

package fibio

import (
	"runtime"

	"github.com/brickingsoft/fibio/internal/maxprocs"
)

// RunRaw is the cross-domain bridge's synchronous form (spec §4.7): it
// spawns a new OS thread to run fn, and suspends the calling fiber until
// fn returns. Unlike Run, the spawned thread has no ring of its own — fn
// is expected to be plain blocking Go code (cgo, a blocking syscall, CPU
// work) that has no business on the scheduler's own thread.
func RunRaw(task *Task, fn func()) {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		fn()
		task.sched.resumeTask(task, nil)
	}()
	_, _ = task.suspend()
}

// RunRemote is the cross-domain bridge's asynchronous-runtime form (spec
// §4.7): it spawns a new OS thread, opens an independent scheduler on it,
// runs fn as that scheduler's top-level fiber, and suspends the calling
// fiber until the child scheduler has drained and fn has returned.
func RunRemote(task *Task, fn func(child *Task) (any, error), opts ...Option) (any, error) {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		v, err := runTopLevel(fn, opts...)
		if err != nil {
			task.sched.failTask(task, err)
			return
		}
		task.sched.resumeTask(task, v)
	}()
	return task.suspend()
}

// DefaultBridgeWorkers returns the number of cross-domain worker threads a
// pool of RunRemote calls should default to, sized the way this codebase's
// scheduler-count logic reads the host's cgroup CPU quota rather than
// always falling back to runtime.NumCPU (spec §4.7, §10).
func DefaultBridgeWorkers() int {
	n, _ := maxprocs.DefaultSchedulerCount()
	return n
}
