//go:build linux

// Package fibio is a Linux io_uring-backed asynchronous I/O runtime with
// cooperative fiber concurrency. A fiber is ordinary Go code driven by a
// Task: calling one of the FD/Scheduler primitives parks the calling
// goroutine until the scheduler loop, running on the single OS thread that
// owns the ring, resumes it with a result.
//
// Run opens a ring, spawns the given function as the top-level fiber, and
// drives the scheduler loop on the calling OS thread until the top-level
// fiber has returned and every timer and in-flight operation has settled.
package fibio

import (
	"log"
	"runtime"

	"github.com/brickingsoft/fibio/internal/affinity"
	"github.com/brickingsoft/fibio/internal/initonce"
)

// Run opens an io_uring instance, runs fn as the top-level fiber, and
// blocks the calling goroutine until fn has returned and no timer or
// operation is outstanding. A fiber started with Fork is not itself
// counted: the loop waits for its pending operations and timers, not for
// its goroutine to return. It locks the calling goroutine to its OS thread for the
// duration, since the ring may only be touched from the thread that
// opened it (spec §4.1a, §5).
func Run(fn func(task *Task) (any, error), opts ...Option) (any, error) {
	return runTopLevel(fn, opts...)
}

func runTopLevel(fn func(task *Task) (any, error), opts ...Option) (any, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if err := probeKernel(o); err != nil {
		return nil, err
	}
	initonce.IgnoreSIGPIPE()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if o.pinCPU {
		if err := affinity.Pin(o.cpuIndex); err != nil {
			log.Printf("fibio: cpu affinity pin failed: %v", err)
		}
	}

	sched, err := newScheduler(o)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sched.close(); cerr != nil {
			log.Printf("fibio: ring teardown failed: %v", cerr)
		}
	}()

	root := newTask(sched)
	sched.holdOpen()

	var rootVal any
	var rootErr error
	go func() {
		rootVal, rootErr = fn(root)
		sched.ctrlQ.Enqueue(&ctrlMsg{kind: ctrlRootDone})
		sched.wake.Signal()
	}()

	sched.loop()
	return rootVal, rootErr
}

// Fork spawns fn as an independent child fiber against the same scheduler
// as parent and returns a join function that suspends parent's goroutine
// until the child finishes (spec §6 "fiber primitives fork/suspend/join").
func Fork(parent *Task, fn func(task *Task) (any, error)) (join func() (any, error)) {
	child := newTask(parent.sched)
	done := make(chan result, 1)
	go func() {
		v, err := fn(child)
		done <- result{value: v, err: err}
	}()
	return func() (any, error) {
		r := <-done
		return r.value, r.err
	}
}
