//go:build linux

package fibio

import "sync"

// Context is the fiber-context named in spec §3: a cancellation slot plus
// at most one live cancel callback. SetCancelFn/ClearCancelFn/Cancel
// together preserve invariant §8.5 — exactly one of "ClearCancelFn runs
// first" or "Cancel invokes the callback" ever happens, never both, never
// neither.
type Context struct {
	mu        sync.Mutex
	cancelled bool
	reason    error
	cancelFn  func()
}

func newContext() *Context { return &Context{} }

// GetError returns the cancellation reason if this context has already
// been cancelled, nil otherwise.
func (c *Context) GetError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// SetCancelFn installs fn as the context's single cancel callback. It
// reports false without installing anything if the context is already
// cancelled — the caller must treat that as an immediate cancellation
// rather than proceeding to submit.
func (c *Context) SetCancelFn(fn func()) (installed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return false
	}
	c.cancelFn = fn
	return true
}

// ClearCancelFn removes the installed callback, if any, without invoking
// it. Call on the completion path before resuming the user (spec §4.1).
func (c *Context) ClearCancelFn() {
	c.mu.Lock()
	c.cancelFn = nil
	c.mu.Unlock()
}

// Cancel marks the context cancelled with reason (defaulting to
// ErrCanceled) and, iff a callback is currently installed, invokes it
// exactly once and clears it.
func (c *Context) Cancel(reason error) {
	if reason == nil {
		reason = ErrCanceled
	}
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	c.reason = reason
	fn := c.cancelFn
	c.cancelFn = nil
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// result is what a Task's resume channel carries: a value on success, or
// an error. Exactly one of the two is meaningful at a time.
type result struct {
	value any
	err   error
}

// Task is the suspended-task reification of spec §3: an opaque paused
// computation plus its attached fiber-context, realized here as a parked
// goroutine blocked on a size-1 channel. Only the scheduler's loop
// goroutine ever sends on resumeCh (runqueue.go's dispatch, and
// scheduler.go's completion, ctrl-drain and timer paths), which is what
// makes "resumption happens on the owning OS thread" (spec §4.1) hold.
type Task struct {
	ctx      *Context
	resumeCh chan result
	sched    *Scheduler
}

func newTask(sched *Scheduler) *Task {
	return &Task{ctx: newContext(), resumeCh: make(chan result, 1), sched: sched}
}

// Scheduler returns the scheduler this task runs against, for external
// collaborator packages (dir, socket, timerwheel, ...) that need a
// *Scheduler to open their first FD before any handle exists to derive
// one from via FD.SchedulerOf.
func (t *Task) Scheduler() *Scheduler {
	return t.sched
}

// suspend parks the calling goroutine until this task is resumed or
// failed by the owning scheduler.
func (t *Task) suspend() (any, error) {
	r := <-t.resumeCh
	return r.value, r.err
}

// resumeTask delivers a value to a task from outside the loop goroutine —
// used by RunRaw/RunRemote's completion and by a buffer release that hands
// a block to a waiter. It is routed through the run queue so delivery
// still happens from the owning thread's dispatch step.
func (s *Scheduler) resumeTask(t *Task, value any) {
	s.runQ.Push(resumeRunnable(t, value))
	s.wake.Signal()
}

func (s *Scheduler) failTask(t *Task, err error) {
	s.runQ.Push(failRunnable(t, err))
	s.wake.Signal()
}
