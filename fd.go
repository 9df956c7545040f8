//go:build linux

package fibio

import (
	"sync"

	"golang.org/x/sys/unix"
)

// FD is the owned file-descriptor handle of spec §3: the raw kernel FD, a
// seekable flag probed once via lseek(SEEK_CUR), whether this handle owns
// (and must close) the kernel FD, a release hook registered with a Switch,
// and an open/closed discriminant. Once closed, every operation fails with
// ErrClosed and never reaches the ring.
type FD struct {
	mu            sync.Mutex
	fd            int
	closed        bool
	seekable      bool
	closeKernelFD bool
	sched         *Scheduler
	hook          RemovableHook
}

func probeSeekable(fd int) bool {
	_, err := unix.Seek(fd, 0, unix.SEEK_CUR)
	return err == nil
}

// newFD wraps rawFD, registering an on-release(-cancellable) hook with sw
// so the scope closes it if still open when the scope ends or is
// cancelled.
func newFD(sched *Scheduler, sw *Switch, rawFD int, closeKernelFD bool) *FD {
	f := &FD{
		fd:            rawFD,
		seekable:      probeSeekable(rawFD),
		closeKernelFD: closeKernelFD,
		sched:         sched,
	}
	f.hook = sw.OnReleaseCancellable(func() {
		f.closeNoWait()
	}, func() {
		f.closeNoWait()
	})
	return f
}

// NewFD wraps an already-open kernel file descriptor as an FD scoped to
// sw, for collaborator packages (dir, socket, ...) that open descriptors
// themselves (openat2, socket(2), accept's returned fd) and need them to
// participate in the core's close/cancellation discipline.
func NewFD(sched *Scheduler, sw *Switch, rawFD int, closeKernelFD bool) *FD {
	return newFD(sched, sw, rawFD, closeKernelFD)
}

// Raw returns the underlying kernel file descriptor.
func (f *FD) Raw() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fd
}

// SchedulerOf returns the scheduler this handle submits operations
// through, for collaborator packages that need to issue further
// operations (openat2, accept, connect) against the same ring.
func (f *FD) SchedulerOf() *Scheduler {
	return f.sched
}

// Seekable reports whether lseek(SEEK_CUR) succeeded at construction time.
func (f *FD) Seekable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seekable
}

// checkOpen returns ErrClosed if the handle has already been closed.
func (f *FD) checkOpen() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return nil
}

// markClosed flips the discriminant exactly once, returning false on a
// second call so callers only tear down the kernel FD once.
func (f *FD) markClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.closed = true
	return true
}

// closeNoWait is the scope's release/cancel hook: it closes the kernel FD
// synchronously (via close(2)) without a task to suspend, since a scope
// teardown may run with no fiber context available. Errors are discarded
// here — the spec's teardown policy (§7) is "log and discard."
func (f *FD) closeNoWait() {
	if !f.markClosed() {
		return
	}
	if f.closeKernelFD {
		_ = unix.Close(f.fd)
	}
}

// Close closes the handle asynchronously through the ring (spec §3: "closing
// calls into the ring ... rather than the blocking syscall"), modeled as
// non-cancellable per spec §9's open question (b). task suspends until the
// close CQE arrives.
func (f *FD) Close(task *Task) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.closed = true
	rawFD := f.fd
	owns := f.closeKernelFD
	f.mu.Unlock()

	f.hook.Remove()
	if !owns {
		return nil
	}
	return f.sched.closeAsync(task, rawFD)
}
