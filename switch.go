//go:build linux

package fibio

import (
	"sync"

	"github.com/brickingsoft/errors"
)

// Switch is a structured-concurrency lifetime scope: it owns release hooks
// (typically "close this FD") and runs them, most-recently-added first,
// exactly once when the scope ends. Cancelling a Switch runs every
// cancellable hook's callback synchronously instead of waiting for Close.
type Switch struct {
	mu       sync.Mutex
	closed   bool
	canceled error
	hooks    []releaseHook
}

type releaseHook struct {
	id         uint64
	fn         func()
	cancelFn   func()
	cancelable bool
}

// NewSwitch creates an open lifetime scope.
func NewSwitch() *Switch {
	return &Switch{}
}

// OnRelease registers fn to run when the Switch closes. Hooks run in
// reverse registration order, matching defer semantics.
func (s *Switch) OnRelease(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		fn()
		return
	}
	s.hooks = append(s.hooks, releaseHook{fn: fn})
}

// RemovableHook lets a caller retract an on-release-cancellable hook once
// it's no longer needed, without waiting for the Switch to close.
type RemovableHook struct {
	sw *Switch
	id uint64
}

// Remove retracts the hook; it becomes a no-op at Close/Cancel time.
func (h RemovableHook) Remove() {
	h.sw.mu.Lock()
	defer h.sw.mu.Unlock()
	for i := range h.sw.hooks {
		if h.sw.hooks[i].id == h.id {
			h.sw.hooks[i].fn = nil
			h.sw.hooks[i].cancelFn = nil
			return
		}
	}
}

var hookSeq = func() func() uint64 {
	var n uint64
	return func() uint64 {
		n++
		return n
	}
}()

// OnReleaseCancellable registers both a normal release hook (run at Close)
// and a cancel hook (run when Cancel fires while still open), returning a
// handle the caller can Remove early.
func (s *Switch) OnReleaseCancellable(fn func(), cancelFn func()) RemovableHook {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := hookSeq()
	if s.closed {
		fn()
		return RemovableHook{sw: s, id: id}
	}
	s.hooks = append(s.hooks, releaseHook{id: id, fn: fn, cancelFn: cancelFn, cancelable: true})
	return RemovableHook{sw: s, id: id}
}

// Check returns the scope's cancellation reason if it has been cancelled,
// nil otherwise. It never returns the "closed" state — a closed-but-not-
// cancelled Switch has no error to raise.
func (s *Switch) Check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

// Cancel runs every cancellable hook's cancel callback synchronously and
// records reason for future Check calls. It does not close the scope.
func (s *Switch) Cancel(reason error) {
	if reason == nil {
		reason = ErrCanceled
	}
	s.mu.Lock()
	if s.canceled != nil {
		s.mu.Unlock()
		return
	}
	s.canceled = reason
	hooks := make([]releaseHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		if hooks[i].cancelable && hooks[i].cancelFn != nil {
			hooks[i].cancelFn()
		}
	}
}

// Close runs every still-registered release hook, most recent first, and
// marks the scope closed. A second Close runs no hooks and returns
// ErrClosed.
func (s *Switch) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.From(ErrClosed)
	}
	s.closed = true
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		if hooks[i].fn != nil {
			hooks[i].fn()
		}
	}
	return nil
}
