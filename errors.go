//go:build linux

package fibio

import (
	"github.com/brickingsoft/errors"
)

var (
	// ErrEOF is delivered for a read that returned 0 bytes on a stream FD.
	ErrEOF = errors.Define("fibio: end of stream")
	// ErrCanceled is the fiber's recorded cancellation reason, delivered in
	// place of a raw kernel result for cancellable jobs (spec §4.1, §7).
	ErrCanceled = errors.Define("fibio: operation canceled")
	// ErrConnReset is the mapped form of ECONNRESET on a stream read.
	ErrConnReset = errors.Define("fibio: connection reset by peer")
	// ErrNoFreeBuffer is returned by the non-waiting fixed-buffer allocator
	// when the pool is exhausted.
	ErrNoFreeBuffer = errors.Define("fibio: no free fixed buffer")
	// ErrClosed is the programmer-error signal for use of a closed FD.
	ErrClosed = errors.Define("fibio: use of closed file descriptor")
	// ErrSchedulerMisuse guards the invariant in spec §4.6: the scheduler
	// must never exit with a non-empty buffer waiter queue.
	ErrSchedulerMisuse = errors.Define("fibio: scheduler exited with pending buffer waiters")
	// ErrRingUnavailable is passed to the configured fallback handler when
	// io_uring_setup returns ENOSYS (spec §6, §8 scenario 6).
	ErrRingUnavailable = errors.Define("fibio: io_uring unavailable on this kernel")
	// ErrTimeout is returned by WithTimeout when its deadline wins the
	// race against the operation (spec §5 "Timeouts").
	ErrTimeout = errors.Define("fibio: operation timed out")
)

// IsEOF reports whether err is (or wraps) ErrEOF.
func IsEOF(err error) bool { return errors.Is(err, ErrEOF) }

// IsCanceled reports whether err is (or wraps) ErrCanceled.
func IsCanceled(err error) bool { return errors.Is(err, ErrCanceled) }

// IsConnReset reports whether err is (or wraps) ErrConnReset.
func IsConnReset(err error) bool { return errors.Is(err, ErrConnReset) }

// IsNoFreeBuffer reports whether err is (or wraps) ErrNoFreeBuffer.
func IsNoFreeBuffer(err error) bool { return errors.Is(err, ErrNoFreeBuffer) }

// IsClosed reports whether err is (or wraps) ErrClosed.
func IsClosed(err error) bool { return errors.Is(err, ErrClosed) }

// kernelError maps a positive Linux errno from a negative CQE result into a
// Go error, per spec §7 ("kernel error ... mapped through error_of_errno").
// ECONNRESET on stream reads is remapped by the caller (io.go), not here.
func kernelError(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.New("fibio: "+op+" failed", errors.WithWrap(err))
}
