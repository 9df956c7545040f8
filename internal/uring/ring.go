//go:build linux

package uring

import (
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"github.com/brickingsoft/errors"
	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"
)

var (
	// ErrRingFull is never returned to callers: Ring.Prepare reports ring
	// fullness via its bool return instead, matching spec.md §4.1 step 2
	// ("if the ring is full, push a retry thunk"). It's kept here for
	// tests that want to assert on the condition by name.
	ErrRingFull = errors.Define("uring: ring full")
)

// Options configures Open. The caller (fibio.Options) supplies the spec.md
// §6 defaults; Open itself only replaces a zero Entries with 64.
type Options struct {
	Entries        uint32
	Flags          uint32
	SQThreadIdle   uint32
	BufferSize     uint32
	BufferCount    uint32
}

// Ring wraps a giouring.Ring for exclusive use by one OS thread.
type Ring struct {
	ring             *giouring.Ring
	bufferRegistered bool
	cqeBatch         []*giouring.CompletionQueueEvent
}

func Open(opts Options) (*Ring, error) {
	entries := opts.Entries
	if entries == 0 {
		entries = 64
	}
	r, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, errors.From(err)
	}
	ring := &Ring{
		ring:     r,
		cqeBatch: make([]*giouring.CompletionQueueEvent, entries),
	}
	if opts.BufferCount > 0 && opts.BufferSize > 0 {
		if regErr := ring.registerBuffers(opts.BufferSize, opts.BufferCount); regErr == nil {
			ring.bufferRegistered = true
		}
		// ENOMEM and friends: proceed without fixed buffers, per spec.md §6.
	}
	return ring, nil
}

func (r *Ring) registerBuffers(size, count uint32) error {
	iovecs := make([]unix.Iovec, count)
	bufs := make([][]byte, count)
	for i := uint32(0); i < count; i++ {
		buf := make([]byte, size)
		bufs[i] = buf
		iovecs[i] = unix.Iovec{Base: &buf[0]}
		iovecs[i].SetLen(int(size))
	}
	_, err := r.ring.RegisterBuffers(*(*[]syscall.Iovec)(unsafe.Pointer(&iovecs)))
	runtime.KeepAlive(bufs)
	return err
}

func (r *Ring) BufferRegistered() bool { return r.bufferRegistered }

func (r *Ring) Fd() int { return r.ring.RingFd() }

func (r *Ring) Close() error {
	if r.bufferRegistered {
		_, _ = r.ring.UnregisterBuffers()
	}
	r.ring.QueueExit()
	return nil
}

// Prepare writes one SQE for op. It returns ok=false (without consuming
// op) when the submission queue is currently full — the caller is
// expected to retry after the next Submit drains slots, per spec.md
// §4.1 step 2.
func (r *Ring) Prepare(op *Operation) (ok bool) {
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return false
	}
	switch op.Kind {
	case KindNop:
		sqe.PrepareNop()
	case KindReadFixed:
		ptr := uintptr(unsafe.Pointer(&op.Buf[0]))
		sqe.PrepareReadFixed(op.Fd, ptr, uint32(len(op.Buf)), uint64(op.Offset), op.FixedBufIndex)
	case KindWriteFixed:
		ptr := uintptr(unsafe.Pointer(&op.Buf[0]))
		sqe.PrepareWriteFixed(op.Fd, ptr, uint32(len(op.Buf)), uint64(op.Offset), op.FixedBufIndex)
	case KindReadv:
		ptr := uintptr(unsafe.Pointer(&op.Iovecs[0]))
		sqe.PrepareReadv(op.Fd, ptr, uint32(len(op.Iovecs)), uint64(op.Offset))
	case KindWritev:
		ptr := uintptr(unsafe.Pointer(&op.Iovecs[0]))
		sqe.PrepareWritev(op.Fd, ptr, uint32(len(op.Iovecs)), uint64(op.Offset))
	case KindOpenat2:
		path := append([]byte(unix.BytePtrToString(op.Path)), 0)
		sqe.PrepareOpenat2(op.Dirfd, path, op.How)
	case KindConnect:
		addr := (*syscall.Sockaddr)(unsafe.Pointer(op.Addr))
		sqe.PrepareConnect(op.Fd, addr, uint64(op.AddrLen))
	case KindAccept:
		sqe.PrepareAccept(op.Fd, uintptr(unsafe.Pointer(op.Addr)), uint64(uintptr(unsafe.Pointer(&op.AddrLen))), 0)
	case KindSend:
		ptr := uintptr(unsafe.Pointer(&op.Buf[0]))
		sqe.PrepareSend(op.Fd, ptr, uint32(len(op.Buf)), int(op.MsgFlags))
	case KindRecv:
		ptr := uintptr(unsafe.Pointer(&op.Buf[0]))
		sqe.PrepareRecv(op.Fd, ptr, uint32(len(op.Buf)), int(op.MsgFlags))
	case KindSplice:
		sqe.PrepareSplice(op.SpliceFdIn, op.SpliceOffIn, op.SpliceFdOut, op.SpliceOffOut, op.SpliceLen, op.SpliceFlags)
	case KindPollAdd:
		sqe.PreparePollAdd(op.Fd, op.PollMask)
	case KindClose:
		sqe.PrepareClose(op.Fd)
	case KindCancel:
		sqe.PrepareCancel64(op.CancelTargetUserData, 0)
	default:
		sqe.PrepareNop()
	}
	sqe.SetData(unsafe.Pointer(op))
	runtime.KeepAlive(op)
	return true
}

// Submit flushes prepared SQEs to the kernel without waiting for any
// completion. It is safe to call with zero pending SQEs.
func (r *Ring) Submit() (int, error) {
	n, err := r.ring.Submit()
	if err != nil {
		return int(n), errors.From(err)
	}
	return int(n), nil
}

// Wait blocks the calling thread until at least one CQE is available or
// timeout elapses. A negative timeout waits indefinitely.
func (r *Ring) Wait(timeout time.Duration) error {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	_, err := r.ring.WaitCQEs(1, (*syscall.Timespec)(unsafe.Pointer(ts)), nil)
	if err != nil {
		return errors.From(err)
	}
	return nil
}

// Peek drains already-available CQEs without blocking, invoking fn for
// each with the Operation it completed. It returns the number dispatched.
func (r *Ring) Peek(fn func(op *Operation)) int {
	n := r.ring.PeekBatchCQE(r.cqeBatch)
	if n == 0 {
		return 0
	}
	for i := uint32(0); i < n; i++ {
		cqe := r.cqeBatch[i]
		r.cqeBatch[i] = nil
		if cqe.UserData == 0 {
			continue
		}
		op := operationFromUserData(cqe.UserData)
		op.ResultFlags = cqe.Flags
		if cqe.Res < 0 {
			op.ResultN = 0
			op.ResultErr = ErrorOfErrno(-cqe.Res)
		} else {
			op.ResultN = int(cqe.Res)
			op.ResultErr = nil
		}
		fn(op)
	}
	r.ring.CQAdvance(n)
	return int(n)
}

// ErrorOfErrno maps a positive Linux errno to a Go error, per spec.md §6
// ("Uring binding: ... error_of_errno").
func ErrorOfErrno(errno int32) error {
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}
