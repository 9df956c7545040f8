//go:build linux

package fibio

import (
	"unsafe"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/fibio/internal/uring"
	"golang.org/x/sys/unix"
)

// isRetryableErrno reports whether err is EINTR/EAGAIN/ECANCELED — the
// three errnos spec §4.2 says the submission layer resubmits without
// surfacing to the caller, and without advancing cur_off.
func isRetryableErrno(err error) bool {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno == unix.EINTR || errno == unix.EAGAIN || errno == unix.ECANCELED
}

// buildReadWriteOp constructs (or reconstructs, on retry) the Operation
// for a read/write job, choosing the fixed-buffer or vectored opcode per
// rec.fixed.
func buildReadWriteOp(rec *jobRecord) *uring.Operation {
	op := &uring.Operation{Fd: rec.fd, Offset: rec.offset}
	switch {
	case rec.fixed && rec.isRead:
		op.Kind = uring.KindReadFixed
		op.Buf = rec.buf
		op.FixedBufIndex = rec.fixedIdx
	case rec.fixed && !rec.isRead:
		op.Kind = uring.KindWriteFixed
		op.Buf = rec.buf
		op.FixedBufIndex = rec.fixedIdx
	case !rec.fixed && rec.isRead:
		op.Kind = uring.KindReadv
		op.Iovecs = []unix.Iovec{toIovec(rec.buf)}
	default:
		op.Kind = uring.KindWritev
		op.Iovecs = []unix.Iovec{toIovec(rec.buf)}
	}
	return op
}

func toIovec(buf []byte) unix.Iovec {
	if len(buf) == 0 {
		return unix.Iovec{}
	}
	iov := unix.Iovec{Base: &buf[0]}
	iov.SetLen(len(buf))
	return iov
}

// dispatchReadWrite implements the short-transfer retry policy of spec
// §4.2/§4.4 for read/write jobs.
func (s *Scheduler) dispatchReadWrite(op *uring.Operation, rec *jobRecord) {
	rec.ctx.ClearCancelFn()

	if op.ResultErr != nil {
		if isRetryableErrno(op.ResultErr) {
			s.resubmitReadWrite(rec)
			return
		}
		err := op.ResultErr
		if rec.isRead && errors.Is(err, unix.ECONNRESET) {
			err = ErrConnReset
		} else {
			err = kernelError("read/write", err)
		}
		if reason := rec.ctx.GetError(); reason != nil && rec.totalN == 0 {
			s.resumeOrFail(rec.task, 0, reason)
			return
		}
		s.resumeOrFail(rec.task, rec.totalN, err)
		return
	}

	n := op.ResultN
	if n == 0 {
		if reason := rec.ctx.GetError(); reason != nil && rec.totalN == 0 {
			s.resumeOrFail(rec.task, 0, reason)
			return
		}
		if rec.isRead {
			s.resumeOrFail(rec.task, rec.totalN, ErrEOF)
			return
		}
		s.resumeOrFail(rec.task, rec.totalN, nil)
		return
	}

	rec.totalN += n
	remaining := len(rec.buf) - n

	// Open Question (a) (spec §9): a cancelled read/write that produced a
	// positive short-transfer result is delivered with that raw result,
	// not the cancellation reason — deliberate, to avoid silently losing
	// bytes already copied out of the kernel.
	if rec.mode == Upto || remaining <= 0 {
		s.resumeOrFail(rec.task, rec.totalN, nil)
		return
	}

	rec.buf = rec.buf[n:]
	if rec.seekable && rec.offset >= 0 {
		rec.offset += int64(n)
	}
	s.resubmitReadWrite(rec)
}

// resubmitReadWrite rebuilds the SQE for rec, re-installs the job's cancel
// callback for the new attempt, and prepares it inline. If the fiber was
// cancelled in the meantime nothing is resubmitted: the job ends with the
// bytes already transferred, or with the cancellation reason when there are
// none. Only ever called from the loop goroutine (from dispatchReadWrite);
// the first attempt goes through the ctrlQ hand-off in submitReadWrite.
func (s *Scheduler) resubmitReadWrite(rec *jobRecord) {
	op := buildReadWriteOp(rec)
	op.Tag = unsafe.Pointer(rec)
	rec.currentOp.Store(op)
	if !rec.ctx.SetCancelFn(func() {
		target := rec.currentOp.Load()
		s.submitOp(uring.NewCancel(target.UserData()), &jobRecord{kind: jobNonCancellable, sched: s})
	}) {
		if rec.totalN > 0 {
			s.resumeOrFail(rec.task, rec.totalN, nil)
			return
		}
		s.resumeOrFail(rec.task, 0, rec.ctx.GetError())
		return
	}
	s.tryPrepareInline(op)
}

// submitReadWrite hands the first attempt of a read/write job to the
// owning loop via ctrlQ, after running the cancellable-submission
// protocol of spec §4.1. The cancel callback always targets rec.currentOp,
// which tracks whichever attempt is presently in flight across retries.
func submitReadWrite(task *Task, rec *jobRecord) (int, error) {
	ctx := task.ctx
	op := buildReadWriteOp(rec)
	rec.currentOp.Store(op)

	installed, err := submitCancellable(ctx, rec.sched, op, rec, func() {
		target := rec.currentOp.Load()
		rec.sched.submitOp(uring.NewCancel(target.UserData()), &jobRecord{kind: jobNonCancellable, sched: rec.sched})
	})
	if !installed {
		return 0, err
	}
	v, err := task.suspend()
	if err != nil {
		return 0, err
	}
	n, _ := v.(int)
	return n, nil
}

// ReadExactly reads until p is full, until EOF, or until cancellation,
// resubmitting on every short transfer (spec §4.2 "Exactly N").
func (f *FD) ReadExactly(task *Task, p []byte, offset int64) (int, error) {
	return f.readWrite(task, p, offset, true, Exactly)
}

// ReadUpto issues one read and returns whatever the kernel produced.
func (f *FD) ReadUpto(task *Task, p []byte, offset int64) (int, error) {
	return f.readWrite(task, p, offset, true, Upto)
}

// WriteExactly writes all of p, resubmitting on every short write.
func (f *FD) WriteExactly(task *Task, p []byte, offset int64) (int, error) {
	return f.readWrite(task, p, offset, false, Exactly)
}

// WriteUpto issues one write and returns whatever the kernel accepted.
func (f *FD) WriteUpto(task *Task, p []byte, offset int64) (int, error) {
	return f.readWrite(task, p, offset, false, Upto)
}

func (f *FD) readWrite(task *Task, p []byte, offset int64, isRead bool, mode lengthMode) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	rec := &jobRecord{
		kind:     jobReadWrite,
		ctx:      task.ctx,
		task:     task,
		sched:    f.sched,
		mode:     mode,
		fd:       f.Raw(),
		buf:      p,
		offset:   offset,
		seekable: f.Seekable(),
		isRead:   isRead,
		fixed:    false,
		fixedIdx: -1,
	}
	return submitReadWrite(task, rec)
}

// ReadFixed reads into a block borrowed from the fixed-buffer pool (or the
// fallback allocator when unregistered), copying up to len(p) bytes.
func (f *FD) ReadFixed(task *Task, p []byte, offset int64, mode lengthMode) (int, error) {
	return f.readWriteFixed(task, p, offset, true, mode)
}

// WriteFixed copies up to one block of p into a block borrowed from the
// fixed-buffer pool (or the fallback allocator when unregistered) and
// writes it; bytes of p beyond one block are not written.
func (f *FD) WriteFixed(task *Task, p []byte, offset int64, mode lengthMode) (int, error) {
	return f.readWriteFixed(task, p, offset, false, mode)
}

func (f *FD) readWriteFixed(task *Task, p []byte, offset int64, isRead bool, mode lengthMode) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	return f.sched.bufPool.WithChunk(task, func(chunkBuf []byte, index int) (int, error) {
		n := len(p)
		if n > len(chunkBuf) {
			n = len(chunkBuf)
		}
		window := chunkBuf[:n]
		if !isRead {
			copy(window, p[:n])
		}
		rec := &jobRecord{
			kind:     jobReadWrite,
			ctx:      task.ctx,
			task:     task,
			sched:    f.sched,
			mode:     mode,
			fd:       f.Raw(),
			buf:      window,
			offset:   offset,
			seekable: f.Seekable(),
			isRead:   isRead,
			fixed:    index >= 0,
			fixedIdx: index,
		}
		got, err := submitReadWrite(task, rec)
		if isRead && got > 0 {
			copy(p, window[:got])
		}
		return got, err
	})
}

// Connect issues a non-blocking connect(2) via the ring.
func (f *FD) Connect(task *Task, addr *unix.RawSockaddrAny, addrLen uint32) error {
	return submitGeneric(task, f.sched, &uring.Operation{
		Kind: uring.KindConnect, Fd: f.Raw(), Addr: addr, AddrLen: addrLen,
	})
}

// Accept waits for and accepts one connection, returning the new FD's raw
// descriptor (spec §9: "the uring binding exposes a typed accept ... CQE
// handler that yields a raw int FD explicitly").
func (f *FD) Accept(task *Task) (int, *unix.RawSockaddrAny, error) {
	addr := &unix.RawSockaddrAny{}
	op := &uring.Operation{Kind: uring.KindAccept, Fd: f.Raw(), Addr: addr, AddrLen: uint32(unsafe.Sizeof(*addr))}
	n, err := submitGenericResult(task, f.sched, op)
	if err != nil {
		return -1, nil, err
	}
	return n, addr, nil
}

// SendMsg sends p on a connected/datagram socket (spec §6 "send_msg",
// realized over io_uring's plain send opcode — see DESIGN.md).
func (f *FD) SendMsg(task *Task, p []byte, flags int32) (int, error) {
	return submitGenericResult(task, f.sched, &uring.Operation{Kind: uring.KindSend, Fd: f.Raw(), Buf: p, MsgFlags: flags})
}

// RecvMsg receives into p (spec §6 "recv_msg").
func (f *FD) RecvMsg(task *Task, p []byte, flags int32) (int, error) {
	return submitGenericResult(task, f.sched, &uring.Operation{Kind: uring.KindRecv, Fd: f.Raw(), Buf: p, MsgFlags: flags})
}

// Splice moves up to n bytes from fdIn to fdOut without copying through
// user space.
func Splice(task *Task, sched *Scheduler, fdIn int, offIn int64, fdOut int, offOut int64, n uint32) (int, error) {
	return submitGenericResult(task, sched, &uring.Operation{
		Kind: uring.KindSplice, SpliceFdIn: fdIn, SpliceOffIn: offIn,
		SpliceFdOut: fdOut, SpliceOffOut: offOut, SpliceLen: n,
	})
}

// AwaitReadable suspends task until fd is readable (POLLIN).
func (f *FD) AwaitReadable(task *Task) error {
	return submitGeneric(task, f.sched, &uring.Operation{Kind: uring.KindPollAdd, Fd: f.Raw(), PollMask: 0x1})
}

// AwaitWritable suspends task until fd is writable (POLLOUT).
func (f *FD) AwaitWritable(task *Task) error {
	return submitGeneric(task, f.sched, &uring.Operation{Kind: uring.KindPollAdd, Fd: f.Raw(), PollMask: 0x4})
}

// Openat2 opens path relative to dirfd with explicit resolve semantics.
func Openat2(task *Task, sched *Scheduler, dirfd int, path *byte, how *unix.OpenHow) (int, error) {
	return submitGenericResult(task, sched, &uring.Operation{Kind: uring.KindOpenat2, Dirfd: dirfd, Path: path, How: how})
}

// Noop submits a no-op SQE, useful for draining a full submission queue
// or exercising the scheduler loop in tests.
func Noop(task *Task, sched *Scheduler) error {
	return submitGeneric(task, sched, &uring.Operation{Kind: uring.KindNop})
}

// submitGeneric runs a generic cancellable job (spec §4.4 "generic
// cancellable jobs") to completion, discarding any numeric result.
func submitGeneric(task *Task, sched *Scheduler, op *uring.Operation) error {
	_, err := submitGenericResult(task, sched, op)
	return err
}

func submitGenericResult(task *Task, sched *Scheduler, op *uring.Operation) (int, error) {
	rec := &jobRecord{kind: jobGeneric, ctx: task.ctx, task: task, sched: sched}
	targetUD := func() uint64 { return op.UserData() }
	installed, err := submitCancellable(task.ctx, sched, op, rec, func() {
		sched.submitOp(uring.NewCancel(targetUD()), &jobRecord{kind: jobNonCancellable, sched: sched})
	})
	if !installed {
		return 0, err
	}
	v, err := task.suspend()
	if err != nil {
		return 0, err
	}
	n, _ := v.(int)
	return n, nil
}
