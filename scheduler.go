//go:build linux

package fibio

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/brickingsoft/fibio/internal/kernel"
	"github.com/brickingsoft/fibio/internal/queue"
	"github.com/brickingsoft/fibio/internal/uring"
)

// ctrlKind distinguishes the four requests a fiber goroutine can hand off
// to the scheduler's owning loop goroutine. Spec §5 says the ring and the
// sleep queue are "owned by one thread and accessed only from there" — in
// this goroutine-per-fiber realization (§4.1a) that ownership is enforced
// by routing every mutation through this queue instead of a mutex, so the
// loop goroutine is the only code that ever touches the ring or the
// sleepQueue heap.
type ctrlKind uint8

const (
	ctrlSubmit ctrlKind = iota
	ctrlSleepAdd
	ctrlSleepCancel
	// ctrlRootDone decrements the synthetic in-flight count runTopLevel
	// holds open while the top-level fiber is still running, so the loop
	// doesn't exit before the fiber that's driving it even starts.
	ctrlRootDone
)

type ctrlMsg struct {
	kind     ctrlKind
	op       *uring.Operation
	task     *Task
	deadline time.Time
	entry    *sleepEntry
	entryCh  chan *sleepEntry
}

// Scheduler is the per-OS-thread state named in spec §3: ring, fixed-buffer
// region, pending-SQE FIFO, buffer waiter FIFO (inside bufPool), run queue,
// eventfd, sleep queue, and in-flight counter.
type Scheduler struct {
	ring    *uring.Ring
	bufPool *bufferPool
	runQ    *runQueue
	sleepQ  *sleepQueue
	wake    *wakeup
	ctrlQ   *queue.Queue[ctrlMsg]
	opts    *Options

	pendingSQE []*uring.Operation // owning-thread-only; ring-full retry FIFO
	inFlight   int

	wakeEntry *ctrlMsg // keeps the eventfd-watch job's record alive

	// retained anchors fire-and-forget Operations that have no suspended
	// goroutine holding them on its stack (the async-cancel commands
	// submitOp fires from a cancel callback): Ring.Prepare stores the
	// *Operation as a bare kernel user_data uintptr, invisible to the GC,
	// so something else must keep the Go pointer reachable until the CQE
	// is dispatched. Entries are removed in onCQE.
	retained map[*uring.Operation]struct{}
}

// jobKind tags how completion dispatch should treat a CQE (spec §4.4).
type jobKind uint8

const (
	jobReadWrite jobKind = iota
	jobGeneric
	jobNonCancellable
	jobWithCompletionFn
	jobEventfdWatch
)

// jobRecord is the "I/O job" of spec §3, attached to an Operation's Tag so
// the completion dispatcher (onCQE) can find it again.
type jobRecord struct {
	kind  jobKind
	ctx   *Context // nil for non-cancellable jobs
	task  *Task    // nil for fire-and-forget jobs (async-cancel commands)
	sched *Scheduler

	// read/write retry state (§4.2)
	mode     lengthMode
	fd       int
	buf      []byte
	totalN   int
	offset   int64
	seekable bool
	isRead   bool
	fixed    bool
	fixedIdx int

	// currentOp is the Operation presently in flight for this job. It is
	// written by the submitting fiber goroutine for the first attempt and
	// by the owning loop goroutine for each retry, and read by the job's
	// cancel callback, which may run on any
	// goroutine — hence the atomic rather than a plain field. A cancel
	// racing a retry may target an already-completed op; the kernel's
	// ENOENT response for that case is a documented no-op (spec §5).
	currentOp atomic.Pointer[uring.Operation]

	onComplete func(n int, err error)
}

// lengthMode selects the short-transfer retry policy for read/write jobs.
type lengthMode uint8

const (
	// Exactly drives automatic resubmission on short transfers.
	Exactly lengthMode = iota
	// Upto returns whatever the kernel produced.
	Upto
)

func newScheduler(opts *Options) (*Scheduler, error) {
	r, err := uring.Open(uring.Options{
		Entries:     opts.queueDepth,
		BufferSize:  opts.blockSize,
		BufferCount: opts.nBlocks,
	})
	if err != nil {
		return nil, err
	}
	w, err := newWakeup()
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	s := &Scheduler{
		ring:     r,
		bufPool:  newBufferPool(opts.blockSize, opts.nBlocks, r.BufferRegistered()),
		runQ:     newRunQueue(),
		sleepQ:   newSleepQueue(),
		wake:     w,
		ctrlQ:    queue.New[ctrlMsg](),
		opts:     opts,
		retained: make(map[*uring.Operation]struct{}),
	}
	s.armEventfdWatch()
	return s, nil
}

// armEventfdWatch prepares the persistent poll_add on the eventfd that
// lets a cross-thread write break Ring.Wait out of its blocking call
// (spec §4.5: "A fiber within the scheduler monitors the eventfd"). It is
// internal infrastructure, not user work, so it never touches inFlight —
// spec §4.3 step 5 says only real outstanding user operations keep the
// loop alive, and this poll is re-armed for as long as the scheduler runs.
//
// s.wakeEntry holds the op/rec pair so the GC can't reclaim them between
// Prepare returning and the watch's CQE arriving: SetData stores op as a
// bare kernel user_data uintptr, invisible to the collector, and nothing
// else keeps op (and, through its Tag, rec) reachable on a re-arm.
func (s *Scheduler) armEventfdWatch() {
	op := &uring.Operation{Kind: uring.KindPollAdd, Fd: s.wake.Fd(), PollMask: 0x1} // POLLIN
	rec := &jobRecord{kind: jobEventfdWatch, sched: s}
	op.Tag = unsafe.Pointer(rec)
	s.wakeEntry = &ctrlMsg{op: op}
	if !s.ring.Prepare(op) {
		s.pendingSQE = append(s.pendingSQE, op)
	}
}

// probeKernel checks kernel version and, if io_uring setup would fail with
// ENOSYS, invokes the configured fallback instead of returning a scheduler
// that can never make progress (spec §6, §8 scenario 6).
func probeKernel(opts *Options) error {
	if kernel.AtLeast(5, 11, 0) {
		return nil
	}
	if opts.fallback != nil {
		opts.fallback(ErrRingUnavailable)
		return ErrRingUnavailable
	}
	return ErrRingUnavailable
}

func (s *Scheduler) close() error {
	_ = s.wake.Close()
	return s.ring.Close()
}

// holdOpen bumps the in-flight count by one for work the ring itself
// doesn't know about — namely the top-level fiber goroutine, which the
// loop must outlive even before it submits its first operation. The
// caller releases the hold by enqueuing a ctrlRootDone message.
func (s *Scheduler) holdOpen() {
	s.inFlight++
}

// trackInFlight accounts for an op that was just handed to the ring.
// The eventfd watch is excluded (see armEventfdWatch); everything else
// counts toward the termination gate. A fire-and-forget async-cancel
// command (jobNonCancellable with no owning task — see io.go's cancel
// callbacks) has no suspended goroutine anchoring it, so it's additionally
// retained until onCQE removes it, matching the teacher's sync.Pool-based
// retention of in-flight Operations (pkg/ring/ring.go).
func (s *Scheduler) trackInFlight(op *uring.Operation) {
	rec := (*jobRecord)(op.Tag)
	if rec.kind == jobEventfdWatch {
		return
	}
	s.inFlight++
	if rec.kind == jobNonCancellable && rec.task == nil {
		s.retained[op] = struct{}{}
	}
}

// tryPrepareInline attempts Prepare directly; callable only from the
// owning loop goroutine (drainCtrl, resubmission during dispatch, or
// construction).
func (s *Scheduler) tryPrepareInline(op *uring.Operation) {
	if s.ring.Prepare(op) {
		s.trackInFlight(op)
		return
	}
	s.pendingSQE = append(s.pendingSQE, op)
}

func (s *Scheduler) drainPendingOne() {
	if len(s.pendingSQE) == 0 {
		return
	}
	op := s.pendingSQE[0]
	if s.ring.Prepare(op) {
		s.pendingSQE = s.pendingSQE[1:]
		s.trackInFlight(op)
	}
}

// submitOp is the hand-off any fiber goroutine uses to get op onto the
// ring: it never touches the ring directly, it only enqueues onto ctrlQ
// and wakes the owning loop.
func (s *Scheduler) submitOp(op *uring.Operation, rec *jobRecord) {
	op.Tag = unsafe.Pointer(rec)
	s.ctrlQ.Enqueue(&ctrlMsg{kind: ctrlSubmit, op: op})
	s.wake.Signal()
}

// submitCancellable implements the submission protocol of spec §4.1:
// check for an existing cancellation, install the cancel callback, then
// hand the op to the ring. installed=false means the context was already
// cancelled and op was never submitted.
func submitCancellable(ctx *Context, s *Scheduler, op *uring.Operation, rec *jobRecord, onCancel func()) (installed bool, err error) {
	if err = ctx.GetError(); err != nil {
		return false, err
	}
	if !ctx.SetCancelFn(onCancel) {
		return false, ctx.GetError()
	}
	s.submitOp(op, rec)
	return true, nil
}

// closeAsync submits a non-cancellable close SQE and suspends task until
// it completes (spec §3: "closing calls into the ring").
func (s *Scheduler) closeAsync(task *Task, fd int) error {
	op := &uring.Operation{Kind: uring.KindClose, Fd: fd}
	rec := &jobRecord{kind: jobNonCancellable, task: task, sched: s}
	s.submitOp(op, rec)
	_, err := task.suspend()
	return err
}

// SleepUntil is the sleep_until fiber primitive (spec §6), exported for
// external collaborators (timerwheel) that need to suspend a fiber until a
// deadline without going through FD/read/write.
func (s *Scheduler) SleepUntil(task *Task, deadline time.Time) error {
	return s.sleepUntil(task, deadline)
}

// sleepUntil is the sleep_until fiber primitive (spec §6), suspending task
// until deadline or cancellation, whichever comes first.
func (s *Scheduler) sleepUntil(task *Task, deadline time.Time) error {
	ctx := task.ctx
	if err := ctx.GetError(); err != nil {
		return err
	}
	ch := make(chan *sleepEntry, 1)
	s.ctrlQ.Enqueue(&ctrlMsg{kind: ctrlSleepAdd, task: task, deadline: deadline, entryCh: ch})
	s.wake.Signal()
	entry := <-ch

	installed := ctx.SetCancelFn(func() {
		s.ctrlQ.Enqueue(&ctrlMsg{kind: ctrlSleepCancel, entry: entry})
		s.wake.Signal()
	})
	if !installed {
		s.ctrlQ.Enqueue(&ctrlMsg{kind: ctrlSleepCancel, entry: entry})
		s.wake.Signal()
		return ctx.GetError()
	}
	_, err := task.suspend()
	return err
}

// drainCtrl processes every ctrl message currently queued. Returns true if
// it did any work, so the caller's loop can re-check the run queue.
func (s *Scheduler) drainCtrl() bool {
	did := false
	for {
		msg := s.ctrlQ.Dequeue()
		if msg == nil {
			return did
		}
		did = true
		switch msg.kind {
		case ctrlSubmit:
			s.tryPrepareInline(msg.op)
		case ctrlSleepAdd:
			entry := s.sleepQ.Add(msg.task, msg.deadline)
			msg.entryCh <- entry
		case ctrlSleepCancel:
			if msg.entry.index >= 0 {
				s.sleepQ.Remove(msg.entry)
				task := msg.entry.task
				task.ctx.ClearCancelFn()
				task.resumeCh <- result{err: task.ctx.GetError()}
			}
		case ctrlRootDone:
			s.inFlight--
		}
	}
}

// computeTimeout returns the duration until the next sleep-queue deadline,
// or -1 (infinite) if none is pending.
func (s *Scheduler) computeTimeout() time.Duration {
	deadline, ok := s.sleepQ.NextDeadline()
	if !ok {
		return -1
	}
	d := time.Until(deadline)
	if d < 0 {
		return 0
	}
	return d
}

// onCQE is the completion dispatcher of spec §4.4, invoked once per CQE
// drained by Ring.Peek.
func (s *Scheduler) onCQE(op *uring.Operation) {
	rec := (*jobRecord)(op.Tag)
	if rec.kind != jobEventfdWatch {
		s.inFlight--
	}
	defer s.drainPendingOne()

	switch rec.kind {
	case jobEventfdWatch:
		s.wake.Drain()
		s.armEventfdWatch()
	case jobNonCancellable:
		if rec.task == nil {
			delete(s.retained, op)
		} else {
			s.resumeOrFail(rec.task, op.ResultN, op.ResultErr)
		}
	case jobWithCompletionFn:
		if rec.ctx != nil {
			rec.ctx.ClearCancelFn()
		}
		rec.onComplete(op.ResultN, op.ResultErr)
	case jobGeneric:
		rec.ctx.ClearCancelFn()
		if reason := rec.ctx.GetError(); reason != nil {
			s.resumeOrFail(rec.task, 0, reason)
			return
		}
		s.resumeOrFail(rec.task, op.ResultN, op.ResultErr)
	case jobReadWrite:
		s.dispatchReadWrite(op, rec)
	}
}

func (s *Scheduler) resumeOrFail(task *Task, n int, err error) {
	if err != nil {
		task.resumeCh <- result{err: err}
		return
	}
	task.resumeCh <- result{value: n}
}

// loop is the scheduler loop of spec §4.3. It runs on the OS thread that
// called Run (or the thread RunRemote spawned) and never returns until both queues are empty,
// nothing is in flight, and no timer is pending.
func (s *Scheduler) loop() {
	for {
		if r := s.runQ.Pop(); r != nil {
			dispatch(r)
			continue
		}
		if e := s.sleepQ.PopDue(time.Now()); e != nil {
			e.task.ctx.ClearCancelFn()
			e.task.resumeCh <- result{}
			continue
		}
		if s.drainCtrl() {
			continue
		}
		if n := s.ring.Peek(s.onCQE); n > 0 {
			continue
		}

		timeout := s.computeTimeout()
		_, _ = s.ring.Submit()

		if timeout < 0 && s.inFlight == 0 {
			if s.bufPool.WaiterCount() != 0 {
				panic(ErrSchedulerMisuse)
			}
			return
		}

		s.wake.Arm()
		if s.runQ.Len() > 0 || s.ctrlQ.Length() > 0 {
			s.wake.Disarm()
			continue
		}
		_ = s.ring.Wait(timeout)
		s.wake.Disarm()
	}
}
