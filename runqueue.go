//go:build linux

package fibio

import "github.com/brickingsoft/fibio/internal/queue"

// runnableKind distinguishes Resume(task, value) from Fail(task, err), the
// two Runnable shapes named in spec §3.
type runnableKind uint8

const (
	runnableResume runnableKind = iota
	runnableFail
)

// Runnable is a continuation waiting to run: either a value to resume a
// task with, or an error to fail it with.
type Runnable struct {
	kind  runnableKind
	task  *Task
	value any
	err   error
}

// resumeRunnable builds a Runnable that resumes task with value.
func resumeRunnable(task *Task, value any) *Runnable {
	return &Runnable{kind: runnableResume, task: task, value: value}
}

// failRunnable builds a Runnable that fails task with err.
func failRunnable(task *Task, err error) *Runnable {
	return &Runnable{kind: runnableFail, task: task, err: err}
}

// runQueue is the multi-producer, single-consumer lock-free FIFO of
// runnables named in spec §3, with head-push (PushFront) restricted to the
// owning thread. The scheduler itself only appends with Push.
type runQueue struct {
	q *queue.Queue[Runnable]
}

func newRunQueue() *runQueue {
	return &runQueue{q: queue.New[Runnable]()}
}

// Push enqueues r at the tail. Safe from any goroutine.
func (rq *runQueue) Push(r *Runnable) { rq.q.Enqueue(r) }

// PushFront enqueues r so it is the next value Pop returns. Owning-thread
// only, per spec §3's run-queue contract.
func (rq *runQueue) PushFront(r *Runnable) { rq.q.EnqueueHead(r) }

// Pop removes and returns the front runnable, or nil if empty.
func (rq *runQueue) Pop() *Runnable { return rq.q.Dequeue() }

// Len reports the approximate queue length.
func (rq *runQueue) Len() int64 { return rq.q.Length() }

// dispatch delivers r to its task by sending on the task's resume channel.
// Called only from the scheduler's dispatch step (spec §4.3 step 1), so the
// "resumption happens on the scheduler-owning OS thread" invariant (§4.1a)
// holds regardless of which goroutine originally pushed r.
func dispatch(r *Runnable) {
	switch r.kind {
	case runnableResume:
		r.task.resumeCh <- result{value: r.value}
	case runnableFail:
		r.task.resumeCh <- result{err: r.err}
	}
}
