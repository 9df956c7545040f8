//go:build linux

// Package timerwheel is the "priority-queue-of-deadlines" collaborator
// named in spec.md §1: a heap of scheduled fibers, distinct from the
// core's own sleep queue, for callers that want to manage many deadlines
// as a single admission-controlled set (e.g. per-connection idle timeouts
// in a server with a connection cap) rather than one sleep_until call per
// fiber. It consumes only the core's sleep_until and cancellation
// primitives — it never touches the ring directly.
package timerwheel

import (
	"container/heap"
	"sync"
	"time"

	"github.com/brickingsoft/fibio"
)

type entry struct {
	deadline time.Time
	task     *fibio.Task
	fired    bool
	index    int
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x any)         { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Wheel holds a set of scheduled deadlines and, optionally, a rate limit
// on how many may be admitted concurrently.
type Wheel struct {
	mu      sync.Mutex
	h       entryHeap
	limiter *Limiter
}

// New creates a Wheel. limiter may be nil for unlimited admission.
func New(limiter *Limiter) *Wheel {
	return &Wheel{limiter: limiter}
}

// Schedule registers a deadline for task, returning a cancel function the
// caller should invoke if the deadline is no longer needed (e.g. the
// operation it was guarding finished first).
func (w *Wheel) Schedule(task *fibio.Task, deadline time.Time) (cancel func()) {
	w.mu.Lock()
	e := &entry{deadline: deadline, task: task}
	heap.Push(&w.h, e)
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if e.index >= 0 {
			heap.Remove(&w.h, e.index)
		}
	}
}

// Admit blocks the calling fiber (sleeping one limiter slice at a time via
// sleep_until) until the wheel's rate limiter has capacity, or
// returns immediately if no limiter is configured.
func (w *Wheel) Admit(task *fibio.Task, sched *fibio.Scheduler) error {
	if w.limiter == nil {
		return nil
	}
	return w.limiter.Acquire(task, sched)
}

// Release returns one unit of admitted capacity, for callers that called
// Admit and have now finished the work it was gating.
func (w *Wheel) Release() {
	if w.limiter != nil {
		w.limiter.Release()
	}
}

// Due pops and returns every entry whose deadline has passed as of now.
func (w *Wheel) Due(now time.Time) []*fibio.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	var tasks []*fibio.Task
	for len(w.h) > 0 && !w.h[0].deadline.After(now) {
		e := heap.Pop(&w.h).(*entry)
		tasks = append(tasks, e.task)
	}
	return tasks
}
