// Package queue implements a Michael-Scott style unbounded multi-producer,
// single-consumer lock-free FIFO, plus a head-push operation restricted to
// the single consumer (the scheduler's owning OS thread). Both operations
// are wait-free under the contention levels a scheduler run queue sees in
// practice: many producer threads enqueueing, exactly one thread dequeueing
// and occasionally pushing straight back onto the head.
package queue

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/brickingsoft/fibio/internal/tagged"
)

func New[E any]() *Queue[E] {
	q := &Queue[E]{
		nds: sync.Pool{
			New: func() interface{} {
				return &node[E]{}
			},
		},
	}
	n := q.acquireNode()
	ptr := tagged.PointerPack[node[E]](unsafe.Pointer(n), 0)
	q.head.Store(uintptr(ptr))
	q.tail.Store(uintptr(ptr))
	return q
}

type node[E any] struct {
	entry *E
	next  atomic.Uintptr
}

// Queue is a multi-producer, single-consumer lock-free FIFO of *E.
type Queue[E any] struct {
	head atomic.Uintptr
	tail atomic.Uintptr
	len  atomic.Int64
	ver  atomic.Uintptr
	nds  sync.Pool
}

func (q *Queue[E]) acquireNode() *node[E] {
	return q.nds.Get().(*node[E])
}

func (q *Queue[E]) releaseNode(n *node[E]) {
	n.entry = nil
	n.next.Store(0)
	q.nds.Put(n)
}

// Enqueue appends entry at the tail. Safe from any number of producers.
func (q *Queue[E]) Enqueue(entry *E) {
	n := q.acquireNode()
	n.entry = entry
	np := tagged.PointerPack[node[E]](unsafe.Pointer(n), q.ver.Add(1))
retry:
	var (
		tailPtr = q.tail.Load()
		tail    = tagged.Pointer[node[E]](tailPtr).Value()
		nextPtr = tail.next.Load()
	)
	if tailPtr == q.tail.Load() {
		if nextPtr == 0 {
			if tail.next.CompareAndSwap(nextPtr, uintptr(np)) {
				q.tail.CompareAndSwap(tailPtr, uintptr(np))
				q.len.Add(1)
				return
			}
		} else {
			q.tail.CompareAndSwap(tailPtr, nextPtr)
		}
	}
	goto retry
}

// EnqueueHead pushes entry so it is the next value Dequeue returns. It must
// only ever be called by the single consumer goroutine/thread — it is not
// safe alongside a concurrent Dequeue from a different thread, matching
// spec.md's "head-push (only from owning thread)" run-queue contract.
func (q *Queue[E]) EnqueueHead(entry *E) {
	n := q.acquireNode()
	n.entry = entry
	np := tagged.PointerPack[node[E]](unsafe.Pointer(n), q.ver.Add(1))
retry:
	headPtr := q.head.Load()
	head := tagged.Pointer[node[E]](headPtr).Value()
	nextPtr := head.next.Load()
	n.next.Store(nextPtr)
	if head.next.CompareAndSwap(nextPtr, uintptr(np)) {
		if nextPtr == 0 {
			// queue was empty; the sentinel's next is now np, and
			// Dequeue treats head==tail as empty, so advance tail too.
			q.tail.CompareAndSwap(headPtr, uintptr(np))
		}
		q.len.Add(1)
		return
	}
	goto retry
}

// Dequeue removes and returns the front entry, or nil if empty. Must only
// ever be called by the single consumer.
func (q *Queue[E]) Dequeue() *E {
retry:
	var (
		headPtr = q.head.Load()
		tailPtr = q.tail.Load()
		nextPtr = tagged.Pointer[node[E]](headPtr).Value().next.Load()
	)
	if headPtr == q.head.Load() {
		if headPtr == tailPtr {
			if nextPtr == 0 {
				return nil
			}
			q.tail.CompareAndSwap(tailPtr, nextPtr)
		} else {
			entry := tagged.Pointer[node[E]](nextPtr).Value().entry
			if q.head.CompareAndSwap(headPtr, nextPtr) {
				head := tagged.Pointer[node[E]](headPtr).Value()
				q.releaseNode(head)
				q.len.Add(-1)
				return entry
			}
		}
	}
	goto retry
}

// Length returns the approximate number of queued entries.
func (q *Queue[E]) Length() int64 {
	return q.len.Load()
}
