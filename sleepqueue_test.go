//go:build linux

package fibio

import (
	"testing"
	"time"
)

func TestSleepQueueOrdersByDeadline(t *testing.T) {
	q := newSleepQueue()
	now := time.Now()
	q.Add(&Task{}, now.Add(3*time.Second))
	q.Add(&Task{}, now.Add(1*time.Second))
	q.Add(&Task{}, now.Add(2*time.Second))

	deadline, ok := q.NextDeadline()
	if !ok {
		t.Fatal("expected a next deadline")
	}
	if !deadline.Equal(now.Add(1 * time.Second)) {
		t.Fatalf("got %v, want now+1s", deadline)
	}
}

func TestSleepQueuePopDueRespectsDeadline(t *testing.T) {
	q := newSleepQueue()
	now := time.Now()
	q.Add(&Task{}, now.Add(time.Hour))

	if e := q.PopDue(now); e != nil {
		t.Fatal("nothing should be due yet")
	}
	if q.Len() != 1 {
		t.Fatalf("PopDue must not remove a not-yet-due entry, len=%d", q.Len())
	}
}

func TestSleepQueueRemoveIsNoopAfterFire(t *testing.T) {
	q := newSleepQueue()
	now := time.Now()
	e := q.Add(&Task{}, now.Add(-time.Second))

	fired := q.PopDue(now)
	if fired != e {
		t.Fatal("expected the already-due entry back")
	}
	// e.index is now -1; Remove must be a no-op, not a panic or corrupt heap.
	q.Remove(e)
	if q.Len() != 0 {
		t.Fatalf("queue should be empty, len=%d", q.Len())
	}
}

func TestSleepQueueRemoveMidQueue(t *testing.T) {
	q := newSleepQueue()
	now := time.Now()
	q.Add(&Task{}, now.Add(1*time.Second))
	mid := q.Add(&Task{}, now.Add(2*time.Second))
	q.Add(&Task{}, now.Add(3*time.Second))

	q.Remove(mid)
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}
	deadline, _ := q.NextDeadline()
	if !deadline.Equal(now.Add(1 * time.Second)) {
		t.Fatalf("next deadline = %v, want now+1s", deadline)
	}
}
