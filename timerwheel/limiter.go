//go:build linux

package timerwheel

import (
	"sync"
	"time"

	"github.com/brickingsoft/fibio"
)

// Limiter is a time-sliced admission limiter: at most N units may be
// outstanding at once, and a unit freed by Release becomes available
// again only after a minimum slice has elapsed, the way this codebase's
// own timeslimiter paces admission rather than letting a burst of
// releases immediately refill capacity.
type Limiter struct {
	mu        sync.Mutex
	capacity  int
	inUse     int
	slice     time.Duration
	waiters   []*fibio.Task
}

// NewLimiter creates a Limiter admitting at most capacity concurrent
// units, with a minimum slice duration enforced between a unit's release
// and its next admission.
func NewLimiter(capacity int, slice time.Duration) *Limiter {
	return &Limiter{capacity: capacity, slice: slice}
}

// Acquire suspends task until a unit is available.
func (l *Limiter) Acquire(task *fibio.Task, sched *fibio.Scheduler) error {
	for {
		l.mu.Lock()
		if l.inUse < l.capacity {
			l.inUse++
			l.mu.Unlock()
			return nil
		}
		l.waiters = append(l.waiters, task)
		l.mu.Unlock()

		// Release never wakes waiters, so Acquire polls: park for one
		// slice, then re-check capacity.
		if err := sched.SleepUntil(task, time.Now().Add(l.slice)); err != nil {
			l.removeWaiter(task)
			return err
		}
	}
}

func (l *Limiter) removeWaiter(task *fibio.Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, t := range l.waiters {
		if t == task {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

// Release frees one unit, honoring the minimum slice before the next
// Acquire can succeed by scheduling the decrement after l.slice.
func (l *Limiter) Release() {
	time.AfterFunc(l.slice, func() {
		l.mu.Lock()
		l.inUse--
		l.mu.Unlock()
	})
}
