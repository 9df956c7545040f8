//go:build linux

package fibio

import "time"

// Cancel marks task's context cancelled with reason, synchronously
// running its installed cancel callback if one exists (spec §4.1, §5).
// For an in-flight I/O job, the callback submits an async-cancel SQE; the
// original operation's CQE still arrives later (possibly with
// -ECANCELED), handled by the completion dispatcher in scheduler.go.
func Cancel(task *Task, reason error) {
	task.ctx.Cancel(reason)
}

// First races a and b, each run as an independent fiber against the same
// scheduler; whichever finishes first wins and the loser is cancelled.
// This realizes spec §5's "racing the target operation against a
// timer-sleep in a first combinator."
func First(sched *Scheduler, a, b func(task *Task) (any, error)) (any, error) {
	type outcome struct {
		idx int
		val any
		err error
	}
	ch := make(chan outcome, 2)
	taskA := newTask(sched)
	taskB := newTask(sched)

	go func() {
		v, err := a(taskA)
		ch <- outcome{idx: 0, val: v, err: err}
	}()
	go func() {
		v, err := b(taskB)
		ch <- outcome{idx: 1, val: v, err: err}
	}()

	o := <-ch
	if o.idx == 0 {
		taskB.ctx.Cancel(ErrCanceled)
	} else {
		taskA.ctx.Cancel(ErrCanceled)
	}
	return o.val, o.err
}

// WithTimeout races fn against a timer that fires after d, cancelling fn
// if the timer wins.
func WithTimeout(sched *Scheduler, d time.Duration, fn func(task *Task) (any, error)) (any, error) {
	return First(sched, fn, func(task *Task) (any, error) {
		err := task.sched.sleepUntil(task, time.Now().Add(d))
		if err != nil {
			return nil, err
		}
		return nil, ErrTimeout
	})
}
