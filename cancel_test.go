//go:build linux

package fibio

import (
	"testing"
	"time"

	"github.com/brickingsoft/errors"
)

func TestCancelFailsAnInFlightSleep(t *testing.T) {
	_, err := Run(func(task *Task) (any, error) {
		child := newTask(task.sched)
		done := make(chan error, 1)
		go func() {
			done <- child.sched.sleepUntil(child, time.Now().Add(time.Hour))
		}()

		// Give the child a moment to register its sleep before cancelling it.
		time.Sleep(20 * time.Millisecond)
		Cancel(child, ErrCanceled)
		jerr := <-done
		if !errors.Is(jerr, ErrCanceled) {
			t.Fatalf("got %v, want ErrCanceled", jerr)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFirstReturnsWinnerAndCancelsLoser(t *testing.T) {
	v, err := Run(func(task *Task) (any, error) {
		return First(task.sched,
			func(fast *Task) (any, error) {
				if err := Noop(fast, fast.sched); err != nil {
					return nil, err
				}
				return "fast", nil
			},
			func(slow *Task) (any, error) {
				serr := slow.sched.sleepUntil(slow, time.Now().Add(time.Hour))
				return "slow", serr
			},
		)
	})
	if err != nil {
		t.Fatal(err)
	}
	if v != "fast" {
		t.Fatalf("got %v, want fast", v)
	}
}

func TestWithTimeoutFiresWhenFnNeverCompletes(t *testing.T) {
	_, err := Run(func(task *Task) (any, error) {
		return WithTimeout(task.sched, 20*time.Millisecond, func(slow *Task) (any, error) {
			serr := slow.sched.sleepUntil(slow, time.Now().Add(time.Hour))
			return nil, serr
		})
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestWithTimeoutReturnsFnResultWhenItWinsTheRace(t *testing.T) {
	v, err := Run(func(task *Task) (any, error) {
		return WithTimeout(task.sched, time.Hour, func(fast *Task) (any, error) {
			if err := Noop(fast, fast.sched); err != nil {
				return nil, err
			}
			return "fast-result", nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if v != "fast-result" {
		t.Fatalf("got %v, want fast-result", v)
	}
}
