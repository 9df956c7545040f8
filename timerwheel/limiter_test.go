//go:build linux

package timerwheel_test

import (
	"testing"
	"time"

	"github.com/brickingsoft/fibio"
	"github.com/brickingsoft/fibio/timerwheel"
)

func TestLimiterAcquireWithinCapacityDoesNotBlock(t *testing.T) {
	_, err := fibio.Run(func(task *fibio.Task) (any, error) {
		l := timerwheel.NewLimiter(2, 5*time.Millisecond)
		if err := l.Acquire(task, task.Scheduler()); err != nil {
			t.Fatal(err)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestLimiterAcquireBlocksUntilReleasePacesAdmission(t *testing.T) {
	_, err := fibio.Run(func(task *fibio.Task) (any, error) {
		l := timerwheel.NewLimiter(1, 10*time.Millisecond)
		if err := l.Acquire(task, task.Scheduler()); err != nil {
			t.Fatal(err)
		}

		join := fibio.Fork(task, func(child *fibio.Task) (any, error) {
			return nil, l.Acquire(child, child.Scheduler())
		})

		l.Release()
		if _, jerr := join(); jerr != nil {
			t.Fatal(jerr)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
