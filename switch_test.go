//go:build linux

package fibio

import "testing"

func TestSwitchCloseRunsHooksMostRecentFirst(t *testing.T) {
	sw := NewSwitch()
	var order []int
	sw.OnRelease(func() { order = append(order, 1) })
	sw.OnRelease(func() { order = append(order, 2) })
	sw.OnRelease(func() { order = append(order, 3) })

	if err := sw.Close(); err != nil {
		t.Fatal(err)
	}
	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestSwitchDoubleCloseReturnsErrClosed(t *testing.T) {
	sw := NewSwitch()
	if err := sw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sw.Close(); !IsClosed(err) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSwitchRemovableHookRemove(t *testing.T) {
	sw := NewSwitch()
	ran := false
	hook := sw.OnReleaseCancellable(func() { ran = true }, func() {})
	hook.Remove()

	if err := sw.Close(); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Fatal("removed hook should not run")
	}
}

func TestSwitchCancelRunsCancelableHooksOnly(t *testing.T) {
	sw := NewSwitch()
	var cancelRan, releaseRan bool
	sw.OnRelease(func() { releaseRan = true })
	sw.OnReleaseCancellable(func() {}, func() { cancelRan = true })

	sw.Cancel(ErrCanceled)
	if !cancelRan {
		t.Fatal("cancel callback should have run")
	}
	if releaseRan {
		t.Fatal("plain release hook must not run on Cancel")
	}
	if err := sw.Check(); err != ErrCanceled {
		t.Fatalf("Check() = %v, want ErrCanceled", err)
	}
}
