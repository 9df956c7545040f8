//go:build linux

package fibio

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestWakeupSignalOnlyWritesWhenArmed(t *testing.T) {
	w, err := newWakeup()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// Not armed: Signal must not write.
	w.Signal()
	var buf [8]byte
	if _, err := unix.Read(w.fd, buf[:]); err == nil {
		t.Fatal("expected EAGAIN, eventfd should be empty when unarmed")
	}

	w.Arm()
	if !w.Armed() {
		t.Fatal("expected Armed() true after Arm()")
	}
	w.Signal()
	if w.Armed() {
		t.Fatal("Signal should clear need_wakeup")
	}
	n, err := unix.Read(w.fd, buf[:])
	if err != nil || n != 8 {
		t.Fatalf("expected one 8-byte counter write, got n=%d err=%v", n, err)
	}
}

func TestWakeupSignalCoalesces(t *testing.T) {
	w, err := newWakeup()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.Arm()
	w.Signal()
	w.Signal() // second call: already disarmed, must be a no-op, not a second write

	var buf [8]byte
	n, _ := unix.Read(w.fd, buf[:])
	if n != 8 {
		t.Fatalf("expected exactly one coalesced write, read n=%d", n)
	}
	if _, err := unix.Read(w.fd, buf[:]); err == nil {
		t.Fatal("expected only one write to have landed on the eventfd")
	}
}

func TestWakeupDisarm(t *testing.T) {
	w, err := newWakeup()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.Arm()
	w.Disarm()
	if w.Armed() {
		t.Fatal("expected Armed() false after Disarm()")
	}
}
