//go:build linux

package fibio

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

// wakeup implements the eventfd + atomic-flag + mutex discipline of spec
// §4.5: a producer on any OS thread pushes a runnable, then writes the
// eventfd iff needWakeup was true, having first cleared the flag to
// coalesce concurrent wakeups. The owning thread arms the flag before
// blocking and disarms it on wake.
type wakeup struct {
	fd         int
	mu         sync.Mutex
	needWakeup atomic.Bool
}

func newWakeup() (*wakeup, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, errors.From(err)
	}
	return &wakeup{fd: fd}, nil
}

// Fd is the eventfd, polled by the scheduler's self-re-arming poll_add
// (see scheduler.go's armEventfdWatch).
func (w *wakeup) Fd() int { return w.fd }

// Arm sets need_wakeup = true. Call before blocking in Ring.Wait.
func (w *wakeup) Arm() { w.needWakeup.Store(true) }

// Disarm sets need_wakeup = false. Call immediately after waking.
func (w *wakeup) Disarm() { w.needWakeup.Store(false) }

// Armed reports the current need_wakeup value, for the owning thread's
// re-check-before-sleep step (spec §4.3 step 6).
func (w *wakeup) Armed() bool { return w.needWakeup.Load() }

// Signal is called by an external producer after pushing a runnable. It
// writes the eventfd only if need_wakeup was observed true, clearing the
// flag first so a second concurrent producer doesn't also write.
func (w *wakeup) Signal() {
	if !w.needWakeup.CompareAndSwap(true, false) {
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	w.mu.Lock()
	_, _ = unix.Write(w.fd, buf[:])
	w.mu.Unlock()
}

// Drain reads and discards one 8-byte counter value, acknowledging a wake.
func (w *wakeup) Drain() {
	var buf [8]byte
	_, _ = unix.Read(w.fd, buf[:])
}

func (w *wakeup) Close() error {
	return unix.Close(w.fd)
}
