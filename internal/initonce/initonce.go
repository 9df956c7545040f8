// Package initonce performs the one process-global side effect this
// module takes on: ignoring SIGPIPE, the way eio's Linux backend does at
// startup, so a write to a peer that has closed its end returns EPIPE
// instead of killing the process.
package initonce

import (
	"os/signal"
	"sync"
	"syscall"
)

var once sync.Once

// IgnoreSIGPIPE ignores SIGPIPE process-wide. Safe to call repeatedly;
// only the first call has any effect.
func IgnoreSIGPIPE() {
	once.Do(func() {
		signal.Ignore(syscall.SIGPIPE)
	})
}
