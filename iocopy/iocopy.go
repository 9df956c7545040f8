//go:build linux

// Package iocopy is the "high-level copy helpers" collaborator named in
// spec.md §1, implementing spec.md §8 scenario 3: copy via splice(2) when
// both ends support it, falling back to a fixed-chunk read/write loop when
// the kernel returns EINVAL (one or both file descriptors aren't splice
// capable — a pipe is required on at least one side by the real splice(2)
// syscall, which this module's plain-file/socket FDs generally aren't).
package iocopy

import (
	"golang.org/x/sys/unix"

	"github.com/brickingsoft/fibio"
)

const fallbackChunkSize = 32 * 1024

// Copy copies from src to dst, preferring splice and falling back to a
// read/write loop through a temporary buffer on EINVAL.
func Copy(task *fibio.Task, sched *fibio.Scheduler, dst, src *fibio.FD) (int64, error) {
	n, err := spliceAll(task, sched, dst, src)
	if err == nil {
		return n, nil
	}
	var errno unix.Errno
	if !isEINVAL(err, &errno) {
		return n, err
	}
	more, err := copyLoop(task, dst, src)
	return n + more, err
}

func isEINVAL(err error, errno *unix.Errno) bool {
	for {
		if e, ok := err.(unix.Errno); ok {
			*errno = e
			return e == unix.EINVAL
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		unwrapped := u.Unwrap()
		if unwrapped == nil {
			return false
		}
		err = unwrapped
	}
}

func spliceAll(task *fibio.Task, sched *fibio.Scheduler, dst, src *fibio.FD) (int64, error) {
	var total int64
	for {
		n, err := fibio.Splice(task, sched, src.Raw(), -1, dst.Raw(), -1, 1<<20)
		if n > 0 {
			total += int64(n)
		}
		if err != nil {
			if fibio.IsEOF(err) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

func copyLoop(task *fibio.Task, dst, src *fibio.FD) (int64, error) {
	buf := make([]byte, fallbackChunkSize)
	var total int64
	for {
		n, err := src.ReadUpto(task, buf, -1)
		if n > 0 {
			if _, werr := dst.WriteExactly(task, buf[:n], -1); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if fibio.IsEOF(err) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}
