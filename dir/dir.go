//go:build linux

// Package dir is a directory-handle collaborator over fibio's core
// contract: every path it opens is resolved relative to a held directory
// FD via openat2, the way eio's Eio_unix directory resolution works,
// instead of trusting ambient process-wide relative paths.
package dir

import (
	"github.com/brickingsoft/fibio"
	"golang.org/x/sys/unix"
)

// Dir is a directory handle: an owned FD that every relative Open/Mkdirat
// call resolves against.
type Dir struct {
	fd *fibio.FD
}

// Open opens path (an absolute or process-relative path) as a directory
// handle, synchronously — directory opens aren't on fibio's hot read/write
// path, so this mirrors how the core itself opens its own eventfd/ring.
func Open(sched *fibio.Scheduler, sw *fibio.Switch, path string) (*Dir, error) {
	raw, err := unix.Open(path, unix.O_DIRECTORY|unix.O_CLOEXEC|unix.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return &Dir{fd: fibio.NewFD(sched, sw, raw, true)}, nil
}

// Openat2 opens name relative to d using how, through the ring (spec's
// generic-cancellable openat2 job), returning the new file as an FD scoped
// to sw.
func (d *Dir) Openat2(task *fibio.Task, sw *fibio.Switch, name string, how *unix.OpenHow) (*fibio.FD, error) {
	pathBytes := append([]byte(name), 0)
	raw, err := fibio.Openat2(task, d.fd.SchedulerOf(), d.fd.Raw(), &pathBytes[0], how)
	if err != nil {
		return nil, err
	}
	return fibio.NewFD(d.fd.SchedulerOf(), sw, raw, true), nil
}

// Mkdirat creates a directory named name relative to d. mkdirat has no
// io_uring opcode, so this is a direct blocking syscall, same as eio's own
// treatment of directory-creation metadata ops.
func (d *Dir) Mkdirat(name string, mode uint32) error {
	return unix.Mkdirat(d.fd.Raw(), name, mode)
}

// Close closes the directory handle.
func (d *Dir) Close(task *fibio.Task) error {
	return d.fd.Close(task)
}
