//go:build linux

package socket

import (
	"unsafe"

	"github.com/brickingsoft/fibio"
	"golang.org/x/sys/unix"
)

// UnixListener is a bound, listening Unix domain socket.
type UnixListener struct {
	fd   *fibio.FD
	path string
}

// ListenUnix creates, binds, and listens on a Unix domain socket at path.
func ListenUnix(sched *fibio.Scheduler, sw *fibio.Switch, path string) (*UnixListener, error) {
	raw, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(raw, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(raw)
		return nil, err
	}
	if err := unix.Listen(raw, unix.SOMAXCONN); err != nil {
		_ = unix.Close(raw)
		return nil, err
	}
	return &UnixListener{fd: fibio.NewFD(sched, sw, raw, true), path: path}, nil
}

// Accept suspends task until a connection arrives.
func (ln *UnixListener) Accept(task *fibio.Task, sw *fibio.Switch) (*UnixConn, error) {
	raw, _, err := ln.fd.Accept(task)
	if err != nil {
		return nil, err
	}
	return &UnixConn{fd: fibio.NewFD(ln.fd.SchedulerOf(), sw, raw, true)}, nil
}

// Close closes the listener and unlinks the socket path.
func (ln *UnixListener) Close(task *fibio.Task) error {
	err := ln.fd.Close(task)
	_ = unix.Unlink(ln.path)
	return err
}

// UnixConn is an accepted or dialed Unix domain connection.
type UnixConn struct {
	fd *fibio.FD
}

// DialUnix connects to a Unix domain socket at path.
func DialUnix(task *fibio.Task, sched *fibio.Scheduler, sw *fibio.Switch, path string) (*UnixConn, error) {
	raw, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	fd := fibio.NewFD(sched, sw, raw, true)

	sa := &unix.SockaddrUnix{Name: path}
	rsa, rsaLen := unixSockaddrToRaw(sa)
	if err := fd.Connect(task, rsa, rsaLen); err != nil {
		_ = fd.Close(task)
		return nil, err
	}
	return &UnixConn{fd: fd}, nil
}

// Read reads up to len(p) bytes.
func (c *UnixConn) Read(task *fibio.Task, p []byte) (int, error) {
	return c.fd.ReadUpto(task, p, -1)
}

// Write writes all of p.
func (c *UnixConn) Write(task *fibio.Task, p []byte) (int, error) {
	return c.fd.WriteExactly(task, p, -1)
}

// FD exposes the underlying handle for collaborators (iocopy, tls).
func (c *UnixConn) FD() *fibio.FD { return c.fd }

// Close closes the connection.
func (c *UnixConn) Close(task *fibio.Task) error { return c.fd.Close(task) }

func unixSockaddrToRaw(sa *unix.SockaddrUnix) (*unix.RawSockaddrAny, uint32) {
	raw := &unix.RawSockaddrUnix{Family: unix.AF_UNIX}
	n := 0
	for n < len(sa.Name) {
		raw.Path[n] = int8(sa.Name[n])
		n++
	}
	size := uint32(2 + n + 1)
	any := (*unix.RawSockaddrAny)(unsafe.Pointer(raw))
	return any, size
}
