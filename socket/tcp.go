//go:build linux

// Package socket is a minimal TCP/UDP/Unix socket collaborator over
// fibio's core accept/connect/read/write contract. It deliberately skips
// this codebase's own enrichments beyond the distilled spec's scope —
// TLS, multishot accept, zero-copy send — leaving those to the tls
// collaborator and to callers who need them.
package socket

import (
	"net"
	"unsafe"

	"github.com/brickingsoft/fibio"
	"golang.org/x/sys/unix"
)

// TCPListener is a bound, listening TCP socket.
type TCPListener struct {
	fd   *fibio.FD
	addr *net.TCPAddr
}

// ListenTCP creates, binds, and listens on addr, with SO_REUSEADDR set the
// way this codebase's own ListenConfig defaults do.
func ListenTCP(sched *fibio.Scheduler, sw *fibio.Switch, addr *net.TCPAddr) (*TCPListener, error) {
	domain := unix.AF_INET
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	} else {
		domain = unix.AF_INET6
	}

	raw, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(raw, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(raw)
		return nil, err
	}

	var bindErr error
	if domain == unix.AF_INET6 {
		sa6 := &unix.SockaddrInet6{Port: addr.Port}
		if ip6 := addr.IP.To16(); ip6 != nil {
			copy(sa6.Addr[:], ip6)
		}
		bindErr = unix.Bind(raw, sa6)
	} else {
		bindErr = unix.Bind(raw, sa)
	}
	if bindErr != nil {
		_ = unix.Close(raw)
		return nil, bindErr
	}
	if err := unix.Listen(raw, unix.SOMAXCONN); err != nil {
		_ = unix.Close(raw)
		return nil, err
	}

	return &TCPListener{fd: fibio.NewFD(sched, sw, raw, true), addr: addr}, nil
}

// Accept suspends task until a connection arrives, returning the accepted
// TCPConn.
func (ln *TCPListener) Accept(task *fibio.Task, sw *fibio.Switch) (*TCPConn, error) {
	raw, sa, err := ln.fd.Accept(task)
	if err != nil {
		return nil, err
	}
	remote := sockaddrToTCPAddr(sa)
	return &TCPConn{fd: fibio.NewFD(ln.fd.SchedulerOf(), sw, raw, true), remote: remote}, nil
}

// Addr returns the listener's bound address.
func (ln *TCPListener) Addr() net.Addr { return ln.addr }

// Close closes the listener.
func (ln *TCPListener) Close(task *fibio.Task) error { return ln.fd.Close(task) }

// TCPConn is an accepted or dialed TCP connection.
type TCPConn struct {
	fd     *fibio.FD
	remote *net.TCPAddr
}

// DialTCP connects to addr through the ring (a non-blocking connect(2)
// submitted as a generic cancellable job, spec §6).
func DialTCP(task *fibio.Task, sched *fibio.Scheduler, sw *fibio.Switch, addr *net.TCPAddr) (*TCPConn, error) {
	domain := unix.AF_INET
	if addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	raw, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	fd := fibio.NewFD(sched, sw, raw, true)

	rsa, rsaLen := tcpAddrToRawSockaddr(addr)
	if err := fd.Connect(task, rsa, rsaLen); err != nil {
		_ = fd.Close(task)
		return nil, err
	}
	return &TCPConn{fd: fd, remote: addr}, nil
}

// Read issues one read of up to len(p) bytes and returns whatever arrived
// (fibio.ReadUpto's semantics); it does not resubmit to fill p. Callers
// that need p filled use ReadExactly directly via FD().
func (c *TCPConn) Read(task *fibio.Task, p []byte) (int, error) {
	return c.fd.ReadUpto(task, p, -1)
}

// Write writes all of p, resubmitting on every short write.
func (c *TCPConn) Write(task *fibio.Task, p []byte) (int, error) {
	return c.fd.WriteExactly(task, p, -1)
}

// RemoteAddr returns the connection's peer address.
func (c *TCPConn) RemoteAddr() net.Addr { return c.remote }

// FD exposes the underlying handle for collaborators (iocopy, tls) that
// need direct access to the core's read/write/splice primitives.
func (c *TCPConn) FD() *fibio.FD { return c.fd }

// Close closes the connection.
func (c *TCPConn) Close(task *fibio.Task) error { return c.fd.Close(task) }

func sockaddrToTCPAddr(sa *unix.RawSockaddrAny) *net.TCPAddr {
	switch sa.Addr.Family {
	case unix.AF_INET:
		in4 := (*unix.RawSockaddrInet4)(unsafe.Pointer(sa))
		port := int(in4.Port>>8) | int(in4.Port&0xff)<<8
		return &net.TCPAddr{IP: net.IP(in4.Addr[:]), Port: port}
	case unix.AF_INET6:
		in6 := (*unix.RawSockaddrInet6)(unsafe.Pointer(sa))
		port := int(in6.Port>>8) | int(in6.Port&0xff)<<8
		return &net.TCPAddr{IP: net.IP(in6.Addr[:]), Port: port}
	default:
		return &net.TCPAddr{}
	}
}

func tcpAddrToRawSockaddr(addr *net.TCPAddr) (*unix.RawSockaddrAny, uint32) {
	port := uint16(addr.Port>>8) | uint16(addr.Port&0xff)<<8
	rsa := &unix.RawSockaddrAny{}
	if ip4 := addr.IP.To4(); ip4 != nil {
		in4 := (*unix.RawSockaddrInet4)(unsafe.Pointer(rsa))
		in4.Family = unix.AF_INET
		in4.Port = port
		copy(in4.Addr[:], ip4)
		return rsa, uint32(unsafe.Sizeof(*in4))
	}
	in6 := (*unix.RawSockaddrInet6)(unsafe.Pointer(rsa))
	in6.Family = unix.AF_INET6
	in6.Port = port
	copy(in6.Addr[:], addr.IP.To16())
	return rsa, uint32(unsafe.Sizeof(*in6))
}
