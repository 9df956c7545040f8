//go:build linux

package socket

import (
	"net"
	"unsafe"

	"github.com/brickingsoft/fibio"
	"golang.org/x/sys/unix"
)

// UDPConn is a bound (or connected) UDP socket.
type UDPConn struct {
	fd *fibio.FD
}

// ListenUDP binds a UDP socket to addr.
func ListenUDP(sched *fibio.Scheduler, sw *fibio.Switch, addr *net.UDPAddr) (*UDPConn, error) {
	domain := unix.AF_INET
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	} else {
		domain = unix.AF_INET6
	}
	raw, err := unix.Socket(domain, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
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
	return &UDPConn{fd: fibio.NewFD(sched, sw, raw, true)}, nil
}

// ReadFrom reads one datagram into p (spec §6 "recv_msg").
func (c *UDPConn) ReadFrom(task *fibio.Task, p []byte) (int, error) {
	return c.fd.RecvMsg(task, p, 0)
}

// WriteTo writes p as one datagram on a connected socket (spec §6
// "send_msg"); this trimmed wrapper doesn't carry a destination address
// per call, matching the core's plain send/recv opcode realization (see
// DESIGN.md's Readv/Writev and SendMsg/RecvMsg scope note).
func (c *UDPConn) WriteTo(task *fibio.Task, p []byte) (int, error) {
	return c.fd.SendMsg(task, p, 0)
}

// Connect fixes the socket's peer address so WriteTo/ReadFrom can use
// plain send/recv, as required by the trimmed single-destination design
// documented on WriteTo.
func (c *UDPConn) Connect(task *fibio.Task, addr *net.UDPAddr) error {
	rsa, rsaLen := udpAddrToRawSockaddr(addr)
	return c.fd.Connect(task, rsa, rsaLen)
}

// FD exposes the underlying handle for collaborators (iocopy, tls).
func (c *UDPConn) FD() *fibio.FD { return c.fd }

// Close closes the socket.
func (c *UDPConn) Close(task *fibio.Task) error { return c.fd.Close(task) }

func udpAddrToRawSockaddr(addr *net.UDPAddr) (*unix.RawSockaddrAny, uint32) {
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
