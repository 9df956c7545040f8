//go:build linux

// Package tls is a minimal crypto/tls-based wrapper over a socket.TCPConn,
// matching spec.md §1's "TLS/higher-level protocols" collaborator.
// Handshake logic itself is not reimplemented — it's squarely out of
// scope for an io_uring fiber runtime — only the net.Conn adapter that
// lets the standard library's crypto/tls drive a fiber-suspending FD is
// new here.
package tls

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/brickingsoft/fibio"
	"github.com/brickingsoft/fibio/socket"
)

// fiberConn adapts a socket.TCPConn, bound to one fiber's Task, to
// net.Conn so crypto/tls.Conn can drive it. Read/Write still suspend the
// calling goroutine through the ring exactly like any other fibio I/O —
// this only removes the Task parameter from the call signature, since
// net.Conn has none.
type fiberConn struct {
	task *fibio.Task
	conn *socket.TCPConn
}

func (c *fiberConn) Read(p []byte) (int, error)  { return c.conn.Read(c.task, p) }
func (c *fiberConn) Write(p []byte) (int, error) { return c.conn.Write(c.task, p) }
func (c *fiberConn) Close() error                { return c.conn.Close(c.task) }
func (c *fiberConn) LocalAddr() net.Addr         { return nil }
func (c *fiberConn) RemoteAddr() net.Addr        { return c.conn.RemoteAddr() }

// Deadlines aren't meaningful on a fiber-suspended connection: a timeout
// is expressed by racing the read/write fiber against a sleep_until
// timer (fibio.WithTimeout), not by a net.Conn deadline knob.
func (c *fiberConn) SetDeadline(time.Time) error      { return nil }
func (c *fiberConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fiberConn) SetWriteDeadline(time.Time) error { return nil }

// Conn wraps an established TLS session over a fibio TCP connection.
type Conn struct {
	tls *tls.Conn
}

// Client runs a TLS client handshake over conn and returns the established
// session.
func Client(task *fibio.Task, conn *socket.TCPConn, config *tls.Config) (*Conn, error) {
	tc := tls.Client(&fiberConn{task: task, conn: conn}, config)
	if err := tc.Handshake(); err != nil {
		return nil, err
	}
	return &Conn{tls: tc}, nil
}

// Server runs a TLS server handshake over conn and returns the established
// session.
func Server(task *fibio.Task, conn *socket.TCPConn, config *tls.Config) (*Conn, error) {
	tc := tls.Server(&fiberConn{task: task, conn: conn}, config)
	if err := tc.Handshake(); err != nil {
		return nil, err
	}
	return &Conn{tls: tc}, nil
}

// Read reads decrypted application data.
func (c *Conn) Read(p []byte) (int, error) { return c.tls.Read(p) }

// Write encrypts and writes p.
func (c *Conn) Write(p []byte) (int, error) { return c.tls.Write(p) }

// Close closes the TLS session and the underlying connection.
func (c *Conn) Close() error { return c.tls.Close() }
