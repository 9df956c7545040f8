//go:build linux

package socket_test

import (
	"net"
	"testing"

	"github.com/brickingsoft/fibio"
	"github.com/brickingsoft/fibio/socket"
)

// freePort reserves an ephemeral TCP port by briefly listening on it with
// the standard library, then releasing it for the uring-backed listener.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestTCPListenDialAcceptRoundTrip(t *testing.T) {
	port := freePort(t)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}

	_, err := fibio.Run(func(task *fibio.Task) (any, error) {
		sw := fibio.NewSwitch()
		defer sw.Close()

		ln, lerr := socket.ListenTCP(task.Scheduler(), sw, addr)
		if lerr != nil {
			return nil, lerr
		}
		defer ln.Close(task)

		join := fibio.Fork(task, func(child *fibio.Task) (any, error) {
			sw2 := fibio.NewSwitch()
			defer sw2.Close()
			conn, derr := socket.DialTCP(child, child.Scheduler(), sw2, addr)
			if derr != nil {
				return nil, derr
			}
			defer conn.Close(child)
			if _, werr := conn.Write(child, []byte("hello")); werr != nil {
				return nil, werr
			}
			return nil, nil
		})

		conn, aerr := ln.Accept(task, sw)
		if aerr != nil {
			return nil, aerr
		}
		defer conn.Close(task)

		buf := make([]byte, 5)
		n, rerr := conn.FD().ReadExactly(task, buf, -1)
		if rerr != nil {
			return nil, rerr
		}
		if string(buf[:n]) != "hello" {
			t.Fatalf("got %q, want hello", buf[:n])
		}
		if conn.RemoteAddr() == nil {
			t.Fatal("expected a non-nil remote addr on the accepted conn")
		}

		if _, jerr := join(); jerr != nil {
			return nil, jerr
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestListenTCPAddrReflectsBoundAddress(t *testing.T) {
	port := freePort(t)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}

	_, err := fibio.Run(func(task *fibio.Task) (any, error) {
		sw := fibio.NewSwitch()
		defer sw.Close()
		ln, lerr := socket.ListenTCP(task.Scheduler(), sw, addr)
		if lerr != nil {
			return nil, lerr
		}
		defer ln.Close(task)
		if ln.Addr().(*net.TCPAddr).Port != port {
			t.Fatalf("got port %d, want %d", ln.Addr().(*net.TCPAddr).Port, port)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
