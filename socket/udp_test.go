//go:build linux

package socket_test

import (
	"net"
	"testing"

	"github.com/brickingsoft/fibio"
	"github.com/brickingsoft/fibio/socket"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatal(err)
	}
	port := c.LocalAddr().(*net.UDPAddr).Port
	c.Close()
	return port
}

func TestUDPWriteToReadFromRoundTrip(t *testing.T) {
	portA := freeUDPPort(t)
	portB := freeUDPPort(t)
	addrA := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: portA}
	addrB := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: portB}

	_, err := fibio.Run(func(task *fibio.Task) (any, error) {
		sw := fibio.NewSwitch()
		defer sw.Close()

		a, aerr := socket.ListenUDP(task.Scheduler(), sw, addrA)
		if aerr != nil {
			return nil, aerr
		}
		defer a.Close(task)

		b, berr := socket.ListenUDP(task.Scheduler(), sw, addrB)
		if berr != nil {
			return nil, berr
		}
		defer b.Close(task)

		if cerr := a.Connect(task, addrB); cerr != nil {
			return nil, cerr
		}
		if cerr := b.Connect(task, addrA); cerr != nil {
			return nil, cerr
		}

		join := fibio.Fork(task, func(child *fibio.Task) (any, error) {
			n, werr := b.WriteTo(child, []byte("datagram"))
			if werr != nil {
				return nil, werr
			}
			return n, nil
		})

		buf := make([]byte, 32)
		n, rerr := a.ReadFrom(task, buf)
		if rerr != nil {
			return nil, rerr
		}
		if string(buf[:n]) != "datagram" {
			t.Fatalf("got %q, want datagram", buf[:n])
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
