//go:build linux

package fibio

import (
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

func pipeFDs(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		t.Fatal(err)
	}
	return fds[0], fds[1]
}

func TestReadExactlyWriteExactlyOverPipe(t *testing.T) {
	rfd, wfd := pipeFDs(t)

	_, err := Run(func(task *Task) (any, error) {
		sw := NewSwitch()
		r := NewFD(task.sched, sw, rfd, true)
		w := NewFD(task.sched, sw, wfd, true)
		defer sw.Close()

		payload := []byte("hello, fiber world")
		n, werr := w.WriteExactly(task, payload, -1)
		if werr != nil {
			t.Fatal(werr)
		}
		if n != len(payload) {
			t.Fatalf("wrote %d, want %d", n, len(payload))
		}

		buf := make([]byte, len(payload))
		n, rerr := r.ReadExactly(task, buf, -1)
		if rerr != nil {
			t.Fatal(rerr)
		}
		if n != len(payload) || string(buf) != string(payload) {
			t.Fatalf("got %q, want %q", buf[:n], payload)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadUptoReturnsShortTransfer(t *testing.T) {
	rfd, wfd := pipeFDs(t)

	_, err := Run(func(task *Task) (any, error) {
		sw := NewSwitch()
		r := NewFD(task.sched, sw, rfd, true)
		w := NewFD(task.sched, sw, wfd, true)
		defer sw.Close()

		small := []byte("abc")
		if _, werr := w.WriteExactly(task, small, -1); werr != nil {
			t.Fatal(werr)
		}

		buf := make([]byte, 64)
		n, rerr := r.ReadUpto(task, buf, -1)
		if rerr != nil {
			t.Fatal(rerr)
		}
		if n != len(small) {
			t.Fatalf("got %d bytes, want %d", n, len(small))
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadExactlyReturnsEOFOnClosedWriter(t *testing.T) {
	rfd, wfd := pipeFDs(t)
	if err := unix.Close(wfd); err != nil {
		t.Fatal(err)
	}

	_, err := Run(func(task *Task) (any, error) {
		sw := NewSwitch()
		r := NewFD(task.sched, sw, rfd, true)
		defer sw.Close()

		buf := make([]byte, 16)
		_, rerr := r.ReadExactly(task, buf, -1)
		if !IsEOF(rerr) {
			t.Fatalf("got %v, want EOF", rerr)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func socketPair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	return fds[0], fds[1]
}

func TestSendMsgRecvMsgOverSocketpair(t *testing.T) {
	afd, bfd := socketPair(t)

	_, err := Run(func(task *Task) (any, error) {
		sw := NewSwitch()
		a := NewFD(task.sched, sw, afd, true)
		b := NewFD(task.sched, sw, bfd, true)
		defer sw.Close()

		payload := []byte("ping")
		n, werr := a.SendMsg(task, payload, 0)
		if werr != nil {
			t.Fatal(werr)
		}
		if n != len(payload) {
			t.Fatalf("sent %d, want %d", n, len(payload))
		}

		buf := make([]byte, 16)
		n, rerr := b.RecvMsg(task, buf, 0)
		if rerr != nil {
			t.Fatal(rerr)
		}
		if string(buf[:n]) != string(payload) {
			t.Fatalf("got %q, want %q", buf[:n], payload)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestConnectAcceptOverTCPLoopback(t *testing.T) {
	lfd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := unix.SetsockoptInt(lfd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		t.Fatal(err)
	}
	if err := unix.Bind(lfd, &unix.SockaddrInet4{Port: 0, Addr: [4]byte{127, 0, 0, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := unix.Listen(lfd, 1); err != nil {
		t.Fatal(err)
	}
	sa, err := unix.Getsockname(lfd)
	if err != nil {
		t.Fatal(err)
	}
	port := sa.(*unix.SockaddrInet4).Port

	_, err = Run(func(task *Task) (any, error) {
		sw := NewSwitch()
		listener := NewFD(task.sched, sw, lfd, true)
		defer sw.Close()

		join := Fork(task, func(child *Task) (any, error) {
			connFD, err := connectTCP(child, port)
			if err != nil {
				return nil, err
			}
			sw2 := NewSwitch()
			c := NewFD(child.sched, sw2, connFD, true)
			defer sw2.Close()
			if _, werr := c.WriteExactly(child, []byte("hi"), -1); werr != nil {
				return nil, werr
			}
			return nil, nil
		})

		newFd, _, aerr := listener.Accept(task)
		if aerr != nil {
			return nil, aerr
		}
		sw3 := NewSwitch()
		conn := NewFD(task.sched, sw3, newFd, true)
		defer sw3.Close()

		buf := make([]byte, 2)
		n, rerr := conn.ReadExactly(task, buf, -1)
		if rerr != nil {
			return nil, rerr
		}
		if string(buf[:n]) != "hi" {
			t.Fatalf("got %q, want hi", buf[:n])
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

func connectTCP(task *Task, port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	raw := &unix.RawSockaddrInet4{Family: unix.AF_INET, Port: htons(uint16(port))}
	raw.Addr = [4]byte{127, 0, 0, 1}
	addr := (*unix.RawSockaddrAny)(unsafe.Pointer(raw))

	sw := NewSwitch()
	f := NewFD(task.sched, sw, fd, false)
	defer sw.Close()
	if cerr := f.Connect(task, addr, uint32(unsafe.Sizeof(*raw))); cerr != nil {
		_ = unix.Close(fd)
		return -1, cerr
	}
	return fd, nil
}

func htons(p uint16) uint16 {
	return (p << 8) | (p >> 8)
}

func TestSpliceMovesBytesBetweenPipes(t *testing.T) {
	r1, w1 := pipeFDs(t)
	r2, w2 := pipeFDs(t)

	_, err := Run(func(task *Task) (any, error) {
		sw := NewSwitch()
		w1f := NewFD(task.sched, sw, w1, true)
		r2f := NewFD(task.sched, sw, r2, true)
		defer sw.Close()
		// r1 and w2 feed the splice directly by raw fd; they're closed via
		// unix.Close below since no FD handle owns them in this test.
		defer unix.Close(r1)
		defer unix.Close(w2)

		payload := []byte("spliced-bytes")
		if _, werr := w1f.WriteExactly(task, payload, -1); werr != nil {
			return nil, werr
		}

		n, serr := Splice(task, task.sched, r1, -1, w2, -1, uint32(len(payload)))
		if serr != nil {
			return nil, serr
		}
		if n != len(payload) {
			t.Fatalf("spliced %d bytes, want %d", n, len(payload))
		}

		buf := make([]byte, len(payload))
		got, rerr := r2f.ReadExactly(task, buf, -1)
		if rerr != nil {
			return nil, rerr
		}
		if got != len(payload) || string(buf) != string(payload) {
			t.Fatalf("got %q, want %q", buf[:got], payload)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
