//go:build linux

package iocopy_test

import (
	"os"
	"testing"

	"github.com/brickingsoft/fibio"
	"github.com/brickingsoft/fibio/iocopy"
	"golang.org/x/sys/unix"
)

func TestCopyUsesSpliceBetweenTwoPipes(t *testing.T) {
	var in, out [2]int
	if err := unix.Pipe2(in[:], unix.O_CLOEXEC); err != nil {
		t.Fatal(err)
	}
	if err := unix.Pipe2(out[:], unix.O_CLOEXEC); err != nil {
		t.Fatal(err)
	}
	payload := []byte("splice-path-bytes")

	_, err := fibio.Run(func(task *fibio.Task) (any, error) {
		sw := fibio.NewSwitch()
		defer sw.Close()

		srcR := fibio.NewFD(task.Scheduler(), sw, in[0], true)
		srcW := fibio.NewFD(task.Scheduler(), sw, in[1], true)
		dstW := fibio.NewFD(task.Scheduler(), sw, out[1], true)
		dstR := fibio.NewFD(task.Scheduler(), sw, out[0], true)

		if _, werr := srcW.WriteExactly(task, payload, -1); werr != nil {
			return nil, werr
		}
		if cerr := srcW.Close(task); cerr != nil {
			return nil, cerr
		}

		n, cerr := iocopy.Copy(task, task.Scheduler(), dstW, srcR)
		if cerr != nil {
			return nil, cerr
		}
		if n != int64(len(payload)) {
			t.Fatalf("copied %d bytes, want %d", n, len(payload))
		}
		if cerr := dstW.Close(task); cerr != nil {
			return nil, cerr
		}

		buf := make([]byte, len(payload))
		got, rerr := dstR.ReadExactly(task, buf, -1)
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

func TestCopyFallsBackToReadWriteLoopBetweenRegularFiles(t *testing.T) {
	srcFile, err := os.CreateTemp(t.TempDir(), "iocopy-src-*")
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("regular-file-fallback-bytes")
	if _, err := srcFile.Write(payload); err != nil {
		t.Fatal(err)
	}
	if _, err := srcFile.Seek(0, 0); err != nil {
		t.Fatal(err)
	}

	dstFile, err := os.CreateTemp(t.TempDir(), "iocopy-dst-*")
	if err != nil {
		t.Fatal(err)
	}

	_, err = fibio.Run(func(task *fibio.Task) (any, error) {
		sw := fibio.NewSwitch()
		defer sw.Close()

		src := fibio.NewFD(task.Scheduler(), sw, int(srcFile.Fd()), false)
		dst := fibio.NewFD(task.Scheduler(), sw, int(dstFile.Fd()), false)

		n, cerr := iocopy.Copy(task, task.Scheduler(), dst, src)
		if cerr != nil {
			return nil, cerr
		}
		if n != int64(len(payload)) {
			t.Fatalf("copied %d bytes, want %d", n, len(payload))
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dstFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}
