//go:build linux

package dir_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brickingsoft/fibio"
	"github.com/brickingsoft/fibio/dir"
	"golang.org/x/sys/unix"
)

func TestOpenMkdiratOpenat2RoundTrip(t *testing.T) {
	tmp := t.TempDir()

	_, err := fibio.Run(func(task *fibio.Task) (any, error) {
		sw := fibio.NewSwitch()
		defer sw.Close()

		d, derr := dir.Open(task.Scheduler(), sw, tmp)
		if derr != nil {
			return nil, derr
		}
		defer d.Close(task)

		if merr := d.Mkdirat("sub", 0o755); merr != nil {
			return nil, merr
		}
		if st, serr := os.Stat(filepath.Join(tmp, "sub")); serr != nil || !st.IsDir() {
			t.Fatalf("expected sub to be a directory, stat err=%v", serr)
		}

		how := &unix.OpenHow{Flags: unix.O_RDONLY | unix.O_CLOEXEC, Resolve: unix.RESOLVE_BENEATH}
		sub, operr := d.Openat2(task, sw, "sub", how)
		if operr != nil {
			return nil, operr
		}
		defer sub.Close(task)
		if sub.Raw() < 0 {
			t.Fatal("expected a valid fd for the opened subdirectory")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestOpenRejectsMissingPath(t *testing.T) {
	_, err := fibio.Run(func(task *fibio.Task) (any, error) {
		sw := fibio.NewSwitch()
		defer sw.Close()
		_, derr := dir.Open(task.Scheduler(), sw, "/no/such/path/at/all")
		if derr == nil {
			t.Fatal("expected an error opening a nonexistent directory")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
