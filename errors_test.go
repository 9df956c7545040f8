//go:build linux

package fibio

import (
	"testing"

	"github.com/brickingsoft/errors"
)

func TestIsPredicates(t *testing.T) {
	wrapped := errors.New("fibio: read failed", errors.WithWrap(ErrEOF))
	if !IsEOF(wrapped) {
		t.Fatal("IsEOF should see through a wrapped ErrEOF")
	}
	if IsCanceled(wrapped) {
		t.Fatal("IsCanceled must not match an EOF error")
	}
}

func TestKernelErrorWrapsNonNil(t *testing.T) {
	inner := errors.New("boom")
	err := kernelError("read", inner)
	if err == nil {
		t.Fatal("expected a non-nil wrapped error")
	}
	if !errors.Is(err, inner) {
		t.Fatal("kernelError should preserve the wrapped cause for errors.Is")
	}
}

func TestKernelErrorNilPassthrough(t *testing.T) {
	if kernelError("read", nil) != nil {
		t.Fatal("kernelError(op, nil) must return nil")
	}
}
