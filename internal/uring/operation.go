//go:build linux

// Package uring adapts github.com/pawelgaczynski/giouring's SQE/CQE
// binding to the narrow contract the scheduler needs: build one SQE per
// I/O job (spec.md §4.2), submit the batch, and peek/wait for CQEs. The
// ring, unlike the teacher package this is grounded on, is driven by a
// single OS thread end to end — there are no background goroutines here.
package uring

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Kind identifies which SQE-building function Ring.Prepare should call.
type Kind uint8

const (
	KindNop Kind = iota
	KindReadFixed
	KindWriteFixed
	KindReadv
	KindWritev
	KindOpenat2
	KindConnect
	KindAccept
	KindSend
	KindRecv
	KindSplice
	KindPollAdd
	KindClose
	KindCancel
)

// Operation is the SQE-in-waiting: every field a Prepare* call might need,
// plus a back-reference (Tag) the caller uses to recover its own job
// record when the matching CQE arrives. The submission layer retains
// ownership of one Operation per in-flight SQE until dispatch, per
// spec.md §6 ("the submission layer retains ownership of the record").
type Operation struct {
	Kind Kind
	Fd   int

	// regular-buffer ops: read/write/recv/send fall back to these via
	// readv/writev with a single iovec when no fixed buffer applies.
	Buf []byte

	// fixed-buffer ops
	FixedBufIndex int // -1 when not using a registered buffer
	Offset        int64

	// vectored ops
	Iovecs []unix.Iovec

	// openat2
	Dirfd int
	Path  *byte // must stay alive until CQE delivery; caller pins it
	How   *unix.OpenHow

	// connect / accept
	Addr    *unix.RawSockaddrAny
	AddrLen uint32

	// poll_add
	PollMask uint32

	// send/recv
	MsgFlags int32

	// splice
	SpliceFdIn      int
	SpliceOffIn     int64
	SpliceFdOut     int
	SpliceOffOut    int64
	SpliceLen       uint32
	SpliceFlags     uint32

	// cancel
	CancelTargetUserData uint64

	// Tag is an opaque back-reference set by the caller (the I/O job
	// record) and never interpreted by this package.
	Tag unsafe.Pointer

	// filled in on CQE delivery
	ResultN     int
	ResultFlags uint32
	ResultErr   error
}

func (op *Operation) userData() uint64 {
	return uint64(uintptr(unsafe.Pointer(op)))
}

// UserData exposes the SQE user_data tag this Operation will carry once
// submitted, so a caller can build an async-cancel Operation targeting it.
func (op *Operation) UserData() uint64 { return op.userData() }

func operationFromUserData(userData uint64) *Operation {
	return (*Operation)(unsafe.Pointer(uintptr(userData)))
}

// NewCancel builds an async-cancel Operation targeting targetUserData.
func NewCancel(targetUserData uint64) *Operation {
	return &Operation{Kind: KindCancel, CancelTargetUserData: targetUserData}
}
