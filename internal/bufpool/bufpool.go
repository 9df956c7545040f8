// Package bufpool is a trivial size-class pool of byte slices, used as the
// fallback allocator when a fixed-buffer region isn't registered. It plays
// the role this codebase's bytebufferpool package plays elsewhere, trimmed
// to the one operation the fallback path needs: borrow a buffer, use it,
// give it back.
package bufpool

import "sync"

// Pool hands out []byte slices of a fixed size.
type Pool struct {
	size int
	pool sync.Pool
}

// New creates a Pool of slices of the given size (typically one page, 4096
// bytes, matching spec.md's default block size).
func New(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() any {
		return make([]byte, size)
	}
	return p
}

// Get borrows a slice of Pool's configured size.
func (p *Pool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns a slice to the pool. Slices of the wrong length are dropped
// rather than risk a short/garbage buffer on the next Get.
func (p *Pool) Put(buf []byte) {
	if len(buf) != p.size {
		return
	}
	p.pool.Put(buf) //nolint:staticcheck
}
