//go:build linux

package fibio

import (
	"sync"

	"github.com/brickingsoft/fibio/internal/bufpool"
)

// chunk is a handle to one block of the fixed-buffer region, or to a
// fallback-pool buffer when the region isn't registered.
type chunk struct {
	buf   []byte
	index int // -1 for fallback (non-fixed) buffers
}

// bufferPool is the fixed buffer region of spec §3/§4.6: one contiguous
// registered-memory region divided into equal blocks, with a wait list
// (mem_q) for exhaustion. Thread-local per scheduler instance, but guarded
// by a mutex since multiple fiber goroutines spawned from the same
// scheduler can call Alloc/Free concurrently (spec §5 calls the pool
// "thread-local"; in this Go realization that means "one pool per
// scheduler, synchronized," not "lock-free single-writer").
type bufferPool struct {
	mu         sync.Mutex
	region     []byte
	blockSize  uint32
	free       []int32 // stack of free block indices
	waiters    []*Task // mem_q, oldest first
	registered bool
	fallback   *bufpool.Pool
}

func newBufferPool(blockSize, nBlocks uint32, registered bool) *bufferPool {
	p := &bufferPool{
		blockSize:  blockSize,
		registered: registered,
		fallback:   bufpool.New(int(blockSize)),
	}
	if registered {
		p.region = make([]byte, uint64(blockSize)*uint64(nBlocks))
		p.free = make([]int32, nBlocks)
		for i := range p.free {
			p.free[i] = int32(i)
		}
	}
	return p
}

// blockAt returns the sub-slice of the registered region for block index i.
func (p *bufferPool) blockAt(i int32) []byte {
	off := uint64(i) * uint64(p.blockSize)
	return p.region[off : off+uint64(p.blockSize) : off+uint64(p.blockSize)]
}

// Alloc returns a chunk immediately, or ErrNoFreeBuffer if the pool is
// exhausted. Never suspends.
func (p *bufferPool) Alloc() (chunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.registered || len(p.free) == 0 {
		return chunk{}, ErrNoFreeBuffer
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return chunk{buf: p.blockAt(idx), index: int(idx)}, nil
}

// AllocOrWait returns a chunk immediately if available; otherwise it
// suspends task on mem_q and returns once Free wakes it with a block.
// Never fails (spec §4.6: "the waiting variant never fails").
func (p *bufferPool) AllocOrWait(task *Task) chunk {
	p.mu.Lock()
	if p.registered && len(p.free) > 0 {
		idx := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		p.mu.Unlock()
		return chunk{buf: p.blockAt(idx), index: int(idx)}
	}
	p.waiters = append(p.waiters, task)
	p.mu.Unlock()

	v, _ := task.suspend()
	return v.(chunk)
}

// Free returns c to the pool, or — if a waiter is queued — hands the block
// directly to the oldest waiter by resuming it (spec §4.6).
func (p *bufferPool) Free(c chunk) {
	if c.index < 0 {
		p.fallback.Put(c.buf)
		return
	}
	p.mu.Lock()
	if len(p.waiters) > 0 {
		waiter := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		waiter.sched.resumeTask(waiter, chunk{buf: c.buf, index: c.index})
		return
	}
	p.free = append(p.free, int32(c.index))
	p.mu.Unlock()
}

// WaiterCount reports the current mem_q length, used by the scheduler's
// exit-condition invariant check (spec §4.6, §8.4).
func (p *bufferPool) WaiterCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// WithChunk acquires a chunk (or, when the region isn't registered, a
// fallback buffer) for the duration of fn and guarantees release on every
// return path. fn receives the backing slice and the registered-buffer
// index to submit with (-1 for a fallback/non-fixed buffer).
func (p *bufferPool) WithChunk(task *Task, fn func(buf []byte, index int) (int, error)) (int, error) {
	if !p.registered {
		buf := p.fallback.Get()
		defer p.fallback.Put(buf)
		return fn(buf, -1)
	}
	c := p.AllocOrWait(task)
	defer p.Free(c)
	return fn(c.buf, c.index)
}
