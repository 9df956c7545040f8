//go:build linux

package fibio

import (
	"os"
	"strconv"
	"time"

	"github.com/brickingsoft/errors"
)

const (
	defaultQueueDepth = 64
	defaultBlockSize  = 4096
)

// Options configures a scheduler instance created by Run/RunRemote (spec §6
// "Configuration").
type Options struct {
	queueDepth  uint32
	nBlocks     uint32
	blockSize   uint32
	sqPollIdle  time.Duration
	fallback    func(err error)
	pinCPU      bool
	cpuIndex    int
}

// Option configures Options. Mirrors this codebase's existing With*
// constructor pattern for functional options.
type Option func(*Options) error

func newOptions() *Options {
	o := &Options{
		queueDepth: defaultQueueDepth,
		blockSize:  defaultBlockSize,
		cpuIndex:   -1,
	}
	o.nBlocks = o.queueDepth
	applyEnvOverrides(o)
	return o
}

// WithQueueDepth sets the io_uring submission/completion queue depth.
// Default 64.
func WithQueueDepth(n uint32) Option {
	return func(o *Options) error {
		if n == 0 {
			return errors.New("fibio: queue depth must be > 0")
		}
		if o.nBlocks == 0 || o.nBlocks == o.queueDepth {
			o.nBlocks = n
		}
		o.queueDepth = n
		return nil
	}
}

// WithFixedBuffers sets the registered-buffer pool's block count and size.
// Defaults: n_blocks = queue_depth, block_size = 4096.
func WithFixedBuffers(nBlocks, blockSize uint32) Option {
	return func(o *Options) error {
		o.nBlocks = nBlocks
		o.blockSize = blockSize
		return nil
	}
}

// WithSQPollIdle records an SQ-polling idle timeout in Options. The value
// is stored only: it is not passed to the ring, which is always opened
// without SQ polling.
func WithSQPollIdle(d time.Duration) Option {
	return func(o *Options) error {
		o.sqPollIdle = d
		return nil
	}
}

// WithRingUnavailableFallback installs the handler invoked when
// io_uring_setup fails with ENOSYS (spec §6, §8 scenario 6). Without one,
// Run returns ErrRingUnavailable directly.
func WithRingUnavailableFallback(fn func(err error)) Option {
	return func(o *Options) error {
		o.fallback = fn
		return nil
	}
}

// WithCPUAffinity pins the scheduler's OS thread to the given CPU index
// (mod runtime.NumCPU()), via internal/affinity.
func WithCPUAffinity(index int) Option {
	return func(o *Options) error {
		o.pinCPU = true
		o.cpuIndex = index
		return nil
	}
}

// applyEnvOverrides mirrors this codebase's FIBIO_* environment-variable
// convention (renamed from RIO_IOURING_REG_FIXED_BUFFERS / _FIXED_FILES).
func applyEnvOverrides(o *Options) {
	if v, ok := os.LookupEnv("FIBIO_QUEUE_DEPTH"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
			o.queueDepth = uint32(n)
			o.nBlocks = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("FIBIO_REG_FIXED_BUFFERS"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			o.nBlocks = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("FIBIO_BLOCK_SIZE"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
			o.blockSize = uint32(n)
		}
	}
}
