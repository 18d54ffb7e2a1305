// Package worker implements a bounded worker pool (§4.3, §5): a small core
// of pre-warmed slots with create-on-demand overflow up to a global cap, so
// a burst of work queues briefly instead of either blocking forever or
// spawning unboundedly. No specialist in this module acquires slots from
// it; the Runner launches its processes through internal/procpool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"kaya/internal/logging"
)

// DefaultSize is the pool's pre-warmed slot count (§5).
const DefaultSize = 3

// DefaultAcquireTimeout bounds how long Acquire waits for a slot before
// giving up (§5).
const DefaultAcquireTimeout = 5 * time.Second

// DefaultGlobalCap bounds total concurrent work (core + overflow) across
// the whole process, so create-on-demand overflow can't itself exhaust
// system resources.
const DefaultGlobalCap = 16

// ErrExhausted is returned when no core or overflow slot became available
// within the acquire timeout.
var ErrExhausted = errors.New("worker pool exhausted")

// Stats snapshots pool utilization.
type Stats struct {
	CoreInUse     int
	CoreSize      int
	OverflowInUse int
	OverflowCap   int
}

// Pool is a named bounded worker pool.
type Pool struct {
	name            string
	core            chan struct{}
	overflowInUse   int64
	overflowCap     int64
	acquireTimeout  time.Duration
	log             *logging.Logger
}

// New creates a pool named for the specialist that owns it (used only for
// logging), with size core slots, a global cap of overflow+core total
// concurrency, and acquireTimeout bounding how long Acquire blocks.
func New(name string, size, globalCap int, acquireTimeout time.Duration) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if globalCap < size {
		globalCap = DefaultGlobalCap
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	return &Pool{
		name:           name,
		core:           make(chan struct{}, size),
		overflowCap:    int64(globalCap - size),
		acquireTimeout: acquireTimeout,
		log:            logging.Get(logging.CategoryProcPool),
	}
}

// Acquire reserves a slot, preferring the pre-warmed core before falling
// back to create-on-demand overflow. It blocks at most acquireTimeout (or
// until ctx is done, if sooner). The returned release func must be called
// exactly once when the caller is done with the slot.
func (p *Pool) Acquire(ctx context.Context) (release func(), err error) {
	deadline := time.Now().Add(p.acquireTimeout)
	cctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	select {
	case p.core <- struct{}{}:
		return func() { <-p.core }, nil
	default:
	}

	if p.tryOverflow() {
		return func() { atomic.AddInt64(&p.overflowInUse, -1) }, nil
	}

	for {
		select {
		case p.core <- struct{}{}:
			return func() { <-p.core }, nil
		case <-cctx.Done():
			p.log.Warn("%s pool exhausted: core=%d/%d overflow=%d/%d", p.name, len(p.core), cap(p.core), atomic.LoadInt64(&p.overflowInUse), p.overflowCap)
			if errors.Is(cctx.Err(), context.DeadlineExceeded) {
				return nil, ErrExhausted
			}
			return nil, fmt.Errorf("acquiring %s pool slot: %w", p.name, ctx.Err())
		case <-time.After(10 * time.Millisecond):
			if p.tryOverflow() {
				return func() { atomic.AddInt64(&p.overflowInUse, -1) }, nil
			}
		}
	}
}

func (p *Pool) tryOverflow() bool {
	if p.overflowCap <= 0 {
		return false
	}
	for {
		cur := atomic.LoadInt64(&p.overflowInUse)
		if cur >= p.overflowCap {
			return false
		}
		if atomic.CompareAndSwapInt64(&p.overflowInUse, cur, cur+1) {
			return true
		}
	}
}

// Run acquires a slot, runs fn, and releases the slot regardless of fn's
// outcome.
func (p *Pool) Run(ctx context.Context, fn func(context.Context) error) error {
	release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Stats reports current utilization.
func (p *Pool) Stats() Stats {
	return Stats{
		CoreInUse:     len(p.core),
		CoreSize:      cap(p.core),
		OverflowInUse: int(atomic.LoadInt64(&p.overflowInUse)),
		OverflowCap:   int(p.overflowCap),
	}
}
