package index

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/metrics"
)

// Pool is the global cap on in-flight work units. Every job and every
// watcher intent takes a slot, so full and incremental work interleave at
// file granularity and the embedder never sees more than Size calls.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
	busy atomic.Int64
}

// NewPool creates a pool with size slots. Non-positive sizes become 1.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Acquire blocks for a slot. Waiters are served in FIFO order.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return terrors.New(terrors.ErrCodeSchedulerUnavailable, "worker pool unavailable", err)
	}
	metrics.WorkersBusy.Set(float64(p.busy.Add(1)))
	return nil
}

// Release returns a slot.
func (p *Pool) Release() {
	metrics.WorkersBusy.Set(float64(p.busy.Add(-1)))
	p.sem.Release(1)
}

// Busy returns the number of slots in use.
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return int(p.size)
}

// Drain waits until every slot is free.
func (p *Pool) Drain(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, p.size); err != nil {
		return err
	}
	p.sem.Release(p.size)
	return nil
}
