package executor

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Budget bounds the threads and memory held by running jobs. A job waits
// until its whole request fits; it is never rejected.
type Budget struct {
	threads     *semaphore.Weighted
	memory      *semaphore.Weighted
	maxThreads  int64
	maxMemoryMB int64
}

// NewBudget creates a budget. A non-positive memoryMB disables the memory
// axis.
func NewBudget(threads, memoryMB int64) *Budget {
	threads = max(threads, 1)
	b := &Budget{
		threads:    semaphore.NewWeighted(threads),
		maxThreads: threads,
	}
	if memoryMB > 0 {
		b.memory = semaphore.NewWeighted(memoryMB)
		b.maxMemoryMB = memoryMB
	}
	return b
}

// Threads returns the thread capacity.
func (b *Budget) Threads() int64 { return b.maxThreads }

// MemoryMB returns the memory capacity, zero when unbounded.
func (b *Budget) MemoryMB() int64 { return b.maxMemoryMB }

// Clamp fits a request into the budget's capacity. A request larger than the
// whole budget could never be granted. clamped reports whether anything was
// reduced.
func (b *Budget) Clamp(threads, memoryMB int64) (t, m int64, clamped bool) {
	t, m = max(threads, 1), max(memoryMB, 0)
	if t > b.maxThreads {
		t, clamped = b.maxThreads, true
	}
	if b.memory == nil {
		return t, 0, clamped
	}
	if m > b.maxMemoryMB {
		m, clamped = b.maxMemoryMB, true
	}
	return t, m, clamped
}

// Acquire blocks until both amounts are available or ctx is done. The
// request must already be clamped.
func (b *Budget) Acquire(ctx context.Context, threads, memoryMB int64) error {
	if err := b.threads.Acquire(ctx, threads); err != nil {
		return err
	}
	if b.memory == nil || memoryMB == 0 {
		return nil
	}
	if err := b.memory.Acquire(ctx, memoryMB); err != nil {
		b.threads.Release(threads)
		return err
	}
	return nil
}

// Release returns amounts taken by Acquire.
func (b *Budget) Release(threads, memoryMB int64) {
	if b.memory != nil && memoryMB > 0 {
		b.memory.Release(memoryMB)
	}
	b.threads.Release(threads)
}
