package dispatch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// gate is a FIFO capacity bound. semaphore.Weighted queues waiters in
// arrival order, which is the admission ordering guarantee.
type gate struct {
	sem      *semaphore.Weighted
	capacity int64
}

func newGate(capacity int64) *gate {
	if capacity < 1 {
		capacity = 1
	}
	return &gate{sem: semaphore.NewWeighted(capacity), capacity: capacity}
}

func (g *gate) acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *gate) release() {
	g.sem.Release(1)
}
