package detection

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Guard lets at most one detection run at a time. A second caller is
// rejected immediately instead of queueing behind the first.
type Guard struct {
	sem  *semaphore.Weighted
	busy atomic.Bool
}

// NewGuard creates an idle guard
func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// Run calls fn unless another call is in flight, in which case it returns
// ErrDetectionInProgress without calling fn
func (g *Guard) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.sem.TryAcquire(1) {
		return ErrDetectionInProgress
	}
	g.busy.Store(true)
	defer func() {
		g.busy.Store(false)
		g.sem.Release(1)
	}()

	return fn(ctx)
}

// Busy reports whether a call is in flight
func (g *Guard) Busy() bool {
	return g.busy.Load()
}
