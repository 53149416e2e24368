// Package compute provides the bounded worker pool §5 calls out as "the
// one place concurrency matters": heavy polynomial interpolation, FFT,
// and Vandermonde multiplication are dispatched here so the event loop
// itself never blocks on them. Built on golang.org/x/sync/errgroup and
// golang.org/x/sync/semaphore, mirroring the teacher's own dependency on
// golang.org/x/sync for coordinating concurrent round work.
package compute

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrently-running heavy-compute tasks.
// A Pool is safe for concurrent use and is typically created once per
// process and shared by every protocol component.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a pool sized to the host's available parallelism,
// unless workers is explicitly positive.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Task is a unit of heavy compute dispatched to the pool. It returns a
// result and/or an error; callers type-assert the result.
type Task func(ctx context.Context) (interface{}, error)

// Run dispatches a single task and blocks the calling goroutine (not
// the event loop, which calls Run from a helper goroutine and receives
// the result over a channel -- see RunAsync) until it completes.
func (p *Pool) Run(ctx context.Context, t Task) (interface{}, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("compute: acquiring worker slot: %w", err)
	}
	defer p.sem.Release(1)
	return t(ctx)
}

// Result carries a dispatched task's outcome back to the event loop via
// a channel, the one suspension point §5 permits leaving the loop for.
type Result struct {
	Value interface{}
	Err   error
}

// RunAsync dispatches t on a helper goroutine and returns a channel
// that receives exactly one Result. The event loop selects on this
// channel alongside its other inboxes; no other synchronization is
// required because every protocol object is mutated back on the event
// loop thread when the Result arrives.
func (p *Pool) RunAsync(ctx context.Context, t Task) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		v, err := p.Run(ctx, t)
		out <- Result{Value: v, Err: err}
	}()
	return out
}

// RunBatch dispatches a slice of tasks concurrently (each still gated
// by the pool's semaphore) and waits for all of them, short-circuiting
// on the first error -- used for independent per-chunk interpolations
// in the linear multiplication protocol and ex-compress's per-level
// extension evaluations.
func RunBatch(ctx context.Context, p *Pool, tasks []Task) ([]interface{}, error) {
	results := make([]interface{}, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			v, err := p.Run(gctx, t)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compute: batch task failed: %w", err)
	}
	return results, nil
}
