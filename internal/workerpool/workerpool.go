// Package workerpool implements the bounded, cooperatively-cancellable
// worker pool the Orchestrator dispatches per-file and per-peer work to.
// Width defaults to the logical CPU count; submission blocks rather than
// drops work once that many tasks are in flight. Each task runs isolated
// behind a recover() so one panicking file cannot take down the run,
// mirroring the goroutine-per-task fan-out the teacher's review
// orchestrator uses, built on golang.org/x/sync's bounded-concurrency
// primitives rather than a hand-rolled channel pool.
package workerpool

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Outcome is one task's result, tagged with its original index so callers
// can recover order after concurrent execution.
type Outcome[R any] struct {
	Index int
	Value R
	Err   error
}

// Options configures pool width. QueueLen is accepted for backward
// compatibility with callers that size a buffer ahead of dispatch, but the
// semaphore-gated dispatch loop below has no queue to bound.
type Options struct {
	Width    int
	QueueLen int
}

// DefaultOptions returns width = logical cores, queue = 4x width.
func DefaultOptions() Options {
	width := runtime.NumCPU()
	return Options{Width: width, QueueLen: width * 4}
}

// Map runs fn over every item with bounded parallelism, preserving
// per-item order in the returned slice. On context cancellation, in-flight
// tasks finish (no mid-file tearing) but items not yet dispatched are
// dropped and recorded as a context error.
func Map[T any, R any](ctx context.Context, opts Options, items []T, fn func(context.Context, T) (R, error)) []Outcome[R] {
	width := opts.Width
	if width <= 0 {
		width = runtime.NumCPU()
	}

	results := make([]Outcome[R], len(items))
	sem := semaphore.NewWeighted(int64(width))
	var g errgroup.Group

	for i, item := range items {
		i, item := i, item

		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(items); j++ {
				results[j] = Outcome[R]{Index: j, Err: ctx.Err()}
			}
			break
		}

		g.Go(func() error {
			defer sem.Release(1)
			results[i] = runOne(ctx, i, item, fn)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// runOne executes fn, isolating a panic to this one task.
func runOne[T any, R any](ctx context.Context, idx int, item T, fn func(context.Context, T) (R, error)) (out Outcome[R]) {
	out.Index = idx
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	out.Value, out.Err = fn(ctx, item)
	return out
}
