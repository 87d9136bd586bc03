// Package engine implements the cooperative runtime that interleaves the
// dispatcher and the input engine: the Go analog of spec §4.7's
// single-task executor, which polls two permanently-running futures and
// returns on the first terminal error.
package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is anything that runs forever until ctx is cancelled or it hits a
// terminal fault. The dispatcher's dispatch.Loop.Run has this shape
// directly; the input engine's input.Engine.Run takes it once its ADC,
// clock and store are bound in a closure.
type Task func(ctx context.Context) error

// Run starts every task as a goroutine under a shared context and blocks
// until the first one returns a non-nil error (or ctx is cancelled
// externally), at which point every other task is cancelled via the
// shared context and Run returns that first error.
//
// This mirrors spec §4.7's composite-future executor ("returns when
// either produces an error") with one adaptation: the Rust source's two
// top-level futures are a hard limit of exactly two tasks because the
// executor itself is a fixed select!; Go's errgroup generalizes that to
// any number of tasks without changing the "first error wins, everyone
// else is cancelled" contract, which is what the production daemon
// actually needs once a heartbeat task (spec §5: "a third convenience
// task... may be scheduled by the outer shell") is added alongside the
// two core tasks.
func Run(ctx context.Context, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			return t(gctx)
		})
	}
	return g.Wait()
}
