// Package asyncjoin runs collaborator operations off the caller's goroutine
// and joins their completions in one of three ways:
//
//   - Await blocks the caller until a single operation finishes. With a zero
//     timeout the wait is unbounded, so an operation that never completes
//     hangs the caller forever. Pass a positive timeout to turn that hang
//     into a LivenessError.
//   - Group fires operations and reports each completion independently.
//     Completions are unordered and nothing waits for them except Wait.
//   - JoinAll runs operations concurrently and returns every outcome once
//     all of them have finished.
//
// Panics inside an operation are recovered and surface as errors.
package asyncjoin

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/foresight/internal/errors"
)

// Op is an operation with no result beyond success or failure.
type Op func(ctx context.Context) error

// call runs fn and converts a panic into an error.
func call(fn func()) error {
	var c panics.Catcher
	c.Try(fn)
	if r := c.Recovered(); r != nil {
		return fmt.Errorf("operation panicked: %w", r.AsError())
	}
	return nil
}

type result[T any] struct {
	val T
	err error
}

// Await runs op on its own goroutine and blocks until it returns, ctx is
// done, or timeout elapses. A timeout <= 0 means no bound.
//
// When the wait is abandoned the operation keeps running; its eventual
// result is discarded.
func Await[T any](ctx context.Context, name string, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	done := make(chan result[T], 1)

	go func() {
		var r result[T]
		if perr := call(func() { r.val, r.err = op(ctx) }); perr != nil {
			r.err = perr
		}
		done <- r
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-expired:
		return zero, errors.NewLivenessError(name, timeout)
	case <-ctx.Done():
		return zero, errors.Wrapf(ctx.Err(), "waiting for %s", name)
	}
}

// Group runs operations in the background and hands each outcome to its own
// report callback as soon as that operation finishes.
// The zero value is ready to use.
type Group struct {
	wg conc.WaitGroup
}

// Go starts op and calls report with its outcome on the operation's
// goroutine. report may be nil.
func (g *Group) Go(ctx context.Context, op Op, report func(error)) {
	g.wg.Go(func() {
		var err error
		if perr := call(func() { err = op(ctx) }); perr != nil {
			err = perr
		}
		if report != nil {
			report(err)
		}
	})
}

// Wait blocks until every started operation has reported. A panic inside a
// report callback is returned as an error instead of crashing the caller.
func (g *Group) Wait() error {
	if r := g.wg.WaitAndRecover(); r != nil {
		return fmt.Errorf("report callback panicked: %w", r.AsError())
	}
	return nil
}

// JoinAll runs every op concurrently and waits for all of them. The returned
// slice holds each op's error at the op's index; a failing op does not
// cancel its siblings.
func JoinAll(ctx context.Context, ops ...Op) []error {
	errs := make([]error, len(ops))

	var g errgroup.Group
	for i, op := range ops {
		g.Go(func() error {
			var err error
			if perr := call(func() { err = op(ctx) }); perr != nil {
				err = perr
			}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

// FirstError returns the index and value of the first non-nil error in
// errs, or -1 and nil.
func FirstError(errs []error) (int, error) {
	for i, err := range errs {
		if err != nil {
			return i, err
		}
	}
	return -1, nil
}
