package pipeline

import (
	"context"
	"fmt"
	"time"
)

// StageFunc runs one DAG stage against the shared Context, returning an
// error that aborts the cycle and routes it to the Fallback Engine.
type StageFunc func(ctx context.Context, pc *Context) error

// Stage pairs a named StageFunc with its per-stage timeout budget and
// retry attempt count.
type Stage struct {
	Name     string
	Timeout  time.Duration
	Attempts int // 0 defaults to 1 (no retry)
	Run      StageFunc
	// Validate runs after Run succeeds, as the Validated middleware; a
	// failing check routes to fallback the same as any stage error. Nil
	// means no stage-level contract beyond Run's own return value.
	Validate func(pc *Context) error
}

func (s Stage) retryAttempts() int {
	if s.Attempts <= 0 {
		return 1
	}
	return s.Attempts
}

// Middleware wraps a StageFunc with a cross-cutting concern, composable
// rather than folded into one monolithic stage runner.
type Middleware func(StageFunc) StageFunc

// Chain applies middlewares to fn in order, so Chain(fn, A, B)(ctx, pc)
// runs as A(B(fn)) — the first middleware listed is outermost.
func Chain(fn StageFunc, mw ...Middleware) StageFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		fn = mw[i](fn)
	}
	return fn
}

// Timed enforces the stage's timeout via a derived context, and records
// its duration and outcome to Prometheus under the stage's name.
func Timed(name string, timeout time.Duration) Middleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context, pc *Context) error {
			stageCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := next(stageCtx, pc)
			elapsed := time.Since(start).Seconds()

			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			if stageCtx.Err() == context.DeadlineExceeded {
				outcome = "timeout"
				err = fmt.Errorf("stage %s exceeded timeout %s: %w", name, timeout, err)
			}
			recordStage(name, outcome, elapsed)
			return err
		}
	}
}

// Retried re-runs next up to attempts times with a fixed delay between
// attempts, stopping early on ctx cancellation. Mirrors the ingest
// package's hand-written backoff (no retry library appears anywhere in
// the retrieved corpus).
func Retried(attempts int, delay time.Duration) Middleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context, pc *Context) error {
			var err error
			for attempt := 1; attempt <= attempts; attempt++ {
				if err = next(ctx, pc); err == nil {
					return nil
				}
				if attempt == attempts {
					break
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
			return err
		}
	}
}

// Validated runs a check against pc after next succeeds, converting a
// failed check into a stage error so it routes to fallback the same as
// any other stage failure.
func Validated(check func(pc *Context) error) Middleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context, pc *Context) error {
			if err := next(ctx, pc); err != nil {
				return err
			}
			if check == nil {
				return nil
			}
			return check(pc)
		}
	}
}
