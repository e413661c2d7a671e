package ingest

import (
	"context"
	"time"
)

// retryAttempts, retryBase, and retryFactor implement a minimal
// exponential backoff (3 attempts, base 1s, factor 2). No retry/backoff
// library appears anywhere in the retrieved corpus — jordigilh-kubernaut's
// go.mod carries sethvargo/go-retry only as a transitive, unimported
// dependency — so this is a deliberately small hand-written helper
// (see DESIGN.md).
const (
	retryAttempts = 3
	retryBase     = 1 * time.Second
	retryFactor   = 2
)

// withRetry calls fn up to retryAttempts times, sleeping an exponentially
// increasing delay between attempts, and returns the last error if every
// attempt fails.
func withRetry(ctx context.Context, fn func() error) error {
	delay := retryBase
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= retryFactor
	}
	return err
}
