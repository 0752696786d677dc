// Package retry implements the bounded-retry policy for scoutd writes.
//
// Two faces, one loop:
//
//   - Do returns the last error after exhausting attempts. Used for writes
//     that must not be lost (execution state transitions).
//   - Soft never returns an error: after exhausting attempts it logs and
//     reports ok=false, and the caller proceeds without the side effect.
//     Used for telemetry (step records, usage logs).
//
// Backoff between attempts is attempt*500ms, context-aware.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// DefaultAttempts is the attempt budget used by Soft.
const DefaultAttempts = 3

const baseBackoff = 500 * time.Millisecond

// Do runs op until it succeeds or attempts are exhausted, sleeping
// attempt*500ms between tries. It returns the last error, or the context
// error if the context ends during backoff.
func Do(ctx context.Context, attempts int, op func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, time.Duration(attempt)*baseBackoff); err != nil {
			return err
		}
	}
	return lastErr
}

// Soft runs op with the Do loop and DefaultAttempts. On exhaustion it logs
// the failure through logger and returns the zero value with ok=false —
// never an error. Retry exhaustion means "proceed without this side effect".
func Soft[T any](ctx context.Context, logger *slog.Logger, name string, op func(ctx context.Context) (T, error)) (T, bool) {
	if logger == nil {
		logger = slog.Default()
	}
	var result T
	err := Do(ctx, DefaultAttempts, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		logger.Warn("retry: operation abandoned", "op", name, "attempts", DefaultAttempts, "error", err)
		var zero T
		return zero, false
	}
	return result, true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
