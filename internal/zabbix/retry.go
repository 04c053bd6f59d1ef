package zabbix

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// WithRetry calls factory until it succeeds or maxAttempts calls have failed,
// waiting a fixed delay between attempts. The last failure is returned on
// exhaustion. Cancelling ctx stops the wait early.
func WithRetry[T any](ctx context.Context, logger *slog.Logger, maxAttempts int, delay time.Duration, factory func(context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := factory(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		logger.Warn("attempt failed, retrying", "attempt", attempt, "max_attempts", maxAttempts, "retry_in", delay, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
		case <-t.C:
		}
	}
	return zero, lastErr
}
