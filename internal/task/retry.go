package task

import (
	"context"
	"fmt"
	"time"
)

// Retry calls fn up to attempts times. After the nth failed attempt it waits
// n*unit before trying again. Returns nil on the first success, otherwise the
// last error. A cancelled context stops retrying immediately.
func Retry(ctx context.Context, attempts int, unit time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		if err := sleep(ctx, time.Duration(attempt)*unit); err != nil {
			return fmt.Errorf("retry interrupted after attempt %d: %w", attempt, lastErr)
		}
	}

	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
