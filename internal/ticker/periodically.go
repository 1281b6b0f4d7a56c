package ticker

import (
	"context"
	"fmt"
	"time"
)

// Periodically runs task immediately, then again each time interval has
// elapsed since the previous run finished, until the context is done or the
// task returns an error. A slow run delays the next one rather than
// overlapping it.
func Periodically(ctx context.Context, interval time.Duration, task func(context.Context) error) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := task(ctx); err != nil {
				return fmt.Errorf("periodic task failed: %w", err)
			}
			timer.Reset(interval)
		}
	}
}
