package tasks

import (
	"context"
	"fmt"
	"time"
)

// newCacheSweepTask creates the scheduled task function that removes
// zero-length leftovers from the media cache so their downloads can be
// retried.
func newCacheSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "cache_sweep")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting cache sweep...")
		startTime := time.Now()

		removed, err := deps.Cache.SweepPartials(ctx)

		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Cache sweep failed", "error", err, "duration", duration)
			return fmt.Errorf("cache sweep failed: %w", err)
		}

		log.InfoContext(ctx, "Cache sweep completed", "removed", removed, "duration", duration)
		return nil
	}
}
