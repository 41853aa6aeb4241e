package tasks

import (
	"context"
	"fmt"
	"time"
)

// newMessageRetentionTask creates the scheduled task function that deletes
// messages older than the configured retention window. Chat and user rows
// are kept; only message history is trimmed.
func newMessageRetentionTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "message_retention")

	return func(ctx context.Context) error {
		cutoff := time.Now().Add(-deps.Config.Retention.MaxAge).Unix()

		log.InfoContext(ctx, "Starting message retention sweep...", "cutoff", cutoff)
		startTime := time.Now()

		deleted, err := deps.Store.DeleteMessagesBefore(ctx, cutoff)

		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Message retention sweep failed", "error", err, "duration", duration)
			return fmt.Errorf("message retention failed: %w", err)
		}

		log.InfoContext(ctx, "Message retention sweep completed", "deleted", deleted, "duration", duration)
		return nil
	}
}
