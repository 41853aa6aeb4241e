// Package tasks implements the daemon's scheduled background tasks: message
// retention, cache sweeping, and database maintenance.
package tasks

import (
	"log/slog"

	"github.com/heofen/botgram/internal/config"
	"github.com/heofen/botgram/internal/database"
	"github.com/heofen/botgram/internal/media"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Cache  *media.Cache
	Config *config.Config
}
