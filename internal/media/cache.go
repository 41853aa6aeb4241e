// Package media implements the local file cache for downloaded Telegram
// media. Files are keyed by their content-addressed unique id, namespaced
// into avatar and media subdirectories, and downloaded at most once per
// unique id through a bounded concurrency gate.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"
)

// Downloader streams the content of a remote Telegram file into dst.
// Implementations live at the transport boundary.
type Downloader interface {
	Download(ctx context.Context, fileID string, dst io.Writer) error
}

// Cache resolves remote file references to local paths. The cache directory
// is shared across tasks; file existence plus non-zero length is the sole
// "already downloaded" signal, so a partial file left behind by a cancelled
// download reads as a miss and is fetched again.
type Cache struct {
	dir        string
	sem        *semaphore.Weighted
	downloader Downloader
	logger     *slog.Logger
}

// NewCache creates the cache rooted at dir, admitting at most maxConcurrent
// simultaneous downloads.
func NewCache(dir string, maxConcurrent int64, downloader Downloader, logger *slog.Logger) (*Cache, error) {
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrent downloads must be at least 1, got %d", maxConcurrent)
	}
	if downloader == nil {
		return nil, fmt.Errorf("downloader cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	for _, sub := range []string{"avatars", "media"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", sub, err)
		}
	}

	return &Cache{
		dir:        dir,
		sem:        semaphore.NewWeighted(maxConcurrent),
		downloader: downloader,
		logger:     logger.With("component", "media_cache"),
	}, nil
}

// Path returns the deterministic local path for a unique file id. The path
// is stable regardless of whether the file has been downloaded yet.
func (c *Cache) Path(fileUniqueID, ext string, avatar bool) string {
	folder := "media"
	if avatar {
		folder = "avatars"
	}
	return filepath.Join(c.dir, folder, fileUniqueID+"."+ext)
}

// Resolve returns the local path for the given file, downloading it first if
// no complete copy exists. Failed or empty downloads are removed and reported
// as an error; the caller may retry on a later access, and a failure is never
// recorded as a negative cache entry.
func (c *Cache) Resolve(ctx context.Context, fileID, fileUniqueID, ext string, avatar bool) (string, error) {
	if fileID == "" || fileUniqueID == "" {
		return "", fmt.Errorf("file id and unique id are required")
	}

	localPath := c.Path(fileUniqueID, ext, avatar)
	if fileReady(localPath) {
		return localPath, nil
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("download admission cancelled for %s: %w", fileUniqueID, err)
	}
	defer c.sem.Release(1)

	// Another task may have completed the same download while we waited.
	if fileReady(localPath) {
		return localPath, nil
	}

	c.logger.DebugContext(ctx, "Downloading file",
		"file_id", fileID, "file_unique_id", fileUniqueID, "path", localPath)

	if err := c.download(ctx, fileID, localPath); err != nil {
		return "", err
	}

	return localPath, nil
}

func (c *Cache) download(ctx context.Context, fileID, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create cache file %s: %w", localPath, err)
	}

	downloadErr := c.downloader.Download(ctx, fileID, f)
	if closeErr := f.Close(); downloadErr == nil {
		downloadErr = closeErr
	}
	if downloadErr == nil {
		if info, statErr := os.Stat(localPath); statErr != nil || info.Size() == 0 {
			downloadErr = fmt.Errorf("download produced an empty file")
		}
	}

	if downloadErr != nil {
		// Leave no partial behind; the next access must see a clean miss.
		if removeErr := os.Remove(localPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Warn("Failed to remove incomplete download", "path", localPath, "error", removeErr)
		}
		return fmt.Errorf("failed to download file %s: %w", fileID, downloadErr)
	}
	return nil
}

// SweepPartials removes zero-length files left behind by downloads that were
// cancelled between creation and completion. Returns the number removed.
func (c *Cache) SweepPartials(ctx context.Context) (int, error) {
	removed := 0
	err := filepath.WalkDir(c.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() == 0 {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("cache sweep failed: %w", err)
	}
	return removed, nil
}

func fileReady(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
