package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
)

// FileDownloader streams Telegram files over the Bot API file endpoint.
// It implements the media cache's Downloader interface.
type FileDownloader struct {
	bot     *bot.Bot
	token   string
	timeout time.Duration
	maxSize int64
	client  *http.Client
}

// NewFileDownloader creates a downloader bound to a bot instance and its
// token. maxSize caps how many bytes a single download may produce.
func NewFileDownloader(b *bot.Bot, token string, timeout time.Duration, maxSize int64) *FileDownloader {
	return &FileDownloader{
		bot:     b,
		token:   token,
		timeout: timeout,
		maxSize: maxSize,
		client:  http.DefaultClient,
	}
}

// Download resolves the remote file's server path via GetFile and streams its
// content into dst. An empty result is reported as an error so callers never
// treat a zero-byte download as a cached file.
func (d *FileDownloader) Download(ctx context.Context, fileID string, dst io.Writer) (err error) {
	if fileID == "" {
		return fmt.Errorf("empty fileID provided for download")
	}
	if ctx.Err() != nil {
		return fmt.Errorf("context cancelled before file download: %w", ctx.Err())
	}

	downloadCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	fileObj, err := d.bot.GetFile(downloadCtx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return fmt.Errorf("failed to get file info from Telegram: %w", err)
	}
	if fileObj.FilePath == "" {
		return fmt.Errorf("empty file path returned from Telegram for file ID %s", fileID)
	}

	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", d.token, fileObj.FilePath)
	req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status code %d downloading file: %s", resp.StatusCode, string(bodyBytes))
	}

	n, err := io.Copy(dst, io.LimitReader(resp.Body, d.maxSize))
	if err != nil {
		return fmt.Errorf("failed to read file data: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("received empty file data")
	}
	return nil
}
