package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultChunkSize = 8192
)

// ProgressFunc receives download progress as a whole percentage (0-100).
// It is only invoked when the total payload size is known.
type ProgressFunc func(percent int)

// Config controls download behavior. Zero values fall back to defaults.
type Config struct {
	Timeout    time.Duration
	ChunkSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// Downloader fetches remote artifacts to local storage in bounded chunks.
// Every failure is returned as an ordinary error value so the caller can keep
// serving other concurrent operations.
type Downloader struct {
	logger *zap.Logger
	client *http.Client
	cfg    Config
}

// New creates a downloader.
func New(logger *zap.Logger, cfg Config) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Downloader{
		logger: logger.Named("download"),
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// Fetch streams the payload at url into dest, reporting progress as chunks are
// consumed. Transport errors are retried up to MaxRetries with a linear
// backoff; an HTTP error status is terminal. Each attempt restarts the file
// from scratch.
func (d *Downloader) Fetch(ctx context.Context, url, dest string, onProgress ProgressFunc) error {
	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * d.cfg.RetryDelay
			d.logger.Warn("Retrying download",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := d.fetchOnce(ctx, url, dest, onProgress)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("download failed after %d attempts: %w", d.cfg.MaxRetries+1, lastErr)
}

// statusError marks a terminal HTTP status failure.
type statusError struct {
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %s", e.status)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (d *Downloader) fetchOnce(ctx context.Context, url, dest string, onProgress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &statusError{status: resp.Status}
	}

	total := resp.ContentLength
	if total > 0 {
		if err := d.checkDiskSpace(dest, uint64(total)); err != nil {
			return err
		}
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer f.Close()

	buf := make([]byte, d.cfg.ChunkSize)
	var received int64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("failed to write %s: %w", dest, werr)
			}
			received += int64(n)
			if total > 0 && onProgress != nil {
				onProgress(int(received * 100 / total))
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read failed: %w", rerr)
		}
	}

	d.logger.Info("Download complete",
		zap.String("url", url),
		zap.String("dest", dest),
		zap.Int64("bytes", received))
	return nil
}

// checkDiskSpace verifies the destination volume has room for the payload.
// A stat failure is ignored; shortfall is an ordinary failure result.
func (d *Downloader) checkDiskSpace(dest string, need uint64) error {
	usage, err := disk.Usage(filepath.Dir(dest))
	if err != nil {
		d.logger.Debug("Failed to stat destination volume", zap.Error(err))
		return nil
	}
	if usage.Free < need {
		return fmt.Errorf("insufficient disk space: need %d bytes, %d free", need, usage.Free)
	}
	return nil
}
