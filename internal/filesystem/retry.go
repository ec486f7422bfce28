package filesystem

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"media-registry/internal/logging"
)

// RetryConfig bounds how often a stale-handle failure is retried. Backoff
// doubles per attempt up to MaxBackoff.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig suits libraries mounted over NFS.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isStale reports whether err carries ESTALE, which NFS returns when a
// cached handle outlives the server-side inode.
func isStale(err error) bool {
	return err != nil && errors.Is(err, syscall.ESTALE)
}

// withRetry runs fn until it succeeds, fails with a non-stale error, the
// retries are exhausted, or ctx is done.
func withRetry[T any](ctx context.Context, op, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	start := time.Now()
	obs := observe()
	backoff := config.InitialBackoff

	var zero T
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s %s recovered from stale handle after %d retries", op, path, attempt)
				obs.ObserveRetrySuccess(op)
			}
			obs.ObserveOperation(op, time.Since(start).Seconds())
			return v, nil
		}

		lastErr = err

		if !isStale(err) {
			obs.ObserveOperation(op, time.Since(start).Seconds())
			return zero, err
		}

		if attempt < config.MaxRetries {
			obs.ObserveRetryAttempt(op)
			logging.Debug("Stale handle on %s %s, attempt %d/%d, backing off %v",
				op, path, attempt+1, config.MaxRetries, backoff)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				obs.ObserveRetryFailure(op)
				return zero, ctx.Err()
			case <-timer.C:
			}

			backoff = min(backoff*2, config.MaxBackoff)
		}
	}

	logging.Warn("%s %s still stale after %d retries: %v", op, path, config.MaxRetries, lastErr)
	obs.ObserveRetryFailure(op)
	obs.ObserveOperation(op, time.Since(start).Seconds())
	return zero, lastErr
}

// StatWithRetry is os.Stat retried on ESTALE.
func StatWithRetry(ctx context.Context, path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry(ctx, "stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// ReadDirWithRetry is os.ReadDir retried on ESTALE.
func ReadDirWithRetry(ctx context.Context, path string, config RetryConfig) ([]os.DirEntry, error) {
	return withRetry(ctx, "readdir", path, config, func() ([]os.DirEntry, error) {
		return os.ReadDir(path)
	})
}

// OpenWithRetry is os.Open retried on ESTALE.
func OpenWithRetry(ctx context.Context, path string, config RetryConfig) (*os.File, error) {
	return withRetry(ctx, "open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}
