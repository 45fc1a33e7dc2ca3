package downloader

import (
	"context"
	"errors"
	"time"

	"github.com/colombo-hci/slopdetect/internal/domain"
)

// retryableFetchError reports whether a download error is worth another
// attempt. Expired signed URLs never recover; rate limits and transient
// network failures do.
func retryableFetchError(err error) bool {
	return !errors.Is(err, domain.ErrURLExpired)
}

// Backoff holds exponential backoff retry parameters.
type Backoff struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// DefaultBackoff returns sensible defaults for download retries.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2.0,
	}
}

// Retry executes fn with exponential backoff until it succeeds, the
// attempt budget is spent, or shouldRetry rejects the error. A nil
// shouldRetry retries every error.
func Retry[T any](ctx context.Context, b Backoff, fn func() (T, error), shouldRetry func(error) bool) (T, error) {
	var lastErr error
	var zero T

	delay := b.InitialDelay

	for attempt := 0; attempt < b.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if shouldRetry != nil && !shouldRetry(err) {
			break
		}
		if attempt == b.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * b.Factor)
		if delay > b.MaxDelay {
			delay = b.MaxDelay
		}
	}

	return zero, lastErr
}
