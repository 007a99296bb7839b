package ai

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/famhealth/famhealth/internal/observability"
)

// RetryConfig controls retry behavior for provider requests.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns retry settings tuned for a rate-limited provider.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// permanentError marks an error as non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// permanent wraps err so withRetry returns it immediately.
func permanent(err error) error {
	return &permanentError{err: err}
}

// withRetry runs fn with exponential backoff and jitter. A permanent error or
// a cancelled context stops retrying immediately.
func withRetry(ctx context.Context, cfg RetryConfig, logger *observability.Logger, fn func() error) error {
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		jittered := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		logger.Warn().
			Int("attempt", attempt).
			Dur("backoff", jittered).
			Err(err).
			Msg("provider request failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}
