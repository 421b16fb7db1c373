package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "citystories/pkg/errors"
	"citystories/pkg/logger"
)

// Operation is one attempt of a retried call
type Operation func(ctx context.Context) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf decides whether an error is worth another attempt
	RetryIf func(error) bool
	// OnRetry is called before sleeping ahead of the next attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultConfig returns the configuration used for metadata requests
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 2,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.NewNopLogger(),
	}
}

// DefaultRetryIf retries network failures and 5xx responses only. Rate
// limits, auth failures and malformed bodies are returned immediately.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		var apiErr *errs.Error
		// a per-request timeout surfaces as a typed network error
		return errors.As(err, &apiErr) && errs.IsRetryable(apiErr.Type)
	}
	return errs.IsRetryable(errs.TypeOf(err))
}

// Do runs op until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. The last error is returned unwrapped so callers
// can inspect it.
func Do(ctx context.Context, cfg *Config, op Operation) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) || attempt == maxAttempts {
			break
		}

		var delay time.Duration
		if cfg.Backoff != nil {
			delay = cfg.Backoff.NextDelay(attempt)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"error":        err.Error(),
			"delay":        delay,
		})

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", lastErr)
		}
	}
	return lastErr
}

// DoWithResult is Do for operations that produce a value
func DoWithResult[T any](ctx context.Context, cfg *Config, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
