package helper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"helpcenter-rag/internal/models"
)

const (
	defaultMaxRetries   = 3
	defaultInitialDelay = 500 * time.Millisecond
	delayMultiplier     = 2
)

// RetryConfig configures retry behavior for remote calls.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Defaults to errors wrapping models.ErrTransient.
	Retryable func(error) bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   defaultMaxRetries,
		InitialDelay: defaultInitialDelay,
	}
}

// IsTransient reports whether err is marked transient.
func IsTransient(err error) bool {
	return errors.Is(err, models.ErrTransient)
}

// IsRetryableAPIError extends IsTransient to rate limits and server errors
// reported by OpenAI compatible clients. Cancellation is never retried.
func IsRetryableAPIError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsTransient(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "status code: 429") || strings.Contains(msg, "status code: 5")
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. The delay doubles after each failed attempt.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.Retryable == nil {
		cfg.Retryable = IsTransient
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry interrupted: %w", ctx.Err())
			case <-time.After(delay):
				delay *= delayMultiplier
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !cfg.Retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
