package faults

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Jitter:     250 * time.Millisecond,
	}
}

// Delay computes the backoff before the given attempt (1-based):
// base * 2^(attempt-1) plus random jitter, capped at MaxDelay.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if c.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(c.Jitter)))
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// Retry runs operation until it succeeds, fails with a non-retryable kind,
// exhausts MaxRetries, or the context is cancelled. It is scoped to one
// logical operation (one search attempt, one stream reconnect) and must not
// be applied at the individual-provider level.
func Retry(ctx context.Context, config RetryConfig, logger *logrus.Logger, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		kind := KindOf(lastErr)
		if !Retryable(kind) {
			return lastErr
		}

		if attempt == config.MaxRetries {
			return fmt.Errorf("operation failed after %d retries: %w", config.MaxRetries, lastErr)
		}

		delay := config.Delay(attempt + 1)

		if logger != nil {
			logger.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"kind":    kind,
				"delay":   delay,
				"error":   lastErr.Error(),
			}).Warn("Retrying operation")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
