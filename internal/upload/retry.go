package upload

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryConfig defines retry behavior for upload operations.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns sensible defaults for S3 operations.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

// RetrySink wraps a Sink with retry logic.
type RetrySink struct {
	sink   Sink
	config RetryConfig
}

// NewRetrySink creates a new retrying sink wrapper.
func NewRetrySink(sink Sink, config RetryConfig) *RetrySink {
	return &RetrySink{sink: sink, config: config}
}

// Put implements Sink with retry logic.
func (r *RetrySink) Put(ctx context.Context, key string, data []byte) error {
	var lastErr error

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.calculateDelay(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := r.sink.Put(ctx, key, data)
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break // Don't retry non-retryable errors
		}
	}

	return fmt.Errorf("put failed after %d attempts: %w", r.config.MaxAttempts, lastErr)
}

// calculateDelay implements exponential backoff with jitter.
func (r *RetrySink) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	// Add jitter (±25%)
	jitter := delay * 0.25 * (2*float64(time.Now().UnixNano()%1000)/1000 - 1)
	return time.Duration(delay + jitter)
}

// isRetryableError determines if an error should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"server error",
		"throttling",
		"slowdown",
		"requesttimeout",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
