// ABOUTME: Transient error detection and retry for model invocations
// ABOUTME: Up to two retries with linear backoff, matching upstream rate-limit behavior

package llm

import (
	"context"
	"strings"
	"time"
)

const (
	maxTransientRetries = 2
	retryBaseDelay      = time.Second
)

// isRetryable reports whether a provider error is transient: rate
// limits, server errors, timeouts and connection drops.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "overloaded",
		"500", "502", "503", "504",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn, retrying transient failures up to
// maxTransientRetries times with linearly increasing delay.
func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBaseDelay * time.Duration(attempt)):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// retryStream runs fn with the same policy as withRetry, but only while
// fn has not yet emitted anything to the caller. fn must set *emitted
// before sending its first event; after that a retry would replay
// deltas the client already saw, so any failure is final.
func retryStream(ctx context.Context, fn func(emitted *bool) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBaseDelay * time.Duration(attempt)):
			}
		}

		var emitted bool
		lastErr = fn(&emitted)
		if lastErr == nil {
			return nil
		}
		if emitted || !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
