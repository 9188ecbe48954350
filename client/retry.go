package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"
)

// RetryPolicy controls retries of idempotent requests (Health and
// Discover). Invoke and Stream are never retried.
type RetryPolicy struct {
	// MaxAttempts includes the first try. Zero or one disables retries.
	MaxAttempts int
	// Backoff is multiplied by the attempt number between tries.
	Backoff time.Duration
}

type attemptFunc func(ctx context.Context) error

func doWithRetry(ctx context.Context, policy RetryPolicy, fn attemptFunc) error {
	normalized := normalizeRetryPolicy(policy)
	var lastErr error

	for attempt := 1; attempt <= normalized.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == normalized.MaxAttempts || !isRetryableError(lastErr) {
			return lastErr
		}

		wait := retryBackoffDuration(normalized, attempt)
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

func normalizeRetryPolicy(policy RetryPolicy) RetryPolicy {
	out := policy
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 1
	}
	if out.Backoff < 0 {
		out.Backoff = 0
	}
	return out
}

func retryBackoffDuration(policy RetryPolicy, attempt int) time.Duration {
	if policy.Backoff <= 0 || attempt <= 0 {
		return 0
	}
	return policy.Backoff * time.Duration(attempt)
}

// isRetryableError reports failures that a later attempt may not hit: the
// server not listening yet, timeouts and gateway-style statuses.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
