package github

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RetryOptions configures retry behavior. The zero value makes one attempt.
type RetryOptions struct {
	MaxRetries int           // Maximum number of retries after the first attempt
	BaseDelay  time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries
}

// DefaultRetryOptions returns the backoff used by one-shot commands.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// WithRetry executes an operation with exponential backoff retry.
// It respects context cancellation and GitHub's Retry-After header.
func WithRetry[T any](ctx context.Context, op func() (T, error), opts RetryOptions) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		result, lastErr = op()
		if lastErr == nil {
			return result, nil
		}
		if !isRetryableError(lastErr) || attempt >= opts.MaxRetries {
			return result, lastErr
		}

		// 1s, 2s, 4s, 8s...
		delay := opts.BaseDelay * time.Duration(1<<uint(attempt))
		if opts.MaxDelay > 0 && delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
		if retryAfter := extractRetryAfter(lastErr); retryAfter > 0 {
			delay = retryAfter
			if opts.MaxDelay > 0 && delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
	}

	return result, lastErr
}

// WithRetryVoid is like WithRetry but for operations that don't return a value.
func WithRetryVoid(ctx context.Context, op func() error, opts RetryOptions) error {
	_, err := WithRetry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, opts)
	return err
}

// isRetryableError reports rate limiting, 5xx gateway failures and network
// errors. Client errors (400, 401, 403, 404, 422) are final.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	errStr := err.Error()
	for _, status := range []string{"status 429", "status 500", "status 502", "status 503", "status 504"} {
		if strings.Contains(errStr, status) {
			return true
		}
	}

	networkErrors := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"context deadline exceeded",
		"dial tcp",
	}
	errLower := strings.ToLower(errStr)
	for _, netErr := range networkErrors {
		if strings.Contains(errLower, netErr) {
			return true
		}
	}

	return false
}

var retryAfterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry.after[:\s]+(\d+)`),
	regexp.MustCompile(`(?i)rate.limit.*?(\d+)\s*seconds?`),
}

// extractRetryAfter returns how long GitHub asked us to wait, or 0.
func extractRetryAfter(err error) time.Duration {
	if err == nil {
		return 0
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}

	errStr := err.Error()
	for _, re := range retryAfterPatterns {
		if m := re.FindStringSubmatch(errStr); len(m) > 1 {
			if seconds, parseErr := strconv.Atoi(m[1]); parseErr == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	// Secondary rate limits without a hint reset within a minute.
	if statusOf(err) == http.StatusTooManyRequests || strings.Contains(errStr, "status 429") {
		return 60 * time.Second
	}

	return 0
}
