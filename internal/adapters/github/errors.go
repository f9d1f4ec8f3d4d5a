package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports a 404 response.
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsUnprocessable reports a 422 response.
func IsUnprocessable(err error) bool {
	return statusOf(err) == http.StatusUnprocessableEntity
}

// IsAlreadyExists reports the 422 GitHub returns when creating a resource
// that already exists.
func IsAlreadyExists(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	return strings.Contains(apiErr.Body, "already_exists")
}
