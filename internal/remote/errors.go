// Package remote talks to the authorization service that mirrors the
// catalog's path tree: a retrying HTTP client that pushes path updates and
// reads back the last sequence number the service has seen, and a replica
// implementation of the service itself.
package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Use errors.Is(err, remote.ErrUnavailable) to check.
var (
	// ErrUnavailable means no endpoint answered within the retry budget.
	ErrUnavailable = errors.New("remote: service unavailable")

	// ErrRejected means an endpoint answered with a non-retryable 4xx.
	ErrRejected = errors.New("remote: request rejected")
)

// StatusError wraps a sentinel error with the HTTP status code, the
// request ID, and the response body.
type StatusError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *StatusError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("remote: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("remote: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx status code to a sentinel error.
func classifyStatus(code int) error {
	if code >= http.StatusBadRequest && code < http.StatusInternalServerError && !isRetryable(code) {
		return ErrRejected
	}

	return ErrUnavailable
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
