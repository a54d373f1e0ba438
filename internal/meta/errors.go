// Package meta provides an HTTP client for the remote storage metadata API
// with error classification. The watch engine uses it to read a table's
// freshness signal and structural detail.
package meta

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, meta.ErrThrottled) to check.
var (
	ErrBadRequest   = errors.New("meta: bad request")
	ErrUnauthorized = errors.New("meta: unauthorized")
	ErrForbidden    = errors.New("meta: forbidden")
	ErrNotFound     = errors.New("meta: table not found")
	ErrThrottled    = errors.New("meta: throttled")
	ErrServerError  = errors.New("meta: server error")
)

// APIError wraps a sentinel error with the HTTP status code and the API
// error message body for debugging.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meta: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return fmt.Errorf("meta: unexpected status %d", code)
	}
}
