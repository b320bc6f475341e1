package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const clientTimeout = 30 * time.Second

var (
	// ErrNotFound is returned for 404 and 410 responses.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("access denied")

	// ErrNetwork marks transport failures and unexpected statuses.
	ErrNetwork = errors.New("network error")
)

// NewClient creates an HTTP client with the standard repository timeout.
func NewClient() *http.Client {
	return &http.Client{Timeout: clientTimeout}
}

// CheckStatus maps an HTTP status code to an error. Successful codes yield
// nil; transient failures are wrapped in [RetryableError].
func CheckStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound, code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, code)
	case code == http.StatusTooManyRequests, code >= 500:
		return &RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, code)}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
