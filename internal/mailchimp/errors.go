package mailchimp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned by a client built without credentials
	ErrNotConfigured = errors.New("mailchimp credentials not configured")
	// ErrRegionNotFound is returned for a region outside the region set
	ErrRegionNotFound = errors.New("region not found")
)

// TransportError is a failed upstream call: network error, timeout,
// non-2xx status or an open circuit breaker.
type TransportError struct {
	Region     string
	Path       string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("mailchimp %s %s: HTTP %d: %v", e.Region, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("mailchimp %s %s: %v", e.Region, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// retryable reports whether the status is worth another GET attempt
func retryable(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
