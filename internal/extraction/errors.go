package extraction

import (
	"errors"
	"fmt"
)

// Sentinel errors for the extraction contract. All are recoverable at the
// job level; the worker records them and moves on.
var (
	ErrImageConversion = errors.New("image conversion failed")
	ErrInvalidResponse = errors.New("invalid extraction response")
	// ErrAuthentication means HTTP 401; the stored token has already been
	// invalidated when this is returned.
	ErrAuthentication = errors.New("authentication failed")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrNetwork        = errors.New("network error")
)

// ServerError carries the endpoint's best-effort error body for any other
// non-200 status.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("extraction server error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("extraction server error: status %d: %s", e.StatusCode, e.Message)
}
