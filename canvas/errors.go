package canvas

import (
	"fmt"

	apperrors "github.com/jrsteele09/twill/internal/errors"
)

// AuthError is returned when Canvas rejects the bearer token (401 or 403).
type AuthError struct {
	URI        string
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("canvas rejected token for %s: status %d", e.URI, e.StatusCode)
}

func (e *AuthError) Unwrap() error {
	return apperrors.ErrUpstreamAuth
}

// UpstreamError is returned for any other non-2xx response.
type UpstreamError struct {
	URI        string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("canvas request %s failed: status %d: %s", e.URI, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return apperrors.ErrUpstream
}

// NetworkError is returned when the request never produced a response, timeouts included.
type NetworkError struct {
	URI string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("canvas request %s: %v", e.URI, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	return []error{apperrors.ErrNetwork, e.Err}
}
