package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the launch, authentication and fetch pipeline
var (
	// Launch errors
	ErrLaunchDenied  = errors.New("lti launch denied")
	ErrInvalidLTIKey = fmt.Errorf("invalid lti consumer key: %w", ErrLaunchDenied)
	ErrInvalidLaunch = fmt.Errorf("invalid lti launch request: %w", ErrLaunchDenied)

	// Authentication errors
	ErrAuthExchangeFailed    = errors.New("oauth2 exchange failed")
	ErrUnauthenticatedAccess = errors.New("no valid lti launch for this session")
	ErrCredentialNotFound    = errors.New("credential not found")
	ErrSessionInvalid        = errors.New("session invalid")

	// Upstream (LMS API) errors
	ErrUpstreamFetchFailed = errors.New("upstream fetch failed")
	ErrUpstreamAuth        = fmt.Errorf("upstream rejected credentials: %w", ErrUpstreamFetchFailed)
	ErrUpstream            = fmt.Errorf("upstream returned an error status: %w", ErrUpstreamFetchFailed)
	ErrNetwork             = fmt.Errorf("upstream unreachable: %w", ErrUpstreamFetchFailed)

	// General errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInternal      = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return errors.Join(errs...)
}
