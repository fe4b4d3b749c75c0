package shared

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrForbidden          = fmt.Errorf("not permitted")

	// Input validation errors
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrInvalidArgument    = fmt.Errorf("invalid argument")
	ErrMalformedTimestamp = fmt.Errorf("malformed timestamp")

	// Run errors
	ErrRunFailures = fmt.Errorf("run completed with failures")
	ErrRunNotFound = fmt.Errorf("run not found")
)

// IsAuthorizationFailure reports whether err means the credential is missing, expired or lacks scope.
// [ErrForbidden] is scoped to one resource and does not count.
func IsAuthorizationFailure(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrTokenExpired)
}

// IsTransient reports whether retrying the same operation later may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrTimeout)
}

// PeriodError records a failed operation against a single monthly playlist.
type PeriodError struct {
	Period   string // YYYYMM key
	Playlist string // Target playlist name
	Op       string // create, fetch, append
	Err      error
}

func (e *PeriodError) Error() string {
	return fmt.Sprintf("%s %s (period %s): %v", e.Op, e.Playlist, e.Period, e.Err)
}

func (e *PeriodError) Unwrap() error {
	return e.Err
}
