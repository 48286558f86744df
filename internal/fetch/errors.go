package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"assetsync/internal/services"
)

// ErrBadMagic reports a payload without a Unity bundle signature.
var ErrBadMagic = errors.New("payload is not a Unity asset bundle")

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, strings.ToLower(http.StatusText(e.StatusCode)))
}

// Error is a fetch failure after the retry budget was spent or a permanent
// failure was seen.
type Error struct {
	Bundle   string
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %d attempt(s): %v", e.Bundle, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps the failure onto the services markers: missing bundles are
// ErrNotFound, corrupt payloads ErrValidation, everything else ErrTransient.
func (e *Error) Is(target error) bool {
	switch target {
	case services.ErrNotFound:
		return e.StatusCode() == http.StatusNotFound || e.StatusCode() == http.StatusGone
	case services.ErrValidation:
		return errors.Is(e.Err, ErrBadMagic)
	case services.ErrTransient:
		code := e.StatusCode()
		return code != http.StatusNotFound && code != http.StatusGone && !errors.Is(e.Err, ErrBadMagic)
	}
	return false
}

// StatusCode returns the HTTP status behind the failure, or zero.
func (e *Error) StatusCode() int {
	var statusErr *StatusError
	if errors.As(e.Err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
