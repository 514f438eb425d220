// Package errs holds the error kinds shared across readq packages.
// Callers wrap these sentinels with context and test for them with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input that is out of range or malformed.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an id the backing store does not know.
	ErrNotFound = errors.New("not found")
	// ErrBackendUnavailable marks a failure of the whole mutation channel.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Validationf returns an ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns an ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Unavailable wraps cause as ErrBackendUnavailable, keeping cause inspectable.
func Unavailable(cause error) error {
	if cause == nil {
		return ErrBackendUnavailable
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, cause)
}
