// Package cdperr defines the error taxonomy of the data plane.
//
// Every component classifies failures into one of these categories so the
// write path can decide between fail-fast, retry, and local fallback without
// inspecting backend-specific error types.
package cdperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers bad input: missing required fields, invalid
	// dates, emails, phones, amounts out of range.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicate is returned on unique-constraint style collisions,
	// e.g. a client name that already exists.
	ErrDuplicate = errors.New("duplicate entity")

	// ErrNotFound is returned when an entity id does not resolve.
	ErrNotFound = errors.New("entity not found")

	// ErrTransientRemote marks remote failures worth retrying: network,
	// 5xx, rate limits. The gateway retries these before giving up.
	ErrTransientRemote = errors.New("transient remote failure")

	// ErrTerminalRemote marks remote failures that retrying cannot fix:
	// permission denied, missing table, unique violation, bad request.
	ErrTerminalRemote = errors.New("terminal remote failure")

	// ErrLocalCorruption marks local-tier damage: unreadable JSON, a
	// failing storage probe, quota exhaustion.
	ErrLocalCorruption = errors.New("local storage corruption")

	// ErrBusClosed is returned by bus operations after Destroy.
	ErrBusClosed = errors.New("event bus destroyed")
)

// Validation wraps a message as a validation error.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Duplicate wraps a message as a duplicate error.
func Duplicate(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDuplicate, fmt.Sprintf(format, args...))
}

// NotFound wraps a message as a not-found error.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// IsFatal reports whether err must be surfaced to the caller instead of
// falling back to the local tier. Validation, duplicate, not-found and
// terminal remote errors never trigger a fallback write.
func IsFatal(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTerminalRemote)
}

// IsRetryable reports whether the gateway should retry the operation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrTerminalRemote) &&
		!errors.Is(err, ErrValidation) &&
		!errors.Is(err, ErrDuplicate) &&
		!errors.Is(err, ErrNotFound)
}
