package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repo and service functions when the requested
// schedule, driver, vehicle, or trip request does not exist.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a schedule would double-book a driver or
// vehicle, or when a trip request is already claimed by another schedule.
// Handlers should map this to HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrInvalidState is returned when an operation is not allowed from the
// current status (e.g. completing a trip that was never started).
// Handlers should map this to HTTP 409.
var ErrInvalidState = errors.New("invalid state")

// ErrInvalidArgument is returned by service functions when input fails
// business rule validation (e.g. empty destination list, no driver or
// vehicle given to an availability check).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrInvalidArgument = errors.New("validation error")

// ConflictError reports the schedules that collide with a requested window.
// It unwraps to ErrConflict so callers can keep using errors.Is.
type ConflictError struct {
	Availability Availability
	Messages     []string // one human-readable line per colliding schedule
}

func (e *ConflictError) Error() string {
	n := len(e.Availability.Conflicts())
	return fmt.Sprintf("%s: %d overlapping schedule(s)", ErrConflict, n)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
