// Package domain contains the core data types for the trip scheduler.
// It holds no I/O and is imported by every other internal package
// (repo, service, notify, handler).
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScheduleStatus is the lifecycle state of a Schedule.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusStarted   ScheduleStatus = "started"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// ParseScheduleStatus validates a status coming from outside the service.
func ParseScheduleStatus(s string) (ScheduleStatus, error) {
	switch st := ScheduleStatus(s); st {
	case ScheduleStatusScheduled, ScheduleStatusStarted, ScheduleStatusCompleted, ScheduleStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown schedule status %q", ErrInvalidArgument, s)
}

// Terminal reports whether no further edits are allowed.
func (s ScheduleStatus) Terminal() bool {
	return s == ScheduleStatusCompleted || s == ScheduleStatusCancelled
}

// Blocking reports whether a schedule in this status occupies its driver
// and vehicle.
func (s ScheduleStatus) Blocking() bool {
	return s == ScheduleStatusScheduled || s == ScheduleStatusStarted
}

// CanTransition reports whether the state machine allows from -> to:
//
//	scheduled -> started -> completed
//	scheduled | started -> cancelled
func CanTransition(from, to ScheduleStatus) bool {
	switch from {
	case ScheduleStatusScheduled:
		return to == ScheduleStatusStarted || to == ScheduleStatusCancelled
	case ScheduleStatusStarted:
		return to == ScheduleStatusCompleted || to == ScheduleStatusCancelled
	}
	return false
}

// Coordinates is a latitude/longitude pair recorded at trip start or end.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TripProgress is the actual start or end metadata captured by the driver.
type TripProgress struct {
	Odometer    *float64
	Coordinates *Coordinates
}

// Schedule assigns one driver and one vehicle to an ordered list of
// destinations. WindowStart/WindowEnd are always derived from Destinations
// via AggregateWindow; WindowEnd is nil for open-ended schedules.
type Schedule struct {
	ID           uuid.UUID
	DriverID     uuid.UUID
	VehicleID    uuid.UUID
	Destinations []Destination
	Status       ScheduleStatus

	WindowStart time.Time
	WindowEnd   *time.Time

	IsActive  bool
	DeletedAt *time.Time
	DeletedBy *uuid.UUID

	StartedAt        *time.Time
	StartedBy        *uuid.UUID
	StartOdometer    *float64
	StartCoordinates *Coordinates

	CompletedAt    *time.Time
	CompletedBy    *uuid.UUID
	EndOdometer    *float64
	EndCoordinates *Coordinates

	CreatedBy uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Window returns the schedule's aggregate window.
func (s Schedule) Window() TimeWindow {
	return TimeWindow{Start: s.WindowStart, End: s.WindowEnd}
}

// Active reports whether the schedule takes part in conflict detection.
func (s Schedule) Active() bool {
	return s.IsActive && s.DeletedAt == nil && s.Status.Blocking()
}

// SetDestinations replaces the destination list and recomputes the window.
// An empty list leaves the previous window in place.
func (s *Schedule) SetDestinations(dests []Destination) {
	s.Destinations = dests
	if w, ok := AggregateWindow(dests); ok {
		s.WindowStart = w.Start
		s.WindowEnd = w.End
	}
}

// MarkCancelled moves the schedule to cancelled and stamps who did it.
func (s *Schedule) MarkCancelled(actor uuid.UUID, at time.Time) {
	s.Status = ScheduleStatusCancelled
	s.DeletedAt = &at
	s.DeletedBy = &actor
}

// Start applies the scheduled -> started transition.
func (s *Schedule) Start(actor uuid.UUID, at time.Time, p TripProgress) error {
	if s.Status != ScheduleStatusScheduled {
		return fmt.Errorf("%w: cannot start a trip in status %q", ErrInvalidState, s.Status)
	}
	if p.Odometer == nil {
		return fmt.Errorf("%w: odometer is required", ErrInvalidArgument)
	}
	s.Status = ScheduleStatusStarted
	s.StartedAt = &at
	s.StartedBy = &actor
	s.StartOdometer = p.Odometer
	s.StartCoordinates = p.Coordinates
	return nil
}

// Complete applies the started -> completed transition.
func (s *Schedule) Complete(actor uuid.UUID, at time.Time, p TripProgress) error {
	if s.Status != ScheduleStatusStarted {
		return fmt.Errorf("%w: cannot complete a trip in status %q", ErrInvalidState, s.Status)
	}
	if p.Odometer == nil {
		return fmt.Errorf("%w: odometer is required", ErrInvalidArgument)
	}
	if s.StartOdometer != nil && *p.Odometer < *s.StartOdometer {
		return fmt.Errorf("%w: end odometer must not be below start odometer", ErrInvalidArgument)
	}
	s.Status = ScheduleStatusCompleted
	s.CompletedAt = &at
	s.CompletedBy = &actor
	s.EndOdometer = p.Odometer
	s.EndCoordinates = p.Coordinates
	return nil
}

// ScheduleFilter narrows List results. Nil fields match everything.
type ScheduleFilter struct {
	DriverID  *uuid.UUID
	VehicleID *uuid.UUID
	Status    *ScheduleStatus
}
