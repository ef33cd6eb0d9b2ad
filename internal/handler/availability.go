package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/trip-scheduler/internal/domain"
)

// AvailabilityRequest is the body of POST /availability. When end is omitted
// the window is start + duration_minutes, or the configured default trip
// length when that is omitted too.
type AvailabilityRequest struct {
	DriverID          *uuid.UUID `json:"driver_id,omitempty"`
	VehicleID         *uuid.UUID `json:"vehicle_id,omitempty"`
	Start             time.Time  `json:"start"`
	End               *time.Time `json:"end,omitempty"`
	DurationMinutes   *int       `json:"duration_minutes,omitempty"`
	ExcludeScheduleID *uuid.UUID `json:"exclude_schedule_id,omitempty"`
}

// ConflictSummary identifies one schedule blocking a requested window.
type ConflictSummary struct {
	ScheduleID  uuid.UUID  `json:"schedule_id"`
	DriverID    uuid.UUID  `json:"driver_id"`
	VehicleID   uuid.UUID  `json:"vehicle_id"`
	Status      string     `json:"status"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   *time.Time `json:"window_end"`
}

// AvailabilityResponse is the body of a successful availability check.
type AvailabilityResponse struct {
	Available        bool              `json:"available"`
	WindowStart      time.Time         `json:"window_start"`
	WindowEnd        *time.Time        `json:"window_end"`
	DriverConflicts  []ConflictSummary `json:"driver_conflicts"`
	VehicleConflicts []ConflictSummary `json:"vehicle_conflicts"`
	BothConflicts    []ConflictSummary `json:"both_conflicts"`
	Messages         []string          `json:"messages"`
}

// CheckAvailability handles POST /availability.
// A busy driver or vehicle is still a 200; callers read "available".
func (s *Server) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var body AvailabilityRequest
	if !decodeBody(w, r, &body) {
		return
	}

	q := domain.AvailabilityQuery{
		DriverID:          body.DriverID,
		VehicleID:         body.VehicleID,
		Start:             body.Start,
		End:               body.End,
		ExcludeScheduleID: body.ExcludeScheduleID,
	}
	if body.DurationMinutes != nil {
		if *body.DurationMinutes <= 0 {
			requestError(w, "duration_minutes must be positive")
			return
		}
		q.Duration = time.Duration(*body.DurationMinutes) * time.Minute
	}

	a, err := s.availability.Check(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	messages := s.availability.Describe(r.Context(), a)
	if messages == nil {
		messages = []string{}
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		Available:        a.Available(),
		WindowStart:      a.Window.Start,
		WindowEnd:        a.Window.End,
		DriverConflicts:  conflictsToResponse(a.DriverConflicts),
		VehicleConflicts: conflictsToResponse(a.VehicleConflicts),
		BothConflicts:    conflictsToResponse(a.BothConflicts),
		Messages:         messages,
	})
}

func conflictsToResponse(list []domain.Schedule) []ConflictSummary {
	out := make([]ConflictSummary, len(list))
	for i, s := range list {
		out[i] = conflictToResponse(s)
	}
	return out
}

func conflictToResponse(s domain.Schedule) ConflictSummary {
	return ConflictSummary{
		ScheduleID:  s.ID,
		DriverID:    s.DriverID,
		VehicleID:   s.VehicleID,
		Status:      string(s.Status),
		WindowStart: s.WindowStart,
		WindowEnd:   s.WindowEnd,
	}
}
