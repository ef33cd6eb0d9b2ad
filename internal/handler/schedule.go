package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/trip-scheduler/internal/domain"
	"github.com/pkordes/trip-scheduler/internal/service"
)

// ActorHeader names the header carrying the id of the user making a change.
// Authentication happens upstream; the scheduler trusts this value.
const ActorHeader = "X-Actor-ID"

// ---- request / response shapes ---------------------------------------------

// CreateScheduleRequest is the body of POST /schedules.
type CreateScheduleRequest struct {
	DriverID     uuid.UUID            `json:"driver_id"`
	VehicleID    uuid.UUID            `json:"vehicle_id"`
	Destinations []domain.Destination `json:"destinations"`
}

// UpdateScheduleRequest is the body of PATCH /schedules/{id}. Omitted fields
// are left unchanged; "destinations": [] cancels the schedule.
type UpdateScheduleRequest struct {
	DriverID     *uuid.UUID            `json:"driver_id,omitempty"`
	VehicleID    *uuid.UUID            `json:"vehicle_id,omitempty"`
	Destinations *[]domain.Destination `json:"destinations,omitempty"`
	Status       *string               `json:"status,omitempty"`
}

// TripProgressRequest is the body of the start and complete endpoints.
type TripProgressRequest struct {
	Odometer    *float64            `json:"odometer"`
	Coordinates *domain.Coordinates `json:"coordinates,omitempty"`
}

// Schedule is the API representation of a schedule.
type Schedule struct {
	ID           uuid.UUID            `json:"id"`
	DriverID     uuid.UUID            `json:"driver_id"`
	VehicleID    uuid.UUID            `json:"vehicle_id"`
	Destinations []domain.Destination `json:"destinations"`
	Status       string               `json:"status"`
	WindowStart  time.Time            `json:"window_start"`
	WindowEnd    *time.Time           `json:"window_end"`
	IsActive     bool                 `json:"is_active"`
	DeletedAt    *time.Time           `json:"deleted_at,omitempty"`
	DeletedBy    *uuid.UUID           `json:"deleted_by,omitempty"`

	StartedAt        *time.Time          `json:"started_at,omitempty"`
	StartedBy        *uuid.UUID          `json:"started_by,omitempty"`
	StartOdometer    *float64            `json:"start_odometer,omitempty"`
	StartCoordinates *domain.Coordinates `json:"start_coordinates,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	CompletedBy      *uuid.UUID          `json:"completed_by,omitempty"`
	EndOdometer      *float64            `json:"end_odometer,omitempty"`
	EndCoordinates   *domain.Coordinates `json:"end_coordinates,omitempty"`

	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// ScheduleList is the body of GET /schedules.
type ScheduleList struct {
	Data       []Schedule `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// ---- handlers --------------------------------------------------------------

// CreateSchedule handles POST /schedules.
func (s *Server) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body CreateScheduleRequest
	if !decodeBody(w, r, &body) {
		return
	}

	created, err := s.schedules.Create(r.Context(), service.CreateScheduleInput{
		DriverID:     body.DriverID,
		VehicleID:    body.VehicleID,
		Destinations: body.Destinations,
	}, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, scheduleToResponse(created))
}

// ListSchedules handles GET /schedules.
// Supports ?driver_id=, ?vehicle_id=, ?status=, ?page= and ?limit=
// (defaults: page=1, limit=20, max=100).
func (s *Server) ListSchedules(w http.ResponseWriter, r *http.Request) {
	var (
		page, limit         *int
		driverID, vehicleID *openapi_types.UUID
		status              *string
	)
	q := r.URL.Query()
	for name, dest := range map[string]any{
		"page":       &page,
		"limit":      &limit,
		"driver_id":  &driverID,
		"vehicle_id": &vehicleID,
		"status":     &status,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
			requestError(w, fmt.Sprintf("invalid query parameter %s", name))
			return
		}
	}

	f := domain.ScheduleFilter{DriverID: driverID, VehicleID: vehicleID}
	if status != nil {
		st, err := domain.ParseScheduleStatus(*status)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		f.Status = &st
	}

	params := domain.NewPaginationParams(page, limit)
	schedules, total, err := s.schedules.List(r.Context(), f, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data := make([]Schedule, len(schedules))
	for i, sch := range schedules {
		data[i] = scheduleToResponse(sch)
	}
	writeJSON(w, http.StatusOK, ScheduleList{
		Data: data,
		Pagination: Pagination{
			Page:  params.Page,
			Limit: params.Limit,
			Total: int(total),
		},
	})
}

// GetSchedule handles GET /schedules/{id}.
func (s *Server) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sch, err := s.schedules.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleToResponse(sch))
}

// UpdateSchedule handles PATCH /schedules/{id}.
func (s *Server) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body UpdateScheduleRequest
	if !decodeBody(w, r, &body) {
		return
	}

	patch := service.SchedulePatch{
		DriverID:     body.DriverID,
		VehicleID:    body.VehicleID,
		Destinations: body.Destinations,
	}
	if body.Status != nil {
		st, err := domain.ParseScheduleStatus(*body.Status)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		patch.Status = &st
	}

	updated, err := s.schedules.Update(r.Context(), id, patch, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleToResponse(updated))
}

// CancelSchedule handles POST /schedules/{id}/cancel.
func (s *Server) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	s.terminate(w, r, s.schedules.Cancel)
}

// DeleteSchedule handles DELETE /schedules/{id}.
// The schedule is soft-deleted and returned with is_active=false.
func (s *Server) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	s.terminate(w, r, s.schedules.Delete)
}

// StartTrip handles POST /schedules/{id}/start.
func (s *Server) StartTrip(w http.ResponseWriter, r *http.Request) {
	s.progress(w, r, s.schedules.StartTrip)
}

// CompleteTrip handles POST /schedules/{id}/complete.
func (s *Server) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	s.progress(w, r, s.schedules.CompleteTrip)
}

type terminateFunc func(ctx context.Context, id, actor uuid.UUID) (domain.Schedule, error)

func (s *Server) terminate(w http.ResponseWriter, r *http.Request, fn terminateFunc) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	out, err := fn(r.Context(), id, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleToResponse(out))
}

type progressFunc func(ctx context.Context, id, actor uuid.UUID, p domain.TripProgress) (domain.Schedule, error)

func (s *Server) progress(w http.ResponseWriter, r *http.Request, fn progressFunc) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body TripProgressRequest
	if !decodeBody(w, r, &body) {
		return
	}
	out, err := fn(r.Context(), id, actor, domain.TripProgress{Odometer: body.Odometer, Coordinates: body.Coordinates})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleToResponse(out))
}

// ---- helpers ---------------------------------------------------------------

// pathID binds the {id} path parameter, writing a 422 when it is not a UUID.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		requestError(w, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// requireActor reads the acting user from ActorHeader, writing a 401 when it
// is missing or malformed.
func requireActor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actor, err := uuid.Parse(r.Header.Get(ActorHeader))
	if err != nil || actor == uuid.Nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorDetail{
			Code:    "unauthorized",
			Message: ActorHeader + " header must carry the acting user's id",
		}})
		return uuid.Nil, false
	}
	return actor, true
}

// decodeBody decodes the JSON request body into dst, writing a 413 when the
// body exceeds the size limit and a 422 for any other decode failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: ErrorDetail{Code: "payload_too_large", Message: "request body too large"}})
	case errors.Is(err, domain.ErrInvalidArgument):
		requestError(w, unwrapMessage(err, domain.ErrInvalidArgument))
	default:
		requestError(w, "request body must be valid JSON")
	}
	return false
}

func scheduleToResponse(s domain.Schedule) Schedule {
	dests := s.Destinations
	if dests == nil {
		dests = []domain.Destination{}
	}
	return Schedule{
		ID:               s.ID,
		DriverID:         s.DriverID,
		VehicleID:        s.VehicleID,
		Destinations:     dests,
		Status:           string(s.Status),
		WindowStart:      s.WindowStart,
		WindowEnd:        s.WindowEnd,
		IsActive:         s.IsActive,
		DeletedAt:        s.DeletedAt,
		DeletedBy:        s.DeletedBy,
		StartedAt:        s.StartedAt,
		StartedBy:        s.StartedBy,
		StartOdometer:    s.StartOdometer,
		StartCoordinates: s.StartCoordinates,
		CompletedAt:      s.CompletedAt,
		CompletedBy:      s.CompletedBy,
		EndOdometer:      s.EndOdometer,
		EndCoordinates:   s.EndCoordinates,
		CreatedBy:        s.CreatedBy,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}
