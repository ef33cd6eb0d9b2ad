// Package handler implements the HTTP handlers for the trip scheduler API.
// All handlers are methods on Server. They decode requests, call the service
// layer through the interfaces below, and map domain errors to HTTP responses.
// Methods are split into files by resource (health.go, schedule.go, etc.).
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/trip-scheduler/internal/domain"
	"github.com/pkordes/trip-scheduler/internal/service"
	"github.com/pkordes/trip-scheduler/spec"
)

// ScheduleServicer defines the lifecycle operations the schedule handlers
// depend on. Defined here, in the consumer package, so handler tests can
// inject a mock without a database.
type ScheduleServicer interface {
	Create(ctx context.Context, in service.CreateScheduleInput, actor uuid.UUID) (domain.Schedule, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Schedule, error)
	List(ctx context.Context, f domain.ScheduleFilter, p domain.PaginationParams) ([]domain.Schedule, int64, error)
	Update(ctx context.Context, id uuid.UUID, patch service.SchedulePatch, actor uuid.UUID) (domain.Schedule, error)
	Cancel(ctx context.Context, id, actor uuid.UUID) (domain.Schedule, error)
	Delete(ctx context.Context, id, actor uuid.UUID) (domain.Schedule, error)
	StartTrip(ctx context.Context, id, actor uuid.UUID, p domain.TripProgress) (domain.Schedule, error)
	CompleteTrip(ctx context.Context, id, actor uuid.UUID, p domain.TripProgress) (domain.Schedule, error)
}

// AvailabilityChecker defines the conflict check the availability handler uses.
type AvailabilityChecker interface {
	Check(ctx context.Context, q domain.AvailabilityQuery) (domain.Availability, error)
	Describe(ctx context.Context, a domain.Availability) []string
}

// Pinger reports whether a backing dependency is reachable.
// *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies shared by every handler.
type Server struct {
	schedules    ScheduleServicer
	availability AvailabilityChecker
	db           Pinger
	log          *slog.Logger
}

// NewServer constructs the Server with all its dependencies. db may be nil,
// in which case /healthz does not check the database.
func NewServer(schedules ScheduleServicer, availability AvailabilityChecker, db Pinger, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{schedules: schedules, availability: availability, db: db, log: log}
}

// NewHealthHandler returns a Server for health-check-only use.
func NewHealthHandler() *Server {
	return NewServer(nil, nil, nil, nil)
}

// Routes registers every endpoint on r. Middleware is applied by the caller.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", s.CreateSchedule)
		r.Get("/", s.ListSchedules)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSchedule)
			r.Patch("/", s.UpdateSchedule)
			r.Delete("/", s.DeleteSchedule)
			r.Post("/cancel", s.CancelSchedule)
			r.Post("/start", s.StartTrip)
			r.Post("/complete", s.CompleteTrip)
		})
	})
	r.Post("/availability", s.CheckAvailability)
}

// Handler returns a router with every endpoint registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

// GetOpenAPI handles GET /openapi.yaml.
func (s *Server) GetOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(spec.OpenAPI)
}
