// Package service contains the business logic for the trip scheduler.
// Services validate inputs, enforce business rules, and orchestrate repo calls.
// No SQL lives here; services depend on repo interfaces, not implementations.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkordes/trip-scheduler/internal/domain"
	"github.com/pkordes/trip-scheduler/internal/metrics"
	"github.com/pkordes/trip-scheduler/internal/notify"
	"github.com/pkordes/trip-scheduler/internal/repo"
)

// AvailabilityService detects driver and vehicle double-bookings.
// Check is read-only; the lifecycle manager repeats it under lock before
// writing.
type AvailabilityService struct {
	schedules       repo.ScheduleRepo
	describer       *notify.Describer
	defaultDuration time.Duration
}

// NewAvailabilityService constructs an AvailabilityService. defaultDuration
// is the assumed trip length when a query gives no end; zero means
// domain.DefaultTripDuration.
func NewAvailabilityService(schedules repo.ScheduleRepo, describer *notify.Describer, defaultDuration time.Duration) *AvailabilityService {
	if defaultDuration <= 0 {
		defaultDuration = domain.DefaultTripDuration
	}
	return &AvailabilityService{schedules: schedules, describer: describer, defaultDuration: defaultDuration}
}

// Check returns every active schedule that overlaps the query window on the
// same driver or vehicle, partitioned by the resource that collides.
// Returns domain.ErrInvalidArgument if neither driver nor vehicle is given.
func (s *AvailabilityService) Check(ctx context.Context, q domain.AvailabilityQuery) (domain.Availability, error) {
	a, err := s.check(ctx, s.schedules, q)
	if err != nil {
		return domain.Availability{}, fmt.Errorf("service.AvailabilityService.Check: %w", err)
	}
	return a, nil
}

// check runs the query against schedules, which may be bound to a transaction.
func (s *AvailabilityService) check(ctx context.Context, schedules repo.ScheduleRepo, q domain.AvailabilityQuery) (domain.Availability, error) {
	if q.DriverID == nil && q.VehicleID == nil {
		return domain.Availability{}, fmt.Errorf("%w: driver_id or vehicle_id is required", domain.ErrInvalidArgument)
	}
	if q.Start.IsZero() {
		return domain.Availability{}, fmt.Errorf("%w: start is required", domain.ErrInvalidArgument)
	}
	if q.End != nil && q.End.Before(q.Start) {
		return domain.Availability{}, fmt.Errorf("%w: end must not be before start", domain.ErrInvalidArgument)
	}

	w := q.Window(s.defaultDuration)
	candidates, err := schedules.ListOverlapping(ctx, q, w)
	if err != nil {
		return domain.Availability{}, err
	}

	a := domain.Partition(q, w, candidates)
	if a.Available() {
		metrics.AvailabilityChecks.WithLabelValues("available").Inc()
	} else {
		metrics.AvailabilityChecks.WithLabelValues("conflict").Inc()
	}
	return a, nil
}

// Describe renders one line per conflict, e.g.
// "Driver is busy with trip to Airport, Plant 2 from Mon 02 Jun 10:00 to Mon 02 Jun 12:00".
func (s *AvailabilityService) Describe(ctx context.Context, a domain.Availability) []string {
	var lines []string
	add := func(who string, list []domain.Schedule) {
		for _, sch := range list {
			end := "until completed"
			if sch.WindowEnd != nil {
				end = "to " + notify.FormatWindowTime(*sch.WindowEnd)
			}
			lines = append(lines, fmt.Sprintf("%s busy with trip to %s from %s %s",
				who,
				s.labels(ctx, sch.Destinations),
				notify.FormatWindowTime(sch.WindowStart),
				end,
			))
		}
	}
	add("Driver and vehicle are", a.BothConflicts)
	add("Driver is", a.DriverConflicts)
	add("Vehicle is", a.VehicleConflicts)
	return lines
}

func (s *AvailabilityService) labels(ctx context.Context, dests []domain.Destination) string {
	if s.describer == nil {
		return fmt.Sprintf("%d destination(s)", len(dests))
	}
	return notify.Labels(s.describer.Stops(ctx, dests))
}
