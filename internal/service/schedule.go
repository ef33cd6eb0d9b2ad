package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/trip-scheduler/internal/domain"
	"github.com/pkordes/trip-scheduler/internal/metrics"
	"github.com/pkordes/trip-scheduler/internal/notify"
	"github.com/pkordes/trip-scheduler/internal/repo"
)

// Notifier queues a schedule change for detached delivery. Enqueue must not
// block and has no way to report failure back to the caller.
type Notifier interface {
	Enqueue(ev notify.Event)
}

// CreateScheduleInput is the desired assignment for a new schedule.
type CreateScheduleInput struct {
	DriverID     uuid.UUID
	VehicleID    uuid.UUID
	Destinations []domain.Destination
}

// SchedulePatch lists the fields an update changes. Nil means unchanged.
// A non-nil, empty Destinations cancels the schedule. Status may only be
// scheduled or cancelled.
type SchedulePatch struct {
	DriverID     *uuid.UUID
	VehicleID    *uuid.UUID
	Destinations *[]domain.Destination
	Status       *domain.ScheduleStatus
}

// ScheduleService owns the schedule lifecycle and keeps trip request links
// consistent with it. Every write runs in one transaction holding locks on
// the schedule's driver, vehicle, and trip requests, so the conflict check
// and the write it guards cannot interleave with a competing booking.
type ScheduleService struct {
	tx           repo.TxRunner
	schedules    repo.ScheduleRepo
	requests     repo.TripRequestRepo
	fleet        repo.FleetRepo
	availability *AvailabilityService
	notifier     Notifier
	now          func() time.Time
}

// NewScheduleService constructs a ScheduleService. notifier may be nil, in
// which case no notifications are sent.
func NewScheduleService(
	tx repo.TxRunner,
	schedules repo.ScheduleRepo,
	requests repo.TripRequestRepo,
	fleet repo.FleetRepo,
	availability *AvailabilityService,
	notifier Notifier,
) *ScheduleService {
	return &ScheduleService{
		tx:           tx,
		schedules:    schedules,
		requests:     requests,
		fleet:        fleet,
		availability: availability,
		notifier:     notifier,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for audit stamps.
func (s *ScheduleService) WithClock(now func() time.Time) *ScheduleService {
	s.now = now
	return s
}

// Create validates the assignment, checks availability, persists the schedule
// with status=scheduled, links every referenced trip request to it, and
// queues the "scheduled" notification.
//
// Returns domain.ErrInvalidArgument for bad input, domain.ErrNotFound for a
// missing driver, vehicle, or trip request, and a *domain.ConflictError
// (matching domain.ErrConflict) when the window is taken.
func (s *ScheduleService) Create(ctx context.Context, in CreateScheduleInput, actor uuid.UUID) (domain.Schedule, error) {
	if err := validateDestinations(in.Destinations, false); err != nil {
		return domain.Schedule{}, s.record("create", fmt.Errorf("service.ScheduleService.Create: %w", err))
	}
	if err := s.checkResources(ctx, in.DriverID, in.VehicleID); err != nil {
		return domain.Schedule{}, s.record("create", fmt.Errorf("service.ScheduleService.Create: %w", err))
	}

	sched := domain.Schedule{
		DriverID:  in.DriverID,
		VehicleID: in.VehicleID,
		Status:    domain.ScheduleStatusScheduled,
		IsActive:  true,
		CreatedBy: actor,
	}
	sched.SetDestinations(in.Destinations)
	ids := domain.RequestIDs(in.Destinations)

	var created domain.Schedule
	err := s.tx.InTx(ctx, lockKeys(nil, []domain.Schedule{sched}, ids), func(ctx context.Context, tx repo.Tx) error {
		if err := validateClaims(ctx, tx.TripRequests, ids, nil); err != nil {
			return err
		}
		if err := s.ensureAvailable(ctx, tx.Schedules, sched, nil); err != nil {
			return err
		}
		c, err := tx.Schedules.Create(ctx, sched)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := applyLink(ctx, tx.TripRequests, id, c.ID, linkClaim); err != nil {
				return err
			}
		}
		created = c
		return nil
	})
	if err != nil {
		return domain.Schedule{}, s.record("create", fmt.Errorf("service.ScheduleService.Create: %w", err))
	}

	s.record("create", nil)
	s.announce(created, notify.TemplateScheduled, actor)
	return created, nil
}

// updateAttempts bounds how often Update re-reads a schedule whose driver,
// vehicle, or trip requests moved between the unlocked read and the lock.
const updateAttempts = 3

// errStaleLocks reports that the advisory locks taken for an update no
// longer cover what the locked read of the schedule needs.
var errStaleLocks = errors.New("lock set is stale")

// Update applies patch to an active schedule. Changing the driver, vehicle,
// or destination times re-validates the resources and re-runs the conflict
// check, ignoring the schedule itself. Trip requests dropped from the list
// are released back to pending; new ones are claimed. An empty destination
// list cancels the schedule. Starting and completing go through StartTrip
// and CompleteTrip, which record the odometer.
//
// Returns domain.ErrNotFound if the schedule is absent or deleted,
// domain.ErrInvalidState if it is completed or cancelled, and
// domain.ErrConflict if it kept changing underneath the update.
func (s *ScheduleService) Update(ctx context.Context, id uuid.UUID, patch SchedulePatch, actor uuid.UUID) (domain.Schedule, error) {
	if patch.Status != nil {
		switch *patch.Status {
		case domain.ScheduleStatusStarted, domain.ScheduleStatusCompleted:
			return domain.Schedule{}, s.record("update", fmt.Errorf("service.ScheduleService.Update: %w: use the start and complete operations to move a schedule to %s",
				domain.ErrInvalidArgument, *patch.Status))
		}
	}
	if patch.Destinations != nil {
		if err := validateDestinations(*patch.Destinations, true); err != nil {
			return domain.Schedule{}, s.record("update", fmt.Errorf("service.ScheduleService.Update: %w", err))
		}
	}

	var (
		res updateResult
		err error
	)
	for range updateAttempts {
		if res, err = s.updateOnce(ctx, id, patch, actor); !errors.Is(err, errStaleLocks) {
			break
		}
	}
	if errors.Is(err, errStaleLocks) {
		err = fmt.Errorf("%w: schedule %s changed concurrently, retry", domain.ErrConflict, id)
	}
	if err != nil {
		return domain.Schedule{}, s.record("update", fmt.Errorf("service.ScheduleService.Update: %w", err))
	}

	s.record("update", nil)
	s.announce(res.announced, res.template, actor, res.released...)
	return res.saved, nil
}

// updateResult is what one committed update hands back to Update.
type updateResult struct {
	saved     domain.Schedule
	announced domain.Schedule // saved, but listing the cancelled stops when the list was emptied
	template  notify.Template
	released  []uuid.UUID
}

// updateOnce runs one read-lock-write cycle. The lock keys come from an
// unlocked read; if the locked re-read needs keys outside that set it returns
// errStaleLocks without writing.
func (s *ScheduleService) updateOnce(ctx context.Context, id uuid.UUID, patch SchedulePatch, actor uuid.UUID) (updateResult, error) {
	current, err := s.getActive(ctx, s.schedules, id)
	if err != nil {
		return updateResult{}, err
	}
	preview, _, _, err := s.plan(current, patch, actor)
	if err != nil {
		return updateResult{}, err
	}
	keys := updateLockKeys(id, current, preview)

	var res updateResult
	err = s.tx.InTx(ctx, keys, func(ctx context.Context, tx repo.Tx) error {
		cur, err := s.getActive(ctx, tx.Schedules, id)
		if err != nil {
			return err
		}
		next, removed, added, err := s.plan(cur, patch, actor)
		if err != nil {
			return err
		}
		if !covers(keys, updateLockKeys(id, cur, next)) {
			return errStaleLocks
		}

		changed := next.DriverID != cur.DriverID || next.VehicleID != cur.VehicleID || !sameWindow(cur, next)
		if changed && next.Status.Blocking() {
			if err := s.checkResources(ctx, next.DriverID, next.VehicleID); err != nil {
				return err
			}
			for _, rid := range domain.RequestIDs(next.Destinations) {
				if _, err := tx.TripRequests.GetByID(ctx, rid); err != nil {
					return fmt.Errorf("trip request %s: %w", rid, err)
				}
			}
		}
		if err := validateClaims(ctx, tx.TripRequests, added, &cur.ID); err != nil {
			return err
		}
		if changed && next.Status.Blocking() {
			if err := s.ensureAvailable(ctx, tx.Schedules, next, &cur.ID); err != nil {
				return err
			}
		}

		saved, err := tx.Schedules.Update(ctx, next)
		if err != nil {
			return err
		}
		for _, rid := range removed {
			if err := applyLink(ctx, tx.TripRequests, rid, cur.ID, linkRelease); err != nil {
				return err
			}
		}
		for _, rid := range added {
			if err := applyLink(ctx, tx.TripRequests, rid, cur.ID, linkClaim); err != nil {
				return err
			}
		}

		res = updateResult{
			saved:     saved,
			announced: saved,
			template:  templateFor(cur.Status, saved.Status),
			released:  removed,
		}
		if saved.Status == domain.ScheduleStatusCancelled && len(saved.Destinations) == 0 {
			res.announced.Destinations = cur.Destinations
		}
		return nil
	})
	return res, err
}

// plan computes the patched schedule and the trip requests to release and
// claim. It performs no I/O.
func (s *ScheduleService) plan(cur domain.Schedule, patch SchedulePatch, actor uuid.UUID) (next domain.Schedule, removed, added []uuid.UUID, err error) {
	if cur.Status.Terminal() {
		return domain.Schedule{}, nil, nil, fmt.Errorf("%w: schedule is %s", domain.ErrInvalidState, cur.Status)
	}

	next = cur
	if patch.DriverID != nil {
		next.DriverID = *patch.DriverID
	}
	if patch.VehicleID != nil {
		next.VehicleID = *patch.VehicleID
	}
	if patch.Destinations != nil {
		next.SetDestinations(*patch.Destinations)
	}

	now := s.now()
	switch {
	case patch.Destinations != nil && len(*patch.Destinations) == 0:
		next.MarkCancelled(actor, now)
	case patch.Status != nil && *patch.Status != cur.Status:
		if !domain.CanTransition(cur.Status, *patch.Status) {
			return domain.Schedule{}, nil, nil, fmt.Errorf("%w: cannot move schedule from %s to %s",
				domain.ErrInvalidState, cur.Status, *patch.Status)
		}
		// Update rejects started and completed, so cancelled is the only
		// transition left.
		if *patch.Status == domain.ScheduleStatusCancelled {
			next.MarkCancelled(actor, now)
		}
	}

	before := domain.RequestIDs(cur.Destinations)
	if next.Status == domain.ScheduleStatusCancelled {
		return next, before, nil, nil
	}
	removed, added = diffRequestIDs(before, domain.RequestIDs(next.Destinations))
	return next, removed, added, nil
}

// Cancel ends a schedule but keeps it visible for audit: status becomes
// cancelled, deleted_at/deleted_by are stamped, and is_active stays true.
// Every linked trip request is released back to pending.
// Returns domain.ErrInvalidState if the schedule is already completed or cancelled.
func (s *ScheduleService) Cancel(ctx context.Context, id, actor uuid.UUID) (domain.Schedule, error) {
	out, err := s.terminate(ctx, id, actor, false)
	if err != nil {
		return domain.Schedule{}, s.record("cancel", fmt.Errorf("service.ScheduleService.Cancel: %w", err))
	}
	s.record("cancel", nil)
	return out, nil
}

// Delete soft-deletes a schedule: it does everything Cancel does and also
// sets is_active=false, which hides it from reads. Deleting an already
// cancelled or completed schedule is allowed.
func (s *ScheduleService) Delete(ctx context.Context, id, actor uuid.UUID) (domain.Schedule, error) {
	out, err := s.terminate(ctx, id, actor, true)
	if err != nil {
		return domain.Schedule{}, s.record("delete", fmt.Errorf("service.ScheduleService.Delete: %w", err))
	}
	s.record("delete", nil)
	return out, nil
}

func (s *ScheduleService) terminate(ctx context.Context, id, actor uuid.UUID, softDelete bool) (domain.Schedule, error) {
	current, err := s.getActive(ctx, s.schedules, id)
	if err != nil {
		return domain.Schedule{}, err
	}

	var (
		out         domain.Schedule
		wasTerminal bool
	)
	keys := lockKeys(&id, []domain.Schedule{current}, domain.RequestIDs(current.Destinations))
	err = s.tx.InTx(ctx, keys, func(ctx context.Context, tx repo.Tx) error {
		cur, err := s.getActive(ctx, tx.Schedules, id)
		if err != nil {
			return err
		}
		wasTerminal = cur.Status.Terminal()
		if wasTerminal && !softDelete {
			return fmt.Errorf("%w: schedule is already %s", domain.ErrInvalidState, cur.Status)
		}

		next := cur
		now := s.now()
		if wasTerminal {
			next.DeletedAt, next.DeletedBy = &now, &actor
		} else {
			next.MarkCancelled(actor, now)
		}
		if softDelete {
			next.IsActive = false
		}

		saved, err := tx.Schedules.Update(ctx, next)
		if err != nil {
			return err
		}
		for _, rid := range domain.RequestIDs(cur.Destinations) {
			if err := applyLink(ctx, tx.TripRequests, rid, cur.ID, linkRelease); err != nil {
				return err
			}
		}
		out = saved
		return nil
	})
	if err != nil {
		return domain.Schedule{}, err
	}

	if !wasTerminal {
		s.announce(out, notify.TemplateCancelled, actor)
	}
	return out, nil
}

// StartTrip moves a scheduled trip to started and records the odometer and
// position. Returns domain.ErrInvalidState unless the schedule is scheduled,
// and domain.ErrInvalidArgument if the odometer is missing.
func (s *ScheduleService) StartTrip(ctx context.Context, id, actor uuid.UUID, p domain.TripProgress) (domain.Schedule, error) {
	out, err := s.progress(ctx, id, func(sch *domain.Schedule, now time.Time) error {
		return sch.Start(actor, now, p)
	})
	if err != nil {
		return domain.Schedule{}, s.record("start", fmt.Errorf("service.ScheduleService.StartTrip: %w", err))
	}
	s.record("start", nil)
	s.announce(out, notify.TemplateStarted, actor)
	return out, nil
}

// CompleteTrip moves a started trip to completed and records the odometer
// and position. Returns domain.ErrInvalidState unless the schedule is started.
func (s *ScheduleService) CompleteTrip(ctx context.Context, id, actor uuid.UUID, p domain.TripProgress) (domain.Schedule, error) {
	out, err := s.progress(ctx, id, func(sch *domain.Schedule, now time.Time) error {
		return sch.Complete(actor, now, p)
	})
	if err != nil {
		return domain.Schedule{}, s.record("complete", fmt.Errorf("service.ScheduleService.CompleteTrip: %w", err))
	}
	s.record("complete", nil)
	s.announce(out, notify.TemplateCompleted, actor)
	return out, nil
}

// progress applies a status transition under the schedule's lock. Nothing is
// written when transition fails.
func (s *ScheduleService) progress(ctx context.Context, id uuid.UUID, transition func(*domain.Schedule, time.Time) error) (domain.Schedule, error) {
	var out domain.Schedule
	err := s.tx.InTx(ctx, []string{scheduleLockKey(id)}, func(ctx context.Context, tx repo.Tx) error {
		cur, err := s.getActive(ctx, tx.Schedules, id)
		if err != nil {
			return err
		}
		next := cur
		if err := transition(&next, s.now()); err != nil {
			return err
		}
		saved, err := tx.Schedules.Update(ctx, next)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	return out, err
}

// GetByID returns an active (not soft-deleted) schedule.
// Returns domain.ErrNotFound otherwise.
func (s *ScheduleService) GetByID(ctx context.Context, id uuid.UUID) (domain.Schedule, error) {
	out, err := s.getActive(ctx, s.schedules, id)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("service.ScheduleService.GetByID: %w", err)
	}
	return out, nil
}

// List returns one page of active schedules and the total match count.
// Always returns a non-nil slice so callers can safely range over it.
func (s *ScheduleService) List(ctx context.Context, f domain.ScheduleFilter, p domain.PaginationParams) ([]domain.Schedule, int64, error) {
	out, total, err := s.schedules.ListPaged(ctx, f, p)
	if err != nil {
		return nil, 0, fmt.Errorf("service.ScheduleService.List: %w", err)
	}
	if out == nil {
		out = []domain.Schedule{}
	}
	return out, total, nil
}

// getActive loads a schedule and hides soft-deleted ones.
func (s *ScheduleService) getActive(ctx context.Context, schedules repo.ScheduleRepo, id uuid.UUID) (domain.Schedule, error) {
	out, err := schedules.GetByID(ctx, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	if !out.IsActive {
		return domain.Schedule{}, fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	return out, nil
}

// checkResources verifies the driver and vehicle exist and are active.
func (s *ScheduleService) checkResources(ctx context.Context, driverID, vehicleID uuid.UUID) error {
	d, err := s.fleet.GetDriver(ctx, driverID)
	if err != nil {
		return fmt.Errorf("driver %s: %w", driverID, err)
	}
	if !d.Active {
		return fmt.Errorf("%w: driver %s is inactive", domain.ErrInvalidState, driverID)
	}
	v, err := s.fleet.GetVehicle(ctx, vehicleID)
	if err != nil {
		return fmt.Errorf("vehicle %s: %w", vehicleID, err)
	}
	if !v.Active {
		return fmt.Errorf("%w: vehicle %s is inactive", domain.ErrInvalidState, vehicleID)
	}
	return nil
}

// ensureAvailable runs the conflict check for sched's driver, vehicle, and
// window. An open-ended schedule is checked as open-ended so it cannot slip
// past a later booking it would then block.
func (s *ScheduleService) ensureAvailable(ctx context.Context, schedules repo.ScheduleRepo, sched domain.Schedule, exclude *uuid.UUID) error {
	driverID, vehicleID := sched.DriverID, sched.VehicleID
	a, err := s.availability.check(ctx, schedules, domain.AvailabilityQuery{
		DriverID:          &driverID,
		VehicleID:         &vehicleID,
		Start:             sched.WindowStart,
		End:               sched.WindowEnd,
		OpenEnded:         sched.WindowEnd == nil,
		ExcludeScheduleID: exclude,
	})
	if err != nil {
		return err
	}
	if !a.Available() {
		return &domain.ConflictError{Availability: a, Messages: s.availability.Describe(ctx, a)}
	}
	return nil
}

func (s *ScheduleService) announce(sch domain.Schedule, t notify.Template, actor uuid.UUID, released ...uuid.UUID) {
	if s.notifier == nil {
		return
	}
	s.notifier.Enqueue(notify.Event{Schedule: sch, Template: t, ActorID: &actor, Released: released})
}

// record counts the operation and passes err through.
func (s *ScheduleService) record(op string, err error) error {
	metrics.ScheduleOperations.WithLabelValues(op, metrics.Outcome(err)).Inc()
	return err
}

// validateDestinations enforces the list-level rules shared by create and
// update: each entry is valid and no trip request appears twice.
func validateDestinations(dests []domain.Destination, allowEmpty bool) error {
	if len(dests) == 0 && !allowEmpty {
		return fmt.Errorf("%w: at least one destination is required", domain.ErrInvalidArgument)
	}
	seen := map[uuid.UUID]bool{}
	for i, d := range dests {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("destinations[%d]: %w", i, err)
		}
		if id, ok := d.RequestID(); ok {
			if seen[id] {
				return fmt.Errorf("%w: trip request %s appears more than once", domain.ErrInvalidArgument, id)
			}
			seen[id] = true
		}
	}
	return nil
}

func sameWindow(a, b domain.Schedule) bool {
	if !a.WindowStart.Equal(b.WindowStart) {
		return false
	}
	if a.WindowEnd == nil || b.WindowEnd == nil {
		return a.WindowEnd == nil && b.WindowEnd == nil
	}
	return a.WindowEnd.Equal(*b.WindowEnd)
}

// templateFor picks the notification wording for a status change.
func templateFor(from, to domain.ScheduleStatus) notify.Template {
	if from == to {
		return notify.TemplateRescheduled
	}
	switch to {
	case domain.ScheduleStatusCancelled:
		return notify.TemplateCancelled
	case domain.ScheduleStatusStarted:
		return notify.TemplateStarted
	case domain.ScheduleStatusCompleted:
		return notify.TemplateCompleted
	}
	return notify.TemplateRescheduled
}

func scheduleLockKey(id uuid.UUID) string { return "schedule:" + id.String() }
func tripRequestLockKey(id uuid.UUID) string { return "trip_request:" + id.String() }

// lockKeys collects every lock a schedule write needs: the schedule itself,
// the drivers and vehicles of each version of it, and its trip requests.
// updateLockKeys covers the schedule, the driver and vehicle before and after
// the patch, and every trip request on either side.
func updateLockKeys(id uuid.UUID, before, after domain.Schedule) []string {
	return lockKeys(&id, []domain.Schedule{before, after},
		append(domain.RequestIDs(before.Destinations), domain.RequestIDs(after.Destinations)...))
}

// covers reports whether every key in need is in held.
func covers(held, need []string) bool {
	set := make(map[string]bool, len(held))
	for _, k := range held {
		set[k] = true
	}
	for _, k := range need {
		if !set[k] {
			return false
		}
	}
	return true
}

func lockKeys(scheduleID *uuid.UUID, versions []domain.Schedule, requestIDs []uuid.UUID) []string {
	var keys []string
	if scheduleID != nil {
		keys = append(keys, scheduleLockKey(*scheduleID))
	}
	for _, v := range versions {
		keys = append(keys, repo.DriverLockKey(v.DriverID), repo.VehicleLockKey(v.VehicleID))
	}
	for _, id := range requestIDs {
		keys = append(keys, tripRequestLockKey(id))
	}
	return keys
}
