package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/trip-scheduler/internal/domain"
)

// ScheduleRepo defines the persistence operations for Schedules.
// The service layer depends on this interface, not the Postgres implementation.
type ScheduleRepo interface {
	// Create inserts a new schedule and returns the persisted record (with
	// DB-generated id, created_at, and updated_at populated).
	// Returns domain.ErrConflict if the overlap constraint rejects the row.
	Create(ctx context.Context, s domain.Schedule) (domain.Schedule, error)

	// GetByID retrieves a schedule by id, whether active or not.
	// Returns domain.ErrNotFound if no schedule with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Schedule, error)

	// Update overwrites every mutable field of an existing schedule.
	// Returns domain.ErrNotFound if no schedule with that ID exists and
	// domain.ErrConflict if the overlap constraint rejects the change.
	Update(ctx context.Context, s domain.Schedule) (domain.Schedule, error)

	// ListOverlapping returns active schedules that share the query's driver
	// or vehicle and whose window overlaps w, ordered by window_start.
	ListOverlapping(ctx context.Context, q domain.AvailabilityQuery, w domain.TimeWindow) ([]domain.Schedule, error)

	// ListPaged returns one page of active schedules matching f and the total count.
	ListPaged(ctx context.Context, f domain.ScheduleFilter, p domain.PaginationParams) ([]domain.Schedule, int64, error)
}

// pgScheduleRepo is the Postgres implementation of ScheduleRepo.
type pgScheduleRepo struct {
	db db
}

// NewScheduleRepo constructs a ScheduleRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewScheduleRepo(db db) ScheduleRepo {
	return &pgScheduleRepo{db: db}
}

const scheduleColumns = `
	id, driver_id, vehicle_id, destinations, status, window_start, window_end,
	is_active, deleted_at, deleted_by,
	started_at, started_by, start_odometer, start_coordinates,
	completed_at, completed_by, end_odometer, end_coordinates,
	created_by, created_at, updated_at`

// Create inserts a new schedule row and returns the full persisted record.
func (r *pgScheduleRepo) Create(ctx context.Context, s domain.Schedule) (domain.Schedule, error) {
	q := `
		INSERT INTO schedules (driver_id, vehicle_id, destinations, status, window_start, window_end,
		                       is_active, created_by)
		VALUES (@driver_id, @vehicle_id, @destinations, @status, @window_start, @window_end,
		        @is_active, @created_by)
		RETURNING ` + scheduleColumns

	dests, err := json.Marshal(s.Destinations)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("repo.ScheduleRepo.Create: encode destinations: %w", err)
	}

	args := pgx.NamedArgs{
		"driver_id":    s.DriverID,
		"vehicle_id":   s.VehicleID,
		"destinations": string(dests),
		"status":       string(s.Status),
		"window_start": s.WindowStart,
		"window_end":   s.WindowEnd, // nil becomes NULL (open-ended)
		"is_active":    s.IsActive,
		"created_by":   s.CreatedBy,
	}

	result, err := scanSchedule(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("repo.ScheduleRepo.Create: %w", mapPgError(err))
	}
	return result, nil
}

// GetByID retrieves a schedule by primary key.
func (r *pgScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Schedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = @id`

	result, err := scanSchedule(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("repo.ScheduleRepo.GetByID: %w", err)
	}
	return result, nil
}

// Update overwrites the mutable fields of a schedule and returns the updated record.
func (r *pgScheduleRepo) Update(ctx context.Context, s domain.Schedule) (domain.Schedule, error) {
	q := `
		UPDATE schedules
		SET driver_id         = @driver_id,
		    vehicle_id        = @vehicle_id,
		    destinations      = @destinations,
		    status            = @status,
		    window_start      = @window_start,
		    window_end        = @window_end,
		    is_active         = @is_active,
		    deleted_at        = @deleted_at,
		    deleted_by        = @deleted_by,
		    started_at        = @started_at,
		    started_by        = @started_by,
		    start_odometer    = @start_odometer,
		    start_coordinates = @start_coordinates,
		    completed_at      = @completed_at,
		    completed_by      = @completed_by,
		    end_odometer      = @end_odometer,
		    end_coordinates   = @end_coordinates,
		    updated_at        = now()
		WHERE id = @id
		RETURNING ` + scheduleColumns

	dests, err := json.Marshal(s.Destinations)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("repo.ScheduleRepo.Update: encode destinations: %w", err)
	}

	args := pgx.NamedArgs{
		"id":                s.ID,
		"driver_id":         s.DriverID,
		"vehicle_id":        s.VehicleID,
		"destinations":      string(dests),
		"status":            string(s.Status),
		"window_start":      s.WindowStart,
		"window_end":        s.WindowEnd,
		"is_active":         s.IsActive,
		"deleted_at":        s.DeletedAt,
		"deleted_by":        s.DeletedBy,
		"started_at":        s.StartedAt,
		"started_by":        s.StartedBy,
		"start_odometer":    s.StartOdometer,
		"start_coordinates": s.StartCoordinates,
		"completed_at":      s.CompletedAt,
		"completed_by":      s.CompletedBy,
		"end_odometer":      s.EndOdometer,
		"end_coordinates":   s.EndCoordinates,
	}

	result, err := scanSchedule(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("repo.ScheduleRepo.Update: %w", mapPgError(err))
	}
	return result, nil
}

// ListOverlapping uses the (driver_id, status) and (vehicle_id, status)
// indexes to find blocking schedules for either resource. Boundaries are
// inclusive and a NULL window_end is treated as unbounded.
func (r *pgScheduleRepo) ListOverlapping(ctx context.Context, q domain.AvailabilityQuery, w domain.TimeWindow) ([]domain.Schedule, error) {
	sql := `
		SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE is_active
		  AND deleted_at IS NULL
		  AND status IN ('scheduled', 'started')
		  AND (driver_id = @driver_id OR vehicle_id = @vehicle_id)
		  AND (@window_end::timestamptz IS NULL OR window_start <= @window_end)
		  AND (window_end IS NULL OR window_end >= @window_start)
		  AND (@exclude_id::uuid IS NULL OR id <> @exclude_id)
		ORDER BY window_start`

	args := pgx.NamedArgs{
		"driver_id":    q.DriverID,
		"vehicle_id":   q.VehicleID,
		"window_start": w.Start,
		"window_end":   w.End,
		"exclude_id":   q.ExcludeScheduleID,
	}

	rows, err := r.db.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("repo.ScheduleRepo.ListOverlapping: %w", err)
	}
	defer rows.Close()

	schedules, err := collectSchedules(rows)
	if err != nil {
		return nil, fmt.Errorf("repo.ScheduleRepo.ListOverlapping: %w", err)
	}
	return schedules, nil
}

// ListPaged returns one page of active schedules, most recent window first.
func (r *pgScheduleRepo) ListPaged(ctx context.Context, f domain.ScheduleFilter, p domain.PaginationParams) ([]domain.Schedule, int64, error) {
	const where = `
		WHERE is_active
		  AND (@driver_id::uuid IS NULL OR driver_id = @driver_id)
		  AND (@vehicle_id::uuid IS NULL OR vehicle_id = @vehicle_id)
		  AND (@status::text IS NULL OR status = @status)`

	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}
	args := pgx.NamedArgs{
		"driver_id":  f.DriverID,
		"vehicle_id": f.VehicleID,
		"status":     status,
		"limit":      p.Limit,
		"offset":     p.Offset(),
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM schedules`+where, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.ScheduleRepo.ListPaged: count: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+scheduleColumns+` FROM schedules`+where+`
		ORDER BY window_start DESC
		LIMIT @limit OFFSET @offset`, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.ScheduleRepo.ListPaged: %w", err)
	}
	defer rows.Close()

	schedules, err := collectSchedules(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.ScheduleRepo.ListPaged: %w", err)
	}
	return schedules, total, nil
}

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	schedules := []domain.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return schedules, nil
}

// scanSchedule maps a single database row into a domain.Schedule.
// It handles the UUID, JSONB, and nullable column conversions.
func scanSchedule(s scanner) (domain.Schedule, error) {
	var (
		out                                domain.Schedule
		id, driverID, vehicleID, createdBy pgtype.UUID
		deletedBy, startedBy, completedBy  pgtype.UUID
		destsRaw                           []byte
		status                             string
		windowEnd                          pgtype.Timestamptz
		deletedAt, startedAt, completedAt  pgtype.Timestamptz
	)

	err := s.Scan(
		&id, &driverID, &vehicleID, &destsRaw, &status, &out.WindowStart, &windowEnd,
		&out.IsActive, &deletedAt, &deletedBy,
		&startedAt, &startedBy, &out.StartOdometer, &out.StartCoordinates,
		&completedAt, &completedBy, &out.EndOdometer, &out.EndCoordinates,
		&createdBy, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return domain.Schedule{}, mapPgError(err)
	}

	if err := json.Unmarshal(destsRaw, &out.Destinations); err != nil {
		return domain.Schedule{}, fmt.Errorf("decode destinations: %w", err)
	}

	out.ID = uuid.UUID(id.Bytes)
	out.DriverID = uuid.UUID(driverID.Bytes)
	out.VehicleID = uuid.UUID(vehicleID.Bytes)
	out.CreatedBy = uuid.UUID(createdBy.Bytes)
	out.Status = domain.ScheduleStatus(status)
	out.WindowEnd = timePtr(windowEnd)
	out.DeletedAt = timePtr(deletedAt)
	out.DeletedBy = uuidPtr(deletedBy)
	out.StartedAt = timePtr(startedAt)
	out.StartedBy = uuidPtr(startedBy)
	out.CompletedAt = timePtr(completedAt)
	out.CompletedBy = uuidPtr(completedBy)
	return out, nil
}

func timePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
