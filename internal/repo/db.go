// Package repo contains all database access logic for the trip scheduler.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here, only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/trip-scheduler/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// beginner opens a transaction. *pgxpool.Pool opens a real one; pgx.Tx opens
// a savepoint, which is what the integration tests rely on.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Tx bundles the repos that must see the same transaction during a schedule
// write: the conflict read, the schedule write, and the trip request links.
type Tx struct {
	Schedules    ScheduleRepo
	TripRequests TripRequestRepo
}

// TxRunner runs fn inside a single transaction after acquiring exclusive
// locks on lockKeys. Two callers holding a common key are fully serialized,
// so a conflict check followed by a write cannot interleave with another
// booking of the same driver or vehicle.
type TxRunner interface {
	InTx(ctx context.Context, lockKeys []string, fn func(ctx context.Context, tx Tx) error) error
}

type pgTxRunner struct {
	conn beginner
}

// NewTxRunner constructs a TxRunner. In production pass *pgxpool.Pool.
func NewTxRunner(conn beginner) TxRunner {
	return &pgTxRunner{conn: conn}
}

// InTx takes transaction-scoped advisory locks in sorted order (so two
// callers never deadlock on each other) and commits only if fn succeeds.
func (r *pgTxRunner) InTx(ctx context.Context, lockKeys []string, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.TxRunner.InTx: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	keys := slices.Clone(lockKeys)
	slices.Sort(keys)
	keys = slices.Compact(keys)
	for _, k := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
			return fmt.Errorf("repo.TxRunner.InTx: lock %s: %w", k, err)
		}
	}

	if err := fn(ctx, Tx{Schedules: NewScheduleRepo(tx), TripRequests: NewTripRequestRepo(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.TxRunner.InTx: commit: %w", mapPgError(err))
	}
	return nil
}

// DriverLockKey and VehicleLockKey name the advisory locks for a resource.
func DriverLockKey(id uuid.UUID) string  { return "driver:" + id.String() }
func VehicleLockKey(id uuid.UUID) string { return "vehicle:" + id.String() }

// SQLSTATE codes the repos translate into domain errors.
const (
	pgExclusionViolation  = "23P01"
	pgForeignKeyViolation = "23503"
)

// mapPgError converts constraint violations into domain sentinels.
// An exclusion violation means the overlap constraint caught a double booking
// that slipped past the application check.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.ConstraintName)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// uuidPtr converts a nullable pgtype.UUID into *uuid.UUID.
func uuidPtr(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}
