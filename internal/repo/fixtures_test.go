package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/trip-scheduler/internal/domain"
	"github.com/pkordes/trip-scheduler/testutil"
)

// newTestTx returns a per-test transaction that is rolled back afterwards.
func newTestTx(t *testing.T) pgx.Tx {
	t.Helper()
	return testutil.NewTx(t)
}

// savepoint runs fn inside a nested transaction that is always rolled back,
// so a statement expected to fail does not abort the outer test transaction.
func savepoint(t *testing.T, tx pgx.Tx, fn func(sp pgx.Tx)) {
	t.Helper()
	sp, err := tx.Begin(context.Background())
	require.NoError(t, err, "begin savepoint")
	defer func() { _ = sp.Rollback(context.Background()) }()
	fn(sp)
}

func insertUser(t *testing.T, tx pgx.Tx, role string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := tx.QueryRow(context.Background(),
		`INSERT INTO users (name, role) VALUES ($1, $2) RETURNING id`, "user-"+role, role).Scan(&id)
	require.NoError(t, err, "insert user")
	return id
}

func insertDriver(t *testing.T, tx pgx.Tx, userID *uuid.UUID, active bool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := tx.QueryRow(context.Background(),
		`INSERT INTO drivers (name, user_id, active) VALUES ('Ravi', $1, $2) RETURNING id`, userID, active).Scan(&id)
	require.NoError(t, err, "insert driver")
	return id
}

func insertVehicle(t *testing.T, tx pgx.Tx) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := tx.QueryRow(context.Background(),
		`INSERT INTO vehicles (registration_number) VALUES ($1) RETURNING id`, "KA-"+uuid.NewString()[:8]).Scan(&id)
	require.NoError(t, err, "insert vehicle")
	return id
}

func insertPurpose(t *testing.T, tx pgx.Tx, name string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := tx.QueryRow(context.Background(),
		`INSERT INTO trip_purposes (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	require.NoError(t, err, "insert purpose")
	return id
}

func insertTripRequest(t *testing.T, tx pgx.Tx, requestedBy uuid.UUID, label string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := tx.QueryRow(context.Background(),
		`INSERT INTO trip_requests (requested_by, destination_label, job_card_id, no_of_people)
		 VALUES ($1, $2, 'JC-7', 3) RETURNING id`, requestedBy, label).Scan(&id)
	require.NoError(t, err, "insert trip request")
	return id
}

// world holds the collaborator rows most schedule tests need.
type world struct {
	actor   uuid.UUID
	driver  uuid.UUID
	vehicle uuid.UUID
}

func seedWorld(t *testing.T, tx pgx.Tx) world {
	t.Helper()
	actor := insertUser(t, tx, "scheduler")
	return world{
		actor:   actor,
		driver:  insertDriver(t, tx, nil, true),
		vehicle: insertVehicle(t, tx),
	}
}

var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time { return day.Add(time.Duration(h) * time.Hour) }

func atPtr(h int) *time.Time {
	v := at(h)
	return &v
}

// scheduleFixture returns an active scheduled schedule with one inline stop
// spanning [from, to]. Pass to < 0 for an open-ended schedule.
func scheduleFixture(w world, from, to int) domain.Schedule {
	var arrival *time.Time
	if to >= 0 {
		arrival = atPtr(to)
	}
	s := domain.Schedule{
		DriverID:  w.driver,
		VehicleID: w.vehicle,
		Status:    domain.ScheduleStatusScheduled,
		IsActive:  true,
		CreatedBy: w.actor,
	}
	s.SetDestinations([]domain.Destination{
		domain.NewInlineDestination(domain.InlineDestination{Label: "Airport", NoOfPeople: 2}, at(from), arrival),
	})
	return s
}
