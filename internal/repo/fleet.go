package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/trip-scheduler/internal/domain"
)

// FleetRepo reads the driver, vehicle, and trip purpose records the scheduler
// validates against. CRUD for those records belongs to other components.
type FleetRepo interface {
	// GetDriver returns domain.ErrNotFound if the driver does not exist.
	GetDriver(ctx context.Context, id uuid.UUID) (domain.Driver, error)

	// GetVehicle returns domain.ErrNotFound if the vehicle does not exist.
	GetVehicle(ctx context.Context, id uuid.UUID) (domain.Vehicle, error)

	// GetPurpose returns domain.ErrNotFound if the purpose does not exist.
	GetPurpose(ctx context.Context, id uuid.UUID) (domain.TripPurpose, error)
}

type pgFleetRepo struct {
	db db
}

// NewFleetRepo constructs a FleetRepo backed by the provided db connection.
func NewFleetRepo(db db) FleetRepo {
	return &pgFleetRepo{db: db}
}

func (r *pgFleetRepo) GetDriver(ctx context.Context, id uuid.UUID) (domain.Driver, error) {
	const q = `SELECT id, name, user_id, active FROM drivers WHERE id = @id`

	var (
		d           domain.Driver
		dID, userID pgtype.UUID
	)
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}).Scan(&dID, &d.Name, &userID, &d.Active)
	if err != nil {
		return domain.Driver{}, fmt.Errorf("repo.FleetRepo.GetDriver: %w", mapPgError(err))
	}
	d.ID = uuid.UUID(dID.Bytes)
	d.UserID = uuidPtr(userID)
	return d, nil
}

func (r *pgFleetRepo) GetVehicle(ctx context.Context, id uuid.UUID) (domain.Vehicle, error) {
	const q = `SELECT id, registration_number, active FROM vehicles WHERE id = @id`

	var (
		v   domain.Vehicle
		vID pgtype.UUID
	)
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}).Scan(&vID, &v.RegistrationNumber, &v.Active)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("repo.FleetRepo.GetVehicle: %w", mapPgError(err))
	}
	v.ID = uuid.UUID(vID.Bytes)
	return v, nil
}

func (r *pgFleetRepo) GetPurpose(ctx context.Context, id uuid.UUID) (domain.TripPurpose, error) {
	const q = `SELECT id, name FROM trip_purposes WHERE id = @id`

	var (
		p   domain.TripPurpose
		pID pgtype.UUID
	)
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}).Scan(&pID, &p.Name)
	if err != nil {
		return domain.TripPurpose{}, fmt.Errorf("repo.FleetRepo.GetPurpose: %w", mapPgError(err))
	}
	p.ID = uuid.UUID(pID.Bytes)
	return p, nil
}
