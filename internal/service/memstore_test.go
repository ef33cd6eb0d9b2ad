package service_test

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/trip-scheduler/internal/domain"
	"github.com/pkordes/trip-scheduler/internal/repo"
)

// memStore is an in-memory stand-in for Postgres. InTx serializes every
// transaction on one mutex and restores a snapshot when fn fails, which is
// enough to observe both the lock discipline and rollback.
type memStore struct {
	txMu sync.Mutex

	mu        sync.Mutex
	schedules map[uuid.UUID]domain.Schedule
	requests  map[uuid.UUID]domain.TripRequest
	drivers   map[uuid.UUID]domain.Driver
	vehicles  map[uuid.UUID]domain.Vehicle
	purposes  map[uuid.UUID]domain.TripPurpose

	// failUpdateLink, when set, is returned by every UpdateLink call.
	failUpdateLink error
	lockKeys       [][]string
	// beforeTx, when set, runs at the start of every transaction, after the
	// caller has chosen its lock keys. It stands in for a writer that
	// committed in between.
	beforeTx func()
}

func newMemStore() *memStore {
	return &memStore{
		schedules: map[uuid.UUID]domain.Schedule{},
		requests:  map[uuid.UUID]domain.TripRequest{},
		drivers:   map[uuid.UUID]domain.Driver{},
		vehicles:  map[uuid.UUID]domain.Vehicle{},
		purposes:  map[uuid.UUID]domain.TripPurpose{},
	}
}

func (m *memStore) scheduleRepo() *memSchedules { return &memSchedules{m} }
func (m *memStore) requestRepo() *memRequests { return &memRequests{m} }
func (m *memStore) fleetRepo() *memFleet { return &memFleet{m} }
func (m *memStore) txRunner() *memTxRunner { return &memTxRunner{m} }

func (m *memStore) addDriver(active bool) uuid.UUID {
	id := uuid.New()
	userID := uuid.New()
	m.drivers[id] = domain.Driver{ID: id, Name: "driver", UserID: &userID, Active: active}
	return id
}

func (m *memStore) addVehicle(active bool) uuid.UUID {
	id := uuid.New()
	m.vehicles[id] = domain.Vehicle{ID: id, RegistrationNumber: "KA-01-" + id.String()[:4], Active: active}
	return id
}

func (m *memStore) addRequest(label string, status domain.TripRequestStatus) uuid.UUID {
	id := uuid.New()
	m.requests[id] = domain.TripRequest{
		ID:               id,
		Status:           status,
		RequestedBy:      uuid.New(),
		DestinationLabel: label,
	}
	return id
}

func (m *memStore) request(id uuid.UUID) domain.TripRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id]
}

func (m *memStore) schedule(id uuid.UUID) domain.Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[id]
}

func (m *memStore) setScheduleDriver(id, driverID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.schedules[id]
	s.DriverID = driverID
	m.schedules[id] = s
}

func (m *memStore) scheduleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedules)
}

// ---- TxRunner --------------------------------------------------------------

type memTxRunner struct{ m *memStore }

func (r *memTxRunner) InTx(ctx context.Context, lockKeys []string, fn func(ctx context.Context, tx repo.Tx) error) error {
	r.m.txMu.Lock()
	defer r.m.txMu.Unlock()

	if r.m.beforeTx != nil {
		r.m.beforeTx()
	}

	r.m.mu.Lock()
	r.m.lockKeys = append(r.m.lockKeys, slices.Clone(lockKeys))
	schedules := maps.Clone(r.m.schedules)
	requests := maps.Clone(r.m.requests)
	r.m.mu.Unlock()

	err := fn(ctx, repo.Tx{Schedules: r.m.scheduleRepo(), TripRequests: r.m.requestRepo()})
	if err != nil {
		r.m.mu.Lock()
		r.m.schedules = schedules
		r.m.requests = requests
		r.m.mu.Unlock()
	}
	return err
}

var _ repo.TxRunner = (*memTxRunner)(nil)

// ---- ScheduleRepo ----------------------------------------------------------

type memSchedules struct{ m *memStore }

func (r *memSchedules) Create(_ context.Context, s domain.Schedule) (domain.Schedule, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	r.m.schedules[s.ID] = s
	return s, nil
}

func (r *memSchedules) GetByID(_ context.Context, id uuid.UUID) (domain.Schedule, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.schedules[id]
	if !ok {
		return domain.Schedule{}, domain.ErrNotFound
	}
	return s, nil
}

func (r *memSchedules) Update(_ context.Context, s domain.Schedule) (domain.Schedule, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.schedules[s.ID]; !ok {
		return domain.Schedule{}, domain.ErrNotFound
	}
	s.UpdatedAt = time.Now().UTC()
	r.m.schedules[s.ID] = s
	return s, nil
}

func (r *memSchedules) ListOverlapping(_ context.Context, q domain.AvailabilityQuery, w domain.TimeWindow) ([]domain.Schedule, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Schedule
	for _, s := range r.m.schedules {
		driverHit := q.DriverID != nil && s.DriverID == *q.DriverID
		vehicleHit := q.VehicleID != nil && s.VehicleID == *q.VehicleID
		if (driverHit || vehicleHit) && s.Active() && s.Window().Overlaps(w) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSchedules) ListPaged(_ context.Context, f domain.ScheduleFilter, p domain.PaginationParams) ([]domain.Schedule, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []domain.Schedule
	for _, s := range r.m.schedules {
		if !s.IsActive {
			continue
		}
		if f.DriverID != nil && s.DriverID != *f.DriverID {
			continue
		}
		if f.VehicleID != nil && s.VehicleID != *f.VehicleID {
			continue
		}
		if f.Status != nil && s.Status != *f.Status {
			continue
		}
		all = append(all, s)
	}
	slices.SortFunc(all, func(a, b domain.Schedule) int { return a.WindowStart.Compare(b.WindowStart) })
	total := int64(len(all))
	lo := min(p.Offset(), len(all))
	hi := min(lo+p.Limit, len(all))
	return all[lo:hi], total, nil
}

var _ repo.ScheduleRepo = (*memSchedules)(nil)

// ---- TripRequestRepo -------------------------------------------------------

type memRequests struct{ m *memStore }

func (r *memRequests) GetByID(_ context.Context, id uuid.UUID) (domain.TripRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	tr, ok := r.m.requests[id]
	if !ok {
		return domain.TripRequest{}, domain.ErrNotFound
	}
	return tr, nil
}

func (r *memRequests) UpdateLink(_ context.Context, id uuid.UUID, status domain.TripRequestStatus, linkedTripID *uuid.UUID) (domain.TripRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failUpdateLink != nil {
		return domain.TripRequest{}, r.m.failUpdateLink
	}
	tr, ok := r.m.requests[id]
	if !ok {
		return domain.TripRequest{}, domain.ErrNotFound
	}
	tr.Status = status
	tr.LinkedTripID = linkedTripID
	r.m.requests[id] = tr
	return tr, nil
}

var _ repo.TripRequestRepo = (*memRequests)(nil)

// ---- FleetRepo -------------------------------------------------------------

type memFleet struct{ m *memStore }

func (r *memFleet) GetDriver(_ context.Context, id uuid.UUID) (domain.Driver, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.drivers[id]
	if !ok {
		return domain.Driver{}, domain.ErrNotFound
	}
	return d, nil
}

func (r *memFleet) GetVehicle(_ context.Context, id uuid.UUID) (domain.Vehicle, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.vehicles[id]
	if !ok {
		return domain.Vehicle{}, domain.ErrNotFound
	}
	return v, nil
}

func (r *memFleet) GetPurpose(_ context.Context, id uuid.UUID) (domain.TripPurpose, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.purposes[id]
	if !ok {
		return domain.TripPurpose{}, domain.ErrNotFound
	}
	return p, nil
}

var _ repo.FleetRepo = (*memFleet)(nil)
