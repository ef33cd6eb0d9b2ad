package repo_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/trip-scheduler/internal/domain"
	"github.com/pkordes/trip-scheduler/internal/repo"
)

func TestFleetRepo_Lookups(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	user := insertUser(t, tx, "driver")
	driverID := insertDriver(t, tx, &user, false)
	vehicleID := insertVehicle(t, tx)
	purposeID := insertPurpose(t, tx, "Client meeting")

	r := repo.NewFleetRepo(tx)

	d, err := r.GetDriver(ctx, driverID)
	require.NoError(t, err)
	assert.Equal(t, "Ravi", d.Name)
	assert.False(t, d.Active)
	require.NotNil(t, d.UserID)
	assert.Equal(t, user, *d.UserID)

	v, err := r.GetVehicle(ctx, vehicleID)
	require.NoError(t, err)
	assert.Equal(t, vehicleID, v.ID)
	assert.True(t, v.Active)
	assert.NotEmpty(t, v.RegistrationNumber)

	p, err := r.GetPurpose(ctx, purposeID)
	require.NoError(t, err)
	assert.Equal(t, "Client meeting", p.Name)
}

func TestFleetRepo_NotFound(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	r := repo.NewFleetRepo(tx)

	_, err := r.GetDriver(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.GetVehicle(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.GetPurpose(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
