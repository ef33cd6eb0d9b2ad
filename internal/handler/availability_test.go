package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/trip-scheduler/internal/domain"
	"github.com/pkordes/trip-scheduler/internal/handler"
)

type mockAvailabilityChecker struct {
	check    func(ctx context.Context, q domain.AvailabilityQuery) (domain.Availability, error)
	describe func(ctx context.Context, a domain.Availability) []string
}

func (m *mockAvailabilityChecker) Check(ctx context.Context, q domain.AvailabilityQuery) (domain.Availability, error) {
	return m.check(ctx, q)
}
func (m *mockAvailabilityChecker) Describe(ctx context.Context, a domain.Availability) []string {
	if m.describe == nil {
		return nil
	}
	return m.describe(ctx, a)
}

var _ handler.AvailabilityChecker = (*mockAvailabilityChecker)(nil)

func postAvailability(t *testing.T, checker handler.AvailabilityChecker, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := handler.NewServer(nil, checker, nil, nil).Handler()
	req := httptest.NewRequest(http.MethodPost, "/availability", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCheckAvailability_200_Available(t *testing.T) {
	driverID := uuid.New()
	var got domain.AvailabilityQuery
	checker := &mockAvailabilityChecker{
		check: func(_ context.Context, q domain.AvailabilityQuery) (domain.Availability, error) {
			got = q
			return domain.Availability{Window: q.Window(4 * time.Hour)}, nil
		},
	}

	rec := postAvailability(t, checker, fmt.Sprintf(
		`{"driver_id": %q, "start": "2025-06-02T10:00:00Z", "duration_minutes": 90}`, driverID))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.DriverID)
	assert.Equal(t, driverID, *got.DriverID)
	assert.Nil(t, got.VehicleID)
	assert.Equal(t, 90*time.Minute, got.Duration)

	var resp handler.AvailabilityResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Available)
	require.NotNil(t, resp.WindowEnd)
	assert.Equal(t, time.Date(2025, 6, 2, 11, 30, 0, 0, time.UTC), *resp.WindowEnd)
	assert.NotNil(t, resp.DriverConflicts)
	assert.NotNil(t, resp.Messages)
}

func TestCheckAvailability_200_Busy(t *testing.T) {
	busy := scheduleFixture()
	checker := &mockAvailabilityChecker{
		check: func(_ context.Context, q domain.AvailabilityQuery) (domain.Availability, error) {
			return domain.Availability{Window: q.Window(0), VehicleConflicts: []domain.Schedule{busy}}, nil
		},
		describe: func(context.Context, domain.Availability) []string {
			return []string{"Vehicle is busy with trip to Airport"}
		},
	}

	rec := postAvailability(t, checker, fmt.Sprintf(
		`{"vehicle_id": %q, "start": "2025-06-02T10:00:00Z", "end": "2025-06-02T11:00:00Z"}`, busy.VehicleID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp handler.AvailabilityResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Available)
	require.Len(t, resp.VehicleConflicts, 1)
	assert.Equal(t, busy.ID, resp.VehicleConflicts[0].ScheduleID)
	assert.Equal(t, []string{"Vehicle is busy with trip to Airport"}, resp.Messages)
}

func TestCheckAvailability_422(t *testing.T) {
	checker := &mockAvailabilityChecker{
		check: func(context.Context, domain.AvailabilityQuery) (domain.Availability, error) {
			return domain.Availability{}, fmt.Errorf("service.AvailabilityService.Check: %w: driver_id or vehicle_id is required", domain.ErrInvalidArgument)
		},
	}

	rec := postAvailability(t, checker, `{"start": "2025-06-02T10:00:00Z"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "driver_id or vehicle_id is required", decodeError(t, rec).Message)

	rec = postAvailability(t, checker, `{"start": "2025-06-02T10:00:00Z", "duration_minutes": 0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
