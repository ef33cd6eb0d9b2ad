package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/trip-scheduler/internal/metrics"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", metrics.Outcome(nil))
	assert.Equal(t, "error", metrics.Outcome(errors.New("boom")))
}

func TestHandler_ExposesRegisteredCollectors(t *testing.T) {
	metrics.RegisterDefault()
	metrics.RegisterDefault() // second call must not panic on duplicate registration

	metrics.ScheduleOperations.WithLabelValues("create", "ok").Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `scheduler_schedule_operations_total{operation="create",outcome="ok"}`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
