// Package metrics holds the Prometheus collectors for the trip scheduler.
// Collectors live on a dedicated registry exposed at /metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, route pattern, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "route", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route", "status"},
	)

	// AvailabilityChecks counts conflict checks by outcome (available, conflict).
	AvailabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_availability_checks_total", Help: "Availability checks by outcome."},
		[]string{"outcome"},
	)
	// ScheduleOperations counts lifecycle operations by operation and outcome.
	ScheduleOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_schedule_operations_total", Help: "Schedule lifecycle operations by outcome."},
		[]string{"operation", "outcome"},
	)

	// NotificationsSent counts push deliveries by template, audience, and status.
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_notifications_total", Help: "Push notifications by template, audience, and status."},
		[]string{"template", "audience", "status"},
	)
	// NotificationTasks counts detached fan-out tasks by outcome (ok, failed, dropped).
	NotificationTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_notification_tasks_total", Help: "Detached notification tasks by outcome."},
		[]string{"outcome"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on Registry. Safe to call more than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(AvailabilityChecks)
		Registry.MustRegister(ScheduleOperations)
		Registry.MustRegister(NotificationsSent)
		Registry.MustRegister(NotificationTasks)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Outcome maps an error to the outcome label used by the counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
