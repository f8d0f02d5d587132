package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// RouteRuns counts finished optimization runs by method and outcome (settled, failed, stale).
	RouteRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_runs_total", Help: "Route optimization runs by method and outcome."},
		[]string{"method", "outcome"},
	)
	// RouteRunDuration records provider round-trip time per run in seconds.
	RouteRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "route_run_duration_seconds", Help: "Route optimization run duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method"},
	)
	// ProviderRequests counts outgoing provider HTTP calls by operation and status.
	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provider_requests_total", Help: "External provider requests by operation and status."},
		[]string{"op", "status"},
	)
	// OperationDuration is observed by obs.Time.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "operation_duration_seconds", Help: "Timed internal operations in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"op", "result"},
	)
	// HTTPRequests counts API requests by method and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "status"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(RouteRuns)
		Registry.MustRegister(RouteRunDuration)
		Registry.MustRegister(ProviderRequests)
		Registry.MustRegister(OperationDuration)
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
