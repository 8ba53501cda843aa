package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OldStager01/farm-bi/internal/logger"
)

var (
	ClosesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbi_closes_total",
			Help: "Monthly closes by final state",
		},
		[]string{"state"},
	)

	CloseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "farmbi_close_duration_seconds",
			Help:    "Duration of a monthly close",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	CloseStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbi_close_steps_total",
			Help: "Close steps by step name and outcome",
		},
		[]string{"step", "outcome"},
	)

	SnapshotsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmbi_snapshots_generated_total",
			Help: "Snapshots written",
		},
	)

	SnapshotsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmbi_snapshots_pruned_total",
			Help: "Snapshots removed by retention",
		},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbi_cache_requests_total",
			Help: "Analytics cache lookups by result",
		},
		[]string{"result"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbi_cache_evictions_total",
			Help: "Analytics cache entries removed by reason",
		},
		[]string{"reason"},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbi_anomalies_detected_total",
			Help: "Non-low anomalies by metric and level",
		},
		[]string{"metric", "level"},
	)

	PatternsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbi_patterns_detected_total",
			Help: "Pattern insights by kind and level",
		},
		[]string{"kind", "level"},
	)

	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbi_alerts_raised_total",
			Help: "Alerts persisted by type and priority",
		},
		[]string{"type", "priority"},
	)

	AlertsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmbi_alerts_deduplicated_total",
			Help: "Alert candidates dropped as duplicates",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "farmbi_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbi_scheduler_runs_total",
			Help: "Scheduled job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbi_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
		[]string{"type"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbi_http_requests_total",
			Help: "Admin API requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "farmbi_http_request_duration_seconds",
			Help:    "Admin API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func ObserveClose(state string, d time.Duration) {
	ClosesTotal.WithLabelValues(state).Inc()
	CloseDuration.Observe(d.Seconds())
}

func ObserveStep(step string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CloseStepsTotal.WithLabelValues(step, outcome).Inc()
}

func ObserveHTTP(method, route string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer exposes the registry on its own port, for deployments that
// keep metrics off the admin API.
func StartServer(port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, Handler())

	addr := ":" + strconv.Itoa(port)
	logger.Infof("Prometheus metrics server listening on %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("Prometheus server error: %v", err)
		}
	}()
}
