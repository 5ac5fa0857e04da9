// Package metrics holds the Prometheus collectors for the session service.
// All collectors are registered in the default registry on import and are
// exposed by the /metrics endpoint.
//
// The package has no dependencies on other internal packages so that the
// storage layer, services and HTTP middleware can all record into it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpRequestsTotal counts HTTP requests by method, chi route pattern and status.
	//
	// Labels: method (GET, POST), route (/api/v1/sessions/{id}), status (200, 404)
	// Type: Counter
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// httpRequestDuration measures request processing time.
	//
	// Labels: method, route
	// Type: Histogram
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// httpRequestSize tracks request bodies; CV uploads and photos dominate.
	//
	// Labels: method, route
	// Type: Histogram
	// Buckets: Exponential from 100 bytes to 100 MB
	httpRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "route"},
	)

	// storageOpsTotal counts session store operations by backend, operation and status.
	//
	// Labels: backend (file, redis, postgres, sqlite), operation (save, get, delete, list), status (success, error)
	// Type: Counter
	storageOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_storage_operations_total",
			Help: "Total number of session storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// storageOpDuration measures session store latency.
	//
	// Labels: backend, operation
	// Type: Histogram
	storageOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "session_storage_operation_duration_seconds",
			Help:    "Session storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// sessionsSavedTotal counts successful saves by plan.
	sessionsSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_saved_total",
			Help: "Total number of sessions saved",
		},
		[]string{"plan"},
	)

	// recoveryAttemptsTotal counts email recovery attempts by result
	// (success, no_session_found, session_expired, invalid_email, error).
	recoveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_recovery_attempts_total",
			Help: "Total number of session recovery attempts",
		},
		[]string{"result"},
	)

	// cleanupRunsTotal counts cleanup runs by mode (dry_run, delete) and
	// outcome (complete, partial).
	cleanupRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		},
		[]string{"mode", "outcome"},
	)

	cleanupDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_cleanup_deleted_total",
			Help: "Total number of sessions deleted by cleanup",
		},
	)

	cleanupErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_cleanup_errors_total",
			Help: "Total number of per-record cleanup failures",
		},
	)

	// storedSessions and activeSessions are refreshed by every metrics snapshot.
	storedSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_stored",
			Help: "Number of sessions currently stored",
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of sessions written within the active window",
		},
	)

	healthScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_health_score",
			Help: "Combined session store health score between 0 and 1",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestSize)
	prometheus.MustRegister(storageOpsTotal)
	prometheus.MustRegister(storageOpDuration)
	prometheus.MustRegister(sessionsSavedTotal)
	prometheus.MustRegister(recoveryAttemptsTotal)
	prometheus.MustRegister(cleanupRunsTotal)
	prometheus.MustRegister(cleanupDeletedTotal)
	prometheus.MustRegister(cleanupErrorsTotal)
	prometheus.MustRegister(storedSessions)
	prometheus.MustRegister(activeSessions)
	prometheus.MustRegister(healthScore)
}

// ObserveHTTP records one finished HTTP request. route should be the chi
// route pattern, not the raw path, to keep label cardinality bounded.
func ObserveHTTP(method, route, status string, requestBytes int64, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	if requestBytes > 0 {
		httpRequestSize.WithLabelValues(method, route).Observe(float64(requestBytes))
	}
}

// RecordStorageOp records a session store call including its duration.
//
// Example:
//
//	start := time.Now()
//	err := store.SaveSession(ctx, session)
//	metrics.RecordStorageOp("file", "save", err, time.Since(start))
func RecordStorageOp(backend, operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	storageOpsTotal.WithLabelValues(backend, operation, status).Inc()
	storageOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordSessionSaved increments the saved sessions counter for a plan.
func RecordSessionSaved(plan string) {
	sessionsSavedTotal.WithLabelValues(plan).Inc()
}

// RecordRecovery increments the recovery counter for a result.
func RecordRecovery(result string) {
	recoveryAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordCleanup records a finished cleanup run.
func RecordCleanup(dryRun bool, deleted, errors int) {
	mode := "delete"
	if dryRun {
		mode = "dry_run"
	}
	outcome := "complete"
	if errors > 0 {
		outcome = "partial"
	}
	cleanupRunsTotal.WithLabelValues(mode, outcome).Inc()
	cleanupDeletedTotal.Add(float64(deleted))
	cleanupErrorsTotal.Add(float64(errors))
}

// SetSessionGauges publishes the latest snapshot counts.
func SetSessionGauges(stored, active int, score float64) {
	storedSessions.Set(float64(stored))
	activeSessions.Set(float64(active))
	healthScore.Set(score)
}
