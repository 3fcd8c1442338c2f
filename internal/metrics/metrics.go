// Package metrics exposes Prometheus collectors for the ETL service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqi_polls_total",
			Help: "Total number of city polls, labeled by city and outcome.",
		},
		[]string{"city", "outcome"},
	)

	archiveWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqi_archive_writes_total",
			Help: "Total number of raw payload archive writes, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	archiveBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqi_archive_bytes_total",
			Help: "Total number of raw payload bytes fetched from the feed.",
		},
	)

	recordsUpsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqi_records_upserted_total",
			Help: "Total number of records written to the database.",
		},
	)

	jobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqi_job_runs_total",
			Help: "Total number of scheduled job runs, labeled by job and outcome.",
		},
		[]string{"job", "outcome"},
	)

	jobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aqi_job_duration_seconds",
			Help:    "Histogram of scheduled job durations, labeled by job.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"job"},
	)

	livenessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqi_liveness_checks_total",
			Help: "Total number of database liveness probes, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aqi_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the upstream rate limiter.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObservePoll records one city poll.
func ObservePoll(city, outcome string) {
	pollsTotal.WithLabelValues(city, outcome).Inc()
}

// ObserveArchive records one archive write and the payload size.
func ObserveArchive(outcome string, bytes int) {
	archiveWritesTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		archiveBytesTotal.Add(float64(bytes))
	}
}

// ObserveUpsert adds n stored records.
func ObserveUpsert(n int) {
	if n > 0 {
		recordsUpsertedTotal.Add(float64(n))
	}
}

// ObserveJob records one scheduled job run.
func ObserveJob(job, outcome string, duration time.Duration) {
	jobRunsTotal.WithLabelValues(job, outcome).Inc()
	jobDurationSeconds.WithLabelValues(job).Observe(duration.Seconds())
}

// ObserveLiveness records one liveness probe.
func ObserveLiveness(outcome string) {
	livenessChecksTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitWait records a delay introduced by the upstream rate limiter.
func ObserveRateLimitWait(host string, d time.Duration) {
	rateLimitWaitSeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
