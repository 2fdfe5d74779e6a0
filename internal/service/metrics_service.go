package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

// MetricsSnapshot is the JSON view of the engine counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	SolverCalls              uint64    `json:"solver_calls"`
	SolverFailures           uint64    `json:"solver_failures"`
	JobsSubmitted            uint64    `json:"jobs_submitted"`
	JobsCompleted            uint64    `json:"jobs_completed"`
	JobsFailed               uint64    `json:"jobs_failed"`
	ViolationsRecorded       uint64    `json:"violations_recorded"`
	Escalations              uint64    `json:"escalations"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation and keeps lightweight
// counters for the snapshot endpoint. Every method is safe on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	solverDuration  *prometheus.HistogramVec
	jobTransitions  *prometheus.CounterVec
	violations      *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	lessonsWritten  prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	solverCallCount      uint64
	solverFailureCount   uint64
	jobsSubmitted        uint64
	jobsCompleted        uint64
	jobsFailed           uint64
	violationCount       uint64
	escalationCount      uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	solverDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_solver_call_duration_seconds",
		Help:    "Duration of calls to the timetable solver",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation", "outcome"})

	jobTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_generation_transitions_total",
		Help: "Generation job transitions by resulting status",
	}, []string{"status"})

	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_constraint_violations_total",
		Help: "Constraint violations recorded by code and severity",
	}, []string{"code", "severity"})

	escalations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_admin_escalations_total",
		Help: "Administrator escalations by delivery outcome",
	}, []string{"outcome"})

	lessonsWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_lessons_materialized_total",
		Help: "Scheduled lessons committed from solver results or manual bookings",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		solverDuration, jobTransitions, violations, escalations, lessonsWritten, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		solverDuration:  solverDuration,
		jobTransitions:  jobTransitions,
		violations:      violations,
		escalations:     escalations,
		lessonsWritten:  lessonsWritten,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveSolverCall implements solver.Observer.
func (m *MetricsService) ObserveSolverCall(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.solverDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
	atomic.AddUint64(&m.solverCallCount, 1)
	if outcome != "ok" {
		atomic.AddUint64(&m.solverFailureCount, 1)
	}
}

// RecordJobTransition counts a job entering status.
func (m *MetricsService) RecordJobTransition(status models.JobStatus) {
	if m == nil {
		return
	}
	m.jobTransitions.WithLabelValues(string(status)).Inc()
	switch status {
	case models.JobStatusPending:
		atomic.AddUint64(&m.jobsSubmitted, 1)
	case models.JobStatusCompleted:
		atomic.AddUint64(&m.jobsCompleted, 1)
	case models.JobStatusFailed:
		atomic.AddUint64(&m.jobsFailed, 1)
	}
}

// RecordViolation counts one persisted violation.
func (m *MetricsService) RecordViolation(code string, severity models.Severity) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(code, string(severity)).Inc()
	atomic.AddUint64(&m.violationCount, 1)
}

// RecordEscalation counts an administrator notification attempt.
func (m *MetricsService) RecordEscalation(outcome string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.escalationCount, 1)
}

// AddLessons counts committed scheduled lessons.
func (m *MetricsService) AddLessons(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.lessonsWritten.Add(float64(n))
}

// Snapshot returns aggregated counters for the system metrics endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{GeneratedAt: time.Now().UTC()}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		SolverCalls:              atomic.LoadUint64(&m.solverCallCount),
		SolverFailures:           atomic.LoadUint64(&m.solverFailureCount),
		JobsSubmitted:            atomic.LoadUint64(&m.jobsSubmitted),
		JobsCompleted:            atomic.LoadUint64(&m.jobsCompleted),
		JobsFailed:               atomic.LoadUint64(&m.jobsFailed),
		ViolationsRecorded:       atomic.LoadUint64(&m.violationCount),
		Escalations:              atomic.LoadUint64(&m.escalationCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
