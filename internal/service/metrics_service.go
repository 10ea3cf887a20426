package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uniattend/attendance-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the engine and
// provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	sessionsIssued     *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
	scanOutcomes       *prometheus.CounterVec
	factorsVerified    *prometheus.CounterVec
	verifications      *prometheus.CounterVec
	conflictsResolved  *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	scanCount            uint64
	verificationCount    uint64
	conflictCount        uint64
}

// NewMetricsService registers the engine's Prometheus collectors.
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

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	sessionsIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_sessions_issued_total",
		Help: "QR sessions handed out, split by fresh issue vs idempotent reuse",
	}, []string{"reused"})

	sessionTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_session_transitions_total",
		Help: "QR session lifecycle transitions by target status",
	}, []string{"status"})

	scanOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_scans_total",
		Help: "Scan validations by outcome",
	}, []string{"outcome"})

	factorsVerified := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_factors_total",
		Help: "Verification factors passed, by factor",
	}, []string{"factor"})

	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verifications_completed_total",
		Help: "Completed attendance verifications by classification",
	}, []string{"type"})

	conflictsResolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_conflicts_resolved_total",
		Help: "Offline sync conflicts resolved, by strategy",
	}, []string{"strategy"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHitRatio,
		cacheHits, cacheMisses, dbQueryDuration, sessionsIssued, sessionTransitions,
		scanOutcomes, factorsVerified, verifications, conflictsResolved, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		dbQueryDuration:    dbQueryDuration,
		sessionsIssued:     sessionsIssued,
		sessionTransitions: sessionTransitions,
		scanOutcomes:       scanOutcomes,
		factorsVerified:    factorsVerified,
		verifications:      verifications,
		conflictsResolved:  conflictsResolved,
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
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// SessionIssued counts a generate call.
func (m *MetricsService) SessionIssued(reused bool) {
	if m == nil {
		return
	}
	m.sessionsIssued.WithLabelValues(fmt.Sprintf("%t", reused)).Inc()
}

// SessionTransition counts a lifecycle transition.
func (m *MetricsService) SessionTransition(status string) {
	if m == nil {
		return
	}
	m.sessionTransitions.WithLabelValues(status).Inc()
}

// ScanOutcome counts one scan validation result.
func (m *MetricsService) ScanOutcome(outcome string) {
	if m == nil {
		return
	}
	m.scanOutcomes.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.scanCount, 1)
}

// FactorVerified counts a passed verification factor.
func (m *MetricsService) FactorVerified(factor string) {
	if m == nil {
		return
	}
	m.factorsVerified.WithLabelValues(factor).Inc()
}

// VerificationCompleted counts a fully verified attendance.
func (m *MetricsService) VerificationCompleted(attendanceType string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(attendanceType).Inc()
	atomic.AddUint64(&m.verificationCount, 1)
}

// ConflictResolved counts a sync conflict resolution.
func (m *MetricsService) ConflictResolved(strategy string) {
	if m == nil {
		return
	}
	m.conflictsResolved.WithLabelValues(strategy).Inc()
	atomic.AddUint64(&m.conflictCount, 1)
}

// Snapshot returns aggregated counters for the operational status endpoint.
func (m *MetricsService) Snapshot() models.SystemMetricsSnapshot {
	if m == nil {
		return models.SystemMetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		ScansTotal:               atomic.LoadUint64(&m.scanCount),
		VerificationsTotal:       atomic.LoadUint64(&m.verificationCount),
		ConflictsResolvedTotal:   atomic.LoadUint64(&m.conflictCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
