package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the queue API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	slotSearchDays  prometheus.Histogram
	conflictRetries prometheus.Counter
	postsScheduled  prometheus.Counter
	postsPublished  prometheus.Counter
	publishFailures prometheus.Counter
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
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	slotSearchDays := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "queue_slot_search_days_scanned",
		Help:    "Calendar days scanned per slot search",
		Buckets: []float64{1, 2, 3, 7, 14, 30, 90, 365},
	})

	conflictRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_schedule_conflict_retries_total",
		Help: "Slot insert retries caused by concurrent writers",
	})

	postsScheduled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_posts_scheduled_total",
		Help: "Posts assigned to a slot",
	})

	postsPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_posts_published_total",
		Help: "Due posts dispatched by the publisher",
	})

	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_publish_failures_total",
		Help: "Publisher dispatches that failed",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses, slotSearchDays, conflictRetries, postsScheduled, postsPublished, publishFailures, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		slotSearchDays:  slotSearchDays,
		conflictRetries: conflictRetries,
		postsScheduled:  postsScheduled,
		postsPublished:  postsPublished,
		publishFailures: publishFailures,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveSlotSearch records how many calendar days a slot search scanned.
func (m *MetricsService) ObserveSlotSearch(days int) {
	if m == nil {
		return
	}
	m.slotSearchDays.Observe(float64(days))
}

// IncScheduleConflictRetry counts a search-and-insert retry after a
// uniqueness conflict.
func (m *MetricsService) IncScheduleConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

// IncPostScheduled counts a successful slot assignment.
func (m *MetricsService) IncPostScheduled() {
	if m == nil {
		return
	}
	m.postsScheduled.Inc()
}

// IncPostPublished counts a publisher dispatch.
func (m *MetricsService) IncPostPublished() {
	if m == nil {
		return
	}
	m.postsPublished.Inc()
}

// IncPublishFailure counts a failed publisher dispatch.
func (m *MetricsService) IncPublishFailure() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}
