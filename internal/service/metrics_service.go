package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry for HTTP and domain metrics.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheLookups    *prometheus.CounterVec

	slotAssignments prometheus.Counter
	slotConflicts   prometheus.Counter
	slotsTruncated  prometheus.Counter
	quizAttempts    *prometheus.CounterVec
	jobQueueDepth   *prometheus.GaugeVec
}

// NewMetricsService registers the collectors on a private registry.
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

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	slotAssignments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_slot_assignments_total",
		Help: "Timetable slots written",
	})

	slotConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_conflicts_total",
		Help: "Slot assignments rejected because the teacher was booked elsewhere",
	})

	slotsTruncated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_slots_truncated_total",
		Help: "Slots discarded by timetable resizes",
	})

	quizAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_attempts_total",
		Help: "Quiz attempts by outcome",
	}, []string{"outcome"})

	jobQueueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "job_queue_pending",
		Help: "Jobs waiting in background queues",
	}, []string{"queue"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheLookups, slotAssignments, slotConflicts, slotsTruncated, quizAttempts, jobQueueDepth, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheLookups:    cacheLookups,
		slotAssignments: slotAssignments,
		slotConflicts:   slotConflicts,
		slotsTruncated:  slotsTruncated,
		quizAttempts:    quizAttempts,
		jobQueueDepth:   jobQueueDepth,
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

// Registry returns the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request latency and count.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup outcome.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordSlotAssignment counts a successful slot write.
func (m *MetricsService) RecordSlotAssignment() {
	if m == nil {
		return
	}
	m.slotAssignments.Inc()
}

// RecordSlotConflict counts an assignment rejected for double booking.
func (m *MetricsService) RecordSlotConflict() {
	if m == nil {
		return
	}
	m.slotConflicts.Inc()
}

// RecordSlotsTruncated counts slots removed by a resize.
func (m *MetricsService) RecordSlotsTruncated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.slotsTruncated.Add(float64(n))
}

// RecordQuizAttempt counts an attempt by outcome: passed, failed or rejected.
func (m *MetricsService) RecordQuizAttempt(outcome string) {
	if m == nil {
		return
	}
	m.quizAttempts.WithLabelValues(outcome).Inc()
}

// SetQueueDepth publishes the pending job count of a queue.
func (m *MetricsService) SetQueueDepth(queue string, pending int) {
	if m == nil {
		return
	}
	m.jobQueueDepth.WithLabelValues(queue).Set(float64(pending))
}
