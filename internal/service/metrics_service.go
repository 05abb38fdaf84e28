package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	editStatuses    *prometheus.CounterVec
	externalChecks  *prometheus.CounterVec
	checkDuration   prometheus.Observer
	commits         *prometheus.CounterVec
	candidates      prometheus.Observer
	jobFailures     *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	commitCount          uint64
	rejectCount          uint64
}

// MetricsSnapshot is a JSON-friendly summary of the counters.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CommitsTotal             uint64    `json:"commits_total"`
	RejectionsTotal          uint64    `json:"rejections_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
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

	editStatuses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reschedule_edit_status_total",
		Help: "Evaluated lesson edits by resulting status",
	}, []string{"status"})

	externalChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reschedule_external_checks_total",
		Help: "Availability checks by outcome",
	}, []string{"outcome"})

	checkDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reschedule_external_check_batch_seconds",
		Help:    "Duration of a batch availability check",
		Buckets: prometheus.DefBuckets,
	})

	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reschedule_commits_total",
		Help: "Reschedule submissions by outcome",
	}, []string{"outcome"})

	candidates := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "room_recommendation_candidates",
		Help:    "Number of alternatives returned per recommendation",
		Buckets: prometheus.LinearBuckets(0, 2, 6),
	})

	jobFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_dead_letter_total",
		Help: "Background jobs that exhausted their retries",
	}, []string{"type"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHitRatio, cacheHits, cacheMisses,
		editStatuses, externalChecks, checkDuration, commits, candidates, jobFailures, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		editStatuses:    editStatuses,
		externalChecks:  externalChecks,
		checkDuration:   checkDuration,
		commits:         commits,
		candidates:      candidates,
		jobFailures:     jobFailures,
	}
}

// Registry exposes the collector registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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
	m.cacheLatency.Observe(duration.Seconds())
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

// ObserveReport counts evaluation statuses and external check outcomes of a report.
func (m *MetricsService) ObserveReport(report scheduling.Report) {
	if m == nil {
		return
	}
	for _, ev := range report.Evaluations {
		if !ev.Selected {
			continue
		}
		m.editStatuses.WithLabelValues(string(ev.Status)).Inc()
		if !ev.Checked {
			continue
		}
		switch {
		case ev.CheckErr != nil:
			m.externalChecks.WithLabelValues("error").Inc()
		case len(ev.ExternalConflicts) > 0:
			m.externalChecks.WithLabelValues("conflict").Inc()
		default:
			m.externalChecks.WithLabelValues("free").Inc()
		}
	}
}

// ObserveCheckBatch records how long a batch of availability checks took.
func (m *MetricsService) ObserveCheckBatch(duration time.Duration) {
	if m == nil {
		return
	}
	m.checkDuration.Observe(duration.Seconds())
}

// RecordCommit counts a submission outcome: committed, rejected or failed.
func (m *MetricsService) RecordCommit(outcome string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(outcome).Inc()
	switch outcome {
	case CommitOutcomeCommitted:
		atomic.AddUint64(&m.commitCount, 1)
	case CommitOutcomeRejected:
		atomic.AddUint64(&m.rejectCount, 1)
	}
}

// ObserveRecommendations records the size of a recommendation list.
func (m *MetricsService) ObserveRecommendations(n int) {
	if m == nil {
		return
	}
	m.candidates.Observe(float64(n))
}

// RecordDeadLetter counts a background job that gave up.
func (m *MetricsService) RecordDeadLetter(jobType string) {
	if m == nil {
		return
	}
	m.jobFailures.WithLabelValues(jobType).Inc()
}

// Snapshot returns aggregated metrics suitable for JSON endpoints.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CommitsTotal:             atomic.LoadUint64(&m.commitCount),
		RejectionsTotal:          atomic.LoadUint64(&m.rejectCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
