package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the research finder.
// Metrics are organized by subsystem: runs, source searches, source HTTP
// requests, rate limiting, cache and deduplication.
//
// All Record* methods are safe to call on a nil *Metrics, so components can
// treat metrics as optional.
type Metrics struct {
	// RunsStarted counts aggregation runs that passed validation and dispatched.
	RunsStarted prometheus.Counter

	// RunsCompleted counts runs that returned a result (including all-failed runs).
	RunsCompleted prometheus.Counter

	// RunsCancelled counts runs abandoned because the caller cancelled.
	RunsCancelled prometheus.Counter

	// RunDuration observes the end-to-end duration of runs in seconds.
	RunDuration prometheus.Histogram

	// SearchesStarted counts source searches dispatched, labeled by source.
	SearchesStarted *prometheus.CounterVec

	// SearchesCompleted counts successful source searches, labeled by source.
	SearchesCompleted *prometheus.CounterVec

	// SearchesFailed counts failed source searches, labeled by source and reason.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes source search duration in seconds, labeled by source.
	SearchDuration *prometheus.HistogramVec

	// RecordsPerSearch observes records returned per source search.
	RecordsPerSearch *prometheus.HistogramVec

	// RecordsReturned counts records in final, deduplicated run results.
	RecordsReturned prometheus.Counter

	// RecordsFiltered counts records removed by post-filters.
	RecordsFiltered prometheus.Counter

	// DuplicatesMerged counts records folded into another during deduplication.
	DuplicatesMerged prometheus.Counter

	// SourceRequestsTotal counts HTTP requests to sources, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests, labeled by source, endpoint and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts 429 responses from sources, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// RateLimitWait observes time spent waiting on the local limiter, labeled by source.
	RateLimitWait *prometheus.HistogramVec

	// CacheHits counts cache hits, labeled by source.
	CacheHits *prometheus.CounterVec

	// CacheMisses counts cache misses, labeled by source.
	CacheMisses *prometheus.CounterVec

	// CacheWrites counts payloads stored, labeled by source.
	CacheWrites *prometheus.CounterVec

	// CacheCorruptions counts unreadable entries treated as misses, labeled by source.
	CacheCorruptions *prometheus.CounterVec

	// CacheEvictions counts entries removed by cache directives, labeled by directive.
	CacheEvictions *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registry. The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a Metrics instance registered with reg.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Runs
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of aggregation runs started",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of aggregation runs that returned a result",
		}),
		RunsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_cancelled_total",
			Help:      "Total number of aggregation runs cancelled by the caller",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of aggregation runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		// Source searches
		SearchesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of source searches started",
		}, []string{"source"}),
		SearchesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of source searches completed successfully",
		}, []string{"source"}),
		SearchesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of source searches that failed",
		}, []string{"source", "reason"}),
		SearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of source searches in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),
		RecordsPerSearch: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "records_per_search",
			Help:      "Number of records returned per source search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"source"}),

		// Records
		RecordsReturned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_returned_total",
			Help:      "Total number of deduplicated records returned by runs",
		}),
		RecordsFiltered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_filtered_total",
			Help:      "Total number of records removed by post-filters",
		}),
		DuplicatesMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_merged_total",
			Help:      "Total number of records merged into another record",
		}),

		// Source HTTP requests
		SourceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of HTTP requests to sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed HTTP requests to sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of HTTP requests to sources in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from sources",
		}, []string{"source"}),
		RateLimitWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for the local rate limiter in seconds",
			Buckets:   []float64{0, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"source"}),

		// Cache
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}, []string{"source"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}, []string{"source"}),
		CacheWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Total number of payloads written to the cache",
		}, []string{"source"}),
		CacheCorruptions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_corruptions_total",
			Help:      "Total number of unreadable cache entries",
		}, []string{"source"}),
		CacheEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of cache entries removed by directives",
		}, []string{"directive"}),
	}
}

// RecordRunStarted records that a run has dispatched.
func (m *Metrics) RecordRunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}

// RecordRunCompleted records a finished run and the size of its result.
func (m *Metrics) RecordRunCompleted(durationSeconds float64, records int) {
	if m == nil {
		return
	}
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
	m.RecordsReturned.Add(float64(records))
}

// RecordRunCancelled records that a run has been cancelled.
func (m *Metrics) RecordRunCancelled(durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsCancelled.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordSearchStarted records that a search has started.
func (m *Metrics) RecordSearchStarted(source string) {
	if m == nil {
		return
	}
	m.SearchesStarted.WithLabelValues(source).Inc()
}

// RecordSearchCompleted records that a search has completed.
func (m *Metrics) RecordSearchCompleted(source string, recordCount int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesCompleted.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
	m.RecordsPerSearch.WithLabelValues(source).Observe(float64(recordCount))
}

// RecordSearchFailed records that a search has failed.
func (m *Metrics) RecordSearchFailed(source, reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesFailed.WithLabelValues(source, reason).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordFiltered records records dropped by post-filters.
func (m *Metrics) RecordFiltered(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.RecordsFiltered.Add(float64(count))
}

// RecordDuplicatesMerged records multiple merged duplicates in a single call.
func (m *Metrics) RecordDuplicatesMerged(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.DuplicatesMerged.Add(float64(count))
}

// RecordSourceRequest records a request to a source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to a source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	if m == nil {
		return
	}
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordRateLimitWait records time spent blocked on the local limiter.
func (m *Metrics) RecordRateLimitWait(source string, waitSeconds float64) {
	if m == nil {
		return
	}
	m.RateLimitWait.WithLabelValues(source).Observe(waitSeconds)
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(source string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(source).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(source string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(source).Inc()
}

// RecordCacheWrite records a payload written to the cache.
func (m *Metrics) RecordCacheWrite(source string) {
	if m == nil {
		return
	}
	m.CacheWrites.WithLabelValues(source).Inc()
}

// RecordCacheCorruption records an unreadable cache entry.
func (m *Metrics) RecordCacheCorruption(source string) {
	if m == nil {
		return
	}
	m.CacheCorruptions.WithLabelValues(source).Inc()
}

// RecordCacheEvictions records entries removed by a cache directive.
func (m *Metrics) RecordCacheEvictions(directive string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.CacheEvictions.WithLabelValues(directive).Add(float64(count))
}
