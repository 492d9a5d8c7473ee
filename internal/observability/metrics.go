package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the ingestion pipeline,
// organized by subsystem: remote store traffic, the rate limiter, the lookup
// caches, duplicate resolution, batch orchestration, and discovery searches.
// All collectors are registered via promauto with the default registry.
type Metrics struct {
	// StoreRequestsTotal counts calls to the remote bibliography store,
	// labeled by operation (create, list, attach, collection).
	StoreRequestsTotal *prometheus.CounterVec

	// StoreRequestsFailed counts failed store calls, labeled by operation.
	StoreRequestsFailed *prometheus.CounterVec

	// LimiterWaitSeconds observes how long callers stalled in the rate
	// limiter before each store request.
	LimiterWaitSeconds prometheus.Histogram

	// CacheHits counts lookup cache hits, labeled by cache (accession, generic).
	CacheHits *prometheus.CounterVec

	// CacheMisses counts lookup cache misses, labeled by cache.
	CacheMisses *prometheus.CounterVec

	// DuplicatesDetected counts duplicates, labeled by tier (run, cache, remote).
	DuplicatesDetected *prometheus.CounterVec

	// RecordsCreated counts records successfully created in the remote store.
	RecordsCreated prometheus.Counter

	// RecordsFailed counts records that ended in the failed state.
	RecordsFailed prometheus.Counter

	// AttachmentsUploaded counts attachments uploaded to created items.
	AttachmentsUploaded prometheus.Counter

	// BatchDuration observes end-to-end batch durations in seconds.
	BatchDuration prometheus.Histogram

	// SearchesTotal counts discovery searches, labeled by source.
	SearchesTotal *prometheus.CounterVec

	// RecordsDiscovered counts records returned by discovery, labeled by source.
	RecordsDiscovered *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		StoreRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_requests_total",
			Help:      "Total requests issued to the remote bibliography store",
		}, []string{"operation"}),
		StoreRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_requests_failed_total",
			Help:      "Total failed requests to the remote bibliography store",
		}, []string{"operation"}),
		LimiterWaitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "limiter_wait_seconds",
			Help:      "Time spent waiting in the rate limiter per request",
			Buckets:   []float64{.001, .01, .1, 1, 6, 15, 60, 300, 600},
		}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_hits_total",
			Help:      "Lookup cache hits",
		}, []string{"cache"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_misses_total",
			Help:      "Lookup cache misses",
		}, []string{"cache"}),
		DuplicatesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_detected_total",
			Help:      "Duplicate records detected, by resolution tier",
		}, []string{"tier"}),
		RecordsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Records created in the remote bibliography store",
		}),
		RecordsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_failed_total",
			Help:      "Records that failed ingestion",
		}),
		AttachmentsUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_uploaded_total",
			Help:      "Attachments uploaded to created items",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "End-to-end batch ingestion duration in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 600, 1800, 3600},
		}),
		SearchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Discovery searches issued, by source",
		}, []string{"source"}),
		RecordsDiscovered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_discovered_total",
			Help:      "Records returned by discovery, by source",
		}, []string{"source"}),
	}
}

// Nil-safe recording helpers. Components accept a *Metrics that may be nil
// in tests; these helpers keep call sites free of nil checks.

// RecordStoreRequest records one store request and, when failed is true, one
// failure for the given operation.
func (m *Metrics) RecordStoreRequest(operation string, failed bool) {
	if m == nil {
		return
	}
	m.StoreRequestsTotal.WithLabelValues(operation).Inc()
	if failed {
		m.StoreRequestsFailed.WithLabelValues(operation).Inc()
	}
}

// RecordLimiterWait records the time one caller spent in the rate limiter.
func (m *Metrics) RecordLimiterWait(seconds float64) {
	if m == nil {
		return
	}
	m.LimiterWaitSeconds.Observe(seconds)
}

// RecordCacheLookup records a cache hit or miss for the named cache.
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues(cache).Inc()
	} else {
		m.CacheMisses.WithLabelValues(cache).Inc()
	}
}

// RecordDuplicate records a duplicate detected at the given tier.
func (m *Metrics) RecordDuplicate(tier string) {
	if m == nil {
		return
	}
	m.DuplicatesDetected.WithLabelValues(tier).Inc()
}

// RecordCreated records one successfully created record.
func (m *Metrics) RecordCreated() {
	if m == nil {
		return
	}
	m.RecordsCreated.Inc()
}

// RecordFailed records one failed record.
func (m *Metrics) RecordFailed() {
	if m == nil {
		return
	}
	m.RecordsFailed.Inc()
}

// RecordAttachment records one uploaded attachment.
func (m *Metrics) RecordAttachment() {
	if m == nil {
		return
	}
	m.AttachmentsUploaded.Inc()
}

// RecordBatch records the duration of one completed batch.
func (m *Metrics) RecordBatch(seconds float64) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(seconds)
}

// RecordSearch records one discovery search and its result count.
func (m *Metrics) RecordSearch(source string, records int) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(source).Inc()
	m.RecordsDiscovered.WithLabelValues(source).Add(float64(records))
}
