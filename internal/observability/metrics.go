package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// Metrics contains all Prometheus metrics for the publication discovery
// service, organized by subsystem: discovery requests, source fan-out,
// merge/dedup, downloads, and cache. All counters and histograms are
// registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// DiscoveriesStarted counts discovery requests initiated.
	DiscoveriesStarted prometheus.Counter

	// DiscoveriesCompleted counts discovery requests that produced a result envelope.
	DiscoveriesCompleted prometheus.Counter

	// DiscoveriesFailed counts discovery requests that ended in a definitive failure.
	DiscoveriesFailed prometheus.Counter

	// DiscoveryDuration observes end-to-end discovery latency in seconds.
	DiscoveryDuration prometheus.Histogram

	// EarlyStops counts fan-outs cancelled early after enough results arrived.
	EarlyStops prometheus.Counter

	// SourceQueriesTotal counts provider queries, labeled by source.
	SourceQueriesTotal *prometheus.CounterVec

	// SourceQueriesFailed counts failed provider queries, labeled by source and error kind.
	SourceQueriesFailed *prometheus.CounterVec

	// SourceQueryDuration observes per-provider query latency in seconds.
	SourceQueryDuration *prometheus.HistogramVec

	// CandidatesPerSource observes how many candidates each provider returned.
	CandidatesPerSource *prometheus.HistogramVec

	// SourceRateLimited counts rate-limit rejections per source.
	SourceRateLimited *prometheus.CounterVec

	// CandidatesMerged counts candidate records consumed by the merger.
	CandidatesMerged prometheus.Counter

	// CanonicalRecords counts canonical records produced by the merger.
	CanonicalRecords prometheus.Counter

	// RecordsDropped counts unusable records dropped during merge.
	RecordsDropped prometheus.Counter

	// DownloadAttempts counts individual download attempts, labeled by outcome.
	DownloadAttempts *prometheus.CounterVec

	// DownloadsAcquired counts records for which a valid PDF was written.
	DownloadsAcquired prometheus.Counter

	// DownloadsExhausted counts records whose every location failed.
	DownloadsExhausted prometheus.Counter

	// DownloadBytes counts bytes of validated PDF content written to disk.
	DownloadBytes prometheus.Counter

	// CacheHits counts cache lookups answered from a live entry.
	CacheHits prometheus.Counter

	// CacheMisses counts cache lookups that fell through to fan-out.
	CacheMisses prometheus.Counter

	// CacheInvalidations counts explicit cache invalidations.
	CacheInvalidations prometheus.Counter
}

// NewMetrics creates and registers all metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		DiscoveriesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discoveries_started_total",
			Help:      "Total number of discovery requests initiated",
		}),
		DiscoveriesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discoveries_completed_total",
			Help:      "Total number of discovery requests that produced a result",
		}),
		DiscoveriesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discoveries_failed_total",
			Help:      "Total number of discovery requests that failed definitively",
		}),
		DiscoveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_duration_seconds",
			Help:      "End-to-end duration of discovery requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		EarlyStops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_early_stops_total",
			Help:      "Total number of fan-outs cancelled early after sufficient results",
		}),
		SourceQueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_queries_total",
			Help:      "Total number of provider queries",
		}, []string{"source"}),
		SourceQueriesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_queries_failed_total",
			Help:      "Total number of failed provider queries",
		}, []string{"source", "error_kind"}),
		SourceQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_query_duration_seconds",
			Help:      "Duration of provider queries in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		CandidatesPerSource: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_per_source",
			Help:      "Distribution of candidate counts returned per provider query",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}, []string{"source"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate-limit rejections per source",
		}, []string{"source"}),
		CandidatesMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_merged_total",
			Help:      "Total number of candidate records consumed by the merger",
		}),
		CanonicalRecords: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "canonical_records_total",
			Help:      "Total number of canonical records produced by the merger",
		}),
		RecordsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Total number of unusable records dropped during merge",
		}),
		DownloadAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_attempts_total",
			Help:      "Total number of download attempts by outcome",
		}, []string{"outcome"}),
		DownloadsAcquired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_acquired_total",
			Help:      "Total number of records for which a validated PDF was written",
		}),
		DownloadsExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_exhausted_total",
			Help:      "Total number of records whose every download location failed",
		}),
		DownloadBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Total bytes of validated PDF content written",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache lookups answered from a live entry",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache lookups that fell through to fan-out",
		}),
		CacheInvalidations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Total number of explicit cache invalidations",
		}),
	}
}

// RecordDiscoveryStarted records that a discovery request has started.
func (m *Metrics) RecordDiscoveryStarted() {
	m.DiscoveriesStarted.Inc()
}

// RecordDiscoveryCompleted records a completed discovery request.
func (m *Metrics) RecordDiscoveryCompleted(durationSeconds float64) {
	m.DiscoveriesCompleted.Inc()
	m.DiscoveryDuration.Observe(durationSeconds)
}

// RecordDiscoveryFailed records a definitively failed discovery request.
func (m *Metrics) RecordDiscoveryFailed(durationSeconds float64) {
	m.DiscoveriesFailed.Inc()
	m.DiscoveryDuration.Observe(durationSeconds)
}

// RecordEarlyStop records a fan-out cancelled by the early-stop policy.
func (m *Metrics) RecordEarlyStop() {
	m.EarlyStops.Inc()
}

// SourceQueried records the outcome of one provider query. It implements the
// fan-out orchestrator's Observer interface.
func (m *Metrics) SourceQueried(source string, candidates int, duration time.Duration, err error) {
	m.SourceQueriesTotal.WithLabelValues(source).Inc()
	m.SourceQueryDuration.WithLabelValues(source).Observe(duration.Seconds())

	if err != nil {
		kind := errorKindLabel(err)
		m.SourceQueriesFailed.WithLabelValues(source, kind).Inc()
		if kind == domain.KindRateLimited.String() {
			m.SourceRateLimited.WithLabelValues(source).Inc()
		}
		return
	}

	m.CandidatesPerSource.WithLabelValues(source).Observe(float64(candidates))
}

// RecordMerge records one merge pass over an aggregate candidate list.
func (m *Metrics) RecordMerge(candidates, records, dropped int) {
	m.CandidatesMerged.Add(float64(candidates))
	m.CanonicalRecords.Add(float64(records))
	m.RecordsDropped.Add(float64(dropped))
}

// RecordDownloadAttempt records one download attempt by outcome label.
func (m *Metrics) RecordDownloadAttempt(outcome string) {
	m.DownloadAttempts.WithLabelValues(outcome).Inc()
}

// RecordDownloadAcquired records a successfully acquired and validated PDF.
func (m *Metrics) RecordDownloadAcquired(sizeBytes int64) {
	m.DownloadsAcquired.Inc()
	m.DownloadBytes.Add(float64(sizeBytes))
}

// RecordDownloadExhausted records a record whose every location failed.
func (m *Metrics) RecordDownloadExhausted() {
	m.DownloadsExhausted.Inc()
}

// RecordCacheHit records a cache lookup served from a live entry.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a cache lookup that missed or hit an expired entry.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// RecordCacheInvalidation records an explicit cache invalidation.
func (m *Metrics) RecordCacheInvalidation() {
	m.CacheInvalidations.Inc()
}

// errorKindLabel maps an error onto a bounded metric label via the domain
// sentinel hierarchy, so arbitrary error text never becomes a label value.
func errorKindLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.KindNotFound.String()
	case errors.Is(err, domain.ErrRateLimited):
		return domain.KindRateLimited.String()
	case errors.Is(err, domain.ErrTimeout):
		return domain.KindTimeout.String()
	case errors.Is(err, domain.ErrTransient):
		return domain.KindTransient.String()
	case errors.Is(err, domain.ErrFatal):
		return domain.KindFatal.String()
	default:
		return "other"
	}
}
