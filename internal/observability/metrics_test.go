package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_pubfinder_new")

	assert.NotNil(t, m.DiscoveriesStarted)
	assert.NotNil(t, m.DiscoveriesCompleted)
	assert.NotNil(t, m.DiscoveriesFailed)
	assert.NotNil(t, m.DiscoveryDuration)
	assert.NotNil(t, m.EarlyStops)
	assert.NotNil(t, m.SourceQueriesTotal)
	assert.NotNil(t, m.SourceQueriesFailed)
	assert.NotNil(t, m.SourceQueryDuration)
	assert.NotNil(t, m.CandidatesPerSource)
	assert.NotNil(t, m.SourceRateLimited)
	assert.NotNil(t, m.CandidatesMerged)
	assert.NotNil(t, m.CanonicalRecords)
	assert.NotNil(t, m.RecordsDropped)
	assert.NotNil(t, m.DownloadAttempts)
	assert.NotNil(t, m.DownloadsAcquired)
	assert.NotNil(t, m.CacheHits)
	assert.NotNil(t, m.CacheMisses)
	assert.NotNil(t, m.CacheInvalidations)
}

func TestRecordDiscoveryLifecycle(t *testing.T) {
	m := NewMetrics("test_discovery_lifecycle")

	m.RecordDiscoveryStarted()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DiscoveriesStarted))

	m.RecordDiscoveryCompleted(2.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DiscoveriesCompleted))

	m.RecordDiscoveryFailed(1.0)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DiscoveriesFailed))

	histCount, err := getHistogramSampleCount(m.DiscoveryDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), histCount)
}

func TestRecordEarlyStop(t *testing.T) {
	m := NewMetrics("test_early_stop")

	m.RecordEarlyStop()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EarlyStops))
}

func TestSourceQueried(t *testing.T) {
	t.Run("successful query records candidates", func(t *testing.T) {
		m := NewMetrics("test_source_queried_ok")

		m.SourceQueried("openalex", 12, 250*time.Millisecond, nil)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceQueriesTotal.WithLabelValues("openalex")))
	})

	t.Run("failed query records bounded error kind", func(t *testing.T) {
		m := NewMetrics("test_source_queried_failed")

		err := domain.NewSourceError("pubmed", domain.KindTimeout, nil)
		m.SourceQueried("pubmed", 0, 30*time.Second, err)

		assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceQueriesTotal.WithLabelValues("pubmed")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceQueriesFailed.WithLabelValues("pubmed", "timeout")))
	})

	t.Run("rate limited query also bumps rate limit counter", func(t *testing.T) {
		m := NewMetrics("test_source_queried_rate_limited")

		err := domain.NewHTTPSourceError("crossref", 429)
		m.SourceQueried("crossref", 0, 100*time.Millisecond, err)

		assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceQueriesFailed.WithLabelValues("crossref", "rate_limited")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRateLimited.WithLabelValues("crossref")))
	})
}

func TestRecordMerge(t *testing.T) {
	m := NewMetrics("test_record_merge")

	m.RecordMerge(17, 9, 2)
	assert.Equal(t, float64(17), testutil.ToFloat64(m.CandidatesMerged))
	assert.Equal(t, float64(9), testutil.ToFloat64(m.CanonicalRecords))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecordsDropped))
}

func TestRecordDownloadAttempt(t *testing.T) {
	m := NewMetrics("test_download_attempt")

	m.RecordDownloadAttempt("validation_failed")
	m.RecordDownloadAttempt("success")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DownloadAttempts.WithLabelValues("validation_failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DownloadAttempts.WithLabelValues("success")))
}

func TestRecordDownloadAcquired(t *testing.T) {
	m := NewMetrics("test_download_acquired")

	m.RecordDownloadAcquired(1024)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DownloadsAcquired))
	assert.Equal(t, float64(1024), testutil.ToFloat64(m.DownloadBytes))
}

func TestRecordDownloadExhausted(t *testing.T) {
	m := NewMetrics("test_download_exhausted")

	m.RecordDownloadExhausted()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DownloadsExhausted))
}

func TestRecordCacheCounters(t *testing.T) {
	m := NewMetrics("test_cache_counters")

	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()
	m.RecordCacheInvalidation()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheInvalidations))
}

func TestErrorKindLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", domain.NewSourceError("s", domain.KindNotFound, nil), "not_found"},
		{"rate limited", domain.NewSourceError("s", domain.KindRateLimited, nil), "rate_limited"},
		{"timeout", domain.NewSourceError("s", domain.KindTimeout, nil), "timeout"},
		{"transient", domain.NewSourceError("s", domain.KindTransient, nil), "transient"},
		{"fatal", domain.NewSourceError("s", domain.KindFatal, nil), "fatal"},
		{"unclassified", assert.AnError, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorKindLabel(tt.err))
		})
	}
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var dto = &dto.Metric{}
	if err := m.Write(dto); err != nil {
		return 0, err
	}

	return dto.Histogram.GetSampleCount(), nil
}
