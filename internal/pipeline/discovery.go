// Package pipeline wires the discovery and acquisition stages into the two
// top-level operations the service exposes: discover-and-rank publications
// for an identifier bundle, and acquire PDFs for canonical records.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianbio/publication-discovery-service/internal/cache"
	"github.com/meridianbio/publication-discovery-service/internal/domain"
	"github.com/meridianbio/publication-discovery-service/internal/fanout"
	"github.com/meridianbio/publication-discovery-service/internal/merge"
	"github.com/meridianbio/publication-discovery-service/internal/score"
)

// Recorder receives pipeline-level metric events. The observability
// package's Metrics type satisfies it.
type Recorder interface {
	RecordDiscoveryStarted()
	RecordDiscoveryCompleted(durationSeconds float64)
	RecordDiscoveryFailed(durationSeconds float64)
	RecordEarlyStop()
	RecordMerge(candidates, records, dropped int)
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheInvalidation()
	RecordDownloadAttempt(outcome string)
	RecordDownloadAcquired(sizeBytes int64)
	RecordDownloadExhausted()
}

// Fanout abstracts the orchestrator for testing.
type Fanout interface {
	Discover(ctx context.Context, bundle domain.IdentifierBundle) (*fanout.Result, error)
}

// Sink receives finished pipeline results for downstream persistence or
// messaging. Emission failures are logged and never fail the pipeline call.
type Sink interface {
	EmitDiscovery(ctx context.Context, result *DiscoveryResult) error
}

// Issue describes one non-fatal per-source failure surfaced in the result
// envelope instead of failing the whole discovery.
type Issue struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// DiscoveryResult is the envelope returned by one discovery call. It is the
// unit serialized into the cache; cached and freshly computed results have
// identical shape.
type DiscoveryResult struct {
	// Key is the identifier bundle cache key this result answers.
	Key string `json:"key"`

	// Records holds the ranked canonical records, best first.
	Records []domain.ScoredRecord `json:"records"`

	// Dropped counts unusable records discarded during merge.
	Dropped int `json:"dropped"`

	// Issues lists per-source failures that did not abort the fan-out.
	Issues []Issue `json:"issues,omitempty"`

	// Stopped reports whether the fan-out was cut short by early-stop.
	Stopped bool `json:"stopped"`

	// GeneratedAt is when the fan-out that produced this result ran.
	GeneratedAt time.Time `json:"generated_at"`

	// FromCache reports whether this call was answered from the cache.
	// Not serialized; it describes the call, not the result.
	FromCache bool `json:"-"`
}

// DiscoveryConfig controls one Discovery instance.
type DiscoveryConfig struct {
	// CacheTTL is how long a discovery result stays fresh.
	CacheTTL time.Duration
}

func (c *DiscoveryConfig) applyDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
}

// Discovery is the cache-fronted discover-and-rank operation.
type Discovery struct {
	fanout  Fanout
	merger  *merge.Merger
	scorer  *score.Scorer
	store   cache.Store
	sink    Sink
	metrics Recorder
	cfg     DiscoveryConfig
	logger  zerolog.Logger
}

// NewDiscovery creates a Discovery pipeline. sink may be nil when no
// downstream consumer is wired.
func NewDiscovery(
	fo Fanout,
	merger *merge.Merger,
	scorer *score.Scorer,
	store cache.Store,
	sink Sink,
	metrics Recorder,
	cfg DiscoveryConfig,
	logger zerolog.Logger,
) *Discovery {
	cfg.applyDefaults()
	return &Discovery{
		fanout:  fo,
		merger:  merger,
		scorer:  scorer,
		store:   store,
		sink:    sink,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger.With().Str("component", "discovery").Logger(),
	}
}

// Discover answers one identifier bundle: from the cache when a live entry
// exists, otherwise by fanning out to every enabled source, merging,
// scoring, and caching the ranked result. A cache hit queries no source.
func (d *Discovery) Discover(ctx context.Context, bundle domain.IdentifierBundle, dataset domain.DatasetContext) (*DiscoveryResult, error) {
	if bundle.IsEmpty() {
		return nil, domain.ErrEmptyBundle
	}

	key := bundle.Key()
	logger := d.logger.With().Str("bundle_key", key).Logger()

	if cached := d.lookup(ctx, key, logger); cached != nil {
		return cached, nil
	}

	d.metrics.RecordDiscoveryStarted()
	start := time.Now()

	fr, err := d.fanout.Discover(ctx, bundle)
	if err != nil {
		d.metrics.RecordDiscoveryFailed(time.Since(start).Seconds())
		return nil, fmt.Errorf("fan-out failed for %s: %w", key, err)
	}
	if fr.Stopped {
		d.metrics.RecordEarlyStop()
	}

	merged := d.merger.Merge(fr.Aggregate)
	d.metrics.RecordMerge(len(fr.Aggregate), len(merged.Records), merged.Dropped)

	result := &DiscoveryResult{
		Key:         key,
		Records:     d.scorer.Rank(merged.Records, dataset),
		Dropped:     merged.Dropped,
		Issues:      collectIssues(fr),
		Stopped:     fr.Stopped,
		GeneratedAt: time.Now().UTC(),
	}

	d.persist(ctx, key, result, logger)
	d.metrics.RecordDiscoveryCompleted(time.Since(start).Seconds())

	logger.Info().
		Int("records", len(result.Records)).
		Int("dropped", result.Dropped).
		Int("issues", len(result.Issues)).
		Bool("stopped", result.Stopped).
		Msg("discovery completed")

	if d.sink != nil {
		if err := d.sink.EmitDiscovery(ctx, result); err != nil {
			logger.Warn().Err(err).Msg("discovery sink emission failed")
		}
	}

	return result, nil
}

// Invalidate forces the next Discover call for the bundle to re-query
// every source.
func (d *Discovery) Invalidate(ctx context.Context, bundle domain.IdentifierBundle) error {
	if bundle.IsEmpty() {
		return domain.ErrEmptyBundle
	}
	if err := d.store.Invalidate(ctx, bundle.Key()); err != nil {
		return err
	}
	d.metrics.RecordCacheInvalidation()
	return nil
}

// lookup returns the cached result for key, or nil on a miss. A corrupt
// entry is invalidated and treated as a miss rather than failing the call.
func (d *Discovery) lookup(ctx context.Context, key string, logger zerolog.Logger) *DiscoveryResult {
	payload, found, err := d.store.Get(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Msg("cache read failed, falling through to fan-out")
		d.metrics.RecordCacheMiss()
		return nil
	}
	if !found {
		d.metrics.RecordCacheMiss()
		return nil
	}

	var result DiscoveryResult
	if err := json.Unmarshal(payload, &result); err != nil {
		logger.Warn().Err(err).Msg("corrupt cache entry, invalidating")
		_ = d.store.Invalidate(ctx, key)
		d.metrics.RecordCacheMiss()
		return nil
	}

	d.metrics.RecordCacheHit()
	result.FromCache = true
	logger.Debug().Int("records", len(result.Records)).Msg("discovery served from cache")
	return &result
}

// persist writes the result snapshot into the cache. Failures are logged;
// the caller still gets the freshly computed result.
func (d *Discovery) persist(ctx context.Context, key string, result *DiscoveryResult, logger zerolog.Logger) {
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Error().Err(err).Msg("failed to serialize discovery result")
		return
	}
	if err := d.store.Set(ctx, key, payload, d.cfg.CacheTTL); err != nil {
		logger.Warn().Err(err).Msg("cache write failed")
	}
}

// collectIssues turns per-source failures into envelope entries. Clean
// misses and early-stop cancellations are not failures.
func collectIssues(fr *fanout.Result) []Issue {
	var issues []Issue
	for _, name := range sortedSourceNames(fr) {
		outcome := fr.PerSource[name]
		if !isReportable(outcome.Err) {
			continue
		}
		issues = append(issues, Issue{
			Source: outcome.Source,
			Kind:   errorKind(outcome.Err),
			Detail: outcome.Err.Error(),
		})
	}
	return issues
}

// sortedSourceNames keeps issue order stable across runs regardless of
// map iteration order.
func sortedSourceNames(fr *fanout.Result) []string {
	names := make([]string, 0, len(fr.PerSource))
	for name := range fr.PerSource {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isReportable excludes clean misses and early-stop cancellations, which
// are expected outcomes rather than failures.
func isReportable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, fanout.ErrEarlyStopped)
}

// errorKind maps a source failure onto its bounded kind name.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return domain.KindRateLimited.String()
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return domain.KindTimeout.String()
	case errors.Is(err, domain.ErrTransient):
		return domain.KindTransient.String()
	case errors.Is(err, domain.ErrFatal):
		return domain.KindFatal.String()
	default:
		return "other"
	}
}
