package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/meridianbio/publication-discovery-service/internal/acquire"
	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// Runner abstracts the waterfall engine for testing.
type Runner interface {
	Run(ctx context.Context, record domain.CanonicalRecord) (*acquire.AcquisitionResult, error)
}

// AcquisitionSink receives finished acquisition results for downstream
// persistence. Emission failures never fail the acquisition itself.
type AcquisitionSink interface {
	EmitAcquisition(ctx context.Context, result *acquire.AcquisitionResult) error
}

// AcquisitionConfig controls one Acquisition instance.
type AcquisitionConfig struct {
	// MaxConcurrent bounds simultaneous per-record waterfall runs. Each
	// individual run remains strictly sequential over its locations; this
	// limit only governs concurrency across distinct records.
	MaxConcurrent int
}

func (c *AcquisitionConfig) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
}

// Acquisition runs the download waterfall for canonical records.
type Acquisition struct {
	waterfall Runner
	sink      AcquisitionSink
	metrics   Recorder
	cfg       AcquisitionConfig
	logger    zerolog.Logger
}

// NewAcquisition creates an Acquisition pipeline. sink may be nil.
func NewAcquisition(waterfall Runner, sink AcquisitionSink, metrics Recorder, cfg AcquisitionConfig, logger zerolog.Logger) *Acquisition {
	cfg.applyDefaults()
	return &Acquisition{
		waterfall: waterfall,
		sink:      sink,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.With().Str("component", "acquisition").Logger(),
	}
}

// Acquire runs the waterfall for one record. Exhausting every location is a
// normal outcome reported in the result; a non-nil error means the run
// itself could not proceed.
func (a *Acquisition) Acquire(ctx context.Context, record domain.CanonicalRecord) (*acquire.AcquisitionResult, error) {
	result, err := a.waterfall.Run(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("waterfall failed for record %s: %w", record.ID, err)
	}

	for _, attempt := range result.Attempts {
		a.metrics.RecordDownloadAttempt(string(attempt.Outcome))
	}
	if result.Acquired {
		a.metrics.RecordDownloadAcquired(result.SizeBytes)
	} else if len(result.Attempts) > 0 {
		a.metrics.RecordDownloadExhausted()
	}

	a.logger.Info().
		Str("record_id", result.RecordID).
		Bool("acquired", result.Acquired).
		Int("attempts", len(result.Attempts)).
		Msg("acquisition finished")

	if a.sink != nil {
		if err := a.sink.EmitAcquisition(ctx, result); err != nil {
			a.logger.Warn().Err(err).Str("record_id", result.RecordID).Msg("acquisition sink emission failed")
		}
	}

	return result, nil
}

// AcquireAll runs the waterfall for every record with bounded concurrency.
// Results come back in input order. Per-record run errors are collected in
// the same positions; the method itself fails only when the caller's
// context is cancelled before all records are processed.
func (a *Acquisition) AcquireAll(ctx context.Context, records []domain.CanonicalRecord) ([]*acquire.AcquisitionResult, []error) {
	results := make([]*acquire.AcquisitionResult, len(records))
	errs := make([]error, len(records))

	sem := semaphore.NewWeighted(int64(a.cfg.MaxConcurrent))
	var wg sync.WaitGroup

	for i, record := range records {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			continue
		}

		wg.Add(1)
		go func(i int, record domain.CanonicalRecord) {
			defer wg.Done()
			defer sem.Release(1)
			results[i], errs[i] = a.Acquire(ctx, record)
		}(i, record)
	}

	wg.Wait()
	return results, errs
}
