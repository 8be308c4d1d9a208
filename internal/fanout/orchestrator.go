// Package fanout runs a single identifier bundle against every enabled
// source provider concurrently, bounded by a global concurrency ceiling
// and per-source rate limits, and collects the per-source outcomes into
// one aggregate candidate list.
package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
	"github.com/meridianbio/publication-discovery-service/internal/resilience"
	"github.com/meridianbio/publication-discovery-service/internal/sources"
)

// ErrEarlyStopped marks a source call that was cancelled because the
// early-stop policy fired before the source completed. It is an
// administrative outcome, not a source failure.
var ErrEarlyStopped = errors.New("cancelled by early-stop policy")

// Observer receives one event per completed source call. Implementations
// must be safe for concurrent use.
type Observer interface {
	SourceQueried(source string, candidates int, duration time.Duration, err error)
}

// Config controls one orchestrator instance.
type Config struct {
	// MaxConcurrency bounds simultaneous in-flight source calls.
	MaxConcurrency int

	// PerSourceTimeout applies to each individual source call.
	PerSourceTimeout time.Duration

	// MaxResultsPerSource is passed through to each provider's Query.
	MaxResultsPerSource int

	// EarlyStopThreshold enables the early-stop policy when positive:
	// once the accepted candidate total crosses it and every
	// critical-tier source has responded, remaining calls are
	// cancelled cooperatively.
	EarlyStopThreshold int

	// Retry is the per-source backoff schedule.
	Retry resilience.RetryConfig
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 8
	}
	if c.PerSourceTimeout <= 0 {
		c.PerSourceTimeout = 30 * time.Second
	}
	if c.MaxResultsPerSource <= 0 {
		c.MaxResultsPerSource = 20
	}
}

// SourceOutcome is the result of one source call, success or failure.
type SourceOutcome struct {
	Source     string
	Tier       domain.PriorityTier
	Candidates []domain.Candidate
	Duration   time.Duration
	Err        error
}

// Result is the structured output of one fan-out call.
type Result struct {
	// PerSource holds one outcome per queried source, keyed by name.
	PerSource map[string]SourceOutcome

	// Aggregate is the flattened candidate list from all successful
	// sources, ordered by source tier then source name.
	Aggregate []domain.Candidate

	// Failures counts sources that ended in an error other than a
	// clean miss or an early-stop cancellation.
	Failures int

	// Stopped reports whether the early-stop policy fired.
	Stopped bool
}

// Orchestrator fans a query out across registered providers.
type Orchestrator struct {
	registry *sources.Registry
	limiters *sources.LimiterPool
	cfg      Config
	logger   zerolog.Logger
	observer Observer
}

// New creates an Orchestrator. The observer may be nil.
func New(registry *sources.Registry, limiters *sources.LimiterPool, cfg Config, logger zerolog.Logger, observer Observer) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		registry: registry,
		limiters: limiters,
		cfg:      cfg,
		logger:   logger.With().Str("component", "fanout").Logger(),
		observer: observer,
	}
}

// Discover queries every enabled provider concurrently and returns the
// per-source outcomes plus the flattened aggregate. A failing, slow, or
// misbehaving source never prevents the others from contributing; its
// failure is recorded in the result instead.
func (o *Orchestrator) Discover(ctx context.Context, bundle domain.IdentifierBundle) (*Result, error) {
	if bundle.IsEmpty() {
		return nil, domain.ErrEmptyBundle
	}

	providers := o.registry.Enabled()
	if len(providers) == 0 {
		return nil, domain.ErrNoProviders
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := newStopTracker(o.cfg.EarlyStopThreshold, o.registry.CriticalNames(), cancel)

	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrency))
	outcomes := make(chan SourceOutcome, len(providers))
	var wg sync.WaitGroup

	for _, p := range providers {
		wg.Add(1)
		go func(p sources.Provider) {
			defer wg.Done()

			if err := sem.Acquire(runCtx, 1); err != nil {
				outcome := SourceOutcome{Source: p.Name(), Tier: p.Tier(), Err: err}
				if stop.fired() {
					outcome.Err = ErrEarlyStopped
				}
				stop.record(p.Name(), 0)
				outcomes <- outcome
				return
			}
			defer sem.Release(1)

			outcomes <- o.querySource(runCtx, p, bundle, stop)
		}(p)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	result := &Result{PerSource: make(map[string]SourceOutcome, len(providers))}
	for outcome := range outcomes {
		result.PerSource[outcome.Source] = outcome
		if outcome.Err != nil && !errors.Is(outcome.Err, ErrEarlyStopped) && !errors.Is(outcome.Err, domain.ErrNotFound) {
			result.Failures++
		}
	}
	result.Stopped = stop.fired()

	// Flatten in registry order so the aggregate is deterministic
	// regardless of completion order.
	for _, p := range providers {
		if outcome, ok := result.PerSource[p.Name()]; ok && outcome.Err == nil {
			result.Aggregate = append(result.Aggregate, outcome.Candidates...)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) querySource(ctx context.Context, p sources.Provider, bundle domain.IdentifierBundle, stop *stopTracker) SourceOutcome {
	outcome := SourceOutcome{Source: p.Name(), Tier: p.Tier()}
	start := time.Now()

	candidates, err := o.runQuery(ctx, p, bundle)
	outcome.Duration = time.Since(start)

	switch {
	case err == nil:
		outcome.Candidates = candidates
	case errors.Is(err, context.Canceled) && stop.fired():
		// Cancelled by our own early-stop, not a real failure.
		// Partial results are discarded.
		outcome.Err = ErrEarlyStopped
	default:
		outcome.Err = err
	}

	stop.record(p.Name(), len(outcome.Candidates))
	o.emit(outcome)
	return outcome
}

func (o *Orchestrator) runQuery(ctx context.Context, p sources.Provider, bundle domain.IdentifierBundle) ([]domain.Candidate, error) {
	limiter := o.limiters.For(p.Name(), p.RateInterval())

	return resilience.Retry(ctx, o.cfg.Retry, func(ctx context.Context) ([]domain.Candidate, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.PerSourceTimeout)
		defer cancel()

		return p.Query(callCtx, bundle, o.cfg.MaxResultsPerSource)
	})
}

func (o *Orchestrator) emit(outcome SourceOutcome) {
	if o.observer != nil {
		o.observer.SourceQueried(outcome.Source, len(outcome.Candidates), outcome.Duration, outcome.Err)
	}

	event := o.logger.Debug()
	if outcome.Err != nil && !errors.Is(outcome.Err, domain.ErrNotFound) && !errors.Is(outcome.Err, ErrEarlyStopped) {
		event = o.logger.Warn().Err(outcome.Err)
	}
	event.
		Str("source", outcome.Source).
		Int("candidates", len(outcome.Candidates)).
		Dur("duration", outcome.Duration).
		Msg("source query completed")
}

// stopTracker implements the early-stop policy: cancel remaining calls
// once the accepted total crosses the threshold and every critical-tier
// source has responded. A zero threshold disables the policy.
type stopTracker struct {
	mu              sync.Mutex
	threshold       int
	accepted        int
	criticalPending map[string]struct{}
	cancel          context.CancelFunc
	done            bool
}

func newStopTracker(threshold int, criticalNames []string, cancel context.CancelFunc) *stopTracker {
	pending := make(map[string]struct{}, len(criticalNames))
	for _, name := range criticalNames {
		pending[name] = struct{}{}
	}
	return &stopTracker{
		threshold:       threshold,
		criticalPending: pending,
		cancel:          cancel,
	}
}

func (s *stopTracker) record(source string, accepted int) {
	if s.threshold <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.criticalPending, source)
	s.accepted += accepted

	if !s.done && s.accepted >= s.threshold && len(s.criticalPending) == 0 {
		s.done = true
		s.cancel()
	}
}

func (s *stopTracker) fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
