package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
	"github.com/meridianbio/publication-discovery-service/internal/resilience"
)

// pdfLinkPatterns locate an embedded direct-PDF link in a landing page
// body, checked in order. The meta tag is the most reliable signal;
// bare hrefs are the fallback.
var pdfLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<meta[^>]+name="citation_pdf_url"[^>]+content="([^"]+)"`),
	regexp.MustCompile(`(?i)<meta[^>]+content="([^"]+)"[^>]+name="citation_pdf_url"`),
	regexp.MustCompile(`(?i)href="([^"]+\.pdf(?:\?[^"]*)?)"`),
}

// WaterfallConfig controls the download engine.
type WaterfallConfig struct {
	// OutputDir is where validated PDFs are written.
	OutputDir string

	// AttemptTimeout bounds each individual location attempt.
	AttemptTimeout time.Duration

	// Retry is the per-location backoff schedule.
	Retry resilience.RetryConfig
}

func (c *WaterfallConfig) applyDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = os.TempDir()
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 60 * time.Second
	}
}

// AcquisitionResult reports one waterfall run: the full ordered attempt
// history plus, on success, where the file landed.
type AcquisitionResult struct {
	// RecordID identifies the canonical record this run served.
	RecordID string

	// Acquired reports whether any location produced a validated PDF.
	Acquired bool

	// FilePath, ContentHash, and SizeBytes describe the persisted file;
	// set only when Acquired is true.
	FilePath    string
	ContentHash string
	SizeBytes   int64

	// Attempts is the append-only history, one entry per tried URL in
	// try order, including the discovered landing-page link when one
	// was followed.
	Attempts []domain.DownloadAttempt
}

// Waterfall walks a prioritized location list sequentially, stopping at
// the first verified success. Exhausting every location is a normal
// outcome, reported in the result rather than as an error.
type Waterfall struct {
	downloader *Downloader
	cfg        WaterfallConfig
	logger     zerolog.Logger
}

// NewWaterfall creates a Waterfall engine.
func NewWaterfall(downloader *Downloader, cfg WaterfallConfig, logger zerolog.Logger) *Waterfall {
	cfg.applyDefaults()
	return &Waterfall{
		downloader: downloader,
		cfg:        cfg,
		logger:     logger.With().Str("component", "waterfall").Logger(),
	}
}

// Run classifies and orders the record's locations, then tries each in
// turn. At most one file is written per invocation. A non-nil error is
// returned only for infrastructure failures (context cancellation,
// unwritable output directory); "nothing worked" comes back as a result
// with Acquired=false and the full attempt history.
func (w *Waterfall) Run(ctx context.Context, record domain.CanonicalRecord) (*AcquisitionResult, error) {
	result := &AcquisitionResult{RecordID: record.ID.String()}

	locations := Classify(record.Locations)
	if len(locations) == 0 {
		return result, nil
	}

	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	// Each location is one step in a fallback chain. A location that
	// responds but yields no validated PDF is a completed-but-empty
	// step (the attempt lands in the history and the walk continues);
	// only infrastructure failures abort the chain.
	steps := make([]resilience.Step[*AcquisitionResult], 0, len(locations))
	for _, loc := range locations {
		steps = append(steps, resilience.Step[*AcquisitionResult]{
			Name: loc.URL,
			Run: func(ctx context.Context) (*AcquisitionResult, error) {
				var err error
				if loc.Type == domain.LocationLandingPage {
					_, err = w.tryLandingPage(ctx, loc, result)
				} else {
					_, err = w.tryDirect(ctx, loc.URL, result)
				}
				if err != nil {
					return nil, resilience.Abort(err)
				}
				return result, nil
			},
			Accept: func(r *AcquisitionResult) bool { return r.Acquired },
		})
	}

	acquired, _, err := resilience.Fallback(ctx, steps)
	if err != nil {
		if cause := resilience.AbortCause(err); cause != nil {
			return nil, cause
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		w.logger.Info().
			Str("record_id", result.RecordID).
			Int("attempts", len(result.Attempts)).
			Msg("all download locations exhausted")
		return result, nil
	}
	return acquired, nil
}

// tryDirect attempts one URL expected to serve PDF bytes. It reports
// done=true when the file was validated and persisted.
func (w *Waterfall) tryDirect(ctx context.Context, rawURL string, result *AcquisitionResult) (bool, error) {
	start := time.Now()
	attempt := domain.DownloadAttempt{URL: rawURL, Timestamp: start.UTC()}

	payload, err := resilience.Retry(ctx, w.cfg.Retry, func(ctx context.Context) (*DownloadResult, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
		defer cancel()
		return w.downloader.Download(attemptCtx, rawURL)
	})
	attempt.Duration = time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		attempt.Outcome = outcomeFor(err)
		attempt.Reason = err.Error()
		result.Attempts = append(result.Attempts, attempt)
		w.logger.Debug().Err(err).Str("url", rawURL).Msg("download attempt failed")
		return false, nil
	}

	path := filepath.Join(w.cfg.OutputDir, result.RecordID+".pdf")
	if err := os.WriteFile(path, payload.Content, 0o644); err != nil {
		return false, fmt.Errorf("persist pdf: %w", err)
	}

	attempt.Outcome = domain.OutcomeSuccess
	attempt.FilePath = path
	attempt.SizeBytes = payload.SizeBytes
	attempt.ContentHash = payload.ContentHash
	result.Attempts = append(result.Attempts, attempt)

	result.Acquired = true
	result.FilePath = path
	result.ContentHash = payload.ContentHash
	result.SizeBytes = payload.SizeBytes

	w.logger.Info().
		Str("record_id", result.RecordID).
		Str("url", rawURL).
		Int64("size_bytes", payload.SizeBytes).
		Msg("pdf acquired")
	return true, nil
}

// tryLandingPage fetches the page, searches the body for an embedded
// direct-PDF link, and tries that link once. The extra navigation never
// recurses: a discovered link that itself serves HTML is a failed
// attempt, not another page to crawl.
func (w *Waterfall) tryLandingPage(ctx context.Context, loc domain.Location, result *AcquisitionResult) (bool, error) {
	start := time.Now()
	attempt := domain.DownloadAttempt{URL: loc.URL, Timestamp: start.UTC()}

	pageCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
	body, err := w.downloader.FetchPage(pageCtx, loc.URL)
	cancel()
	attempt.Duration = time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		attempt.Outcome = outcomeFor(err)
		attempt.Reason = err.Error()
		result.Attempts = append(result.Attempts, attempt)
		return false, nil
	}

	pdfURL := extractPDFLink(body, loc.URL)
	if pdfURL == "" {
		attempt.Outcome = domain.OutcomeFailure
		attempt.Reason = "no embedded pdf link found in landing page"
		result.Attempts = append(result.Attempts, attempt)
		return false, nil
	}

	attempt.Outcome = domain.OutcomeFailure
	attempt.Reason = "landing page navigated to embedded pdf link"
	result.Attempts = append(result.Attempts, attempt)

	return w.tryDirect(ctx, pdfURL, result)
}

// extractPDFLink scans an HTML body for a direct-PDF link and resolves
// it against the page URL.
func extractPDFLink(body []byte, pageURL string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	for _, pattern := range pdfLinkPatterns {
		match := pattern.FindSubmatch(body)
		if match == nil {
			continue
		}
		ref, err := url.Parse(string(match[1]))
		if err != nil {
			continue
		}
		return base.ResolveReference(ref).String()
	}
	return ""
}

func outcomeFor(err error) domain.AttemptOutcome {
	switch {
	case errors.Is(err, ErrNotPDF), errors.Is(err, ErrTooLarge):
		return domain.OutcomeValidationFailed
	case errors.Is(err, context.DeadlineExceeded):
		return domain.OutcomeTimeout
	default:
		return domain.OutcomeFailure
	}
}
