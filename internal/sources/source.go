// Package sources defines the uniform provider abstraction over external
// bibliographic and full-text APIs.
//
// Each external system (OpenAlex, PubMed, Crossref, Europe PMC, Unpaywall,
// Semantic Scholar, arXiv, ...) implements the Provider interface, allowing
// the discovery pipeline to query many sources concurrently with one API.
// Providers translate their wire formats into domain.Candidate values and
// report failures through the domain error taxonomy; they never panic and
// never leak transport details to callers.
//
// Example usage:
//
//	provider := openalex.New(cfg)
//	candidates, err := provider.Query(ctx, domain.IdentifierBundle{DOI: "10.1/x"}, 25)
package sources

import (
	"context"
	"time"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// Provider is the uniform interface over one external data source.
type Provider interface {
	// Query asks the source for candidate records matching the bundle.
	// It returns zero candidates (and no error) when the source simply
	// has no match; errors are reserved for actual failures and are
	// always classifiable via the domain error taxonomy.
	//
	// Implementations must:
	//   - Respect context cancellation and deadlines
	//   - Apply their own rate limiting
	//   - Return *domain.SourceError for provider failures
	Query(ctx context.Context, bundle domain.IdentifierBundle, maxResults int) ([]domain.Candidate, error)

	// Name returns the stable source name used for provenance,
	// per-source rate limit buckets, logging, and metric labels.
	Name() string

	// Tier returns the provider's static priority tier.
	Tier() domain.PriorityTier

	// RateInterval returns the minimum interval between calls to this
	// source. The orchestrator's per-source token buckets honor it.
	RateInterval() time.Duration

	// Enabled reports whether the provider is available for queries.
	// A provider may be disabled by configuration or a missing API key.
	Enabled() bool
}
