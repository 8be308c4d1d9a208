// Package unpaywall implements the sources.Provider interface for the
// Unpaywall per-DOI open-access lookup. Unpaywall contributes download
// locations rather than bibliographic breadth, so it only answers bundles
// that carry a DOI.
package unpaywall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
	"github.com/meridianbio/publication-discovery-service/internal/sources"
)

const (
	// DefaultBaseURL is the default Unpaywall API base URL.
	DefaultBaseURL = "https://api.unpaywall.org/v2"

	// DefaultRateLimit is the default requests per second. Unpaywall asks
	// for at most 100k calls/day.
	DefaultRateLimit = 5.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// SourceName is the stable provenance name for this provider.
	SourceName = "unpaywall"
)

// Config holds configuration for the Unpaywall client.
type Config struct {
	// BaseURL is the API base URL.
	BaseURL string

	// Email is required by the Unpaywall API on every request.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
}

// Client implements sources.Provider for Unpaywall.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Provider = (*Client)(nil)

// New creates a new Unpaywall client.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
		}),
	}
}

// Name returns the stable source name.
func (c *Client) Name() string { return SourceName }

// Tier returns the provider's priority tier.
func (c *Client) Tier() domain.PriorityTier { return domain.TierHigh }

// RateInterval returns the minimum interval between calls.
func (c *Client) RateInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.config.RateLimit)
}

// Enabled reports whether this source is enabled. An email is mandatory
// for the Unpaywall API, so a missing email disables the source.
func (c *Client) Enabled() bool { return c.config.Enabled && c.config.Email != "" }

// Query looks up open-access locations for the bundle's DOI. Bundles
// without a DOI yield no candidates; Unpaywall has no search endpoint.
func (c *Client) Query(ctx context.Context, bundle domain.IdentifierBundle, _ int) ([]domain.Candidate, error) {
	doi := domain.NormalizeDOI(bundle.DOI)
	if doi == "" {
		return nil, nil
	}

	endpoint := c.config.BaseURL + "/" + url.PathEscape(doi) + "?email=" + url.QueryEscape(c.config.Email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewSourceError(SourceName, domain.KindFatal, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, sources.ClassifyError(SourceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, sources.ClassifyResponse(SourceName, resp)
	}

	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.NewSourceError(SourceName, domain.KindTransient, fmt.Errorf("decoding response: %w", err))
	}

	cand := responseToCandidate(&body)
	if cand == nil {
		return nil, nil
	}
	return []domain.Candidate{*cand}, nil
}

// responseToCandidate converts an Unpaywall response to a candidate
// carrying typed download locations. The best OA location is listed first
// so downstream prioritization preserves Unpaywall's own preference.
func responseToCandidate(r *Response) *domain.Candidate {
	doi := domain.NormalizeDOI(r.DOI)
	if doi == "" {
		return nil
	}

	var locations []domain.Location
	seen := make(map[string]bool)

	addLocation := func(loc OALocation) {
		if loc.URLForPDF != "" && !seen[loc.URLForPDF] {
			seen[loc.URLForPDF] = true
			locations = append(locations, domain.Location{
				URL:     loc.URLForPDF,
				Type:    domain.LocationPDFDirect,
				Source:  SourceName,
				Tier:    domain.TierHigh,
				License: loc.License,
				Version: loc.Version,
			})
		}
		landing := loc.URLForLanding
		if landing == "" && loc.URL != loc.URLForPDF {
			landing = loc.URL
		}
		if landing != "" && !seen[landing] {
			seen[landing] = true
			locations = append(locations, domain.Location{
				URL:     landing,
				Type:    domain.LocationLandingPage,
				Source:  SourceName,
				Tier:    domain.TierHigh,
				License: loc.License,
				Version: loc.Version,
			})
		}
	}

	if r.BestOALocation != nil {
		addLocation(*r.BestOALocation)
	}
	for _, loc := range r.OALocations {
		addLocation(loc)
	}

	var authors []domain.Author
	for _, a := range r.ZAuthors {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name != "" {
			authors = append(authors, domain.Author{Name: name})
		}
	}

	return &domain.Candidate{
		IDs:       domain.IdentifierBundle{DOI: doi, Year: r.Year},
		Title:     r.Title,
		Authors:   authors,
		Year:      r.Year,
		Journal:   r.JournalName,
		Venue:     r.JournalName,
		Locations: locations,
		Source:    SourceName,
		Tier:      domain.TierHigh,
		Extra:     map[string]any{"is_oa": r.IsOA},
	}
}
