// Package semanticscholar implements the sources.Provider interface for the
// Semantic Scholar Graph API.
package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
	"github.com/meridianbio/publication-discovery-service/internal/sources"
)

const (
	// DefaultBaseURL is the default Graph API base URL.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default requests per second. Without an API
	// key the shared pool is roughly 1 req/sec.
	DefaultRateLimit = 1.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 25

	// SourceName is the stable provenance name for this provider.
	SourceName = "semanticscholar"

	// paperFields selects the fields requested from the Graph API.
	paperFields = "title,abstract,year,venue,citationCount,externalIds,authors,openAccessPdf,publicationDate"
)

// Config holds configuration for the Semantic Scholar client.
type Config struct {
	// BaseURL is the API base URL.
	BaseURL string

	// APIKey raises the rate limit. Optional.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// MaxResults caps results per search request.
	MaxResults int

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
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements sources.Provider for Semantic Scholar.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Provider = (*Client)(nil)

// New creates a new Semantic Scholar client.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    1,
			APIKey:       cfg.APIKey,
			APIKeyHeader: "x-api-key",
		}),
	}
}

// Name returns the stable source name.
func (c *Client) Name() string { return SourceName }

// Tier returns the provider's priority tier.
func (c *Client) Tier() domain.PriorityTier { return domain.TierMedium }

// RateInterval returns the minimum interval between calls.
func (c *Client) RateInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.config.RateLimit)
}

// Enabled reports whether this source is enabled.
func (c *Client) Enabled() bool { return c.config.Enabled }

// Query resolves the bundle by external ID when possible, otherwise via
// relevance search on the title.
func (c *Client) Query(ctx context.Context, bundle domain.IdentifierBundle, maxResults int) ([]domain.Candidate, error) {
	if id := externalID(bundle); id != "" {
		paper, err := c.getPaper(ctx, id)
		if err != nil {
			return nil, err
		}
		if paper == nil {
			return nil, nil
		}
		if cand := paperToCandidate(paper); cand != nil {
			return []domain.Candidate{*cand}, nil
		}
		return nil, nil
	}

	if bundle.Title == "" {
		return nil, nil
	}
	return c.search(ctx, bundle.Title, maxResults)
}

// externalID maps a bundle to the Graph API's prefixed ID form.
func externalID(bundle domain.IdentifierBundle) string {
	if doi := domain.NormalizeDOI(bundle.DOI); doi != "" {
		return "DOI:" + doi
	}
	if bundle.PMID != "" {
		return "PMID:" + bundle.PMID
	}
	if bundle.ArXivID != "" {
		return "ARXIV:" + bundle.ArXivID
	}
	return ""
}

// getPaper fetches one paper by prefixed external ID; 404 is a clean miss.
func (c *Client) getPaper(ctx context.Context, id string) (*Paper, error) {
	endpoint := c.config.BaseURL + "/paper/" + url.PathEscape(id) + "?fields=" + paperFields

	var paper Paper
	found, err := c.getJSON(ctx, endpoint, &paper)
	if err != nil || !found {
		return nil, err
	}
	return &paper, nil
}

// search performs a relevance search on the title.
func (c *Client) search(ctx context.Context, title string, maxResults int) ([]domain.Candidate, error) {
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}

	query := url.Values{}
	query.Set("query", title)
	query.Set("limit", strconv.Itoa(maxResults))
	query.Set("fields", paperFields)

	var resp SearchResponse
	found, err := c.getJSON(ctx, c.config.BaseURL+"/paper/search?"+query.Encode(), &resp)
	if err != nil || !found {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(resp.Data))
	for i := range resp.Data {
		if cand := paperToCandidate(&resp.Data[i]); cand != nil {
			candidates = append(candidates, *cand)
		}
	}
	return candidates, nil
}

// getJSON performs a GET and decodes the response. Returns found=false for
// a 404 without error.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, domain.NewSourceError(SourceName, domain.KindFatal, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, sources.ClassifyError(SourceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, sources.ClassifyResponse(SourceName, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, domain.NewSourceError(SourceName, domain.KindTransient, fmt.Errorf("decoding response: %w", err))
	}
	return true, nil
}

// paperToCandidate converts a Graph API paper to a candidate record.
func paperToCandidate(paper *Paper) *domain.Candidate {
	doi := domain.NormalizeDOI(paper.ExternalIDs.DOI)
	if doi == "" && paper.Title == "" {
		return nil
	}

	var pubDate *time.Time
	if paper.PublicationDate != "" {
		if t, err := time.Parse("2006-01-02", paper.PublicationDate); err == nil {
			pubDate = &t
		}
	}

	authors := make([]domain.Author, 0, len(paper.Authors))
	for _, a := range paper.Authors {
		if a.Name != "" {
			authors = append(authors, domain.Author{Name: a.Name})
		}
	}

	var locations []domain.Location
	if paper.OpenAccessPdf != nil && paper.OpenAccessPdf.URL != "" {
		locations = append(locations, domain.Location{
			URL:    paper.OpenAccessPdf.URL,
			Type:   domain.LocationPDFDirect,
			Source: SourceName,
			Tier:   domain.TierMedium,
		})
	}

	citations := paper.CitationCount

	return &domain.Candidate{
		IDs: domain.IdentifierBundle{
			DOI:     doi,
			PMID:    paper.ExternalIDs.PubMed,
			PMCID:   domain.NormalizePMCID(paper.ExternalIDs.PMCID),
			ArXivID: paper.ExternalIDs.ArXiv,
			Year:    paper.Year,
		},
		Title:           paper.Title,
		Abstract:        paper.Abstract,
		Authors:         authors,
		PublicationDate: pubDate,
		Year:            paper.Year,
		Venue:           paper.Venue,
		CitationCount:   &citations,
		Locations:       locations,
		Source:          SourceName,
		Tier:            domain.TierMedium,
		Extra:           map[string]any{"s2_paper_id": paper.PaperID},
	}
}
