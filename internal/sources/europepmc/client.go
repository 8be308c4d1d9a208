// Package europepmc implements the sources.Provider interface for the
// Europe PMC REST API. Europe PMC is the primary source of typed full-text
// locations (PDF and HTML) for PMC-hosted articles.
package europepmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
	"github.com/meridianbio/publication-discovery-service/internal/sources"
)

const (
	// DefaultBaseURL is the default Europe PMC REST base URL.
	DefaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"

	// DefaultRateLimit is the default requests per second.
	DefaultRateLimit = 5.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 25

	// SourceName is the stable provenance name for this provider.
	SourceName = "europepmc"
)

// Config holds configuration for the Europe PMC client.
type Config struct {
	// BaseURL is the API base URL.
	BaseURL string

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

// Client implements sources.Provider for Europe PMC.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Provider = (*Client)(nil)

// New creates a new Europe PMC client.
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
func (c *Client) Tier() domain.PriorityTier { return domain.TierCritical }

// RateInterval returns the minimum interval between calls.
func (c *Client) RateInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.config.RateLimit)
}

// Enabled reports whether this source is enabled.
func (c *Client) Enabled() bool { return c.config.Enabled }

// Query searches Europe PMC for records matching the bundle.
func (c *Client) Query(ctx context.Context, bundle domain.IdentifierBundle, maxResults int) ([]domain.Candidate, error) {
	term := searchTerm(bundle)
	if term == "" {
		return nil, nil
	}
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}

	query := url.Values{}
	query.Set("query", term)
	query.Set("format", "json")
	query.Set("resultType", "core")
	query.Set("pageSize", strconv.Itoa(maxResults))

	endpoint := c.config.BaseURL + "/search?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewSourceError(SourceName, domain.KindFatal, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, sources.ClassifyError(SourceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, sources.ClassifyResponse(SourceName, resp)
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, domain.NewSourceError(SourceName, domain.KindTransient, fmt.Errorf("decoding response: %w", err))
	}

	candidates := make([]domain.Candidate, 0, len(searchResp.ResultList.Result))
	for i := range searchResp.ResultList.Result {
		if cand := resultToCandidate(&searchResp.ResultList.Result[i]); cand != nil {
			candidates = append(candidates, *cand)
		}
	}
	return candidates, nil
}

// searchTerm builds a Europe PMC query string from the bundle.
func searchTerm(bundle domain.IdentifierBundle) string {
	if doi := domain.NormalizeDOI(bundle.DOI); doi != "" {
		return `DOI:"` + doi + `"`
	}
	if bundle.PMID != "" {
		return "EXT_ID:" + bundle.PMID + " AND SRC:MED"
	}
	if pmcid := domain.NormalizePMCID(bundle.PMCID); pmcid != "" {
		return "PMCID:" + pmcid
	}
	if bundle.Title != "" {
		return `TITLE:"` + bundle.Title + `"`
	}
	return ""
}

// resultToCandidate converts a Europe PMC result to a candidate record.
func resultToCandidate(r *Result) *domain.Candidate {
	if r.Title == "" && r.DOI == "" && r.PMID == "" && r.PMCID == "" {
		return nil
	}

	year, _ := strconv.Atoi(r.PubYear)
	var pubDate *time.Time
	if r.FirstPublicationDate != "" {
		if t, err := time.Parse("2006-01-02", r.FirstPublicationDate); err == nil {
			pubDate = &t
		}
	}

	// authorString is "Smith J, Doe A, ...", split on commas.
	var authors []domain.Author
	for _, name := range strings.Split(r.AuthorString, ",") {
		name = strings.TrimSuffix(strings.TrimSpace(name), ".")
		if name != "" {
			authors = append(authors, domain.Author{Name: name})
		}
	}

	var locations []domain.Location
	for _, ft := range r.FullTextURLList.FullTextURL {
		if ft.URL == "" {
			continue
		}
		locType := domain.LocationUnknown
		switch strings.ToLower(ft.DocumentStyle) {
		case "pdf":
			locType = domain.LocationPDFDirect
		case "html":
			locType = domain.LocationHTMLFullText
		case "abs", "doi":
			locType = domain.LocationLandingPage
		}
		locations = append(locations, domain.Location{
			URL:    ft.URL,
			Type:   locType,
			Source: SourceName,
			Tier:   domain.TierCritical,
		})
	}

	citations := r.CitedByCount

	return &domain.Candidate{
		IDs: domain.IdentifierBundle{
			DOI:   domain.NormalizeDOI(r.DOI),
			PMID:  r.PMID,
			PMCID: domain.NormalizePMCID(r.PMCID),
			Year:  year,
		},
		Title:           r.Title,
		Abstract:        r.AbstractText,
		Authors:         authors,
		PublicationDate: pubDate,
		Year:            year,
		Journal:         r.JournalTitle,
		Venue:           r.JournalTitle,
		CitationCount:   &citations,
		Locations:       locations,
		Source:          SourceName,
		Tier:            domain.TierCritical,
		Extra: map[string]any{
			"in_epmc":        r.InEPMC,
			"is_open_access": r.IsOpenAccess,
		},
	}
}
