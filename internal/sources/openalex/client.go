// Package openalex implements the sources.Provider interface for the
// OpenAlex works API.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
	"github.com/meridianbio/publication-discovery-service/internal/sources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default requests per second. The polite
	// pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 25

	// SourceName is the stable provenance name for this provider.
	SourceName = "openalex"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the API base URL. Defaults to https://api.openalex.org.
	BaseURL string

	// Email is the contact email for the polite pool.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// MaxResults caps results per search request (OpenAlex max is 200).
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

// Client implements sources.Provider for OpenAlex.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Provider = (*Client)(nil)

// New creates a new OpenAlex client.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			UserAgent: "Meridian-PublicationDiscovery/1.0 (mailto:" + cfg.Email + ")",
		}),
	}
}

// Name returns the stable source name.
func (c *Client) Name() string { return SourceName }

// Tier returns the provider's priority tier. OpenAlex is the broadest
// curated source and anchors the critical tier.
func (c *Client) Tier() domain.PriorityTier { return domain.TierCritical }

// RateInterval returns the minimum interval between calls.
func (c *Client) RateInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.config.RateLimit)
}

// Enabled reports whether this source is enabled.
func (c *Client) Enabled() bool { return c.config.Enabled }

// Query searches OpenAlex for works matching the identifier bundle.
// A DOI or PMID resolves via filter; otherwise the title is searched.
func (c *Client) Query(ctx context.Context, bundle domain.IdentifierBundle, maxResults int) ([]domain.Candidate, error) {
	searchURL, err := c.buildQueryURL(bundle, maxResults)
	if err != nil {
		return nil, domain.NewSourceError(SourceName, domain.KindFatal, err)
	}
	if searchURL == "" {
		// Nothing in the bundle that OpenAlex can resolve.
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
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

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, domain.NewSourceError(SourceName, domain.KindTransient, fmt.Errorf("decoding response: %w", err))
	}

	candidates := make([]domain.Candidate, 0, len(searchResp.Results))
	for _, work := range searchResp.Results {
		if cand := c.workToCandidate(&work); cand != nil {
			candidates = append(candidates, *cand)
		}
	}
	return candidates, nil
}

// buildQueryURL constructs the /works URL for the bundle. Returns "" when
// the bundle has no field this source can query.
func (c *Client) buildQueryURL(bundle domain.IdentifierBundle, maxResults int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = "/works"

	query := url.Values{}
	switch {
	case bundle.DOI != "":
		query.Set("filter", "doi:"+domain.NormalizeDOI(bundle.DOI))
	case bundle.PMID != "":
		query.Set("filter", "pmid:"+bundle.PMID)
	case bundle.Title != "":
		query.Set("filter", "title.search:"+bundle.Title)
	default:
		return "", nil
	}

	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}
	if maxResults > 200 {
		maxResults = 200 // OpenAlex API limit
	}
	query.Set("per_page", strconv.Itoa(maxResults))

	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// workToCandidate converts an OpenAlex work to a candidate record.
// Returns nil for works with neither identifier nor title.
func (c *Client) workToCandidate(work *Work) *domain.Candidate {
	doi := domain.NormalizeDOI(work.DOI)
	if doi == "" {
		doi = domain.NormalizeDOI(work.IDs.DOI)
	}
	pmid := strings.TrimPrefix(strings.TrimSpace(work.IDs.PMID), "https://pubmed.ncbi.nlm.nih.gov/")
	pmcid := strings.TrimPrefix(strings.TrimSpace(work.IDs.PMCID), "https://www.ncbi.nlm.nih.gov/pmc/articles/")
	pmcid = strings.TrimSuffix(pmcid, "/")

	title := work.DisplayName
	if title == "" {
		title = work.Title
	}
	if doi == "" && pmid == "" && pmcid == "" && title == "" {
		return nil
	}

	var pubDate *time.Time
	year := work.PublicationYear
	if work.PublicationDate != "" {
		if t, err := time.Parse("2006-01-02", work.PublicationDate); err == nil {
			pubDate = &t
			if year == 0 {
				year = t.Year()
			}
		}
	}

	authors := make([]domain.Author, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		author := domain.Author{
			Name:  authorship.Author.DisplayName,
			ORCID: strings.TrimPrefix(authorship.Author.Orcid, "https://orcid.org/"),
		}
		if len(authorship.Institutions) > 0 {
			author.Affiliation = authorship.Institutions[0].DisplayName
		}
		authors = append(authors, author)
	}

	var journal string
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		journal = work.PrimaryLocation.Source.DisplayName
	}

	citations := work.CitedByCount

	cand := &domain.Candidate{
		IDs: domain.IdentifierBundle{
			DOI:   doi,
			PMID:  pmid,
			PMCID: domain.NormalizePMCID(pmcid),
			Year:  year,
		},
		Title:           title,
		Abstract:        reconstructAbstract(work.AbstractInvertedIndex),
		Authors:         authors,
		PublicationDate: pubDate,
		Year:            year,
		Journal:         journal,
		Venue:           journal,
		CitationCount:   &citations,
		Locations:       c.workLocations(work),
		Source:          SourceName,
		Tier:            domain.TierCritical,
		Extra: map[string]any{
			"openalex_id": strings.TrimPrefix(work.ID, "https://openalex.org/"),
			"type":        work.Type,
		},
	}
	return cand
}

// workLocations extracts typed download locations from a work. OpenAlex
// self-reports pdf_url vs landing_page_url reliably, so declared types are
// trusted downstream.
func (c *Client) workLocations(work *Work) []domain.Location {
	var locations []domain.Location

	add := func(loc WorkLocation) {
		if loc.PDFURL != "" {
			locations = append(locations, domain.Location{
				URL:     loc.PDFURL,
				Type:    domain.LocationPDFDirect,
				Source:  SourceName,
				Tier:    domain.TierCritical,
				License: loc.License,
				Version: loc.Version,
			})
		}
		if loc.LandingPage != "" {
			locations = append(locations, domain.Location{
				URL:     loc.LandingPage,
				Type:    domain.LocationLandingPage,
				Source:  SourceName,
				Tier:    domain.TierCritical,
				License: loc.License,
				Version: loc.Version,
			})
		}
	}

	if work.PrimaryLocation != nil {
		add(*work.PrimaryLocation)
	}
	for _, loc := range work.Locations {
		add(loc)
	}
	if work.OpenAccess != nil && work.OpenAccess.OAURL != "" {
		locations = append(locations, domain.Location{
			URL:    work.OpenAccess.OAURL,
			Type:   domain.LocationUnknown,
			Source: SourceName,
			Tier:   domain.TierCritical,
		})
	}
	return locations
}

// reconstructAbstract rebuilds the abstract text from OpenAlex's inverted
// index format, which maps each word to its positions in the text.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	// Guard against malicious payloads with excessive position entries.
	if totalPairs > maxAbstractWords {
		return ""
	}

	pairs := make([]posWord, 0, totalPairs)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })

	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}
	return builder.String()
}
