// Package crossref implements the sources.Provider interface for the
// Crossref REST API.
package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
	"github.com/meridianbio/publication-discovery-service/internal/sources"
)

const (
	// DefaultBaseURL is the default Crossref API base URL.
	DefaultBaseURL = "https://api.crossref.org"

	// DefaultRateLimit is the default requests per second for the polite
	// pool.
	DefaultRateLimit = 5.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 20

	// SourceName is the stable provenance name for this provider.
	SourceName = "crossref"
)

// jatsTags strips JATS markup from Crossref abstracts.
var jatsTags = regexp.MustCompile(`</?jats:[^>]+>|</?[a-z]+>`)

// Config holds configuration for the Crossref client.
type Config struct {
	// BaseURL is the API base URL.
	BaseURL string

	// Email is the contact email for the polite pool.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// MaxResults caps results per bibliographic search.
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

// Client implements sources.Provider for Crossref.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Provider = (*Client)(nil)

// New creates a new Crossref client.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	userAgent := "Meridian-PublicationDiscovery/1.0"
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			UserAgent: userAgent,
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

// Enabled reports whether this source is enabled.
func (c *Client) Enabled() bool { return c.config.Enabled }

// Query resolves a DOI directly via /works/{doi}, or falls back to a
// bibliographic search on title and author surnames.
func (c *Client) Query(ctx context.Context, bundle domain.IdentifierBundle, maxResults int) ([]domain.Candidate, error) {
	if doi := domain.NormalizeDOI(bundle.DOI); doi != "" {
		work, err := c.getByDOI(ctx, doi)
		if err != nil {
			return nil, err
		}
		if work == nil {
			return nil, nil
		}
		if cand := workToCandidate(work); cand != nil {
			return []domain.Candidate{*cand}, nil
		}
		return nil, nil
	}

	if bundle.Title == "" {
		return nil, nil
	}
	return c.search(ctx, bundle, maxResults)
}

// getByDOI fetches a single work; a 404 is a clean no-match.
func (c *Client) getByDOI(ctx context.Context, doi string) (*Work, error) {
	endpoint := c.config.BaseURL + "/works/" + url.PathEscape(doi)
	if c.config.Email != "" {
		endpoint += "?mailto=" + url.QueryEscape(c.config.Email)
	}

	var resp WorkResponse
	found, err := c.getJSON(ctx, endpoint, &resp)
	if err != nil || !found {
		return nil, err
	}
	return &resp.Message, nil
}

// search performs a bibliographic query.
func (c *Client) search(ctx context.Context, bundle domain.IdentifierBundle, maxResults int) ([]domain.Candidate, error) {
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}

	query := url.Values{}
	query.Set("query.bibliographic", bundle.Title)
	if len(bundle.AuthorSurnames) > 0 {
		query.Set("query.author", strings.Join(bundle.AuthorSurnames, " "))
	}
	query.Set("rows", strconv.Itoa(maxResults))
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}

	var resp SearchResponse
	found, err := c.getJSON(ctx, c.config.BaseURL+"/works?"+query.Encode(), &resp)
	if err != nil || !found {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(resp.Message.Items))
	for i := range resp.Message.Items {
		if cand := workToCandidate(&resp.Message.Items[i]); cand != nil {
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

// workToCandidate converts a Crossref work to a candidate record.
func workToCandidate(work *Work) *domain.Candidate {
	doi := domain.NormalizeDOI(work.DOI)
	var title string
	if len(work.Title) > 0 {
		title = work.Title[0]
	}
	if doi == "" && title == "" {
		return nil
	}

	var year int
	var pubDate *time.Time
	if len(work.Issued.DateParts) > 0 && len(work.Issued.DateParts[0]) > 0 {
		parts := work.Issued.DateParts[0]
		year = parts[0]
		month, day := 1, 1
		if len(parts) > 1 {
			month = parts[1]
		}
		if len(parts) > 2 {
			day = parts[2]
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		pubDate = &t
	}

	authors := make([]domain.Author, 0, len(work.Author))
	for _, a := range work.Author {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name == "" {
			continue
		}
		authors = append(authors, domain.Author{
			Name:  name,
			ORCID: strings.TrimPrefix(a.ORCID, "http://orcid.org/"),
		})
	}

	var journal string
	if len(work.ContainerTitle) > 0 {
		journal = work.ContainerTitle[0]
	}

	var locations []domain.Location
	for _, link := range work.Link {
		locType := domain.LocationUnknown
		if strings.Contains(link.ContentType, "pdf") {
			locType = domain.LocationPDFDirect
		} else if strings.Contains(link.ContentType, "html") {
			locType = domain.LocationHTMLFullText
		}
		locations = append(locations, domain.Location{
			URL:    link.URL,
			Type:   locType,
			Source: SourceName,
			Tier:   domain.TierHigh,
		})
	}
	if work.URL != "" {
		locations = append(locations, domain.Location{
			URL:    work.URL,
			Type:   domain.LocationLandingPage,
			Source: SourceName,
			Tier:   domain.TierHigh,
		})
	}

	citations := work.IsReferencedBy

	return &domain.Candidate{
		IDs:             domain.IdentifierBundle{DOI: doi, Year: year},
		Title:           title,
		Abstract:        strings.TrimSpace(jatsTags.ReplaceAllString(work.Abstract, " ")),
		Authors:         authors,
		PublicationDate: pubDate,
		Year:            year,
		Journal:         journal,
		Venue:           journal,
		CitationCount:   &citations,
		Locations:       locations,
		Source:          SourceName,
		Tier:            domain.TierHigh,
	}
}
