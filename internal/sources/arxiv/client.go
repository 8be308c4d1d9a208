// Package arxiv implements the sources.Provider interface for the arXiv
// export API.
package arxiv

import (
	"context"
	"encoding/xml"
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
	// DefaultBaseURL is the default arXiv export API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is the default requests per second. arXiv asks for
	// no more than one request every three seconds.
	DefaultRateLimit = 0.33

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 20

	// SourceName is the stable provenance name for this provider.
	SourceName = "arxiv"
)

// Config holds configuration for the arXiv client.
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

// Client implements sources.Provider for arXiv.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Provider = (*Client)(nil)

// New creates a new arXiv client.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: 1,
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

// Query resolves a known arXiv ID via id_list, otherwise searches by title.
func (c *Client) Query(ctx context.Context, bundle domain.IdentifierBundle, maxResults int) ([]domain.Candidate, error) {
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}

	query := url.Values{}
	switch {
	case bundle.ArXivID != "":
		query.Set("id_list", bundle.ArXivID)
	case bundle.Title != "":
		query.Set("search_query", `ti:"`+bundle.Title+`"`)
		query.Set("max_results", strconv.Itoa(maxResults))
	default:
		return nil, nil
	}

	endpoint := c.config.BaseURL + "/query?" + query.Encode()
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

	var feed Feed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, domain.NewSourceError(SourceName, domain.KindTransient, fmt.Errorf("decoding response: %w", err))
	}

	candidates := make([]domain.Candidate, 0, len(feed.Entries))
	for i := range feed.Entries {
		if cand := entryToCandidate(&feed.Entries[i]); cand != nil {
			candidates = append(candidates, *cand)
		}
	}
	return candidates, nil
}

// entryToCandidate converts an Atom entry to a candidate record.
func entryToCandidate(entry *Entry) *domain.Candidate {
	arxivID := extractArXivID(entry.ID)
	title := collapseWhitespace(entry.Title)
	if arxivID == "" && title == "" {
		return nil
	}

	var pubDate *time.Time
	var year int
	if entry.Published != "" {
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			pubDate = &t
			year = t.Year()
		}
	}

	authors := make([]domain.Author, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if a.Name != "" {
			authors = append(authors, domain.Author{Name: a.Name})
		}
	}

	var locations []domain.Location
	for _, link := range entry.Links {
		switch {
		case link.Title == "pdf" || link.Type == "application/pdf":
			locations = append(locations, domain.Location{
				URL:    link.Href,
				Type:   domain.LocationPDFDirect,
				Source: SourceName,
				Tier:   domain.TierMedium,
			})
		case link.Rel == "alternate":
			locations = append(locations, domain.Location{
				URL:    link.Href,
				Type:   domain.LocationLandingPage,
				Source: SourceName,
				Tier:   domain.TierMedium,
			})
		}
	}

	return &domain.Candidate{
		IDs: domain.IdentifierBundle{
			DOI:     domain.NormalizeDOI(entry.DOI),
			ArXivID: arxivID,
			Year:    year,
		},
		Title:           title,
		Abstract:        collapseWhitespace(entry.Summary),
		Authors:         authors,
		PublicationDate: pubDate,
		Year:            year,
		Venue:           entry.JournalRef,
		Locations:       locations,
		Source:          SourceName,
		Tier:            domain.TierMedium,
	}
}

// extractArXivID pulls the bare ID out of an Atom entry ID URL such as
// http://arxiv.org/abs/2101.00001v2.
func extractArXivID(id string) string {
	idx := strings.LastIndex(id, "/abs/")
	if idx < 0 {
		return ""
	}
	id = id[idx+len("/abs/"):]
	// Strip the version suffix.
	if v := strings.LastIndex(id, "v"); v > 0 {
		if _, err := strconv.Atoi(id[v+1:]); err == nil {
			id = id[:v]
		}
	}
	return id
}

// collapseWhitespace normalizes the newline-wrapped text arXiv returns.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
