package pubmed

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
	// DefaultBaseURL is the base URL for the NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key. NCBI allows
	// 3 requests/second without a key and 10 with one.
	DefaultRateLimit = 3.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 25

	// SourceName is the stable provenance name for this provider.
	SourceName = "pubmed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the E-utilities base URL.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits. Optional.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// MaxResults caps results per search.
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

// Client implements sources.Provider for PubMed.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Provider = (*Client)(nil)

// New creates a new PubMed client.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: 3,
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

// Query resolves the bundle through the two-step E-utilities flow:
// esearch.fcgi finds matching PMIDs, efetch.fcgi fetches their metadata.
// When the bundle already carries a PMID the search step is skipped.
func (c *Client) Query(ctx context.Context, bundle domain.IdentifierBundle, maxResults int) ([]domain.Candidate, error) {
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}

	pmids := []string{strings.TrimSpace(bundle.PMID)}
	if pmids[0] == "" {
		term := searchTerm(bundle)
		if term == "" {
			return nil, nil
		}
		found, err := c.esearch(ctx, term, maxResults)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, nil
		}
		pmids = found
	}

	articles, err := c.efetch(ctx, pmids)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(articles))
	for i := range articles {
		if cand := articleToCandidate(&articles[i]); cand != nil {
			candidates = append(candidates, *cand)
		}
	}
	return candidates, nil
}

// searchTerm builds an E-utilities term for a bundle without a PMID.
func searchTerm(bundle domain.IdentifierBundle) string {
	if bundle.DOI != "" {
		return domain.NormalizeDOI(bundle.DOI) + "[AID]"
	}
	if bundle.PMCID != "" {
		return domain.NormalizePMCID(bundle.PMCID) + "[PMC]"
	}
	if bundle.Title != "" {
		term := bundle.Title + "[Title]"
		if bundle.Year != 0 {
			term += " AND " + strconv.Itoa(bundle.Year) + "[PDAT]"
		}
		return term
	}
	return ""
}

// esearch returns PMIDs matching the term.
func (c *Client) esearch(ctx context.Context, term string, maxResults int) ([]string, error) {
	query := url.Values{}
	query.Set("db", "pubmed")
	query.Set("term", term)
	query.Set("retmax", strconv.Itoa(maxResults))
	if c.config.APIKey != "" {
		query.Set("api_key", c.config.APIKey)
	}

	var result ESearchResult
	if err := c.getXML(ctx, "/esearch.fcgi", query, &result); err != nil {
		return nil, err
	}
	return result.IDList.IDs, nil
}

// efetch returns full article metadata for the given PMIDs.
func (c *Client) efetch(ctx context.Context, pmids []string) ([]PubmedArticle, error) {
	query := url.Values{}
	query.Set("db", "pubmed")
	query.Set("id", strings.Join(pmids, ","))
	query.Set("retmode", "xml")
	if c.config.APIKey != "" {
		query.Set("api_key", c.config.APIKey)
	}

	var result PubmedArticleSet
	if err := c.getXML(ctx, "/efetch.fcgi", query, &result); err != nil {
		return nil, err
	}
	return result.Articles, nil
}

// getXML performs a GET against an E-utilities endpoint and decodes XML.
func (c *Client) getXML(ctx context.Context, path string, query url.Values, out any) error {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return domain.NewSourceError(SourceName, domain.KindFatal, fmt.Errorf("parsing base URL: %w", err))
	}
	baseURL.Path += path
	baseURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return domain.NewSourceError(SourceName, domain.KindFatal, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sources.ClassifyError(SourceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return sources.ClassifyResponse(SourceName, resp)
	}

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewSourceError(SourceName, domain.KindTransient, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// articleToCandidate converts a PubMed article to a candidate record.
func articleToCandidate(article *PubmedArticle) *domain.Candidate {
	pmid := strings.TrimSpace(article.MedlineCitation.PMID)
	title := strings.TrimSpace(article.MedlineCitation.Article.Title)
	if pmid == "" && title == "" {
		return nil
	}

	var doi, pmcid string
	for _, id := range article.PubmedData.ArticleIDs {
		switch id.IDType {
		case "doi":
			doi = domain.NormalizeDOI(id.Value)
		case "pmc":
			pmcid = domain.NormalizePMCID(id.Value)
		}
	}

	pub := article.MedlineCitation.Article.Journal.JournalIssue.PubDate
	year, _ := strconv.Atoi(pub.Year)
	var pubDate *time.Time
	if year != 0 {
		month := parseMonth(pub.Month)
		day, _ := strconv.Atoi(pub.Day)
		if day == 0 {
			day = 1
		}
		t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		pubDate = &t
	}

	authorList := article.MedlineCitation.Article.AuthorList.Authors
	authors := make([]domain.Author, 0, len(authorList))
	for _, a := range authorList {
		name := strings.TrimSpace(a.ForeName + " " + a.LastName)
		if name == "" {
			continue
		}
		author := domain.Author{Name: name}
		if len(a.Affiliations) > 0 {
			author.Affiliation = a.Affiliations[0].Affiliation
		}
		authors = append(authors, author)
	}

	return &domain.Candidate{
		IDs: domain.IdentifierBundle{
			DOI:   doi,
			PMID:  pmid,
			PMCID: pmcid,
			Year:  year,
		},
		Title:           title,
		Abstract:        strings.Join(article.MedlineCitation.Article.Abstract.Texts, " "),
		Authors:         authors,
		PublicationDate: pubDate,
		Year:            year,
		Journal:         article.MedlineCitation.Article.Journal.Title,
		Venue:           article.MedlineCitation.Article.Journal.Title,
		Keywords:        article.MedlineCitation.KeywordList.Keywords,
		Source:          SourceName,
		Tier:            domain.TierCritical,
	}
}

// parseMonth handles PubMed's mix of numeric and abbreviated month forms.
func parseMonth(s string) time.Month {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		return time.Month(n)
	}
	if t, err := time.Parse("Jan", s); err == nil {
		return t.Month()
	}
	return time.January
}
