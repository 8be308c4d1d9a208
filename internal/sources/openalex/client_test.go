package openalex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

const workJSON = `{
	"meta": {"count": 1},
	"results": [{
		"id": "https://openalex.org/W2741809807",
		"doi": "https://doi.org/10.1234/Example.2020",
		"display_name": "Gene X regulates Y in model organisms",
		"publication_date": "2020-03-15",
		"publication_year": 2020,
		"type": "article",
		"cited_by_count": 42,
		"ids": {
			"pmid": "https://pubmed.ncbi.nlm.nih.gov/31234567",
			"pmcid": "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC7654321/"
		},
		"authorships": [
			{"author": {"display_name": "Jane Smith", "orcid": "https://orcid.org/0000-0001-2345-6789"},
			 "institutions": [{"display_name": "Example University"}]},
			{"author": {"display_name": "John Doe"}, "institutions": []}
		],
		"primary_location": {
			"pdf_url": "https://example.org/paper.pdf",
			"landing_page_url": "https://example.org/paper",
			"license": "cc-by",
			"version": "publishedVersion",
			"source": {"display_name": "Journal of Examples"}
		},
		"open_access": {"is_oa": true, "oa_url": "https://example.org/oa"},
		"abstract_inverted_index": {"Gene": [0], "X": [1], "regulates": [2], "Y": [3]}
	}]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := New(Config{BaseURL: server.URL, Enabled: true, RateLimit: 100})
	return client, server
}

func TestClient_Query(t *testing.T) {
	t.Run("resolves DOI via filter and maps fields", func(t *testing.T) {
		var gotFilter string
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotFilter = r.URL.Query().Get("filter")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(workJSON))
		})

		candidates, err := client.Query(context.Background(), domain.IdentifierBundle{DOI: "10.1234/Example.2020"}, 10)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, "doi:10.1234/example.2020", gotFilter)

		cand := candidates[0]
		assert.Equal(t, "10.1234/example.2020", cand.IDs.DOI)
		assert.Equal(t, "31234567", cand.IDs.PMID)
		assert.Equal(t, "PMC7654321", cand.IDs.PMCID)
		assert.Equal(t, "Gene X regulates Y in model organisms", cand.Title)
		assert.Equal(t, "Gene X regulates Y", cand.Abstract)
		assert.Equal(t, 2020, cand.Year)
		assert.Equal(t, "Journal of Examples", cand.Journal)
		require.NotNil(t, cand.CitationCount)
		assert.Equal(t, 42, *cand.CitationCount)
		assert.Equal(t, SourceName, cand.Source)
		assert.Equal(t, domain.TierCritical, cand.Tier)

		require.Len(t, cand.Authors, 2)
		assert.Equal(t, "Jane Smith", cand.Authors[0].Name)
		assert.Equal(t, "0000-0001-2345-6789", cand.Authors[0].ORCID)
		assert.Equal(t, "Example University", cand.Authors[0].Affiliation)
	})

	t.Run("extracts typed download locations", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(workJSON))
		})

		candidates, err := client.Query(context.Background(), domain.IdentifierBundle{DOI: "10.1234/example.2020"}, 10)
		require.NoError(t, err)
		require.Len(t, candidates, 1)

		locs := candidates[0].Locations
		require.Len(t, locs, 3)
		assert.Equal(t, domain.LocationPDFDirect, locs[0].Type)
		assert.Equal(t, "https://example.org/paper.pdf", locs[0].URL)
		assert.Equal(t, "cc-by", locs[0].License)
		assert.Equal(t, domain.LocationLandingPage, locs[1].Type)
		assert.Equal(t, domain.LocationUnknown, locs[2].Type)
	})

	t.Run("empty bundle yields no candidates and no call", func(t *testing.T) {
		called := false
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			called = true
		})

		candidates, err := client.Query(context.Background(), domain.IdentifierBundle{Year: 2020}, 10)
		require.NoError(t, err)
		assert.Empty(t, candidates)
		assert.False(t, called)
	})

	t.Run("404 is a clean miss", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		candidates, err := client.Query(context.Background(), domain.IdentifierBundle{DOI: "10.1/missing"}, 10)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	t.Run("503 maps to transient source error", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := client.Query(context.Background(), domain.IdentifierBundle{DOI: "10.1/x"}, 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrTransient)
	})

	t.Run("429 maps to rate limited source error", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.Query(context.Background(), domain.IdentifierBundle{DOI: "10.1/x"}, 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	})
}

func TestReconstructAbstract(t *testing.T) {
	t.Run("orders words by position", func(t *testing.T) {
		idx := map[string][]int{"world": {1}, "hello": {0}, "again": {2}}
		assert.Equal(t, "hello world again", reconstructAbstract(idx))
	})

	t.Run("repeated words appear at each position", func(t *testing.T) {
		idx := map[string][]int{"the": {0, 2}, "cat": {1}}
		assert.Equal(t, "the cat the", reconstructAbstract(idx))
	})

	t.Run("empty index", func(t *testing.T) {
		assert.Equal(t, "", reconstructAbstract(nil))
	})
}
