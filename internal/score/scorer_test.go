package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func mustScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := New(DefaultWeights())
	require.NoError(t, err)
	return s
}

func TestWeightsValidate(t *testing.T) {
	t.Run("default weights are valid", func(t *testing.T) {
		assert.NoError(t, DefaultWeights().Validate())
	})

	t.Run("rejects weights not summing to one", func(t *testing.T) {
		w := DefaultWeights()
		w.KeywordMatch = 0.5
		assert.Error(t, w.Validate())
	})

	t.Run("rejects negative weights", func(t *testing.T) {
		w := Weights{KeywordMatch: 1.35, ContentSimilarity: 0.30, Recency: -0.35, Venue: 0.30, CitationImpact: 0.20, SourceQuality: 0.20}
		assert.Error(t, w.Validate())
	})

	t.Run("constructor rejects invalid weights", func(t *testing.T) {
		_, err := New(Weights{})
		assert.Error(t, err)
	})
}

func TestScoreBounds(t *testing.T) {
	scorer := mustScorer(t)
	ctx := domain.DatasetContext{
		Title:          "Single-cell RNA sequencing of mouse cortex",
		Keywords:       []string{"rna-seq", "cortex", "mouse"},
		SubmissionDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	records := []domain.CanonicalRecord{
		{},
		{Title: "Single-cell RNA sequencing of mouse cortex", Abstract: "rna-seq cortex mouse", Journal: "Nature", Year: 2023, CitationCount: intPtr(500), ContributingSources: []string{"pubmed", "openalex", "crossref"}},
		{Title: "Unrelated geology fieldwork", Year: 1970},
	}

	for _, r := range records {
		scored := scorer.Score(r, ctx)
		assert.GreaterOrEqual(t, scored.Score, 0.0)
		assert.LessOrEqual(t, scored.Score, 1.0)
		assert.Len(t, scored.Factors, 6)
	}
}

func TestScoreMonotonicity(t *testing.T) {
	scorer := mustScorer(t)
	ctx := domain.DatasetContext{
		Title:          "Transcriptomic profiling of liver fibrosis",
		Summary:        "Bulk RNA sequencing of fibrotic liver tissue",
		Keywords:       []string{"liver", "fibrosis", "transcriptomics"},
		SubmissionDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("more keyword hits score higher", func(t *testing.T) {
		full := scorer.Score(domain.CanonicalRecord{
			Title: "Liver fibrosis transcriptomics atlas", Year: 2023,
		}, ctx)
		partial := scorer.Score(domain.CanonicalRecord{
			Title: "Liver biopsy imaging methods", Year: 2023,
		}, ctx)
		assert.Greater(t, full.Score, partial.Score)
	})

	t.Run("newer record wins between otherwise equal records", func(t *testing.T) {
		recent := scorer.Score(domain.CanonicalRecord{Title: "Liver fibrosis study", Year: 2023}, ctx)
		old := scorer.Score(domain.CanonicalRecord{Title: "Liver fibrosis study", Year: 2003}, ctx)
		assert.Greater(t, recent.Score, old.Score)
	})

	t.Run("citations increase the score only modestly", func(t *testing.T) {
		cited := scorer.Score(domain.CanonicalRecord{Title: "Liver fibrosis study", Year: 2023, CitationCount: intPtr(900)}, ctx)
		uncited := scorer.Score(domain.CanonicalRecord{Title: "Liver fibrosis study", Year: 2023}, ctx)
		assert.Greater(t, cited.Score, uncited.Score)
		assert.Less(t, cited.Score-uncited.Score, 0.06)
	})

	t.Run("high-impact venue beats unknown venue", func(t *testing.T) {
		nature := scorer.Score(domain.CanonicalRecord{Title: "Liver fibrosis study", Year: 2023, Journal: "Nature Medicine"}, ctx)
		obscure := scorer.Score(domain.CanonicalRecord{Title: "Liver fibrosis study", Year: 2023, Journal: "Regional Bulletin"}, ctx)
		assert.Greater(t, nature.Score, obscure.Score)
	})
}

func TestScoreIsPure(t *testing.T) {
	scorer := mustScorer(t)
	ctx := domain.DatasetContext{
		Title:          "Proteomics of yeast stress response",
		Keywords:       []string{"proteomics", "yeast"},
		SubmissionDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	record := domain.CanonicalRecord{Title: "Yeast proteomics under heat stress", Year: 2022, CitationCount: intPtr(42)}

	first := scorer.Score(record, ctx)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first.Score, scorer.Score(record, ctx).Score)
	}
}

func TestRank(t *testing.T) {
	scorer := mustScorer(t)
	ctx := domain.DatasetContext{
		Title:          "Gut microbiome metagenomics",
		Keywords:       []string{"microbiome", "metagenomics"},
		SubmissionDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("sorts descending by score", func(t *testing.T) {
		ranked := scorer.Rank([]domain.CanonicalRecord{
			{Title: "Glacier melt dynamics", Year: 2023},
			{Title: "Gut microbiome metagenomics survey", Abstract: "microbiome metagenomics", Year: 2023, Journal: "Nature"},
			{Title: "Microbiome methods note", Year: 2023},
		}, ctx)

		require.Len(t, ranked, 3)
		assert.Equal(t, "Gut microbiome metagenomics survey", ranked[0].Record.Title)
		for i := 1; i < len(ranked); i++ {
			assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
		}
	})

	t.Run("breaks score ties by newer publication date", func(t *testing.T) {
		older := domain.CanonicalRecord{Title: "Identical paper", PublicationDate: timePtr(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)), Year: 2020}
		newer := domain.CanonicalRecord{Title: "Identical paper", PublicationDate: timePtr(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)), Year: 2020}
		newer.PublicationDate = timePtr(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC))

		// Force a score tie by zeroing the recency weight.
		w := Weights{KeywordMatch: 0.5, ContentSimilarity: 0.3, Venue: 0.1, CitationImpact: 0.05, SourceQuality: 0.05}
		tieScorer, err := New(w)
		require.NoError(t, err)

		ranked := tieScorer.Rank([]domain.CanonicalRecord{older, newer}, ctx)
		require.Len(t, ranked, 2)
		assert.Equal(t, newer.PublicationDate, ranked[0].Record.PublicationDate)
	})
}
