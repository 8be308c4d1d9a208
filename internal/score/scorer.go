// Package score ranks canonical records by relevance to a dataset
// context using a weighted sum of six normalized factors.
package score

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// Factor names as they appear in the score breakdown.
const (
	FactorKeywordMatch      = "keyword_match"
	FactorContentSimilarity = "content_similarity"
	FactorRecency           = "recency"
	FactorVenue             = "venue"
	FactorCitationImpact    = "citation_impact"
	FactorSourceQuality     = "source_quality"
)

// Weights assigns the relative importance of each factor. They must sum
// to 1.0.
type Weights struct {
	KeywordMatch      float64 `mapstructure:"keyword_match"`
	ContentSimilarity float64 `mapstructure:"content_similarity"`
	Recency           float64 `mapstructure:"recency"`
	Venue             float64 `mapstructure:"venue"`
	CitationImpact    float64 `mapstructure:"citation_impact"`
	SourceQuality     float64 `mapstructure:"source_quality"`
}

// DefaultWeights returns the standard factor weighting.
func DefaultWeights() Weights {
	return Weights{
		KeywordMatch:      0.35,
		ContentSimilarity: 0.30,
		Recency:           0.15,
		Venue:             0.10,
		CitationImpact:    0.05,
		SourceQuality:     0.05,
	}
}

const weightSumTolerance = 1e-9

// Validate checks that all weights are non-negative and sum to 1.0.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		FactorKeywordMatch:      w.KeywordMatch,
		FactorContentSimilarity: w.ContentSimilarity,
		FactorRecency:           w.Recency,
		FactorVenue:             w.Venue,
		FactorCitationImpact:    w.CitationImpact,
		FactorSourceQuality:     w.SourceQuality,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must be non-negative, got %f", name, v)
		}
	}
	sum := w.KeywordMatch + w.ContentSimilarity + w.Recency + w.Venue + w.CitationImpact + w.SourceQuality
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %f", sum)
	}
	return nil
}

// highImpactVenues is a small curated list matched by substring against
// the record's journal or venue, lowercased.
var highImpactVenues = []string{
	"nature",
	"science",
	"cell",
	"lancet",
	"new england journal of medicine",
	"pnas",
	"proceedings of the national academy",
	"plos biology",
	"nucleic acids research",
	"genome biology",
	"bioinformatics",
}

// recencyHalfLifeYears controls the exponential age decay of the recency
// factor: a record this many years old scores 0.5.
const recencyHalfLifeYears = 5.0

// citationSaturation is the citation count at which the log-scale
// citation factor reaches 1.0.
const citationSaturation = 1000.0

// Scorer computes relevance scores. Scoring is pure: no I/O, and the
// same inputs always produce the same output.
type Scorer struct {
	weights Weights
}

// New creates a Scorer after validating the weights.
func New(weights Weights) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights}, nil
}

// Score computes the weighted relevance of one record against the
// dataset context and returns the factor breakdown alongside the total.
func (s *Scorer) Score(record domain.CanonicalRecord, ctx domain.DatasetContext) domain.ScoredRecord {
	now := ctx.SubmissionDate
	if now.IsZero() {
		now = time.Now()
	}

	factors := map[string]float64{
		FactorKeywordMatch:      keywordMatch(record, ctx),
		FactorContentSimilarity: contentSimilarity(record, ctx),
		FactorRecency:           recency(record, now),
		FactorVenue:             venueRelevance(record, ctx),
		FactorCitationImpact:    citationImpact(record),
		FactorSourceQuality:     sourceQuality(record),
	}

	total := s.weights.KeywordMatch*factors[FactorKeywordMatch] +
		s.weights.ContentSimilarity*factors[FactorContentSimilarity] +
		s.weights.Recency*factors[FactorRecency] +
		s.weights.Venue*factors[FactorVenue] +
		s.weights.CitationImpact*factors[FactorCitationImpact] +
		s.weights.SourceQuality*factors[FactorSourceQuality]

	return domain.ScoredRecord{Record: record, Score: clamp01(total), Factors: factors}
}

// Rank scores every record and returns them sorted descending by score,
// breaking ties by more recent publication date.
func (s *Scorer) Rank(records []domain.CanonicalRecord, ctx domain.DatasetContext) []domain.ScoredRecord {
	scored := make([]domain.ScoredRecord, len(records))
	for i, r := range records {
		scored[i] = s.Score(r, ctx)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return recordTime(scored[i].Record).After(recordTime(scored[j].Record))
	})
	return scored
}

func recordTime(r domain.CanonicalRecord) time.Time {
	if r.PublicationDate != nil {
		return *r.PublicationDate
	}
	if r.Year != 0 {
		return time.Date(r.Year, time.July, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

// keywordMatch is the fraction of context keywords found in the record's
// title, abstract, or keyword list.
func keywordMatch(record domain.CanonicalRecord, ctx domain.DatasetContext) float64 {
	if len(ctx.Keywords) == 0 {
		return 0
	}

	haystack := strings.ToLower(record.Title + " " + record.Abstract + " " + strings.Join(record.Keywords, " "))
	matched := 0
	for _, kw := range ctx.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(haystack, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(ctx.Keywords))
}

// contentSimilarity fuzzily compares the dataset title/summary against
// the record title/abstract using token-set overlap blended with edit
// distance on the titles.
func contentSimilarity(record domain.CanonicalRecord, ctx domain.DatasetContext) float64 {
	contextText := strings.TrimSpace(ctx.Title + " " + ctx.Summary)
	recordText := strings.TrimSpace(record.Title + " " + record.Abstract)
	if contextText == "" || recordText == "" {
		return 0
	}

	overlap := tokenOverlap(contextText, recordText)

	titleSim := 0.0
	if ctx.Title != "" && record.Title != "" {
		a, b := strings.ToLower(ctx.Title), strings.ToLower(record.Title)
		longest := len([]rune(a))
		if l := len([]rune(b)); l > longest {
			longest = l
		}
		titleSim = 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
		if titleSim < 0 {
			titleSim = 0
		}
	}

	return clamp01(0.6*overlap + 0.4*titleSim)
}

// tokenOverlap is the fraction of distinct context tokens (length > 3)
// that also occur in the record text.
func tokenOverlap(contextText, recordText string) float64 {
	contextTokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(contextText)) {
		if len(tok) > 3 {
			contextTokens[tok] = true
		}
	}
	if len(contextTokens) == 0 {
		return 0
	}

	recordTokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(recordText)) {
		recordTokens[tok] = true
	}

	matched := 0
	for tok := range contextTokens {
		if recordTokens[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(contextTokens))
}

// recency decays exponentially with age: 1.0 at zero age, 0.5 at the
// half-life, approaching 0 for very old records. Records with no known
// date score a neutral 0.5.
func recency(record domain.CanonicalRecord, now time.Time) float64 {
	published := recordTime(record)
	if published.IsZero() {
		return 0.5
	}

	ageYears := now.Sub(published).Hours() / (24 * 365.25)
	if ageYears < 0 {
		ageYears = 0
	}
	return math.Pow(0.5, ageYears/recencyHalfLifeYears)
}

// venueRelevance checks the curated high-impact list first, then falls
// back to keyword overlap between the venue name and the context, then a
// neutral default.
func venueRelevance(record domain.CanonicalRecord, ctx domain.DatasetContext) float64 {
	venue := strings.ToLower(strings.TrimSpace(record.Journal))
	if venue == "" {
		venue = strings.ToLower(strings.TrimSpace(record.Venue))
	}
	if venue == "" {
		return 0.5
	}

	for _, known := range highImpactVenues {
		if strings.Contains(venue, known) {
			return 1.0
		}
	}

	for _, kw := range ctx.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(venue, kw) {
			return 0.8
		}
	}
	return 0.5
}

// citationImpact normalizes the citation count on a log scale,
// saturating at citationSaturation. A nil count scores 0.
func citationImpact(record domain.CanonicalRecord) float64 {
	if record.CitationCount == nil || *record.CitationCount <= 0 {
		return 0
	}
	return clamp01(math.Log1p(float64(*record.CitationCount)) / math.Log1p(citationSaturation))
}

// expectedFields is the metadata surface counted by the completeness
// half of the source-quality factor.
const expectedFields = 7.0

// sourceQuality blends how many sources corroborated the record with
// what fraction of the expected metadata fields are populated.
func sourceQuality(record domain.CanonicalRecord) float64 {
	corroboration := float64(len(record.ContributingSources)) / 3.0
	if corroboration > 1 {
		corroboration = 1
	}

	populated := 0.0
	if record.Title != "" {
		populated++
	}
	if record.Abstract != "" {
		populated++
	}
	if len(record.Authors) > 0 {
		populated++
	}
	if record.Journal != "" || record.Venue != "" {
		populated++
	}
	if record.Year != 0 || record.PublicationDate != nil {
		populated++
	}
	if record.IDs.HasPrimaryID() {
		populated++
	}
	if record.CitationCount != nil {
		populated++
	}

	return clamp01(0.5*corroboration + 0.5*populated/expectedFields)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
