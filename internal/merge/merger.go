// Package merge groups candidate records that describe the same
// publication and resolves each group into one canonical record.
//
// Identity resolution uses a tiered key, tried in fixed order: normalized
// DOI, then PMID, then PMCID, then a content fingerprint of the
// normalized title, leading author surnames, and year. Candidates whose
// fingerprints differ only by minor title noise are absorbed through a
// fuzzy edit-distance match, which activates only when none of the exact
// tiers produced a hit.
package merge

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// DefaultAuthority ranks sources for field-level conflict resolution.
// Curated bibliographic databases outrank aggregated or extracted
// metadata; earlier entries win ties.
var DefaultAuthority = []string{
	"pubmed",
	"crossref",
	"europepmc",
	"openalex",
	"unpaywall",
	"semanticscholar",
	"arxiv",
}

// Config controls grouping behavior.
type Config struct {
	// FuzzyThreshold is the minimum normalized title similarity for the
	// fuzzy merge path, in [0,1].
	FuzzyThreshold float64

	// FuzzyYearWindow bounds how far apart two publication years may be
	// for a fuzzy title match to merge. Zero requires equal years;
	// negative disables the year check entirely.
	FuzzyYearWindow int

	// Authority overrides DefaultAuthority when non-empty.
	Authority []string
}

func (c *Config) applyDefaults() {
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		c.FuzzyThreshold = 0.93
	}
	if len(c.Authority) == 0 {
		c.Authority = DefaultAuthority
	}
}

// Result is the output envelope of one merge call.
type Result struct {
	// Records holds one canonical record per distinct identity.
	Records []domain.CanonicalRecord

	// Dropped counts merged records discarded for having neither a
	// title nor a primary identifier.
	Dropped int
}

// Merger deduplicates candidate lists. Safe for concurrent use; it
// carries no per-call state.
type Merger struct {
	cfg       Config
	authority map[string]int
	logger    zerolog.Logger
}

// New creates a Merger.
func New(cfg Config, logger zerolog.Logger) *Merger {
	cfg.applyDefaults()
	authority := make(map[string]int, len(cfg.Authority))
	for i, name := range cfg.Authority {
		authority[name] = i
	}
	return &Merger{
		cfg:       cfg,
		authority: authority,
		logger:    logger.With().Str("component", "merge").Logger(),
	}
}

// group is one identity cluster under construction. members stay in
// authority order because the input is pre-sorted. A group absorbed
// into another during a bridge merge is left in place but skipped.
type group struct {
	members     []domain.Candidate
	normedTitle string
	year        int
	absorbed    bool
}

// Merge groups the candidates by identity and resolves each group into
// one canonical record. The output is deterministic for a given input
// set regardless of the order candidates arrived in.
func (m *Merger) Merge(candidates []domain.Candidate) Result {
	sorted := m.sortCandidates(candidates)

	groups := make([]*group, 0, len(sorted))
	byKey := make(map[string]*group)

	for _, c := range sorted {
		matches := m.findGroups(byKey, groups, c)
		var g *group
		switch len(matches) {
		case 0:
			g = &group{normedTitle: normalizeTitle(c.Title), year: c.Year}
			groups = append(groups, g)
		case 1:
			g = matches[0]
		default:
			// The candidate bridges several existing groups (e.g. its
			// DOI matches one, its PMID another). They are the same
			// entity, so union them before joining; otherwise two
			// canonical records would share a primary identifier.
			g = m.coalesce(byKey, matches)
		}
		g.members = append(g.members, c)
		m.indexKeys(byKey, g, c)
	}

	result := Result{Records: make([]domain.CanonicalRecord, 0, len(groups))}
	for _, g := range groups {
		if g.absorbed {
			continue
		}
		record := m.resolve(g)
		if record.Title == "" && !record.IDs.HasPrimaryID() {
			result.Dropped++
			m.logger.Warn().
				Strs("sources", record.ContributingSources).
				Msg("dropping unusable merged record without title or identifier")
			continue
		}
		result.Records = append(result.Records, record)
	}
	return result
}

// sortCandidates orders the input by source authority, then source name,
// then identity key, so grouping and conflict resolution are independent
// of arrival order.
func (m *Merger) sortCandidates(candidates []domain.Candidate) []domain.Candidate {
	sorted := make([]domain.Candidate, len(candidates))
	copy(sorted, candidates)

	sort.SliceStable(sorted, func(i, j int) bool {
		return m.less(sorted[i], sorted[j])
	})
	return sorted
}

// less orders candidates by source authority, then source name, then
// identity key.
func (m *Merger) less(a, b domain.Candidate) bool {
	ra, rb := m.rank(a.Source), m.rank(b.Source)
	if ra != rb {
		return ra < rb
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.IDs.Key() < b.IDs.Key()
}

func (m *Merger) rank(source string) int {
	if r, ok := m.authority[source]; ok {
		return r
	}
	return len(m.authority)
}

// findGroups locates every existing group a candidate belongs to by its
// exact keys and fingerprint, in first-match order and without
// duplicates. The fuzzy title path only runs when every exact tier
// missed, and contributes at most one group.
func (m *Merger) findGroups(byKey map[string]*group, groups []*group, c domain.Candidate) []*group {
	var matches []*group
	add := func(g *group) {
		for _, seen := range matches {
			if seen == g {
				return
			}
		}
		matches = append(matches, g)
	}

	for _, key := range exactKeys(c) {
		if g, ok := byKey[key]; ok {
			add(g)
		}
	}
	if key := fingerprint(c); key != "" {
		if g, ok := byKey["fp:"+key]; ok {
			add(g)
		}
	}
	if len(matches) > 0 {
		return matches
	}

	if g := m.fuzzyMatch(groups, c); g != nil {
		return []*group{g}
	}
	return nil
}

// coalesce unions bridged groups into the first one. Absorbed groups
// keep their slot in the group list, flagged so Merge skips them, and
// every index entry is re-pointed at the survivor.
func (m *Merger) coalesce(byKey map[string]*group, matches []*group) *group {
	primary := matches[0]
	for _, other := range matches[1:] {
		primary.members = append(primary.members, other.members...)
		if primary.normedTitle == "" {
			primary.normedTitle = other.normedTitle
		}
		if primary.year == 0 {
			primary.year = other.year
		}
		other.absorbed = true
		other.members = nil
		for key, g := range byKey {
			if g == other {
				byKey[key] = primary
			}
		}
	}
	// Restore authority order; resolve relies on it for first-non-empty
	// conflict resolution.
	sort.SliceStable(primary.members, func(i, j int) bool {
		return m.less(primary.members[i], primary.members[j])
	})
	return primary
}

// fuzzyMatch scans existing groups for a near-identical normalized
// title. It only runs when every exact tier missed.
func (m *Merger) fuzzyMatch(groups []*group, c domain.Candidate) *group {
	title := normalizeTitle(c.Title)
	if title == "" {
		return nil
	}

	for _, g := range groups {
		if g.normedTitle == "" {
			continue
		}
		if m.cfg.FuzzyYearWindow >= 0 && c.Year != 0 && g.year != 0 {
			diff := c.Year - g.year
			if diff < 0 {
				diff = -diff
			}
			if diff > m.cfg.FuzzyYearWindow {
				continue
			}
		}
		if titleSimilarity(title, g.normedTitle) >= m.cfg.FuzzyThreshold {
			return g
		}
	}
	return nil
}

func (m *Merger) indexKeys(byKey map[string]*group, g *group, c domain.Candidate) {
	for _, key := range exactKeys(c) {
		if _, taken := byKey[key]; !taken {
			byKey[key] = g
		}
	}
	if key := fingerprint(c); key != "" {
		if _, taken := byKey["fp:"+key]; !taken {
			byKey["fp:"+key] = g
		}
	}
	if g.normedTitle == "" {
		g.normedTitle = normalizeTitle(c.Title)
	}
	if g.year == 0 {
		g.year = c.Year
	}
}

// exactKeys returns the tier 1-3 identity keys a candidate carries, in
// priority order.
func exactKeys(c domain.Candidate) []string {
	keys := make([]string, 0, 3)
	if doi := domain.NormalizeDOI(c.IDs.DOI); doi != "" {
		keys = append(keys, "doi:"+doi)
	}
	if c.IDs.PMID != "" {
		keys = append(keys, "pmid:"+c.IDs.PMID)
	}
	if pmcid := domain.NormalizePMCID(c.IDs.PMCID); pmcid != "" {
		keys = append(keys, "pmcid:"+pmcid)
	}
	return keys
}

// resolve collapses one identity group into a canonical record using
// the field-level conflict rules. Members arrive in authority order, so
// "first non-empty wins" implements the source-authority preference.
func (m *Merger) resolve(g *group) domain.CanonicalRecord {
	record := domain.CanonicalRecord{ID: uuid.New()}

	citationSum, citationCount := 0, 0
	seenSources := make(map[string]bool)
	seenSurnames := make(map[string]bool)
	seenURLs := make(map[string]bool)
	seenKeywords := make(map[string]bool)

	for _, c := range g.members {
		if !seenSources[c.Source] {
			seenSources[c.Source] = true
			record.ContributingSources = append(record.ContributingSources, c.Source)
		}

		if record.IDs.DOI == "" {
			record.IDs.DOI = domain.NormalizeDOI(c.IDs.DOI)
		}
		if record.IDs.PMID == "" {
			record.IDs.PMID = c.IDs.PMID
		}
		if record.IDs.PMCID == "" {
			record.IDs.PMCID = domain.NormalizePMCID(c.IDs.PMCID)
		}
		if record.IDs.ArXivID == "" {
			record.IDs.ArXivID = c.IDs.ArXivID
		}

		if record.Title == "" {
			record.Title = c.Title
		}
		if len(c.Abstract) > len(record.Abstract) {
			record.Abstract = c.Abstract
		}
		if record.PublicationDate == nil {
			record.PublicationDate = c.PublicationDate
		}
		if record.Year == 0 {
			record.Year = c.Year
		}
		if record.Journal == "" {
			record.Journal = c.Journal
		}
		if record.Venue == "" {
			record.Venue = c.Venue
		}

		for _, a := range c.Authors {
			surname := strings.ToLower(a.Surname())
			if surname == "" || seenSurnames[surname] {
				continue
			}
			seenSurnames[surname] = true
			record.Authors = append(record.Authors, a)
		}

		for _, kw := range c.Keywords {
			lower := strings.ToLower(kw)
			if lower == "" || seenKeywords[lower] {
				continue
			}
			seenKeywords[lower] = true
			record.Keywords = append(record.Keywords, kw)
		}

		for _, loc := range c.Locations {
			if loc.URL == "" || seenURLs[loc.URL] {
				continue
			}
			seenURLs[loc.URL] = true
			record.Locations = append(record.Locations, loc)
		}

		if c.CitationCount != nil {
			citationSum += *c.CitationCount
			citationCount++
		}
	}

	if citationCount > 0 {
		mean := int(math.Round(float64(citationSum) / float64(citationCount)))
		record.CitationCount = &mean
	}

	if record.IDs.Title == "" {
		record.IDs.Title = record.Title
	}
	return record
}
