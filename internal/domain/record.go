package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PriorityTier ranks source providers by trustworthiness and coverage.
// Lower values are tried or trusted first.
type PriorityTier int

const (
	// TierCritical sources must respond before early-stop can trigger.
	TierCritical PriorityTier = iota
	// TierHigh sources are queried eagerly but may be cancelled by early-stop.
	TierHigh
	// TierMedium sources are best-effort supplements.
	TierMedium
)

// String returns the tier name for logging and metric labels.
func (t PriorityTier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "unknown"
	}
}

// LocationType classifies a candidate download URL by the content it is
// expected to serve.
type LocationType string

const (
	// LocationPDFDirect serves PDF bytes directly.
	LocationPDFDirect LocationType = "pdf_direct"
	// LocationHTMLFullText serves rendered full text as HTML.
	LocationHTMLFullText LocationType = "html_fulltext"
	// LocationLandingPage requires an extra navigation step to reach content.
	LocationLandingPage LocationType = "landing_page"
	// LocationUnknown means the originating source declared no type.
	LocationUnknown LocationType = "unknown"
)

// Author represents a publication author.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// Surname extracts the author's surname: the part before the comma in
// "Last, First" form, otherwise the final whitespace-separated token.
func (a Author) Surname() string {
	name := strings.TrimSpace(a.Name)
	if idx := strings.Index(name, ","); idx >= 0 {
		return strings.TrimSpace(name[:idx])
	}
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// Location is one candidate download location for a publication.
type Location struct {
	// URL is the location to fetch.
	URL string `json:"url"`
	// Type is the declared or inferred content classification.
	Type LocationType `json:"type"`
	// Source names the provider that supplied this location.
	Source string `json:"source"`
	// Tier is the supplying provider's priority tier.
	Tier PriorityTier `json:"tier"`
	// License is the source-declared license, when known.
	License string `json:"license,omitempty"`
	// Version is the source-declared version (e.g. publishedVersion).
	Version string `json:"version,omitempty"`
}

// Candidate is one source's unverified claim about a publication.
// A Candidate is immutable once produced by a provider adapter; the merger
// reads it but never mutates it.
type Candidate struct {
	// IDs holds the (possibly partial) identifiers the source reported.
	IDs IdentifierBundle `json:"ids"`

	Title           string     `json:"title,omitempty"`
	Abstract        string     `json:"abstract,omitempty"`
	Authors         []Author   `json:"authors,omitempty"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	Year            int        `json:"year,omitempty"`
	Journal         string     `json:"journal,omitempty"`
	Venue           string     `json:"venue,omitempty"`
	Keywords        []string   `json:"keywords,omitempty"`

	// CitationCount is nil when the source does not report citations,
	// so that a genuine zero survives conflict resolution.
	CitationCount *int `json:"citation_count,omitempty"`

	// Locations holds candidate download locations, when the source
	// supplies any.
	Locations []Location `json:"locations,omitempty"`

	// Source names the provider that produced this candidate.
	Source string `json:"source"`
	// Tier is the producing provider's priority tier.
	Tier PriorityTier `json:"tier"`

	// Extra carries source-specific metadata that has no typed field.
	Extra map[string]any `json:"extra,omitempty"`
}

// HasPrimaryID reports whether the candidate carries at least one of the
// identifiers used for exact-match deduplication.
func (c Candidate) HasPrimaryID() bool {
	return c.IDs.HasPrimaryID()
}

// CanonicalRecord is the deduplicated, conflict-resolved representation of
// one real-world publication, merged from one or more candidates.
type CanonicalRecord struct {
	ID uuid.UUID `json:"id"`

	IDs IdentifierBundle `json:"ids"`

	Title           string     `json:"title,omitempty"`
	Abstract        string     `json:"abstract,omitempty"`
	Authors         []Author   `json:"authors,omitempty"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	Year            int        `json:"year,omitempty"`
	Journal         string     `json:"journal,omitempty"`
	Venue           string     `json:"venue,omitempty"`
	Keywords        []string   `json:"keywords,omitempty"`
	CitationCount   *int       `json:"citation_count,omitempty"`

	Locations []Location `json:"locations,omitempty"`

	// ContributingSources lists every provider that supplied a merged
	// candidate, in first-seen order, for provenance.
	ContributingSources []string `json:"contributing_sources"`

	Extra map[string]any `json:"extra,omitempty"`
}

// ScoredRecord pairs a canonical record with its relevance score and the
// factor breakdown that produced it. Immutable once computed.
type ScoredRecord struct {
	Record CanonicalRecord `json:"record"`
	// Score is the weighted relevance score in [0,1].
	Score float64 `json:"score"`
	// Factors holds each normalized sub-score by factor name.
	Factors map[string]float64 `json:"factors"`
}

// DatasetContext describes the dataset a discovery query originates from.
// The relevance scorer matches candidate publications against it.
type DatasetContext struct {
	// DatasetID is the logical identifier of the dataset (cache key root).
	DatasetID string `json:"dataset_id"`
	Title     string `json:"title,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
	Organism  string   `json:"organism,omitempty"`
	Platform  string   `json:"platform,omitempty"`
	// SubmissionDate anchors the recency factor; zero means "now".
	SubmissionDate time.Time `json:"submission_date,omitempty"`
	// OriginalPaperIDs identifies the dataset's own paper(s), when known.
	OriginalPaperIDs []IdentifierBundle `json:"original_paper_ids,omitempty"`
}
