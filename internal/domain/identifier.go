// Package domain defines the core data model for publication discovery and
// acquisition: identifier bundles, candidate and canonical records, download
// attempts, and the shared error taxonomy.
package domain

import (
	"strings"
)

// doiPrefixes are URL and scheme prefixes stripped during DOI normalization.
var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi:",
}

// IdentifierBundle holds every identifier known for one logical publication.
// Any subset of fields may be empty; callers must tolerate partial bundles.
type IdentifierBundle struct {
	// DOI is the Digital Object Identifier, stored without URL prefix.
	DOI string `json:"doi,omitempty"`
	// PMID is the PubMed identifier.
	PMID string `json:"pmid,omitempty"`
	// PMCID is the PubMed Central identifier.
	PMCID string `json:"pmcid,omitempty"`
	// ArXivID is the arXiv identifier.
	ArXivID string `json:"arxiv_id,omitempty"`
	// Title is a fallback lookup field for sources without ID search.
	Title string `json:"title,omitempty"`
	// AuthorSurnames holds fallback author surnames, first author first.
	AuthorSurnames []string `json:"author_surnames,omitempty"`
	// Year is the publication year, 0 when unknown.
	Year int `json:"year,omitempty"`
}

// IsEmpty reports whether no field of the bundle is populated.
// An empty bundle is not a valid query key.
func (b IdentifierBundle) IsEmpty() bool {
	return b.DOI == "" && b.PMID == "" && b.PMCID == "" && b.ArXivID == "" &&
		b.Title == "" && len(b.AuthorSurnames) == 0 && b.Year == 0
}

// HasPrimaryID reports whether the bundle carries at least one of the
// identifiers used for exact-match deduplication.
func (b IdentifierBundle) HasPrimaryID() bool {
	return b.DOI != "" || b.PMID != "" || b.PMCID != ""
}

// Key returns a stable cache key for the bundle. The strongest available
// identifier wins so that the same publication queried through different
// identifier subsets still shares one key when the primary ID is present.
func (b IdentifierBundle) Key() string {
	if doi := NormalizeDOI(b.DOI); doi != "" {
		return "doi:" + doi
	}
	if pmid := strings.TrimSpace(b.PMID); pmid != "" {
		return "pmid:" + pmid
	}
	if pmcid := strings.TrimSpace(b.PMCID); pmcid != "" {
		return "pmcid:" + strings.ToUpper(pmcid)
	}
	if arxiv := strings.TrimSpace(b.ArXivID); arxiv != "" {
		return "arxiv:" + arxiv
	}
	title := strings.Join(strings.Fields(strings.ToLower(b.Title)), " ")
	return "title:" + title
}

// NormalizeDOI lowercases a DOI and strips any URL or scheme prefix.
// Returns "" for empty input.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	lower := strings.ToLower(doi)
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(lower, prefix) {
			lower = lower[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(lower)
}

// NormalizePMCID uppercases a PMCID and ensures the "PMC" prefix.
func NormalizePMCID(pmcid string) string {
	pmcid = strings.ToUpper(strings.TrimSpace(pmcid))
	if pmcid == "" {
		return ""
	}
	if !strings.HasPrefix(pmcid, "PMC") {
		pmcid = "PMC" + pmcid
	}
	return pmcid
}
