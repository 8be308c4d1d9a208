// Package acquire turns a canonical record's candidate locations into a
// downloaded, validated PDF: the classifier orders the locations by
// expected cost, and the waterfall engine walks them until one verified
// success or exhaustion.
package acquire

import (
	"net/url"
	"sort"
	"strings"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// trustedDeclarers are sources whose self-reported location types are
// reliable enough to take at face value. Other sources' declarations are
// re-derived from URL heuristics.
var trustedDeclarers = map[string]bool{
	"unpaywall": true,
	"europepmc": true,
	"openalex":  true,
}

// landingHosts are API or resolver hosts known to serve landing HTML
// regardless of what the URL path suggests.
var landingHosts = []string{
	"doi.org",
	"dx.doi.org",
	"ncbi.nlm.nih.gov/pubmed",
}

// Classify assigns a definitive LocationType to each location and
// returns them in try order: direct PDFs first, rendered HTML full text
// second, landing pages last, each class ordered by ascending source
// tier. The input slice is not modified.
func Classify(locations []domain.Location) []domain.Location {
	classified := make([]domain.Location, len(locations))
	for i, loc := range locations {
		loc.Type = classifyOne(loc)
		classified[i] = loc
	}

	sort.SliceStable(classified, func(i, j int) bool {
		if ci, cj := typeCost(classified[i].Type), typeCost(classified[j].Type); ci != cj {
			return ci < cj
		}
		return classified[i].Tier < classified[j].Tier
	})
	return classified
}

func classifyOne(loc domain.Location) domain.LocationType {
	if loc.Type != domain.LocationUnknown && loc.Type != "" && trustedDeclarers[loc.Source] {
		return loc.Type
	}
	return inferFromURL(loc.URL)
}

// inferFromURL applies path and query heuristics. Landing page is the
// conservative default: misclassifying a PDF as a landing page costs one
// extra fetch, while the reverse wastes a download slot on HTML.
func inferFromURL(rawURL string) domain.LocationType {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return domain.LocationLandingPage
	}

	host := strings.ToLower(parsed.Hostname())
	pathAndQuery := strings.ToLower(parsed.Path)
	query := strings.ToLower(parsed.RawQuery)

	for _, lh := range landingHosts {
		if strings.Contains(host+parsed.Path, lh) {
			return domain.LocationLandingPage
		}
	}

	switch {
	case strings.HasSuffix(pathAndQuery, ".pdf"),
		strings.Contains(pathAndQuery, "/pdf/"),
		strings.Contains(query, "pdf=render"),
		strings.Contains(query, "type=printable"):
		return domain.LocationPDFDirect
	case strings.Contains(pathAndQuery, "/fulltext"),
		strings.Contains(pathAndQuery, "/full/"),
		strings.HasSuffix(pathAndQuery, "/full"):
		return domain.LocationHTMLFullText
	default:
		return domain.LocationLandingPage
	}
}

func typeCost(t domain.LocationType) int {
	switch t {
	case domain.LocationPDFDirect:
		return 0
	case domain.LocationHTMLFullText:
		return 1
	default:
		return 2
	}
}
