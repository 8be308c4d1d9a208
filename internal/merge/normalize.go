package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

// normalizeTitle lowercases a title, strips punctuation, and collapses
// runs of whitespace, so that OCR and formatting noise does not split
// identical publications across groups.
func normalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// fingerprint computes the tier-4 content identity key: a hash of the
// normalized title, the sorted lowercase surnames of up to the first
// three authors, and the publication year when known.
func fingerprint(c domain.Candidate) string {
	title := normalizeTitle(c.Title)
	if title == "" {
		return ""
	}

	limit := len(c.Authors)
	if limit > 3 {
		limit = 3
	}
	surnames := make([]string, 0, limit)
	for _, a := range c.Authors[:limit] {
		if s := strings.ToLower(a.Surname()); s != "" {
			surnames = append(surnames, s)
		}
	}
	sort.Strings(surnames)

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", title, strings.Join(surnames, ","), c.Year)))
	return hex.EncodeToString(sum[:16])
}

// titleSimilarity returns the normalized edit-distance similarity of two
// already-normalized titles, in [0,1] where 1 means identical.
func titleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
