// Package matching provides the similarity scorer behind fuzzy provider
// resolution.
package matching

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// EditDistanceScorer scores two names by normalized Levenshtein distance:
// 1 - distance/maxLen, in [0,1]. Tokens are sorted first so word order
// ("S.A. Acme" vs "Acme S.A.") does not hurt the score. The resolver owns
// the acceptance threshold; the scorer only measures.
type EditDistanceScorer struct{}

func NewEditDistanceScorer() *EditDistanceScorer {
	return &EditDistanceScorer{}
}

func (EditDistanceScorer) Score(a, b string) float64 {
	a = tokenSort(a)
	b = tokenSort(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	dist := levenshtein.ComputeDistance(a, b)
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	score := 1 - float64(dist)/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}

func tokenSort(s string) string {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
