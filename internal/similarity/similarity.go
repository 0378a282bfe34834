// Package similarity holds the pure scoring functions used by the matching engine.
package similarity

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// notAvailable is the placeholder stored when an age could not be estimated.
const notAvailable = "N/A"

// TextSimilarity returns the case-insensitive sequence-matcher ratio of a and b
// in [0,1]. Empty input on either side scores 0.
func TextSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	// The matcher's block search depends on argument order; fix it so the
	// ratio is symmetric.
	if a > b {
		a, b = b, a
	}
	m := difflib.NewMatcherWithJunk(runes(a), runes(b), false, nil)
	return m.Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// AgeSimilarity is 1 when both ages are present and textually identical, 0 otherwise.
// Ages are free-text estimates so no numeric closeness is attempted.
func AgeSimilarity(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" || strings.EqualFold(a, notAvailable) || strings.EqualFold(b, notAvailable) {
		return 0
	}
	if a == b {
		return 1
	}
	return 0
}

// CombinedContextScore takes the strongest of the contextual signals, so a record
// missing optional fields is not penalised.
func CombinedContextScore(name, location, age float64) float64 {
	return max(name, location, age)
}

// FaceConfidence converts an embedding distance into a 0..100 confidence.
func FaceConfidence(distance float64) float64 {
	c := (1 - distance) * 100
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
