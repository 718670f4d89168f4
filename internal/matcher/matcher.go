// Package matcher suggests canonical district names for noisy input.
package matcher

import (
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/lookup"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/normalizer"
)

// Threshold is the minimum similarity ratio for a fuzzy suggestion.
const Threshold = 0.6

// Suggestion describes how a name was resolved against a province.
type Suggestion struct {
	Found bool    // A canonical name was chosen
	Text  string  // Canonical display name (empty when not found)
	Key   string  // Normalized key of the input
	Score float64 // 1.0 for exact key matches, best fuzzy ratio otherwise
	Exact bool    // Resolved by exact key equality
}

// Best resolves current against the candidates of region.
//
// An exact normalized-key hit is authoritative and skips scoring. Otherwise
// every candidate key is scored with Ratio in insertion order; the first
// candidate with the highest score wins and is accepted at Threshold or
// above. An unknown or empty region never matches, so names are never
// borrowed from another province.
func Best(table *lookup.Table, region, current string) Suggestion {
	key := normalizer.Normalize(current)
	result := Suggestion{Key: key}

	candidates, ok := table.Region(region)
	if !ok || candidates.Len() == 0 {
		return result
	}

	if display, ok := candidates.Lookup(key); ok {
		result.Found = true
		result.Exact = true
		result.Text = display
		result.Score = 1.0
		return result
	}

	bestDisplay := ""
	bestScore := 0.0
	seen := false
	candidates.Each(func(candidateKey, display string) bool {
		score := Ratio(key, candidateKey)
		if !seen || score > bestScore {
			bestScore, bestDisplay, seen = score, display, true
		}
		return true
	})

	result.Score = bestScore
	if seen && bestScore >= Threshold {
		result.Found = true
		result.Text = bestDisplay
	}
	return result
}

// Suggest returns the canonical name for current within region, or false
// when no candidate is close enough.
func Suggest(table *lookup.Table, region, current string) (string, bool) {
	s := Best(table, region, current)
	return s.Text, s.Found
}
