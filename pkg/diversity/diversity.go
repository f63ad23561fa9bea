// Package diversity scores lexical overlap between short strings. The same
// word-set math backs two checks: keeping generated prompts from collapsing
// into rephrasings of each other, and collapsing near-duplicate competitor
// names into one entry.
package diversity

import (
	"strings"
	"unicode"
)

// tokenize lowercases s and keeps words longer than two characters.
func tokenize(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

// overlapPercent is the Jaccard overlap of two word sets, 0..100.
func overlapPercent(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union) * 100
}

// IsDiverse reports whether candidate differs from every pool member by at
// least thresholdPercent. A candidate is rejected as soon as its overlap with
// any pool member exceeds (100 - thresholdPercent). An empty pool always
// accepts.
func IsDiverse(candidate string, pool []string, thresholdPercent float64) bool {
	candSet := tokenize(candidate)
	limit := 100 - thresholdPercent
	for _, existing := range pool {
		if overlapPercent(candSet, tokenize(existing)) > limit {
			return false
		}
	}
	return true
}

// NameSimilarity scores two competitor names: identical names score 100,
// substring containment scores 90, anything else falls back to word overlap.
// Comparison is case-insensitive.
func NameSimilarity(a, b string) float64 {
	la := strings.ToLower(strings.TrimSpace(a))
	lb := strings.ToLower(strings.TrimSpace(b))
	if la == lb {
		return 100
	}
	if la != "" && lb != "" && (strings.Contains(la, lb) || strings.Contains(lb, la)) {
		return 90
	}
	return overlapPercent(tokenize(a), tokenize(b))
}

// DedupeNames keeps a candidate only while its similarity to every
// already-kept name stays below threshold. Order is preserved.
func DedupeNames(names []string, threshold float64) []string {
	var kept []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		duplicate := false
		for _, k := range kept {
			if NameSimilarity(name, k) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, name)
		}
	}
	return kept
}
