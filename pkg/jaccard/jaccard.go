// Package jaccard computes token-set Jaccard similarity, the primary
// diversity/similarity metric shared by query reformulation (C3), document
// retrieval (C4), topic-shift detection (C6), and reranking (C5) — see
// DESIGN.md for why Jaccard was chosen over cosine as the default.
package jaccard

import "strings"

// Tokenize lowercases text and splits it on whitespace, dropping tokens of
// length <=2 (matching the spec's "tokens of length >2" rule for
// reformulation similarity).
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TokenSet builds a lookup set from Tokenize's output.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Similarity returns the Jaccard similarity between the token sets of a
// and b: |A∩B| / |A∪B|. Two empty token sets are defined as similarity 0
// (no shared evidence), not 1, so that an empty reformulation candidate is
// never treated as identical to a non-empty original.
func Similarity(a, b string) float64 {
	return SimilaritySets(TokenSet(a), TokenSet(b))
}

// SimilaritySets is Similarity over precomputed token sets, for callers
// that tokenize once and compare against many candidates (C4 diversity
// filtering compares a fresh document against every already-kept one).
func SimilaritySets(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Distance is 1 - Similarity, used wherever the spec asks for "mean
// pairwise (1 − Jaccard)" diversity.
func Distance(a, b string) float64 {
	return 1 - Similarity(a, b)
}
