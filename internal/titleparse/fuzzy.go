package titleparse

import "strings"

// AcceptThreshold is the minimum similarity score at which an alternate
// title is considered the same show.
const AcceptThreshold = 0.70

// Words that carry no identity and are ignored when scoring.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true,
	"no": true, "wa": true, "to": true, "ni": true, "de": true,
}

func significantWords(s string) []string {
	var words []string
	for _, w := range strings.Fields(Normalize(s)) {
		if stopWords[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}

// SimilarityScore computes the fraction of the alternate title's significant
// words that appear in the candidate title's word set. Both strings are
// normalized and tokenized first. The result is in [0, 1].
func SimilarityScore(alt, candidate string) float64 {
	altWords := significantWords(alt)
	if len(altWords) == 0 {
		return 0
	}

	candidateSet := make(map[string]bool)
	for _, w := range significantWords(candidate) {
		candidateSet[w] = true
	}

	matched := 0
	for _, w := range altWords {
		if candidateSet[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(altWords))
}

// BestAlternative returns the single highest-scoring alternate title at or
// above the acceptance threshold, or "" when none qualifies. Keeping only
// the best match prevents loosely-related titles from polluting the
// search-term set.
func BestAlternative(canonical string, alternatives []string) string {
	best := ""
	bestScore := 0.0
	for _, alt := range alternatives {
		score := SimilarityScore(alt, canonical)
		if score >= AcceptThreshold && score > bestScore {
			best = alt
			bestScore = score
		}
	}
	return best
}
