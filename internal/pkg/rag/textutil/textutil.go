// Package textutil provides deterministic text processing primitives for the
// retrieval pipeline: unit counting, sentence splitting, normalization and
// lexical overlap scoring. All functions are pure and safe for concurrent use.
package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// unitPattern matches maximal runs of word characters or single non-word,
	// non-space characters. A word counts as one unit regardless of length and
	// each punctuation mark counts as one unit.
	unitPattern = regexp.MustCompile(`[\p{L}\p{N}_]+|\S`)

	// sentencePattern matches runs of sentence terminators followed by
	// whitespace. Terminators are consumed by the split; a trailing terminator
	// with no following whitespace stays attached to the last sentence.
	sentencePattern = regexp.MustCompile(`[.!?]+\s+`)

	whitespacePattern = regexp.MustCompile(`\s+`)
	specialPattern    = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:\-\n\r]`)
)

// CountUnits approximates the number of discrete linguistic units in text.
// It is a budgeting heuristic for chunk sizing, not a linguistic tokenizer.
// Empty input yields 0.
func CountUnits(text string) int {
	if text == "" {
		return 0
	}
	return len(unitPattern.FindAllStringIndex(text, -1))
}

// SplitSentences splits text into an ordered sequence of non-empty trimmed
// sentence-like strings using punctuation boundaries. It never drops
// non-whitespace content silently.
func SplitSentences(text string) []string {
	parts := sentencePattern.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// CleanText normalizes raw document text: whitespace runs collapse to a
// single space, characters outside the retained set become spaces, and the
// result is trimmed. Empty input yields an empty string.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = specialPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// WordSet returns the set of case-folded whitespace-split tokens in text.
func WordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// IntersectionSize returns the number of elements present in both sets.
func IntersectionSize(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

// OverlapScore computes the lexical support score between two texts:
// |words(a) ∩ words(b)| / min(|words(a)|, |words(b)|). It returns 0 when
// either side has no words.
func OverlapScore(a, b string) float64 {
	setA := WordSet(a)
	setB := WordSet(b)
	denom := len(setA)
	if len(setB) < denom {
		denom = len(setB)
	}
	if denom == 0 {
		return 0
	}
	return float64(IntersectionSize(setA, setB)) / float64(denom)
}

// SimilarityRatio computes a normalized edit-distance similarity between two
// strings in [0, 1]. Identical strings yield 1. Two empty strings yield 1;
// one empty side yields 0.
func SimilarityRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	ra := []rune(a)
	rb := []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes the edit distance between two rune slices using the
// two-row dynamic programming formulation.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Truncate returns the first max runes of s, appending an ellipsis marker
// only when truncation actually occurred.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
