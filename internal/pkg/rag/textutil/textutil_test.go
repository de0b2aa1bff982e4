package textutil_test

import (
	"strings"
	"testing"

	"github.com/kart-io/scholar-x/internal/pkg/rag/textutil"
	"github.com/stretchr/testify/assert"
)

func TestCountUnits(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{
			name:     "empty string",
			input:    "",
			expected: 0,
		},
		{
			name:     "plain words",
			input:    "hello world",
			expected: 2,
		},
		{
			name:     "words and punctuation",
			input:    "Hello, world!",
			expected: 4,
		},
		{
			name:     "punctuation only",
			input:    "...",
			expected: 3,
		},
		{
			name:     "apostrophe splits word",
			input:    "don't",
			expected: 3,
		},
		{
			name:     "unicode words",
			input:    "café au lait",
			expected: 3,
		},
		{
			name:     "whitespace only",
			input:    "   \t\n  ",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := textutil.CountUnits(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCountUnitsDeterministic(t *testing.T) {
	input := "The quick brown fox jumps over the lazy dog, twice!"
	first := textutil.CountUnits(input)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, textutil.CountUnits(input))
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "terminator runs consumed",
			input:    "First sentence. Second one! Third?",
			expected: []string{"First sentence", "Second one", "Third?"},
		},
		{
			name:     "short sentences",
			input:    "A. B. C.",
			expected: []string{"A", "B", "C."},
		},
		{
			name:     "no terminators",
			input:    "just one fragment",
			expected: []string{"just one fragment"},
		},
		{
			name:     "empty input",
			input:    "",
			expected: []string{},
		},
		{
			name:     "whitespace only",
			input:    "   ",
			expected: []string{},
		},
		{
			name:     "repeated terminators",
			input:    "Wait... what happened? Nothing.",
			expected: []string{"Wait", "what happened", "Nothing."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := textutil.SplitSentences(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSplitSentencesStable(t *testing.T) {
	// Splitting an already-split sentence must return it unchanged.
	sentences := textutil.SplitSentences("One thing happened. Then another thing happened.")
	for _, s := range sentences {
		assert.Equal(t, []string{s}, textutil.SplitSentences(s))
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "collapses whitespace",
			input:    "a  b\n\nc\td",
			expected: "a b c d",
		},
		{
			name:     "replaces special characters",
			input:    "robots@work #now",
			expected: "robots work  now",
		},
		{
			name:     "keeps sentence punctuation",
			input:    "Is it on? Yes, it is; mostly.",
			expected: "Is it on? Yes, it is; mostly.",
		},
		{
			name:     "keeps unicode letters",
			input:    "café culture",
			expected: "café culture",
		},
		{
			name:     "trims edges",
			input:    "  padded  ",
			expected: "padded",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := textutil.CleanText(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestWordSet(t *testing.T) {
	set := textutil.WordSet("The cat and THE hat")
	assert.Len(t, set, 4)
	assert.Contains(t, set, "the")
	assert.Contains(t, set, "cat")
	assert.Contains(t, set, "hat")

	assert.Empty(t, textutil.WordSet(""))
	assert.Empty(t, textutil.WordSet("   "))
}

func TestOverlapScore(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{
			name:     "identical texts",
			a:        "cats are mammals",
			b:        "cats are mammals",
			expected: 1.0,
		},
		{
			name:     "disjoint texts",
			a:        "cats are mammals",
			b:        "the weather is sunny",
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			a:        "the cat sat",
			b:        "the dog sat",
			expected: 2.0 / 3.0,
		},
		{
			name:     "empty left side",
			a:        "",
			b:        "something",
			expected: 0.0,
		},
		{
			name:     "empty right side",
			a:        "something",
			b:        "",
			expected: 0.0,
		},
		{
			name:     "case folded",
			a:        "Robot Operating System",
			b:        "robot operating system",
			expected: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := textutil.OverlapScore(tt.a, tt.b)
			assert.InDelta(t, tt.expected, result, 0.0001)
		})
	}
}

func TestOverlapScoreMinDenominator(t *testing.T) {
	// The denominator is the smaller word set, so a short answer fully
	// contained in a long context scores 1.
	context := "ROS 2 provides a framework for developing robot applications"
	answer := "robot applications"
	assert.InDelta(t, 1.0, textutil.OverlapScore(answer, context), 0.0001)
}

func TestSimilarityRatio(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{
			name:     "identical strings",
			a:        "retrieval",
			b:        "retrieval",
			expected: 1.0,
		},
		{
			name:     "both empty",
			a:        "",
			b:        "",
			expected: 1.0,
		},
		{
			name:     "one empty",
			a:        "abc",
			b:        "",
			expected: 0.0,
		},
		{
			name:     "classic edit distance",
			a:        "kitten",
			b:        "sitting",
			expected: 1.0 - 3.0/7.0,
		},
		{
			name:     "single substitution",
			a:        "chunk",
			b:        "chunt",
			expected: 0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := textutil.SimilarityRatio(tt.a, tt.b)
			assert.InDelta(t, tt.expected, result, 0.0001)
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{
			name:     "shorter than limit",
			input:    "short",
			max:      10,
			expected: "short",
		},
		{
			name:     "exactly at limit",
			input:    "exact",
			max:      5,
			expected: "exact",
		},
		{
			name:     "truncated with marker",
			input:    "this text is definitely too long",
			max:      9,
			expected: "this text...",
		},
		{
			name:     "zero limit",
			input:    "anything",
			max:      0,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := textutil.Truncate(tt.input, tt.max)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTruncateLongContent(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := textutil.Truncate(long, 200)
	assert.Len(t, got, 203)
	assert.True(t, strings.HasSuffix(got, "..."))
}
