package biz

import (
	"sort"

	"github.com/kart-io/scholar-x/internal/pkg/rag/textutil"
)

// GroundingReport summarizes how well an answer is supported by the
// retrieved contexts.
type GroundingReport struct {
	Grounded          bool     `json:"is_grounded"`
	Confidence        float64  `json:"confidence"`
	Accuracy          float64  `json:"accuracy"`
	SupportingSources []string `json:"supporting_sources"`
}

// VerifyGrounding reports whether the answer is lexically supported by
// the contexts, along with the support confidence in [0, 1].
//
// Each context contributes the share of the smaller word set common to
// answer and context, weighted by the context's similarity score. A
// context whose smaller side is empty carries no information and is
// skipped entirely, while a context with zero overlap still weighs the
// confidence down. The verdict compares the score-weighted mean
// against threshold. Without contexts there is nothing to ground
// against and the answer is rejected outright.
func VerifyGrounding(answer string, contexts []*RetrievedContext, threshold float64) (bool, float64) {
	if len(contexts) == 0 {
		return false, 0.0
	}

	answerWords := textutil.WordSet(answer)

	var support, weight float64
	for _, rc := range contexts {
		contextWords := textutil.WordSet(rc.Content)
		smaller := len(answerWords)
		if len(contextWords) < smaller {
			smaller = len(contextWords)
		}
		if smaller == 0 {
			continue
		}
		ratio := float64(textutil.IntersectionSize(answerWords, contextWords)) / float64(smaller)
		support += ratio * rc.Score
		weight += rc.Score
	}

	var confidence float64
	if weight > 0 {
		confidence = support / weight
	}
	return confidence >= threshold, confidence
}

// SupportingSources returns the sorted unique source URLs of contexts
// sharing at least one word with the answer.
func SupportingSources(answer string, contexts []*RetrievedContext) []string {
	answerWords := textutil.WordSet(answer)

	seen := make(map[string]struct{})
	sources := make([]string, 0)
	for _, rc := range contexts {
		if rc.SourceURL == "" {
			continue
		}
		if textutil.IntersectionSize(answerWords, textutil.WordSet(rc.Content)) == 0 {
			continue
		}
		if _, ok := seen[rc.SourceURL]; ok {
			continue
		}
		seen[rc.SourceURL] = struct{}{}
		sources = append(sources, rc.SourceURL)
	}
	sort.Strings(sources)
	return sources
}

// ResponseAccuracy estimates how much of the retrieved material the
// answer actually covers: per context, the covered share of the
// context's word set weighted by its score, averaged over all contexts
// and capped at 1.
func ResponseAccuracy(answer string, contexts []*RetrievedContext) float64 {
	if len(contexts) == 0 {
		return 0.0
	}

	answerWords := textutil.WordSet(answer)

	var total float64
	for _, rc := range contexts {
		contextWords := textutil.WordSet(rc.Content)
		if len(contextWords) == 0 {
			continue
		}
		coverage := float64(textutil.IntersectionSize(answerWords, contextWords)) / float64(len(contextWords))
		total += coverage * rc.Score
	}

	accuracy := total / float64(len(contexts))
	if accuracy > 1 {
		accuracy = 1
	}
	return accuracy
}
