package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/scholar-x/pkg/llm"
)

const (
	// fallbackAnswer is returned without consulting the model when
	// retrieval finds nothing to answer from.
	fallbackAnswer = "I don't have enough information from the textbook to answer this question. Please try asking about topics covered in the Physical AI & Humanoid Robotics textbook."

	// moderateConfidenceNote is appended when the weakest retrieved
	// context scores below the disclaimer threshold.
	moderateConfidenceNote = "[Note: The confidence in this answer is moderate as the textbook may not cover this topic in detail.]"

	// generationErrorAnswer replaces the answer when the model call
	// fails. It never exposes backend error details to the caller.
	generationErrorAnswer = "I encountered an error while processing your question. Please try rephrasing your question."

	// systemInstructions pins the model to the retrieved documents.
	systemInstructions = `You are an AI assistant for the Physical AI & Humanoid Robotics textbook.

CRITICAL RULES:
1. You MUST answer ONLY using information from the provided textbook documents below
2. Do NOT use your general knowledge or training data
3. Do NOT make up, infer, or hallucinate any information
4. If the documents don't contain enough information to answer the question, say: "I don't have enough information from the textbook to answer this question completely."
5. Always cite which document(s) you're referencing in your answer (e.g., "According to Document 1...")
6. Stay strictly within the scope of the provided textbook content`

	// disclaimerThreshold is the context score below which the
	// moderate-confidence note is appended to the answer.
	disclaimerThreshold = 0.7
)

// Generator produces answers constrained to retrieved textbook
// material.
type Generator struct {
	chat llm.ChatProvider
}

// NewGenerator returns a Generator backed by the given chat provider.
func NewGenerator(chat llm.ChatProvider) *Generator {
	return &Generator{chat: chat}
}

// Generate answers the query strictly from the given contexts. With no
// contexts the fallback answer is returned without calling the model.
// When the weakest context scores below the disclaimer threshold, a
// moderate-confidence note is appended.
func (g *Generator) Generate(ctx context.Context, query string, contexts []*RetrievedContext) (string, error) {
	if len(contexts) == 0 {
		return fallbackAnswer, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	answer, err := g.chat.Generate(ctx, buildPrompt(query, contexts), systemInstructions)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	if lowestScore(contexts) < disclaimerThreshold {
		answer += "\n\n" + moderateConfidenceNote
	}
	return answer, nil
}

// buildPrompt renders the contexts as numbered source-attributed
// documents followed by the question and a grounding reminder.
func buildPrompt(query string, contexts []*RetrievedContext) string {
	blocks := make([]string, 0, len(contexts))
	for i, rc := range contexts {
		blocks = append(blocks, fmt.Sprintf("Document %d %s:\n%s", i+1, sourceInfo(rc), rc.Content))
	}
	return fmt.Sprintf(
		"Textbook Documents:\n\n%s\n\nQuestion: %s\n\nRemember: Answer ONLY based on the information in the documents above. If the answer is not in the documents, say so clearly.",
		strings.Join(blocks, "\n\n"),
		query,
	)
}

// sourceInfo renders the provenance bracket for one context.
func sourceInfo(rc *RetrievedContext) string {
	var b strings.Builder
	b.WriteString("[Source: ")
	b.WriteString(rc.SourceURL)
	if rc.SectionTitle != "" {
		b.WriteString(", Section: ")
		b.WriteString(rc.SectionTitle)
	}
	if rc.PageNumber != nil {
		fmt.Fprintf(&b, ", Page: %d", *rc.PageNumber)
	}
	b.WriteString("]")
	return b.String()
}

func lowestScore(contexts []*RetrievedContext) float64 {
	lowest := contexts[0].Score
	for _, rc := range contexts[1:] {
		if rc.Score < lowest {
			lowest = rc.Score
		}
	}
	return lowest
}
