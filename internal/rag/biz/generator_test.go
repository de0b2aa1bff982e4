package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWithoutContextsReturnsFallback(t *testing.T) {
	chat := &fakeChat{response: "should not be used"}
	generator := NewGenerator(chat)

	answer, err := generator.Generate(context.Background(), "What is ROS 2?", nil)
	require.NoError(t, err)
	assert.Equal(t, fallbackAnswer, answer)
	assert.Empty(t, chat.prompts, "the model must not be called without contexts")
}

func TestGeneratePromptLayout(t *testing.T) {
	page := 12
	contexts := []*RetrievedContext{
		{
			Content:      "ROS 2 provides topics.",
			SourceURL:    "https://example.com/ros2",
			SectionTitle: "Basics",
			PageNumber:   &page,
			Score:        0.9,
		},
		{
			Content:   "Nodes exchange messages.",
			SourceURL: "https://example.com/nodes",
			Score:     0.8,
		},
	}

	chat := &fakeChat{response: "Nodes communicate over topics."}
	generator := NewGenerator(chat)

	answer, err := generator.Generate(context.Background(), "How do nodes communicate?", contexts)
	require.NoError(t, err)
	assert.Equal(t, "Nodes communicate over topics.", answer)

	require.Len(t, chat.prompts, 1)
	wantPrompt := "Textbook Documents:\n\n" +
		"Document 1 [Source: https://example.com/ros2, Section: Basics, Page: 12]:\nROS 2 provides topics." +
		"\n\n" +
		"Document 2 [Source: https://example.com/nodes]:\nNodes exchange messages." +
		"\n\nQuestion: How do nodes communicate?" +
		"\n\nRemember: Answer ONLY based on the information in the documents above. If the answer is not in the documents, say so clearly."
	assert.Equal(t, wantPrompt, chat.prompts[0])

	require.Len(t, chat.systems, 1)
	assert.Equal(t, systemInstructions, chat.systems[0])
}

func TestGenerateAppendsModerateConfidenceNote(t *testing.T) {
	contexts := []*RetrievedContext{
		{Content: "strong match", SourceURL: "https://example.com/a", Score: 0.9},
		{Content: "weak match", SourceURL: "https://example.com/b", Score: 0.65},
	}

	chat := &fakeChat{response: "An answer."}
	generator := NewGenerator(chat)

	answer, err := generator.Generate(context.Background(), "question", contexts)
	require.NoError(t, err)
	assert.Equal(t, "An answer.\n\n"+moderateConfidenceNote, answer)
}

func TestGenerateNoNoteAtThreshold(t *testing.T) {
	contexts := []*RetrievedContext{
		{Content: "exactly at threshold", SourceURL: "https://example.com/a", Score: 0.7},
	}

	chat := &fakeChat{response: "An answer."}
	generator := NewGenerator(chat)

	answer, err := generator.Generate(context.Background(), "question", contexts)
	require.NoError(t, err)
	assert.Equal(t, "An answer.", answer)
}

func TestGenerateProviderError(t *testing.T) {
	contexts := []*RetrievedContext{
		{Content: "content", SourceURL: "https://example.com/a", Score: 0.9},
	}

	chat := &fakeChat{err: errors.New("model overloaded")}
	generator := NewGenerator(chat)

	answer, err := generator.Generate(context.Background(), "question", contexts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate answer")
	assert.Empty(t, answer)
}

func TestGenerateCancelledContext(t *testing.T) {
	contexts := []*RetrievedContext{
		{Content: "content", SourceURL: "https://example.com/a", Score: 0.9},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chat := &fakeChat{response: "never returned"}
	generator := NewGenerator(chat)

	_, err := generator.Generate(ctx, "question", contexts)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, chat.prompts)
}
