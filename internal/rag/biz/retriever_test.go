package biz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/scholar-x/internal/rag/store"
)

func TestRetrieveMapsHitsInOrder(t *testing.T) {
	vs := newFakeStore()
	vs.searchHits = []*store.SearchResult{
		hit("chunk-1", "ROS 2 is a robotics framework.", "https://example.com/ros2", "Basics", 0.95),
		hit("chunk-2", "URDF describes robot models.", "https://example.com/urdf", "", 0.82),
	}

	retriever := NewRetriever(newFakeEmbedder(8), vs, 8)
	contexts, err := retriever.Retrieve(context.Background(), "What is ROS 2?", 5, 0)
	require.NoError(t, err)
	require.Len(t, contexts, 2)

	assert.Equal(t, "chunk-1", contexts[0].ID)
	assert.Equal(t, "ROS 2 is a robotics framework.", contexts[0].Content)
	assert.Equal(t, "ROS 2 is a robotics framework.", contexts[0].Excerpt)
	assert.Equal(t, "https://example.com/ros2", contexts[0].SourceURL)
	assert.Equal(t, "Basics", contexts[0].SectionTitle)
	assert.Nil(t, contexts[0].PageNumber)
	assert.InDelta(t, 0.95, contexts[0].Score, 1e-9)

	assert.Equal(t, "chunk-2", contexts[1].ID)
	assert.Empty(t, contexts[1].SectionTitle)
	assert.InDelta(t, 0.82, contexts[1].Score, 1e-9)

	assert.Equal(t, 5, vs.lastTopK)
}

func TestRetrieveAppliesThreshold(t *testing.T) {
	vs := newFakeStore()
	vs.searchHits = []*store.SearchResult{
		hit("keep-high", "high scorer", "https://example.com/a", "", 0.9),
		hit("keep-edge", "exactly at threshold", "https://example.com/b", "", 0.7),
		hit("drop-low", "below threshold", "https://example.com/c", "", 0.69),
	}

	retriever := NewRetriever(newFakeEmbedder(4), vs, 4)
	contexts, err := retriever.Retrieve(context.Background(), "query", 10, 0.7)
	require.NoError(t, err)
	require.Len(t, contexts, 2)
	assert.Equal(t, "keep-high", contexts[0].ID)
	assert.Equal(t, "keep-edge", contexts[1].ID)
}

func TestRetrieveZeroThresholdKeepsEverything(t *testing.T) {
	vs := newFakeStore()
	vs.searchHits = []*store.SearchResult{
		hit("a", "one", "https://example.com/a", "", 0.2),
		hit("b", "two", "https://example.com/b", "", 0.01),
	}

	retriever := NewRetriever(newFakeEmbedder(4), vs, 4)
	contexts, err := retriever.Retrieve(context.Background(), "query", 10, 0)
	require.NoError(t, err)
	assert.Len(t, contexts, 2)
}

func TestRetrieveTruncatesExcerpt(t *testing.T) {
	long := strings.Repeat("a", 250)
	vs := newFakeStore()
	vs.searchHits = []*store.SearchResult{
		hit("long", long, "https://example.com/long", "", 0.9),
	}

	retriever := NewRetriever(newFakeEmbedder(4), vs, 4)
	contexts, err := retriever.Retrieve(context.Background(), "query", 1, 0)
	require.NoError(t, err)
	require.Len(t, contexts, 1)

	assert.Equal(t, long, contexts[0].Content)
	assert.Equal(t, strings.Repeat("a", 200)+"...", contexts[0].Excerpt)
}

func TestRetrievePageNumberPassedThrough(t *testing.T) {
	page := 42
	result := hit("paged", "content with a page", "https://example.com/p", "Sec", 0.8)
	result.Payload.PageNumber = &page

	vs := newFakeStore()
	vs.searchHits = []*store.SearchResult{result}

	retriever := NewRetriever(newFakeEmbedder(4), vs, 4)
	contexts, err := retriever.Retrieve(context.Background(), "query", 1, 0)
	require.NoError(t, err)
	require.Len(t, contexts, 1)
	require.NotNil(t, contexts[0].PageNumber)
	assert.Equal(t, 42, *contexts[0].PageNumber)
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	embedder := newFakeEmbedder(4)
	embedder.err = errors.New("backend down")

	retriever := NewRetriever(embedder, newFakeStore(), 4)
	contexts, err := retriever.Retrieve(context.Background(), "query", 5, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
	assert.Nil(t, contexts)
}

func TestRetrieveSearchFailure(t *testing.T) {
	vs := newFakeStore()
	vs.searchErr = errors.New("collection missing")

	retriever := NewRetriever(newFakeEmbedder(4), vs, 4)
	contexts, err := retriever.Retrieve(context.Background(), "query", 5, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to search vector store")
	assert.Nil(t, contexts)
}

func TestRetrieveDimensionMismatchIsAdvisory(t *testing.T) {
	// A differing vector dimension logs a warning but the search still
	// runs with the vector as produced.
	vs := newFakeStore()
	vs.searchHits = []*store.SearchResult{
		hit("a", "content", "https://example.com/a", "", 0.9),
	}

	retriever := NewRetriever(newFakeEmbedder(4), vs, 768)
	contexts, err := retriever.Retrieve(context.Background(), "query", 1, 0)
	require.NoError(t, err)
	assert.Len(t, contexts, 1)
	assert.Len(t, vs.lastVector, 4)
}

func TestRetrieveWithSelectionAugmentsQuery(t *testing.T) {
	embedder := newFakeEmbedder(4)
	vs := newFakeStore()
	retriever := NewRetriever(embedder, vs, 4)

	_, err := retriever.RetrieveWithSelection(context.Background(), "What does this mean?", "O(n log n) complexity", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, "What does this mean? Context: O(n log n) complexity", embedder.lastSingle())
}

func TestRetrieveWithSelectionBlankSelectionUsesQueryAlone(t *testing.T) {
	embedder := newFakeEmbedder(4)
	retriever := NewRetriever(embedder, newFakeStore(), 4)

	for _, selection := range []string{"", "   ", "\n\t"} {
		_, err := retriever.RetrieveWithSelection(context.Background(), "plain question", selection, 5, 0)
		require.NoError(t, err)
		assert.Equal(t, "plain question", embedder.lastSingle())
	}
}
