package biz

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/scholar-x/internal/rag/store"
	"github.com/kart-io/scholar-x/pkg/infra/pool"
	"github.com/kart-io/scholar-x/pkg/llm/resilience"
)

// fastRetries keeps retry-path tests from sleeping through real
// backoff delays.
func fastRetries(p *Pipeline) {
	p.retry = &resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func ingestDocs() []*Document {
	return []*Document{
		{
			Text:      "ROS 2 is a set of libraries and tools for building robotic applications.",
			SourceURL: "https://example.com/ros2-basics",
			Section:   "Introduction",
		},
		{
			Text:      "URDF is an XML format used to describe robot models in ROS.",
			SourceURL: "https://example.com/urdf-intro",
			Section:   "URDF",
		},
	}
}

func TestPipelineExecuteStoresEverything(t *testing.T) {
	vs := newFakeStore()
	embedder := newFakeEmbedder(4)
	pipeline := NewPipeline(NewChunker(512, 0), embedder, vs, nil, 96)

	report, err := pipeline.Execute(context.Background(), ingestDocs())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 2, report.Chunking.Processed)
	assert.Zero(t, report.Chunking.Failed)
	assert.Equal(t, 2, report.Embedding.Processed)
	assert.Zero(t, report.Embedding.Failed)
	assert.Equal(t, 2, report.Storage.Stored)
	assert.Zero(t, report.Storage.Skipped)
	assert.Zero(t, report.Storage.Failed)
	assert.Equal(t, 2, vs.storedCount())
	assert.False(t, report.StartedAt.IsZero())
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	for _, chunk := range vs.chunks {
		assert.Len(t, chunk.Embedding, 4)
	}
}

func TestPipelineExecuteWithWorkerPool(t *testing.T) {
	workers, err := pool.New("ingest-test", pool.IngestConfig(2))
	require.NoError(t, err)
	defer workers.Release()

	vs := newFakeStore()
	pipeline := NewPipeline(NewChunker(512, 0), newFakeEmbedder(4), vs, workers, 96)

	report, err := pipeline.Execute(context.Background(), ingestDocs())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Storage.Stored)
	assert.Equal(t, 2, vs.storedCount())
}

func TestPipelineExecuteDropsInvalidChunks(t *testing.T) {
	docs := append(ingestDocs(), &Document{
		Text:      "tiny",
		SourceURL: "https://example.com/too-short",
	})

	vs := newFakeStore()
	pipeline := NewPipeline(NewChunker(512, 0), newFakeEmbedder(4), vs, nil, 96)

	report, err := pipeline.Execute(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Chunking.Processed)
	assert.Equal(t, 1, report.Chunking.Failed)
	assert.Equal(t, 2, report.Storage.Stored)
}

func TestPipelineExecuteChunkingErrorIsolated(t *testing.T) {
	vs := newFakeStore()
	pipeline := NewPipeline(NewChunker(0, 0), newFakeEmbedder(4), vs, nil, 96)

	report, err := pipeline.Execute(context.Background(), ingestDocs())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Chunking.Failed)
	assert.Zero(t, report.Chunking.Processed)
	assert.Zero(t, report.Storage.Stored)
	assert.Zero(t, vs.storedCount())
}

func TestPipelineExecuteBatchesEmbeddings(t *testing.T) {
	// 250 one-letter words with a 50-unit budget produce five chunks,
	// which a batch size of two splits into three embed calls.
	doc := &Document{
		Text:      strings.TrimSpace(strings.Repeat("x ", 250)),
		SourceURL: "https://example.com/long",
	}

	embedder := newFakeEmbedder(4)
	vs := newFakeStore()
	pipeline := NewPipeline(NewChunker(50, 0), embedder, vs, nil, 2)

	report, err := pipeline.Execute(context.Background(), []*Document{doc})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Chunking.Processed)
	assert.Equal(t, 5, report.Embedding.Processed)
	assert.Equal(t, 5, report.Storage.Stored)

	require.Len(t, embedder.batches, 3)
	assert.Len(t, embedder.batches[0], 2)
	assert.Len(t, embedder.batches[1], 2)
	assert.Len(t, embedder.batches[2], 1)
}

func TestPipelineEmbeddingRetrySucceeds(t *testing.T) {
	embedder := newFakeEmbedder(4)
	embedder.failFirst = 1

	vs := newFakeStore()
	pipeline := NewPipeline(NewChunker(512, 0), embedder, vs, nil, 96)
	fastRetries(pipeline)

	report, err := pipeline.Execute(context.Background(), ingestDocs())
	require.NoError(t, err)
	assert.Zero(t, report.Embedding.Failed)
	assert.Equal(t, 2, report.Storage.Stored)
	assert.Len(t, embedder.batches, 2, "first failing attempt plus the successful retry")
}

func TestPipelineEmbeddingFailureExcludesBatch(t *testing.T) {
	embedder := newFakeEmbedder(4)
	embedder.err = errors.New("embedding backend down")

	vs := newFakeStore()
	pipeline := NewPipeline(NewChunker(512, 0), embedder, vs, nil, 96)
	fastRetries(pipeline)

	report, err := pipeline.Execute(context.Background(), ingestDocs())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Embedding.Failed)
	assert.Zero(t, report.Embedding.Processed)
	assert.Zero(t, report.Storage.Stored)
	assert.Zero(t, vs.storedCount())
}

func storedChunk(id, content, sourceURL string, index int) *store.Chunk {
	return &store.Chunk{
		ID:         id,
		Content:    content,
		SourceURL:  sourceURL,
		ChunkIndex: index,
		Embedding:  []float32{1, 0, 0, 0},
	}
}

func TestStoreChunksSkipsExistingIDs(t *testing.T) {
	vs := newFakeStore()
	vs.existing["known-1"] = struct{}{}

	pipeline := NewPipeline(NewChunker(512, 0), newFakeEmbedder(4), vs, nil, 96)

	var report StorageReport
	pipeline.storeChunks(context.Background(), []*store.Chunk{
		storedChunk("known-1", "already stored content", "https://example.com/a", 0),
		storedChunk("new-1", "fresh content to store", "https://example.com/a", 1),
	}, &report)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Stored)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 1, vs.storedCount())
}

func TestStoreChunksExistenceCheckFailureStoresAll(t *testing.T) {
	vs := newFakeStore()
	vs.existingErr = errors.New("query timeout")

	pipeline := NewPipeline(NewChunker(512, 0), newFakeEmbedder(4), vs, nil, 96)

	var report StorageReport
	pipeline.storeChunks(context.Background(), []*store.Chunk{
		storedChunk("a", "content one here", "https://example.com/a", 0),
		storedChunk("b", "content two here", "https://example.com/a", 1),
	}, &report)

	assert.Equal(t, 2, report.Stored)
	assert.Zero(t, report.Skipped)
}

func TestStoreChunksUpsertFailure(t *testing.T) {
	vs := newFakeStore()
	vs.upsertErr = errors.New("collection unavailable")

	pipeline := NewPipeline(NewChunker(512, 0), newFakeEmbedder(4), vs, nil, 96)

	var report StorageReport
	pipeline.storeChunks(context.Background(), []*store.Chunk{
		storedChunk("a", "content one here", "https://example.com/a", 0),
	}, &report)

	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Stored)
}

func TestRechunkAndReindexReplacesSource(t *testing.T) {
	vs := newFakeStore()
	vs.chunks["old-1"] = storedChunk("old-1", "First half of the source text.", "https://example.com/doc", 0)
	vs.chunks["old-2"] = storedChunk("old-2", "Second half of the source text.", "https://example.com/doc", 1)

	pipeline := NewPipeline(NewChunker(512, 0), newFakeEmbedder(4), vs, nil, 96)

	report, err := pipeline.RechunkAndReindex(context.Background(), "https://example.com/doc", 512, 0)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/doc", report.SourceURL)
	assert.Equal(t, 2, report.OldChunks)
	assert.Equal(t, 1, report.NewChunks)
	assert.Equal(t, 1, report.Stored)
	assert.Equal(t, 512, report.ChunkSize)
	assert.Zero(t, report.Overlap)

	assert.Contains(t, vs.deletedSources, "https://example.com/doc")
	assert.Equal(t, 1, vs.storedCount())
	for _, chunk := range vs.chunks {
		assert.Equal(t, "First half of the source text. Second half of the source text.", chunk.Content)
		assert.NotEqual(t, "old-1", chunk.ID)
		assert.NotEqual(t, "old-2", chunk.ID)
	}
}

func TestRechunkAndReindexUnknownSource(t *testing.T) {
	pipeline := NewPipeline(NewChunker(512, 0), newFakeEmbedder(4), newFakeStore(), nil, 96)

	_, err := pipeline.RechunkAndReindex(context.Background(), "https://example.com/missing", 512, 0)
	require.ErrorIs(t, err, ErrNoChunksForSource)
}

func TestRechunkAndReindexEmbedFailureKeepsOldChunks(t *testing.T) {
	vs := newFakeStore()
	vs.chunks["old-1"] = storedChunk("old-1", "Original content stays put.", "https://example.com/doc", 0)

	embedder := newFakeEmbedder(4)
	embedder.err = errors.New("embedding backend down")

	pipeline := NewPipeline(NewChunker(512, 0), embedder, vs, nil, 96)
	fastRetries(pipeline)

	_, err := pipeline.RechunkAndReindex(context.Background(), "https://example.com/doc", 256, 0)
	require.Error(t, err)
	assert.Empty(t, vs.deletedSources)
	assert.Equal(t, 1, vs.storedCount())
}

func TestRechunkAndReindexInvalidParams(t *testing.T) {
	vs := newFakeStore()
	vs.chunks["old-1"] = storedChunk("old-1", "Some stored content here.", "https://example.com/doc", 0)

	pipeline := NewPipeline(NewChunker(512, 0), newFakeEmbedder(4), vs, nil, 96)

	_, err := pipeline.RechunkAndReindex(context.Background(), "https://example.com/doc", -5, 0)
	require.ErrorIs(t, err, ErrInvalidChunkParams)
	assert.Equal(t, 1, vs.storedCount())
}
