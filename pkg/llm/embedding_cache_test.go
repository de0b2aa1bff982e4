package llm

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how often and with what inputs Embed is
// called, returning deterministic vectors derived from text length.
type countingEmbedder struct {
	calls     int
	lastBatch []string
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.lastBatch = texts
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = []float32{float32(len(text)), 1.0, 2.0}
	}
	return result, nil
}

func (c *countingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *countingEmbedder) Name() string {
	return "counting"
}

func setupCache(t *testing.T, cfg *EmbeddingCacheConfig) (*CachedEmbeddingProvider, *countingEmbedder) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	embedder := &countingEmbedder{}
	return NewCachedEmbeddingProvider(embedder, client, cfg), embedder
}

func TestEmbedSingleCaches(t *testing.T) {
	cache, embedder := setupCache(t, nil)
	ctx := context.Background()

	first, err := cache.EmbedSingle(ctx, "hello scholar")
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)

	second, err := cache.EmbedSingle(ctx, "hello scholar")
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls, "second call should hit the cache")
	assert.Equal(t, first, second)
}

func TestEmbedBatchPartialHit(t *testing.T) {
	cache, embedder := setupCache(t, nil)
	ctx := context.Background()

	vectors, err := cache.Embed(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, 1, embedder.calls)

	// One new text: only the miss goes to the provider.
	vectors, err = cache.Embed(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, 2, embedder.calls)
	assert.Equal(t, []string{"ccc"}, embedder.lastBatch)

	assert.Equal(t, []float32{1.0, 1.0, 2.0}, vectors[0])
	assert.Equal(t, []float32{2.0, 1.0, 2.0}, vectors[1])
	assert.Equal(t, []float32{3.0, 1.0, 2.0}, vectors[2])
}

func TestEmbedCacheDisabled(t *testing.T) {
	cache, embedder := setupCache(t, &EmbeddingCacheConfig{
		Enabled:   false,
		TTL:       time.Hour,
		KeyPrefix: "scholar:emb:",
	})
	ctx := context.Background()

	_, err := cache.EmbedSingle(ctx, "hello")
	require.NoError(t, err)
	_, err = cache.EmbedSingle(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.calls, "disabled cache must not short-circuit")
}

func TestClearCache(t *testing.T) {
	cache, embedder := setupCache(t, nil)
	ctx := context.Background()

	_, err := cache.Embed(ctx, []string{"one", "two"})
	require.NoError(t, err)

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats["key_count"])

	require.NoError(t, cache.ClearCache(ctx))

	stats, err = cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats["key_count"])

	_, err = cache.Embed(ctx, []string{"one"})
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.calls, "cleared entries recompute")
}

func TestCachedProviderName(t *testing.T) {
	cache, _ := setupCache(t, nil)
	assert.Equal(t, "counting-cached", cache.Name())
}
