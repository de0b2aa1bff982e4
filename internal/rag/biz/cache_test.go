package biz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) (*QueryCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewQueryCache(client, &QueryCacheConfig{
		Enabled:   true,
		TTL:       time.Hour,
		KeyPrefix: "rag:query:",
	})
	return cache, mr
}

func sampleQueryResult() *QueryResult {
	return &QueryResult{
		Query:  "What is ROS 2?",
		Answer: "ROS 2 is a robotics framework.",
		Contexts: []*RetrievedContext{
			{
				ID:        "chunk-1",
				Content:   "ROS 2 is a set of libraries and tools.",
				SourceURL: "https://example.com/ros2",
				Score:     0.95,
			},
		},
		Grounded:          true,
		Confidence:        0.95,
		SupportingSources: []string{"https://example.com/ros2"},
	}
}

func TestQueryCacheRoundTrip(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "What is ROS 2?", "", 5, 0.7, sampleQueryResult()))

	got, err := cache.Get(ctx, "What is ROS 2?", "", 5, 0.7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ROS 2 is a robotics framework.", got.Answer)
	assert.True(t, got.Grounded)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
	require.Len(t, got.Contexts, 1)
	assert.Equal(t, "chunk-1", got.Contexts[0].ID)
	assert.Equal(t, []string{"https://example.com/ros2"}, got.SupportingSources)
}

func TestQueryCacheMiss(t *testing.T) {
	cache, _ := setupTestCache(t)

	got, err := cache.Get(context.Background(), "never cached", "", 5, 0.7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueryCacheKeyCoversAllParameters(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "question", "selection", 5, 0.7, sampleQueryResult()))

	tests := []struct {
		name         string
		question     string
		selectedText string
		topK         int
		threshold    float64
		wantHit      bool
	}{
		{name: "same parameters", question: "question", selectedText: "selection", topK: 5, threshold: 0.7, wantHit: true},
		{name: "different question", question: "other", selectedText: "selection", topK: 5, threshold: 0.7},
		{name: "different selection", question: "question", selectedText: "", topK: 5, threshold: 0.7},
		{name: "different topk", question: "question", selectedText: "selection", topK: 3, threshold: 0.7},
		{name: "different threshold", question: "question", selectedText: "selection", topK: 5, threshold: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cache.Get(ctx, tt.question, tt.selectedText, tt.topK, tt.threshold)
			require.NoError(t, err)
			if tt.wantHit {
				assert.NotNil(t, got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestQueryCacheDisabled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewQueryCache(client, &QueryCacheConfig{Enabled: false, TTL: time.Hour, KeyPrefix: "rag:query:"})
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "question", "", 5, 0.7, sampleQueryResult()))
	got, err := cache.Get(ctx, "question", "", 5, 0.7)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, mr.Keys())
}

func TestQueryCacheNilConfigDisables(t *testing.T) {
	cache := NewQueryCache(nil, nil)

	got, err := cache.Get(context.Background(), "question", "", 5, 0.7)
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, cache.Set(context.Background(), "question", "", 5, 0.7, sampleQueryResult()))
}

func TestQueryCacheEvictsCorruptEntry(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	key := cache.cacheKey("question", "", 5, 0.7)
	require.NoError(t, mr.Set(key, "{not valid json"))

	got, err := cache.Get(ctx, "question", "", 5, 0.7)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists(key), "corrupt entry must be evicted")
}

func TestQueryCacheEntryExpires(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "question", "", 5, 0.7, sampleQueryResult()))
	mr.FastForward(2 * time.Hour)

	got, err := cache.Get(ctx, "question", "", 5, 0.7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueryCacheClearLeavesForeignKeys(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "q1", "", 5, 0.7, sampleQueryResult()))
	require.NoError(t, cache.Set(ctx, "q2", "", 5, 0.7, sampleQueryResult()))
	require.NoError(t, mr.Set("other:key", "untouched"))

	require.NoError(t, cache.Clear(ctx))

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats["key_count"])
	assert.True(t, mr.Exists("other:key"))
}

func TestQueryCacheStats(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "q1", "", 5, 0.7, sampleQueryResult()))
	require.NoError(t, cache.Set(ctx, "q2", "sel", 3, 0.5, sampleQueryResult()))

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, 2, stats["key_count"])
	assert.Equal(t, "rag:query:", stats["key_prefix"])
	assert.Equal(t, time.Hour.String(), stats["ttl"])

	disabled := NewQueryCache(nil, nil)
	stats, err = disabled.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, false, stats["enabled"])
}
