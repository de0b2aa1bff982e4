package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/scholar-x/pkg/utils/json"
)

// QueryCacheConfig controls the Redis-backed query result cache.
type QueryCacheConfig struct {
	Enabled   bool
	TTL       time.Duration
	KeyPrefix string
}

// QueryCache stores full query results keyed by the parameters that
// produced them. A disabled or nil-client cache degrades to a no-op.
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig
}

// NewQueryCache returns a QueryCache. A nil config disables caching.
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = &QueryCacheConfig{
			Enabled:   false,
			TTL:       time.Hour,
			KeyPrefix: "rag:query:",
		}
	}
	return &QueryCache{redis: redis, config: config}
}

// cacheKey hashes every parameter that shapes the result, so changed
// retrieval settings never serve stale answers.
func (c *QueryCache) cacheKey(question, selectedText string, topK int, threshold float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%.4f", question, selectedText, topK, threshold)
	return c.config.KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *QueryCache) enabled() bool {
	return c != nil && c.config.Enabled && c.redis != nil
}

// Get returns the cached result for the given parameters, or nil on a
// miss. Corrupt entries are evicted and reported as an error.
func (c *QueryCache) Get(ctx context.Context, question, selectedText string, topK int, threshold float64) (*QueryResult, error) {
	if !c.enabled() {
		return nil, nil
	}

	key := c.cacheKey(question, selectedText, topK, threshold)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			logger.Debugw("query cache miss", "key", key)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read query cache: %w", err)
	}

	var result QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("evicting corrupt cache entry", "key", key, "error", err.Error())
		_ = c.redis.Del(ctx, key).Err()
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}

	logger.Debugw("query cache hit", "key", key, "answer_length", len(result.Answer))
	return &result, nil
}

// Set stores the result under the query parameters with the
// configured TTL.
func (c *QueryCache) Set(ctx context.Context, question, selectedText string, topK int, threshold float64, result *QueryResult) error {
	if !c.enabled() {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result for caching: %w", err)
	}

	key := c.cacheKey(question, selectedText, topK, threshold)
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to write query cache: %w", err)
	}

	logger.Debugw("cached query result", "key", key, "ttl", c.config.TTL)
	return nil
}

// Clear removes every cached query result.
func (c *QueryCache) Clear(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "key", iter.Val(), "error", err.Error())
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan query cache: %w", err)
	}

	logger.Infow("cleared query cache", "deleted", deleted)
	return nil
}

// Stats reports the cache configuration and current entry count.
func (c *QueryCache) Stats(ctx context.Context) (map[string]any, error) {
	if !c.enabled() {
		return map[string]any{"enabled": false}, nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	keys := 0
	for iter.Next(ctx) {
		keys++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan query cache: %w", err)
	}

	return map[string]any{
		"enabled":    true,
		"key_count":  keys,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
