package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radiology-findings-pipeline/internal/domain"
)

// RedisCache stores oracle results keyed by report-pair digest so that
// re-running a retry pass does not repeat identical oracle calls across
// processes.
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		redis:      client,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

// CachedResult wraps an extraction result with cache metadata.
type CachedResult struct {
	Data      *domain.ExtractionResult `json:"data"`
	CachedAt  time.Time                `json:"cached_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// Get returns the cached result for a report pair, or (nil, false) on miss.
func (c *RedisCache) Get(ctx context.Context, radiologyText, clinicalText string) (*domain.ExtractionResult, bool, error) {
	key := cacheKey(radiologyText, clinicalText)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get extraction cache: %w", err)
	}

	var cached CachedResult
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Drop the corrupted entry and treat as a miss.
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// Set stores an oracle result under the report-pair digest.
func (c *RedisCache) Set(ctx context.Context, radiologyText, clinicalText string, result *domain.ExtractionResult) error {
	now := time.Now()
	cached := CachedResult{
		Data:      result,
		CachedAt:  now,
		ExpiresAt: now.Add(c.defaultTTL),
	}

	payload, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached extraction: %w", err)
	}

	if err := c.redis.Set(ctx, cacheKey(radiologyText, clinicalText), payload, c.defaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to set extraction cache: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}

// cacheKey digests both report texts; the oracle output is a pure function
// of them.
func cacheKey(radiologyText, clinicalText string) string {
	h := sha256.New()
	h.Write([]byte(radiologyText))
	h.Write([]byte{0})
	h.Write([]byte(clinicalText))
	return fmt.Sprintf("extraction:%x", h.Sum(nil))
}
