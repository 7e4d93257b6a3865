// Package cache provides a redis read-through cache for the category
// catalog. Cache failures are treated as misses; the catalog store stays the
// source of truth and the TTL bounds staleness.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"expenseflow/internal/category"
	id "expenseflow/pkg/domain"
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(categoryID id.CategoryID) string {
	return "category:" + categoryID.String()
}

func (c *RedisCache) Get(ctx context.Context, categoryID id.CategoryID) (*category.Category, bool) {
	raw, err := c.client.Get(ctx, cacheKey(categoryID)).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.WarnContext(ctx, "category cache read failed", "error", err)
		}
		return nil, false
	}
	var cat category.Category
	if err := json.Unmarshal(raw, &cat); err != nil {
		return nil, false
	}
	return &cat, true
}

func (c *RedisCache) Set(ctx context.Context, cat *category.Category) {
	raw, err := json.Marshal(cat)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(cat.ID), raw, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "category cache write failed", "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, categoryID id.CategoryID) {
	if err := c.client.Del(ctx, cacheKey(categoryID)).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "category cache invalidation failed", "error", err)
	}
}
