// Package cache provides best-effort JSON caching over Redis. A nil client
// disables caching without changing call sites.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// New creates a cache. client may be nil, in which case every read misses
// and every write is dropped.
func New(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Enabled reports whether a Redis client is wired in.
func (c *Cache) Enabled() bool {
	return c.client != nil && c.ttl > 0
}

// Get reads a cached JSON value into out. Returns false on miss or any
// error; cache failures never surface to the caller.
func (c *Cache) Get(ctx context.Context, key string, out interface{}) bool {
	if !c.Enabled() {
		return false
	}

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("Cache entry corrupt")
		return false
	}
	return true
}

// Set stores a JSON value with the configured TTL, best effort.
func (c *Cache) Set(ctx context.Context, key string, val interface{}) {
	if !c.Enabled() {
		return
	}

	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// InvalidateUser drops every cached key belonging to a user. Called after
// any write to the user's subscriptions or settings.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) {
	if !c.Enabled() {
		return
	}

	pattern := fmt.Sprintf("user:%d:*", userID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Debug().Err(err).Str("pattern", pattern).Msg("Cache scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Debug().Err(err).Msg("Cache invalidation failed")
	}
}

// UserKey builds a per-user cache key like "user:42:analytics".
func UserKey(userID int64, suffix string) string {
	return fmt.Sprintf("user:%d:%s", userID, suffix)
}
