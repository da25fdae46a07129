package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ayush/truth-engine/internal/models"
)

const redisKeyPrefix = "report:"

// Redis keeps reports in Redis so several replicas share one cache.
// Expiry is delegated to the key TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

// Key returns the Redis key holding the report for query.
func Key(query string) string {
	return redisKeyPrefix + Normalize(query)
}

func (c *Redis) Get(ctx context.Context, query string) (*models.Report, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(query)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var r models.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, fmt.Errorf("redis decode: %w", err)
	}
	return &r, true, nil
}

func (c *Redis) Put(ctx context.Context, query string, report *models.Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis encode: %w", err)
	}
	if err := c.rdb.Set(ctx, Key(query), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
