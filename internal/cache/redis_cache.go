package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jjiill888/quik/internal/model"
)

type RedisStatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStatsCache(rdb *redis.Client, ttl time.Duration) *RedisStatsCache {
	return &RedisStatsCache{rdb: rdb, ttl: ttl}
}

var _ StatsCache = (*RedisStatsCache)(nil)

func statsKey(groupID int64) string {
	return fmt.Sprintf("group:%d:stats", groupID)
}

func (c *RedisStatsCache) StoreStats(ctx context.Context, groupID int64, stats model.GroupStats) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statsKey(groupID), b, c.ttl).Err()
}

func (c *RedisStatsCache) GetStats(ctx context.Context, groupID int64) (model.GroupStats, error) {
	raw, err := c.rdb.Get(ctx, statsKey(groupID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.GroupStats{}, ErrMiss
	}
	if err != nil {
		return model.GroupStats{}, err
	}

	var stats model.GroupStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return model.GroupStats{}, err
	}
	return stats, nil
}

func (c *RedisStatsCache) Invalidate(ctx context.Context, groupID int64) error {
	return c.rdb.Del(ctx, statsKey(groupID)).Err()
}
