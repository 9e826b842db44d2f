package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jjiill888/quik/internal/model"
)

func TestRedisStatsCache_StoreStats_Success(t *testing.T) {
	t.Parallel()

	// Start in-memory Redis
	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	ttl := 10 * time.Second
	cache := NewRedisStatsCache(rdb, ttl)

	ctx := context.Background()
	stats := model.GroupStats{Total: 5, Completed: 2, Pending: 3}

	if err := cache.StoreStats(ctx, 42, stats); err != nil {
		t.Fatalf("StoreStats() error: %v", err)
	}

	key := "group:42:stats"

	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist", key)
	}

	ttlRemaining := mr.TTL(key)
	if ttlRemaining <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttlRemaining)
	}

	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("failed to get key %q: %v", key, err)
	}

	var got model.GroupStats
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("failed to unmarshal value: %v", err)
	}

	if got != stats {
		t.Fatalf("expected stats %+v, got %+v", stats, got)
	}
}

func TestRedisStatsCache_GetStats_RoundTrip(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisStatsCache(rdb, time.Minute)
	ctx := context.Background()

	want := model.GroupStats{Total: 3, Completed: 3, Pending: 0, AllCompleted: true}
	if err := cache.StoreStats(ctx, 7, want); err != nil {
		t.Fatalf("StoreStats() error: %v", err)
	}

	got, err := cache.GetStats(ctx, 7)
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if got != want {
		t.Fatalf("expected stats %+v, got %+v", want, got)
	}
}

func TestRedisStatsCache_GetStats_MissingKeyIsMiss(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisStatsCache(rdb, time.Minute)

	_, err := cache.GetStats(context.Background(), 99)
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss for absent key, got %v", err)
	}
}

func TestRedisStatsCache_Invalidate_RemovesKey(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisStatsCache(rdb, time.Minute)
	ctx := context.Background()

	if err := cache.StoreStats(ctx, 1, model.GroupStats{Total: 1, Pending: 1}); err != nil {
		t.Fatalf("StoreStats() error: %v", err)
	}
	if err := cache.Invalidate(ctx, 1); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}

	if mr.Exists("group:1:stats") {
		t.Fatalf("expected key removed after Invalidate")
	}
	if _, err := cache.GetStats(ctx, 1); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after Invalidate, got %v", err)
	}
}

func TestRedisStatsCache_StoreStats_ContextCanceled(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisStatsCache(rdb, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cache.StoreStats(ctx, 1, model.GroupStats{}); err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}
