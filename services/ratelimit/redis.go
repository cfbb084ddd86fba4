package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps buckets in Redis so the quota survives restarts and is
// shared across replicas. The counter relies on INCR being atomic: the
// admit decision is taken on the returned value, so concurrent consumers
// can never both slip past the quota.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{
		client: client,
		prefix: "rate_limit",
	}
}

func (s *RedisStorage) countKey(key string) string {
	return fmt.Sprintf("%s:count:%s", s.prefix, key)
}

func (s *RedisStorage) blockKey(key string) string {
	return fmt.Sprintf("%s:block:%s", s.prefix, key)
}

func (s *RedisStorage) Consume(ctx context.Context, key string, points int, cfg Config) (*Result, error) {
	blockTTL, err := s.client.TTL(ctx, s.blockKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check block status: %w", err)
	}
	if blockTTL > 0 {
		blocked := time.Now().Add(blockTTL)
		return &Result{
			Allowed:      false,
			Remaining:    0,
			MsBeforeNext: blockTTL.Milliseconds(),
			ResetTime:    blocked,
			BlockedUntil: &blocked,
		}, nil
	}

	countKey := s.countKey(key)
	count, err := s.client.IncrBy(ctx, countKey, int64(points)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to increment counter: %w", err)
	}

	// First hit opens the window.
	if count == int64(points) {
		if err := s.client.Expire(ctx, countKey, cfg.Window).Err(); err != nil {
			return nil, fmt.Errorf("failed to set window expiry: %w", err)
		}
	}

	windowTTL, err := s.client.TTL(ctx, countKey).Result()
	if err != nil || windowTTL < 0 {
		windowTTL = cfg.Window
	}
	resetTime := time.Now().Add(windowTTL)

	if count > int64(cfg.Points) {
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, s.blockKey(key), "1", cfg.BlockDuration)
		pipe.Del(ctx, countKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to block key: %w", err)
		}

		blocked := time.Now().Add(cfg.BlockDuration)
		return &Result{
			Allowed:      false,
			Remaining:    0,
			MsBeforeNext: cfg.BlockDuration.Milliseconds(),
			ResetTime:    blocked,
			BlockedUntil: &blocked,
		}, nil
	}

	return &Result{
		Allowed:      true,
		Remaining:    cfg.Points - int(count),
		MsBeforeNext: windowTTL.Milliseconds(),
		ResetTime:    resetTime,
	}, nil
}

func (s *RedisStorage) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.countKey(key), s.blockKey(key)).Err()
}

func (s *RedisStorage) Close() error {
	return nil
}
