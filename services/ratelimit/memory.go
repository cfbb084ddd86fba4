package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

type bucket struct {
	windowStart  time.Time
	consumed     int
	blockedUntil time.Time
	lastTouch    time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// MemoryStorage is the default bucket backend: fixed-window counters with a
// block override, sharded by key hash so hot keys don't serialize unrelated
// traffic. Idle buckets are evicted by a background sweep.
type MemoryStorage struct {
	shards [shardCount]*shard

	now func() time.Time

	sweepStop chan struct{}
	sweepOnce sync.Once
}

func NewMemoryStorage() *MemoryStorage {
	s := &MemoryStorage{
		now:       time.Now,
		sweepStop: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return s
}

func (s *MemoryStorage) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%shardCount]
}

func (s *MemoryStorage) Consume(_ context.Context, key string, points int, cfg Config) (*Result, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.now()

	b, ok := sh.buckets[key]
	if !ok {
		b = &bucket{windowStart: now}
		sh.buckets[key] = b
	}
	b.lastTouch = now

	// Active block rejects immediately.
	if !b.blockedUntil.IsZero() {
		if now.Before(b.blockedUntil) {
			blocked := b.blockedUntil
			return &Result{
				Allowed:      false,
				Remaining:    0,
				MsBeforeNext: blocked.Sub(now).Milliseconds(),
				ResetTime:    blocked,
				BlockedUntil: &blocked,
			}, nil
		}
		// Block expired: fresh window.
		b.blockedUntil = time.Time{}
		b.consumed = 0
		b.windowStart = now
	}

	if now.Sub(b.windowStart) > cfg.Window {
		b.windowStart = now
		b.consumed = 0
	}

	b.consumed += points
	if b.consumed > cfg.Points {
		b.blockedUntil = now.Add(cfg.BlockDuration)
		blocked := b.blockedUntil
		return &Result{
			Allowed:      false,
			Remaining:    0,
			MsBeforeNext: cfg.BlockDuration.Milliseconds(),
			ResetTime:    blocked,
			BlockedUntil: &blocked,
		}, nil
	}

	resetTime := b.windowStart.Add(cfg.Window)
	return &Result{
		Allowed:      true,
		Remaining:    cfg.Points - b.consumed,
		MsBeforeNext: resetTime.Sub(now).Milliseconds(),
		ResetTime:    resetTime,
	}, nil
}

func (s *MemoryStorage) Reset(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.buckets, key)
	sh.mu.Unlock()
	return nil
}

// StartSweeper evicts buckets untouched for maxIdle, bounding memory under
// sustained high-cardinality traffic.
func (s *MemoryStorage) StartSweeper(interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep(maxIdle)
			case <-s.sweepStop:
				return
			}
		}
	}()
}

func (s *MemoryStorage) sweep(maxIdle time.Duration) {
	cutoff := s.now().Add(-maxIdle)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, b := range sh.buckets {
			if b.lastTouch.Before(cutoff) && s.now().After(b.blockedUntil) {
				delete(sh.buckets, key)
			}
		}
		sh.mu.Unlock()
	}
}

// Len reports the live bucket count across all shards.
func (s *MemoryStorage) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.buckets)
		sh.mu.Unlock()
	}
	return n
}

func (s *MemoryStorage) Close() error {
	s.sweepOnce.Do(func() { close(s.sweepStop) })
	return nil
}
