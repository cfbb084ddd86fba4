package ratelimit

import (
	"context"
	"time"
)

// Config is the per-limiter quota: Points consumable per Window, with a
// Block override applied once the quota is exceeded.
type Config struct {
	Points        int
	Window        time.Duration
	BlockDuration time.Duration
}

type Result struct {
	Allowed      bool
	Remaining    int
	MsBeforeNext int64
	ResetTime    time.Time
	BlockedUntil *time.Time
}

// Storage is the bucket backend behind a limiter. Implementations must make
// the check-increment-block sequence atomic per key: two concurrent calls
// for the same key may never both be admitted past the quota.
type Storage interface {
	Consume(ctx context.Context, key string, points int, cfg Config) (*Result, error)
	Reset(ctx context.Context, key string) error
	Close() error
}
