package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage() (*MemoryStorage, *time.Time) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStorage()
	s.now = func() time.Time { return current }
	return s, &current
}

func TestMemoryStorage_ConsumeWithinQuota(t *testing.T) {
	s, _ := newTestStorage()
	cfg := Config{Points: 10, Window: time.Hour, BlockDuration: time.Hour}

	for i := 1; i <= 10; i++ {
		res, err := s.Consume(context.Background(), "203.0.113.1", 1, cfg)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d should be allowed", i)
		assert.Equal(t, 10-i, res.Remaining)
		assert.Nil(t, res.BlockedUntil)
	}
}

func TestMemoryStorage_ExhaustionBlocks(t *testing.T) {
	s, now := newTestStorage()
	cfg := Config{Points: 10, Window: time.Hour, BlockDuration: time.Hour}

	for i := 0; i < 10; i++ {
		_, err := s.Consume(context.Background(), "203.0.113.1", 1, cfg)
		require.NoError(t, err)
	}

	res, err := s.Consume(context.Background(), "203.0.113.1", 1, cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, int64(3600000), res.MsBeforeNext)
	require.NotNil(t, res.BlockedUntil)
	assert.Equal(t, now.Add(time.Hour), *res.BlockedUntil)
}

func TestMemoryStorage_ActiveBlockCountsDown(t *testing.T) {
	s, now := newTestStorage()
	cfg := Config{Points: 1, Window: time.Hour, BlockDuration: time.Hour}

	_, err := s.Consume(context.Background(), "k", 1, cfg)
	require.NoError(t, err)
	_, err = s.Consume(context.Background(), "k", 1, cfg)
	require.NoError(t, err)

	*now = now.Add(10 * time.Minute)

	res, err := s.Consume(context.Background(), "k", 1, cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, (50 * time.Minute).Milliseconds(), res.MsBeforeNext)
}

func TestMemoryStorage_BlockExpiryStartsFreshWindow(t *testing.T) {
	s, now := newTestStorage()
	cfg := Config{Points: 10, Window: time.Hour, BlockDuration: time.Hour}

	for i := 0; i < 11; i++ {
		_, err := s.Consume(context.Background(), "k", 1, cfg)
		require.NoError(t, err)
	}

	*now = now.Add(time.Hour + time.Second)

	res, err := s.Consume(context.Background(), "k", 1, cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
}

func TestMemoryStorage_WindowExpiryResetsCounter(t *testing.T) {
	s, now := newTestStorage()
	cfg := Config{Points: 3, Window: 30 * time.Minute, BlockDuration: 30 * time.Minute}

	for i := 0; i < 3; i++ {
		res, err := s.Consume(context.Background(), "k", 1, cfg)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	*now = now.Add(31 * time.Minute)

	res, err := s.Consume(context.Background(), "k", 1, cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestMemoryStorage_KeysAreIsolated(t *testing.T) {
	s, _ := newTestStorage()
	cfg := Config{Points: 1, Window: time.Hour, BlockDuration: time.Hour}

	_, err := s.Consume(context.Background(), "a", 1, cfg)
	require.NoError(t, err)
	res, err := s.Consume(context.Background(), "a", 1, cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = s.Consume(context.Background(), "b", 1, cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryStorage_ResetClearsBucket(t *testing.T) {
	s, _ := newTestStorage()
	cfg := Config{Points: 1, Window: time.Hour, BlockDuration: time.Hour}

	_, err := s.Consume(context.Background(), "k", 1, cfg)
	require.NoError(t, err)
	_, err = s.Consume(context.Background(), "k", 1, cfg)
	require.NoError(t, err)

	require.NoError(t, s.Reset(context.Background(), "k"))

	res, err := s.Consume(context.Background(), "k", 1, cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestMemoryStorage_SweepEvictsIdleBuckets(t *testing.T) {
	s, now := newTestStorage()
	cfg := Config{Points: 10, Window: time.Hour, BlockDuration: time.Hour}

	for i := 0; i < 40; i++ {
		_, err := s.Consume(context.Background(), fmt.Sprintf("ip-%d", i), 1, cfg)
		require.NoError(t, err)
	}
	assert.Equal(t, 40, s.Len())

	*now = now.Add(3 * time.Hour)
	s.sweep(2 * time.Hour)

	assert.Equal(t, 0, s.Len())
}

func TestMemoryStorage_SweepKeepsBlockedBuckets(t *testing.T) {
	s, now := newTestStorage()
	cfg := Config{Points: 1, Window: time.Minute, BlockDuration: 24 * time.Hour}

	_, err := s.Consume(context.Background(), "blocked", 1, cfg)
	require.NoError(t, err)
	_, err = s.Consume(context.Background(), "blocked", 1, cfg)
	require.NoError(t, err)

	*now = now.Add(3 * time.Hour)
	s.sweep(time.Hour)

	assert.Equal(t, 1, s.Len())

	res, err := s.Consume(context.Background(), "blocked", 1, cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}
