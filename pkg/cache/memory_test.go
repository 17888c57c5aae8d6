package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, clk *fakeClock, opts ...MemoryOption) *MemoryCache {
	t.Helper()
	mc := NewMemoryCache(append([]MemoryOption{WithMemoryClock(clk.Now)}, opts...)...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Date(2025, 2, 23, 9, 30, 0, 0, time.UTC)}
	mc := newTestCache(t, clk)

	require.NoError(t, mc.Set(ctx, "snapshot", "v1", 30*time.Second))

	got, err := mc.Get(ctx, "snapshot")
	require.NoError(t, err)
	require.Equal(t, "v1", got)

	clk.Advance(31 * time.Second)
	_, err = mc.Get(ctx, "snapshot")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheLockOwnership(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(0, 0)}
	mc := newTestCache(t, clk)

	ok, err := mc.TryLock(ctx, "refresh", "a", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = mc.TryLock(ctx, "refresh", "b", 10*time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, mc.Unlock(ctx, "refresh", "b"), ErrNotOwner)
	require.NoError(t, mc.Unlock(ctx, "refresh", "a"))

	ok, err = mc.TryLock(ctx, "refresh", "b", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryCacheLockExpires(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(0, 0)}
	mc := newTestCache(t, clk)

	ok, _ := mc.TryLock(ctx, "refresh", "a", 5*time.Second)
	require.True(t, ok)

	clk.Advance(6 * time.Second)
	ok, err := mc.TryLock(ctx, "refresh", "b", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(0, 0)}
	mc := newTestCache(t, clk, WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	clk.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	clk.Advance(time.Second)
	_, err := mc.Get(ctx, "a")
	require.NoError(t, err)
	clk.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))

	_, err = mc.Get(ctx, "b")
	require.ErrorIs(t, err, ErrCacheMiss)
	_, err = mc.Get(ctx, "a")
	require.NoError(t, err)
}
