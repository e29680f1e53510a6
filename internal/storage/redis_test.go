package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store := NewRedisStore(mr.Addr())
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestScrapedCacheRoundTrip(t *testing.T) {
	store, _ := testRedis(t)
	ctx := context.Background()

	const key = "cafe|springfield"
	seen, err := store.RecentlyScraped(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkScraped(ctx, key, time.Hour))

	seen, err = store.RecentlyScraped(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)

	other, err := store.RecentlyScraped(ctx, "bar|springfield")
	require.NoError(t, err)
	assert.False(t, other, "different queries must not collide")
}

func TestScrapedCacheExpires(t *testing.T) {
	store, mr := testRedis(t)
	ctx := context.Background()

	require.NoError(t, store.MarkScraped(ctx, "cafe|springfield", time.Minute))
	mr.FastForward(61 * time.Second)

	seen, err := store.RecentlyScraped(ctx, "cafe|springfield")
	require.NoError(t, err)
	assert.False(t, seen, "the cache window must close on its own")
}

func TestSeenListingRoundTrip(t *testing.T) {
	store, mr := testRedis(t)
	ctx := context.Background()

	const url = "https://www.google.com/maps/place/Springfield+Beanery/data=!4m2"
	seen, err := store.WasSeen(ctx, url)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkSeen(ctx, url, time.Hour))
	seen, err = store.WasSeen(ctx, url)
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Hour)
	seen, err = store.WasSeen(ctx, url)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSeenAndScrapedKeysAreDisjoint(t *testing.T) {
	store, _ := testRedis(t)
	ctx := context.Background()

	require.NoError(t, store.MarkScraped(ctx, "same-value", time.Hour))
	seen, err := store.WasSeen(ctx, "same-value")
	require.NoError(t, err)
	assert.False(t, seen, "namespaces must not bleed into each other")
}

func TestIncrJobRetriesCountsAndExpires(t *testing.T) {
	store, mr := testRedis(t)
	ctx := context.Background()

	n, err := store.IncrJobRetries(ctx, "job-123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.IncrJobRetries(ctx, "job-123")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mr.FastForward(25 * time.Hour)
	n, err = store.IncrJobRetries(ctx, "job-123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "stale counters restart from scratch")
}

func TestPing(t *testing.T) {
	store, mr := testRedis(t)
	require.NoError(t, store.Ping(context.Background()))

	mr.Close()
	assert.Error(t, store.Ping(context.Background()))
}
