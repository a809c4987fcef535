package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *time.Time) {
	t.Helper()
	c := New(time.Hour)
	t.Cleanup(c.Close)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestKeyStructuralEquality(t *testing.T) {
	c, _ := newTestCache(t)

	k1 := NewKey("search", "multi", "dune", "1")
	k2 := NewKey("search", "multi", "dune", "1")

	c.Set(k1, "results", time.Minute)

	entry, ok := c.Get(k2)
	require.True(t, ok, "structurally equal key should address the same entry")
	assert.Equal(t, "results", entry.Value)

	k3 := NewKey("search", "multi", "1", "dune")
	_, ok = c.Get(k3)
	assert.False(t, ok, "same values in a different order are a different key")
}

func TestReadDeduplicatesFetches(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("genres", "movie")

	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return []string{"Drama"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Read(context.Background(), key, time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, []string{"Drama"}, v)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestStaleWhileRevalidate(t *testing.T) {
	c, now := newTestCache(t)
	key := NewKey("search", "multi", "dune", "1")

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return "old", nil
		}
		<-release
		return "new", nil
	}

	v, err := c.Read(context.Background(), key, 5*time.Minute, fetch)
	require.NoError(t, err)
	require.Equal(t, "old", v)

	// Six minutes later the entry is stale: every concurrent reader gets the
	// old value synchronously while exactly one background refetch runs.
	*now = now.Add(6 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Read(context.Background(), key, 5*time.Minute, fetch)
			assert.NoError(t, err)
			assert.Equal(t, "old", v)
		}()
	}
	wg.Wait()

	close(release)
	require.Eventually(t, func() bool {
		entry, ok := c.Get(key)
		return ok && entry.Value == "new"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(2), calls.Load(), "refetch must run once, not once per reader")
}

func TestFailedRefetchKeepsOldValue(t *testing.T) {
	c, now := newTestCache(t)
	key := NewKey("trending", "movie")
	upstreamDown := errors.New("upstream down")

	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return "cached", nil
		}
		return nil, upstreamDown
	}

	_, err := c.Read(context.Background(), key, time.Minute, fetch)
	require.NoError(t, err)

	*now = now.Add(2 * time.Minute)
	v, err := c.Read(context.Background(), key, time.Minute, fetch)
	require.NoError(t, err, "stale read serves the previous value")
	assert.Equal(t, "cached", v)

	require.Eventually(t, func() bool {
		entry, _ := c.Get(key)
		return entry.Status == StatusError
	}, 2*time.Second, 10*time.Millisecond)

	entry, ok := c.Get(key)
	require.True(t, ok)
	assert.True(t, entry.HasValue, "error must not clear cached data")
	assert.Equal(t, "cached", entry.Value)
	assert.ErrorIs(t, entry.Err, upstreamDown)
	assert.True(t, entry.IsStale(*now))
}

func TestInvalidateScopedByPrefix(t *testing.T) {
	c, now := newTestCache(t)

	mine := NewKey("favorites", "user42", "page1")
	theirs := NewKey("favorites", "user99", "page1")
	c.Set(mine, "mine", time.Hour)
	c.Set(theirs, "theirs", time.Hour)

	touched := c.Invalidate(PrefixPredicate("favorites", "user42"))
	assert.Equal(t, 1, touched)

	entry, ok := c.Get(mine)
	require.True(t, ok)
	assert.True(t, entry.Invalidated)
	assert.True(t, entry.IsStale(*now))
	assert.True(t, entry.HasValue, "invalidation keeps data visible until refetched")

	other, ok := c.Get(theirs)
	require.True(t, ok)
	assert.False(t, other.Invalidated)
	assert.False(t, other.IsStale(*now))
}

func TestInvalidateDiscardsInFlightResult(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("reviews", "movie", "550", "1")

	entered := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		close(entered)
		<-release
		return "pre-invalidation", nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		v, err := c.Read(context.Background(), key, time.Minute, fetch)
		// The caller still receives the fetched value.
		assert.NoError(t, err)
		assert.Equal(t, "pre-invalidation", v)
	}()

	<-entered
	c.Invalidate(PrefixPredicate("reviews", "movie", "550"))
	close(release)
	<-done

	entry, ok := c.Get(key)
	require.True(t, ok)
	assert.False(t, entry.HasValue, "superseded result must not be committed")
}

func TestEvictIdleEntries(t *testing.T) {
	c, now := newTestCache(t)
	c.evictAfter = 30 * time.Minute

	c.Set(NewKey("genres", "movie"), "g", time.Hour)
	c.Set(NewKey("genres", "tv"), "g", time.Hour)
	require.Equal(t, 2, c.Len())

	*now = now.Add(10 * time.Minute)
	_, err := c.Read(context.Background(), NewKey("genres", "movie"), time.Hour, nil)
	require.NoError(t, err)

	*now = now.Add(25 * time.Minute)
	evicted := c.evictIdle(*now)
	assert.Equal(t, 1, evicted, "only the entry idle past the window is purged")
	require.Equal(t, 1, c.Len())

	_, ok := c.Get(NewKey("genres", "movie"))
	assert.True(t, ok)
}

func TestTypedRead(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("details", "movie", "603")

	v, err := Read(context.Background(), c, key, time.Minute, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
