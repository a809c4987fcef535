package querycache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settledCount(b *Batch) int {
	n := 0
	for _, r := range b.Results() {
		if r.Status != StatusLoading {
			n++
		}
	}
	return n
}

func TestBatchAggregateSemantics(t *testing.T) {
	c, _ := newTestCache(t)

	release := make(chan struct{})
	var queries []Query
	for i := 0; i < 8; i++ {
		i := i
		q := Query{Key: NewKey("section", fmt.Sprintf("%d", i)), StaleAfter: time.Minute}
		switch {
		case i < 3:
			// Still pending until released.
			q.Fetch = func(ctx context.Context) (any, error) {
				<-release
				return i, nil
			}
		case i < 5:
			q.Fetch = func(ctx context.Context) (any, error) {
				return nil, errors.New("section failed")
			}
		default:
			q.Fetch = func(ctx context.Context) (any, error) {
				return i, nil
			}
		}
		queries = append(queries, q)
	}

	b := c.NewBatch(queries...).Start(context.Background())

	require.Eventually(t, func() bool { return settledCount(b) == 5 },
		2*time.Second, 5*time.Millisecond)
	assert.True(t, b.Loading(), "three queries pending keeps the batch loading")
	assert.False(t, b.AllFailed())
	assert.False(t, b.PartiallyFailed(), "partial failure is only reported once settled")

	close(release)
	b.Wait()

	assert.False(t, b.Loading())
	assert.False(t, b.AllFailed(), "two of eight failing is not critical")
	assert.True(t, b.PartiallyFailed())

	failed := 0
	for _, r := range b.Results() {
		if r.Status == StatusError {
			failed++
			assert.Error(t, r.Err)
		}
	}
	assert.Equal(t, 2, failed)
}

func TestBatchAllFailedIsCritical(t *testing.T) {
	c, _ := newTestCache(t)

	var queries []Query
	for i := 0; i < 3; i++ {
		queries = append(queries, Query{
			Key:        NewKey("section", fmt.Sprintf("%d", i)),
			StaleAfter: time.Minute,
			Fetch: func(ctx context.Context) (any, error) {
				return nil, errors.New("down")
			},
		})
	}

	b := c.NewBatch(queries...)
	b.Run(context.Background())

	assert.True(t, b.AllFailed())
	assert.False(t, b.PartiallyFailed())
}

func TestBatchResultsCommitIndependently(t *testing.T) {
	c, _ := newTestCache(t)

	slow := make(chan struct{})
	b := c.NewBatch(
		Query{Key: NewKey("fast"), StaleAfter: time.Minute, Fetch: func(ctx context.Context) (any, error) {
			return "fast", nil
		}},
		Query{Key: NewKey("slow"), StaleAfter: time.Minute, Fetch: func(ctx context.Context) (any, error) {
			<-slow
			return "slow", nil
		}},
	).Start(context.Background())

	// The fast query commits to the cache before the slow one resolves.
	require.Eventually(t, func() bool {
		entry, ok := c.Get(NewKey("fast"))
		return ok && entry.Status == StatusSuccess
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, b.Loading())

	close(slow)
	b.Wait()
	entry, ok := c.Get(NewKey("slow"))
	require.True(t, ok)
	assert.Equal(t, "slow", entry.Value)
}
