package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// Query describes one independent fetch in a batch: the cache key it
// populates, the staleness class for the result, and the fetch itself.
type Query struct {
	Key        Key
	StaleAfter time.Duration
	Fetch      FetchFunc
}

// QueryResult is the settled (or in-flight) state of one batch query.
type QueryResult struct {
	Key    Key
	Value  any
	Err    error
	Status Status
}

// Batch runs N independent queries concurrently through the cache. Queries
// have no ordering dependency between them; each commits as it resolves. The
// aggregate view lets a consumer distinguish "nothing is available yet"
// (Loading), "everything is broken" (AllFailed, a critical failure) and "one
// section failed" (PartiallyFailed, a degraded view).
type Batch struct {
	cache   *Cache
	queries []Query

	mu      sync.Mutex
	results []QueryResult
	pending int
	done    chan struct{}
	started bool
}

// NewBatch prepares a batch over this cache.
func (c *Cache) NewBatch(queries ...Query) *Batch {
	b := &Batch{
		cache:   c,
		queries: queries,
		results: make([]QueryResult, len(queries)),
		pending: len(queries),
		done:    make(chan struct{}),
	}
	for i, q := range queries {
		b.results[i] = QueryResult{Key: q.Key, Status: StatusLoading}
	}
	return b
}

// Start launches every query concurrently. Safe to call once.
func (b *Batch) Start(ctx context.Context) *Batch {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return b
	}
	b.started = true
	if len(b.queries) == 0 {
		close(b.done)
		b.mu.Unlock()
		return b
	}
	b.mu.Unlock()

	p := pool.New()
	for i := range b.queries {
		i := i
		q := b.queries[i]
		p.Go(func() {
			value, err := b.cache.Read(ctx, q.Key, q.StaleAfter, q.Fetch)
			b.settle(i, value, err)
		})
	}
	go func() {
		p.Wait()
		close(b.done)
	}()
	return b
}

func (b *Batch) settle(i int, value any, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending--
	if err != nil {
		b.results[i] = QueryResult{Key: b.queries[i].Key, Err: err, Status: StatusError}
		return
	}
	b.results[i] = QueryResult{Key: b.queries[i].Key, Value: value, Status: StatusSuccess}
}

// Wait blocks until every query has settled.
func (b *Batch) Wait() {
	<-b.done
}

// Run starts the batch and waits for settlement.
func (b *Batch) Run(ctx context.Context) []QueryResult {
	b.Start(ctx)
	b.Wait()
	return b.Results()
}

// Results returns a snapshot of per-query state.
func (b *Batch) Results() []QueryResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]QueryResult, len(b.results))
	copy(out, b.results)
	return out
}

// Loading is true while any query is still pending.
func (b *Batch) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending > 0
}

// AllFailed is true once every query has settled with an error — the
// critical-failure case, as opposed to a partial one.
func (b *Batch) AllFailed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending > 0 || len(b.results) == 0 {
		return false
	}
	for _, r := range b.results {
		if r.Status != StatusError {
			return false
		}
	}
	return true
}

// PartiallyFailed is true once all queries settled and some, but not all,
// failed.
func (b *Batch) PartiallyFailed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending > 0 {
		return false
	}
	failed := 0
	for _, r := range b.results {
		if r.Status == StatusError {
			failed++
		}
	}
	return failed > 0 && failed < len(b.results)
}
