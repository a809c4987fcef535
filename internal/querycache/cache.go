// Package querycache implements the shared request cache: fingerprinted keys,
// stale-while-revalidate reads with per-key fetch de-duplication, predicate
// invalidation, and inactivity-based eviction. One Cache instance is built at
// startup and passed by reference to every consumer; there is no package
// global.
package querycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Status describes the lifecycle of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// FetchFunc produces the value for a key on miss or refresh.
type FetchFunc func(ctx context.Context) (any, error)

// DefaultEvictAfter is the inactivity window after which an entry may be
// purged even if it was never re-requested.
const DefaultEvictAfter = 24 * time.Hour

// Entry is a read-only snapshot of a cached slot.
type Entry struct {
	Key         Key
	Value       any
	HasValue    bool
	Err         error
	Status      Status
	FetchedAt   time.Time
	StaleAfter  time.Duration
	Invalidated bool
}

// IsStale reports whether a read at the given instant must trigger a refetch.
// Errored and explicitly invalidated entries are always stale.
func (e Entry) IsStale(now time.Time) bool {
	if e.Status == StatusError || e.Invalidated {
		return true
	}
	return now.Sub(e.FetchedAt) > e.StaleAfter
}

type entry struct {
	key         Key
	value       any
	hasValue    bool
	err         error
	status      Status
	fetchedAt   time.Time
	staleAfter  time.Duration
	lastRead    time.Time
	invalidated bool
	refreshing  bool

	// generation is bumped by invalidation; a fetch only commits its result
	// if the generation it was issued under is still current. This is the
	// superseded-response guard: last-issued wins, stale responses are
	// dropped on the floor instead of overwriting newer state.
	generation uint64
}

// Cache is a key→result cache with staleness and eviction windows. Reads of
// stale entries return the previous value immediately and refresh in the
// background; concurrent fetches for one key are coalesced so the upstream
// sees at most one in-flight request per key.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	flight  singleflight.Group

	evictAfter time.Duration
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a cache and starts its eviction loop.
func New(evictAfter time.Duration) *Cache {
	if evictAfter <= 0 {
		evictAfter = DefaultEvictAfter
	}
	c := &Cache{
		entries:    make(map[string]*entry),
		evictAfter: evictAfter,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go c.gcLoop()
	return c
}

// Close stops the eviction loop.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Read returns the best available value for the key. A fresh entry is served
// as-is. A stale entry is served immediately while one background refetch is
// triggered (stale-while-revalidate). A missing entry blocks the caller until
// the fetch resolves. A failed fetch never clears a previously cached value.
func (c *Cache) Read(ctx context.Context, key Key, staleAfter time.Duration, fetch FetchFunc) (any, error) {
	fp := key.Fingerprint()

	c.mu.Lock()
	e, ok := c.entries[fp]
	if !ok {
		e = &entry{key: key, status: StatusIdle}
		c.entries[fp] = e
	}
	now := c.now()
	e.lastRead = now
	e.staleAfter = staleAfter

	if e.hasValue && e.status == StatusSuccess && !e.invalidated && now.Sub(e.fetchedAt) <= staleAfter {
		value := e.value
		c.mu.Unlock()
		return value, nil
	}

	gen := e.generation
	if e.hasValue {
		value := e.value
		spawn := !e.refreshing
		e.refreshing = true
		e.status = StatusLoading
		c.mu.Unlock()
		// Serve the old value now, refresh behind the reader's back — one
		// refresh total, not one per concurrent reader. The refresh must
		// survive the caller's request context.
		if spawn {
			go c.fetchAndCommit(context.WithoutCancel(ctx), key, gen, fetch)
		}
		return value, nil
	}

	e.status = StatusLoading
	c.mu.Unlock()
	return c.fetchAndCommit(ctx, key, gen, fetch)
}

// fetchAndCommit runs the fetch through the singleflight group and commits
// the outcome unless the entry was invalidated (or evicted) in the meantime.
func (c *Cache) fetchAndCommit(ctx context.Context, key Key, gen uint64, fetch FetchFunc) (any, error) {
	fp := key.Fingerprint()
	value, err, _ := c.flight.Do(fp, func() (any, error) {
		return fetch(ctx)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fp]
	if ok {
		e.refreshing = false
	}
	if !ok || e.generation != gen {
		// Superseded: the result still flows back to waiting callers but is
		// not committed.
		return value, err
	}
	if err != nil {
		e.err = err
		e.status = StatusError
		return value, err
	}
	e.value = value
	e.hasValue = true
	e.err = nil
	e.status = StatusSuccess
	e.fetchedAt = c.now()
	e.invalidated = false
	return value, nil
}

// Set stores a value directly, bypassing any fetch. Used to seed entries.
func (c *Cache) Set(key Key, value any, staleAfter time.Duration) {
	fp := key.Fingerprint()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fp]
	if !ok {
		e = &entry{key: key}
		c.entries[fp] = e
	}
	now := c.now()
	e.value = value
	e.hasValue = true
	e.err = nil
	e.status = StatusSuccess
	e.fetchedAt = now
	e.lastRead = now
	e.staleAfter = staleAfter
	e.invalidated = false
}

// Get returns a snapshot of the entry for the key, if present.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.Fingerprint()]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Key:         e.key,
		Value:       e.value,
		HasValue:    e.hasValue,
		Err:         e.err,
		Status:      e.status,
		FetchedAt:   e.fetchedAt,
		StaleAfter:  e.staleAfter,
		Invalidated: e.invalidated,
	}, true
}

// Invalidate marks every entry matching the predicate as needing a refetch on
// next read. Cached data is retained so consumers keep rendering the previous
// value instead of flashing empty. Results of fetches already in flight for
// the matched keys are discarded. Returns the number of entries touched.
func (c *Cache) Invalidate(match Predicate) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for fp, e := range c.entries {
		if !match(e.key) {
			continue
		}
		e.invalidated = true
		e.generation++
		c.flight.Forget(fp)
		count++
	}
	return count
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) gcLoop() {
	interval := c.evictAfter / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictIdle(c.now())
		}
	}
}

// evictIdle purges entries that have not been read within the eviction
// window.
func (c *Cache) evictIdle(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for fp, e := range c.entries {
		if now.Sub(e.lastRead) > c.evictAfter {
			delete(c.entries, fp)
			evicted++
		}
	}
	return evicted
}

// Read is the typed wrapper around Cache.Read.
func Read[T any](ctx context.Context, c *Cache, key Key, staleAfter time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	value, err := c.Read(ctx, key, staleAfter, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if value == nil {
		var zero T
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("querycache: entry %s holds %T", key, value)
	}
	return typed, err
}
