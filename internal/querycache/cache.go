// Package querycache is the client-side cache of server responses.
//
// Entries are keyed by hierarchical keys such as ["projects", "p-100",
// "budget"], stay fresh for a stale time, and are fetched at most once at a
// time per key. A load runs for as long as someone waits on it: when the last
// waiting caller gives up, the load's context is cancelled. Purge drops
// everything and guarantees that fetches started before it never write their
// results back.
package querycache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"procura/internal/platform/metrics"
)

const defaultStaleTime = 30 * time.Second

// Key identifies a cached response.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "/")
}

// HasPrefix reports whether k starts with every segment of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Fetcher loads the value for a key. A nil value is returned to the caller
// but never cached.
type Fetcher func(ctx context.Context) (any, error)

// call is one in-flight load shared by every Fetch waiting on it.
type call struct {
	done    chan struct{}
	val     any
	err     error
	waiters int
	cancel  context.CancelFunc
}

type entry struct {
	key      Key
	value    any
	storedAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	generation uint64
	staleTime  time.Duration
	calls      map[string]*call
	now        func() time.Time
	metrics    *metrics.Metrics
}

type Option func(*Cache)

// WithStaleTime sets how long entries are served without refetching.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.staleTime = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[string]*entry),
		calls:     make(map[string]*call),
		staleTime: defaultStaleTime,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StaleTime returns the freshness window.
func (c *Cache) StaleTime() time.Duration {
	return c.staleTime
}

// Get returns the value stored under key if it is still fresh.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.freshLocked(key.String())
}

func (c *Cache) freshLocked(id string) (any, bool) {
	e, ok := c.entries[id]
	if !ok || c.now().Sub(e.storedAt) >= c.staleTime {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous value. A nil value
// removes the entry.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *Cache) setLocked(key Key, value any) {
	id := key.String()
	if value == nil {
		delete(c.entries, id)
	} else {
		c.entries[id] = &entry{key: append(Key(nil), key...), value: value, storedAt: c.now()}
	}
	c.metrics.SetCacheEntries(len(c.entries))
}

// Fetch returns the fresh value under key or loads it with fetch.
// Concurrent Fetch calls for one key share a single load. The load keeps the
// first caller's context values but is cancelled only once every caller
// waiting on it has gone away.
func (c *Cache) Fetch(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	id := key.String()

	c.mu.Lock()
	if value, ok := c.freshLocked(id); ok {
		c.mu.Unlock()
		c.metrics.ObserveCacheLookup(true)
		return value, nil
	}
	// Flights are scoped to a generation so a fetch issued after Purge never
	// joins one that started before it.
	generation := c.generation
	flight := id + "#" + strconv.FormatUint(generation, 10)
	cl, ok := c.calls[flight]
	if !ok {
		loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		cl = &call{done: make(chan struct{}), cancel: cancel}
		c.calls[flight] = cl
		go c.load(loadCtx, flight, generation, key, cl, fetch)
	}
	cl.waiters++
	c.mu.Unlock()
	c.metrics.ObserveCacheLookup(false)

	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-ctx.Done():
		c.leave(flight, cl)
		return nil, ctx.Err()
	}
}

// load runs fetch and publishes its result to every waiter.
func (c *Cache) load(ctx context.Context, flight string, generation uint64, key Key, cl *call, fetch Fetcher) {
	defer cl.cancel()
	v, err := fetch(ctx)

	c.mu.Lock()
	if c.calls[flight] == cl {
		delete(c.calls, flight)
	}
	if err == nil && v != nil && c.generation == generation {
		c.setLocked(key, v)
	}
	cl.val, cl.err = v, err
	c.mu.Unlock()
	close(cl.done)
}

// leave drops one waiter from cl and cancels the load when none remain.
// An abandoned flight is unlinked at once so later callers start afresh.
func (c *Cache) leave(flight string, cl *call) {
	c.mu.Lock()
	cl.waiters--
	abandoned := cl.waiters == 0
	if abandoned && c.calls[flight] == cl {
		delete(c.calls, flight)
	}
	c.mu.Unlock()
	if abandoned {
		cl.cancel()
	}
}

// Invalidate removes every entry whose key starts with prefix. An empty
// prefix removes everything but, unlike Purge, lets in-flight fetches land.
func (c *Cache) Invalidate(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, id)
		}
	}
	c.metrics.SetCacheEntries(len(c.entries))
}

// Purge removes all entries and discards the results of in-flight fetches.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.generation++
	c.metrics.SetCacheEntries(0)
}

// Len returns the number of stored entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
