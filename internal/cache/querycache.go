// Package cache implements the query result cache: LRU eviction with
// per-entry TTL, collection-scoped invalidation, and an optional
// best-effort persistence mirror.
package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// Persister mirrors cache entries to a durable key-value store. Load is
// called once at construction; writes are fire-and-forget and must never
// block Put.
type Persister interface {
	Load() (map[string]PersistedEntry, error)
	Save(key string, entry PersistedEntry)
	Delete(key string)
}

// PersistedEntry is the durable representation of a cache entry.
type PersistedEntry struct {
	Collection string
	Context    *ragtypes.PipelineContext
	ExpiresAt  time.Time
}

// Stats is a snapshot of the cache's running counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	MaxSize   int
}

// HitRate returns Hits/(Hits+Misses), or 0 when both are 0.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	collection string
	context    *ragtypes.PipelineContext
	expiresAt  time.Time
}

// QueryCache is the LRU+TTL query result cache.
type QueryCache struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, *entry]
	ttl       time.Duration
	maxSize   int
	persister Persister

	hits      int64
	misses    int64
	// evictions is bumped from the lru.Cache eviction callback, which the
	// hashicorp/golang-lru implementation invokes synchronously from
	// inside Add/Remove/Purge/Resize — all of which QueryCache's own
	// methods call while already holding mu. It must stay lock-free
	// (atomic, not mu-guarded) or that reentrant call deadlocks.
	evictions int64
}

// New builds a QueryCache with the given max size and TTL. persister may
// be nil to disable persistence.
func New(maxSize int, ttl time.Duration, persister Persister) *QueryCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	qc := &QueryCache{ttl: ttl, maxSize: maxSize, persister: persister}

	c, _ := lru.NewWithEvict[string, *entry](maxSize, func(key string, _ *entry) {
		atomic.AddInt64(&qc.evictions, 1)
		if qc.persister != nil {
			qc.persister.Delete(key)
		}
	})
	qc.lru = c

	if persister != nil {
		if loaded, err := persister.Load(); err == nil {
			now := time.Now()
			for key, p := range loaded {
				if p.ExpiresAt.Before(now) {
					continue
				}
				c.Add(key, &entry{collection: p.Collection, context: p.Context, expiresAt: p.ExpiresAt})
			}
		}
	}

	return qc
}

// Key builds the cache key from a collection and query, per spec.md
// §4.4's keying rule: collection + ":" + lowercase(trim(query)).
func Key(collection, query string) string {
	return collection + ":" + strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached PipelineContext for (query, collection), or
// (nil, false) on a miss or expiry. A hit moves the entry to the MRU end.
func (c *QueryCache) Get(query, collection string) (*ragtypes.PipelineContext, bool) {
	key := Key(collection, query)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.context, true
}

// Put inserts or replaces the cached context for (query, collection).
func (c *QueryCache) Put(query, collection string, ctxVal *ragtypes.PipelineContext) {
	key := Key(collection, query)
	expiresAt := time.Now().Add(c.ttl)
	e := &entry{collection: collection, context: ctxVal, expiresAt: expiresAt}

	c.mu.Lock()
	c.lru.Add(key, e)
	c.mu.Unlock()

	if c.persister != nil {
		// Best-effort: never block Put on persistence I/O.
		go c.persister.Save(key, PersistedEntry{Collection: collection, Context: ctxVal, ExpiresAt: expiresAt})
	}
}

// InvalidateCollection drops every entry for the named collection,
// returning the count removed. Callers must invoke this on any mutation
// of that collection (indexing, deletion, clearing).
func (c *QueryCache) InvalidateCollection(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok || e.collection != name {
			continue
		}
		c.lru.Remove(key)
		count++
	}
	return count
}

// InvalidateQuery drops the single entry for (query, collection),
// reporting whether anything was removed.
func (c *QueryCache) InvalidateQuery(query, collection string) bool {
	key := Key(collection, query)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Clear removes every entry.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// CleanupExpired scans and removes every expired entry, returning the
// count removed.
func (c *QueryCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	count := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok || !now.After(e.expiresAt) {
			continue
		}
		c.lru.Remove(key)
		count++
	}
	return count
}

// Stats returns a snapshot of the cache's running counters.
func (c *QueryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      c.lru.Len(),
		MaxSize:   c.maxSize,
	}
}
