// Package compiledcache is a bounded, URI-keyed map from schema URI to a
// shared, already-parsed engine.CompiledSchema, with single-flight
// compilation so concurrent validators racing to use the same schema build
// it once. Failed builds are fanned out to every waiter but never cached.
package compiledcache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/theoremus-urban-solutions/xsd-pipeline/engine"
)

// Builder produces a compiled schema for uri on a cache miss.
type Builder func(uri string) (*engine.CompiledSchema, error)

// Cache is a bounded, single-flighted map from schema URI to compiled schema.
// A failed build is never cached: every concurrent waiter on that build
// receives the same error, but the next call to GetOrBuild for that URI
// starts a fresh build rather than replaying the cached failure.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*engine.CompiledSchema
	group   singleflight.Group
	maxSize int
	order   []string // insertion order, for simple bound enforcement
}

// New creates a Cache that holds at most maxSize compiled schemas. maxSize
// <= 0 means unbounded.
func New(maxSize int) *Cache {
	return &Cache{
		entries: make(map[string]*engine.CompiledSchema),
		maxSize: maxSize,
	}
}

// GetOrBuild returns the cached compiled schema for uri, building it via
// builder on a miss. Concurrent calls for the same uri collapse into a
// single builder invocation (single-flight); all waiters receive the same
// result. A successful build is cached and its reference count bumped once
// per caller; a failed build is not cached, and a later call will retry.
func (c *Cache) GetOrBuild(uri string, builder Builder) (*engine.CompiledSchema, error) {
	c.mu.RLock()
	if cs, ok := c.entries[uri]; ok {
		cs.Acquire()
		c.mu.RUnlock()
		return cs, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.group.Do(uri, func() (interface{}, error) {
		// A caller that lost the fast-path check may enter here after a
		// prior flight for the same uri already completed and installed an
		// entry; re-check under the lock before building again.
		c.mu.RLock()
		cs, ok := c.entries[uri]
		c.mu.RUnlock()
		if ok {
			return cs, nil
		}

		cs, buildErr := builder(uri)
		if buildErr != nil {
			return nil, buildErr
		}
		c.put(uri, cs)
		return cs, nil
	})
	if err != nil {
		return nil, err
	}

	cs := result.(*engine.CompiledSchema)
	// The initial reference from the build belongs to the cache entry, so
	// every caller, including the one that ran the builder, takes its own.
	cs.Acquire()
	return cs, nil
}

func (c *Cache) put(uri string, cs *engine.CompiledSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[uri]; ok {
		// Another caller raced and inserted first; keep the existing entry
		// and release the just-built duplicate instead of leaking it.
		existing.Acquire()
		cs.Release()
		return
	}

	c.entries[uri] = cs
	c.order = append(c.order, uri)

	if c.maxSize > 0 && len(c.order) > c.maxSize {
		evictKey := c.order[0]
		c.order = c.order[1:]
		if evicted, ok := c.entries[evictKey]; ok {
			delete(c.entries, evictKey)
			evicted.Release()
		}
	}
}

// Invalidate removes uri from the cache, releasing the cache's own
// reference to its compiled schema.
func (c *Cache) Invalidate(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cs, ok := c.entries[uri]; ok {
		delete(c.entries, uri)
		for i, k := range c.order {
			if k == uri {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		cs.Release()
	}
}

// Len returns the number of distinct schemas currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
