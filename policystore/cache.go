// Cache wraps a DocumentLoader with TTL-based in-memory caching, so
// repeated policy lookups inside a single sensitive-operation pipeline
// don't round-trip to SSM.
package policystore

import (
	"context"
	"sync"
	"time"
)

// DocumentLoader loads a Document from a named source.
type DocumentLoader interface {
	Load(ctx context.Context, parameterName string) (*Document, error)
}

type cacheEntry struct {
	doc    *Document
	expiry time.Time
}

// CachedLoader wraps a DocumentLoader with in-memory TTL-based caching.
// Safe for concurrent use.
type CachedLoader struct {
	loader DocumentLoader
	mu     sync.RWMutex
	cache  map[string]*cacheEntry
	ttl    time.Duration
}

// NewCachedLoader wraps loader, caching results for ttl.
func NewCachedLoader(loader DocumentLoader, ttl time.Duration) *CachedLoader {
	return &CachedLoader{loader: loader, cache: make(map[string]*cacheEntry), ttl: ttl}
}

// Load returns the cached Document for parameterName if still fresh,
// otherwise fetches, caches, and returns a fresh one. Errors are never
// cached.
func (c *CachedLoader) Load(ctx context.Context, parameterName string) (*Document, error) {
	c.mu.RLock()
	if entry, ok := c.cache[parameterName]; ok && time.Now().Before(entry.expiry) {
		c.mu.RUnlock()
		return entry.doc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.cache[parameterName]; ok && time.Now().Before(entry.expiry) {
		return entry.doc, nil
	}

	doc, err := c.loader.Load(ctx, parameterName)
	if err != nil {
		return nil, err
	}
	c.cache[parameterName] = &cacheEntry{doc: doc, expiry: time.Now().Add(c.ttl)}
	return doc, nil
}

// Invalidate drops any cached entry for parameterName, forcing the next
// Load to go to the underlying loader.
func (c *CachedLoader) Invalidate(parameterName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, parameterName)
}
