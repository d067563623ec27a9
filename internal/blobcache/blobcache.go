// Package blobcache holds recently uploaded document bytes in memory so a
// verification that follows an upload does not have to round-trip through
// object storage, and so verification still works when object storage is
// not configured at all.
package blobcache

import (
	"sync"
	"time"
)

// DefaultTTL is how long an entry stays retrievable.
const DefaultTTL = 15 * time.Minute

// defaultMaxEntries bounds memory use; with the 10 MiB upload cap the cache
// tops out around 2.5 GiB in the worst case, far less in practice.
const defaultMaxEntries = 256

type entry struct {
	data     []byte
	mimeType string
	storedAt time.Time
}

// Cache is a bounded TTL cache of document payloads keyed by document id.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	max     int
	ttl     time.Duration
}

// New returns a cache with default bounds.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		max:     defaultMaxEntries,
		ttl:     DefaultTTL,
	}
}

// Put stores the payload for a document id, evicting the oldest entry when
// the cache is full.
func (c *Cache) Put(id string, data []byte, mimeType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.max {
		var oldestID string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestID == "" || e.storedAt.Before(oldest) {
				oldestID, oldest = k, e.storedAt
			}
		}
		delete(c.entries, oldestID)
	}
	c.entries[id] = entry{data: data, mimeType: mimeType, storedAt: time.Now()}
}

// Get returns the payload and mime type for a document id, or ok=false when
// the entry is absent or expired.
func (c *Cache) Get(id string) (data []byte, mimeType string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[id]
	if !found {
		return nil, "", false
	}
	if time.Since(e.storedAt) > c.ttl {
		delete(c.entries, id)
		return nil, "", false
	}
	return e.data, e.mimeType, true
}

// Delete drops the entry for a document id.
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}
