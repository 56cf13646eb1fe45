package main

import (
	"sync"
	"time"
)

// MetadataCache is a small TTL cache for template and SDK metadata.
// `dotnet new list` and `dotnet --info` are slow (they probe the SDK and
// template hives) but their output rarely changes, so repeat callers get
// the cached text until the TTL lapses.
type MetadataCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]metaEntry
}

type metaEntry struct {
	value     string
	fetchedAt time.Time
}

// NewMetadataCache creates a cache whose entries expire after ttl.
func NewMetadataCache(ttl time.Duration) *MetadataCache {
	return &MetadataCache{
		ttl:     ttl,
		entries: make(map[string]metaEntry),
	}
}

// Global metadata cache instance
var metadata = NewMetadataCache(15 * time.Minute)

// SetTTL changes the expiry applied on subsequent lookups.
func (c *MetadataCache) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Get returns the cached value for key, calling fetch on a miss or after
// expiry. The second return reports whether the value came from the cache.
// Fetch runs under the cache lock: metadata commands are rare and racing
// two identical dotnet invocations is worse than briefly serializing.
func (c *MetadataCache) Get(key string, fetch func() (string, error)) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.value, true, nil
	}

	value, err := fetch()
	if err != nil {
		return "", false, err
	}
	c.entries[key] = metaEntry{value: value, fetchedAt: time.Now()}
	return value, false, nil
}

// Invalidate drops every cached entry. Config reloads call this so cached
// output never outlives the dotnet install it came from.
func (c *MetadataCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]metaEntry)
}
