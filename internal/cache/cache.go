package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a thread-safe TTL cache of JSON-serialized values
type Cache struct {
	store *gocache.Cache
}

// CacheEntry is what the cache stores for each key
type CacheEntry struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"`
}

// CacheStats provides cache usage statistics
type CacheStats struct {
	TotalEntries int
	BySource     map[string]int
	OldestEntry  time.Time
	NewestEntry  time.Time
}

// NewCache creates a cache whose entries default to ttl and are swept every cleanupInterval
func NewCache(ttl, cleanupInterval time.Duration) *Cache {
	return &Cache{store: gocache.New(ttl, cleanupInterval)}
}

// Set stores data under key. A zero ttl uses the cache default.
func (c *Cache) Set(key string, data interface{}, ttl time.Duration, source string) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data for cache: %w", err)
	}

	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(key, &CacheEntry{
		Key:       key,
		Data:      jsonData,
		CreatedAt: time.Now(),
		Source:    source,
	}, ttl)
	return nil
}

// Get decodes the entry for key into result. Expired entries are misses.
func (c *Cache) Get(key string, result interface{}) (bool, error) {
	entry, found := c.entry(key)
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(entry.Data, result); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return true, nil
}

// GetWithMetadata retrieves data and the stored entry
func (c *Cache) GetWithMetadata(key string, result interface{}) (*CacheEntry, bool, error) {
	entry, found := c.entry(key)
	if !found {
		return nil, false, nil
	}
	if result != nil {
		if err := json.Unmarshal(entry.Data, result); err != nil {
			return entry, true, fmt.Errorf("failed to unmarshal cached data: %w", err)
		}
	}
	return entry, true, nil
}

func (c *Cache) entry(key string) (*CacheEntry, bool) {
	v, found := c.store.Get(key)
	if !found {
		return nil, false
	}
	entry, ok := v.(*CacheEntry)
	return entry, ok
}

// Delete removes an entry from cache
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// DeletePrefix removes every entry whose key starts with prefix
func (c *Cache) DeletePrefix(prefix string) int {
	removed := 0
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries from cache
func (c *Cache) Clear() {
	c.store.Flush()
}

// Keys returns all unexpired cache keys
func (c *Cache) Keys() []string {
	items := c.store.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns cache statistics over unexpired entries
func (c *Cache) Stats() CacheStats {
	stats := CacheStats{BySource: make(map[string]int)}

	for _, item := range c.store.Items() {
		entry, ok := item.Object.(*CacheEntry)
		if !ok {
			continue
		}
		stats.TotalEntries++
		stats.BySource[entry.Source]++

		if stats.OldestEntry.IsZero() || entry.CreatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.NewestEntry) {
			stats.NewestEntry = entry.CreatedAt
		}
	}

	return stats
}

// Key builds a namespaced cache key from normalized parts
func Key(namespace string, parts ...string) string {
	normalized := make([]string, 0, len(parts)+1)
	normalized = append(normalized, namespace)
	for _, p := range parts {
		normalized = append(normalized, strings.ToLower(strings.Join(strings.Fields(p), " ")))
	}
	return strings.Join(normalized, ":")
}
