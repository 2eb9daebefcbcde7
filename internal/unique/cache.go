package unique

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// MappingCache caches per-(site, template) class mappings so repeated
// render calls inside one orchestration run do not recompute them. Entries
// are keyed by the stylesheet hash and become stale when the template's
// CSS changes.
type MappingCache interface {
	Get(ctx context.Context, siteID, templateID int, cssHash string) (map[string]string, bool)
	Put(ctx context.Context, siteID, templateID int, cssHash string, mapping map[string]string)
}

type cacheEntry struct {
	CSSHash string            `json:"cssHash"`
	Mapping map[string]string `json:"mapping"`
}

func cacheKey(siteID, templateID int) string {
	return fmt.Sprintf("classmap:%d:%d", siteID, templateID)
}

// RedisMappingCache stores mappings in Redis with a TTL.
type RedisMappingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisMappingCache creates a Redis-backed mapping cache
func NewRedisMappingCache(rdb *redis.Client, ttl time.Duration) *RedisMappingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisMappingCache{rdb: rdb, ttl: ttl}
}

// Get implements MappingCache
func (c *RedisMappingCache) Get(ctx context.Context, siteID, templateID int, cssHash string) (map[string]string, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(siteID, templateID)).Result()
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false
	}
	if entry.CSSHash != cssHash {
		return nil, false
	}
	return entry.Mapping, true
}

// Put implements MappingCache
func (c *RedisMappingCache) Put(ctx context.Context, siteID, templateID int, cssHash string, mapping map[string]string) {
	raw, err := json.Marshal(cacheEntry{CSSHash: cssHash, Mapping: mapping})
	if err != nil {
		return
	}
	// Best-effort: a cache write failure only costs a recompute
	_ = c.rdb.Set(ctx, cacheKey(siteID, templateID), raw, c.ttl).Err()
}

// MemoryMappingCache is the in-process fallback used when Redis is not
// configured, and in tests.
type MemoryMappingCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewMemoryMappingCache creates an in-memory mapping cache
func NewMemoryMappingCache() *MemoryMappingCache {
	return &MemoryMappingCache{entries: map[string]cacheEntry{}}
}

// Get implements MappingCache
func (c *MemoryMappingCache) Get(_ context.Context, siteID, templateID int, cssHash string) (map[string]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[cacheKey(siteID, templateID)]
	if !ok || entry.CSSHash != cssHash {
		return nil, false
	}
	return entry.Mapping, true
}

// Put implements MappingCache
func (c *MemoryMappingCache) Put(_ context.Context, siteID, templateID int, cssHash string, mapping map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(siteID, templateID)] = cacheEntry{CSSHash: cssHash, Mapping: mapping}
}
