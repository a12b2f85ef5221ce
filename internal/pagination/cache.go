package pagination

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const numShards = 16

// DefaultCacheSize bounds the parse cache when no size is configured.
const DefaultCacheSize = 10000

// Cache is an LRU keyed by string, split into shards picked by xxhash so
// concurrent lookups of different statements rarely share a lock.
type Cache[V any] struct {
	shards    [numShards]*lru.Cache[string, V]
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Evictions int64
}

// NewCache returns a cache holding about size entries. Non-positive sizes
// use DefaultCacheSize.
func NewCache[V any](size int) *Cache[V] {
	if size <= 0 {
		size = DefaultCacheSize
	}
	perShard := (size + numShards - 1) / numShards
	c := &Cache[V]{}
	onEvict := func(string, V) { c.evictions.Add(1) }
	for i := range c.shards {
		// perShard is at least one, the only case NewWithEvict rejects.
		c.shards[i], _ = lru.NewWithEvict[string, V](perShard, onEvict)
	}
	return c
}

func (c *Cache[V]) shard(key string) *lru.Cache[string, V] {
	return c.shards[xxhash.Sum64String(key)%numShards]
}

// Get returns the value cached under key and marks it recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.shard(key).Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put stores value under key, evicting the shard's least recently used
// entry when it is full.
func (c *Cache[V]) Put(key string, value V) {
	c.shard(key).Add(key, value)
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	n := 0
	for _, sh := range c.shards {
		n += sh.Len()
	}
	return n
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() CacheStats {
	return CacheStats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
