package variability

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PairKey identifies an unordered variant pair by canonical variant keys.
// Use MakePairKey so (a,b) and (b,a) map to the same key.
type PairKey struct {
	A, B string
}

// MakePairKey orders the two keys.
func MakePairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// DistanceCache memoizes edit distances between variant pairs.
// Caches are owned explicitly by an Aggregator (or one of its workers);
// there is no package-level cache.
type DistanceCache interface {
	Get(key PairKey) (int, bool)
	Put(key PairKey, distance int)
	Stats() CacheStats
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// HitRate returns hits / lookups, 0 when there were no lookups.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// NewDistanceCache returns an unbounded map cache when size is 0, an LRU
// bounded to size entries when size > 0, and nil (no memoization) when
// size < 0. The map cache is not safe for concurrent use; see Locked.
func NewDistanceCache(size int) DistanceCache {
	switch {
	case size < 0:
		return nil
	case size == 0:
		return &mapCache{entries: make(map[PairKey]int)}
	default:
		c, err := lru.New[PairKey, int](size)
		if err != nil {
			// lru.New only fails for size <= 0.
			return &mapCache{entries: make(map[PairKey]int)}
		}
		return &lruCache{cache: c}
	}
}

// mapCache is an unbounded, single-goroutine cache.
type mapCache struct {
	entries map[PairKey]int
	hits    uint64
	misses  uint64
}

func (c *mapCache) Get(key PairKey) (int, bool) {
	d, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return d, ok
}

func (c *mapCache) Put(key PairKey, distance int) {
	c.entries[key] = distance
}

func (c *mapCache) Stats() CacheStats {
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// lruCache is a bounded cache. The underlying LRU is already synchronized.
type lruCache struct {
	cache  *lru.Cache[PairKey, int]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func (c *lruCache) Get(key PairKey) (int, bool) {
	d, ok := c.cache.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return d, ok
}

func (c *lruCache) Put(key PairKey, distance int) {
	c.cache.Add(key, distance)
}

func (c *lruCache) Stats() CacheStats {
	return CacheStats{Entries: c.cache.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Locked makes any cache safe for concurrent use. Bounded LRU caches are
// returned unchanged.
func Locked(c DistanceCache) DistanceCache {
	switch c.(type) {
	case nil:
		return nil
	case *lruCache, *lockedCache:
		return c
	}
	return &lockedCache{inner: c}
}

type lockedCache struct {
	mu    sync.Mutex
	inner DistanceCache
}

func (c *lockedCache) Get(key PairKey) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(key)
}

func (c *lockedCache) Put(key PairKey, distance int) {
	c.mu.Lock()
	c.inner.Put(key, distance)
	c.mu.Unlock()
}

func (c *lockedCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Stats()
}
