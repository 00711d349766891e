package memory

import "sync"

// CacheStats is a point-in-time snapshot of cache contents and lifetime
// effectiveness counters. Counters survive Clear.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Bytes     int64 `json:"bytes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// HitRate returns the fraction of lookups served from the cache.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// BoundedCache is an LRU cache over entries with both an entry-count budget
// and a byte budget. Recency is an intrusive doubly linked list over a hash
// index, so lookups, inserts, and evictions are O(1). All methods are safe
// for concurrent use.
type BoundedCache struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64

	items map[string]*cacheNode
	root  cacheNode // sentinel: root.next is most recent, root.prev is least
	bytes int64

	hits      int64
	misses    int64
	evictions int64
}

type cacheNode struct {
	key   string
	entry *Entry
	size  int64
	prev  *cacheNode
	next  *cacheNode
}

// NewBoundedCache creates a cache holding at most maxEntries entries and
// maxBytes of estimated payload. Non-positive budgets fall back to the
// package defaults.
func NewBoundedCache(maxEntries int, maxBytes int64) *BoundedCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	if maxBytes <= 0 {
		maxBytes = DefaultCacheMaxBytes
	}
	c := &BoundedCache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		items:      make(map[string]*cacheNode),
	}
	c.root.prev = &c.root
	c.root.next = &c.root
	return c
}

// Get returns the cached entry for key and marks it most recently used.
func (c *BoundedCache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.moveToFront(node)
	return node.entry, true
}

// Put inserts or replaces the entry under key, evicting least recently used
// entries until both budgets hold. When size is not positive it falls back
// to the entry's recorded size. An entry larger than the entire byte budget
// is not admitted; any stale copy under the same key is dropped so the cache
// never serves an outdated value.
func (c *BoundedCache) Put(key string, entry *Entry, size int64) {
	if size <= 0 {
		size = entry.Size
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.maxBytes {
		c.removeLocked(key)
		return
	}

	if node, ok := c.items[key]; ok {
		c.bytes += size - node.size
		node.entry = entry
		node.size = size
		c.moveToFront(node)
	} else {
		node = &cacheNode{key: key, entry: entry, size: size}
		c.items[key] = node
		c.bytes += size
		c.pushFront(node)
	}

	// The just-touched entry sits at the front and is never the one evicted.
	for (len(c.items) > c.maxEntries || c.bytes > c.maxBytes) && len(c.items) > 1 {
		c.evictOldest()
	}
}

// Remove drops key from the cache, reporting whether it was present.
// Explicit removal is not counted as an eviction.
func (c *BoundedCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(key)
}

// Clear drops every entry. Hit, miss, and eviction counters are preserved.
func (c *BoundedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*cacheNode)
	c.root.prev = &c.root
	c.root.next = &c.root
	c.bytes = 0
}

// Stats returns a snapshot of the cache counters.
func (c *BoundedCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Entries:   len(c.items),
		Bytes:     c.bytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *BoundedCache) removeLocked(key string) bool {
	node, ok := c.items[key]
	if !ok {
		return false
	}
	c.unlink(node)
	delete(c.items, key)
	c.bytes -= node.size
	return true
}

func (c *BoundedCache) evictOldest() {
	node := c.root.prev
	if node == &c.root {
		return
	}
	c.unlink(node)
	delete(c.items, node.key)
	c.bytes -= node.size
	c.evictions++
}

func (c *BoundedCache) pushFront(node *cacheNode) {
	node.prev = &c.root
	node.next = c.root.next
	node.prev.next = node
	node.next.prev = node
}

func (c *BoundedCache) unlink(node *cacheNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
	node.prev = nil
	node.next = nil
}

func (c *BoundedCache) moveToFront(node *cacheNode) {
	if c.root.next == node {
		return
	}
	c.unlink(node)
	c.pushFront(node)
}
