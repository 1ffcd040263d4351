package cache

import (
	"context"
	"sync"
	"time"

	"github.com/example/blog-platform/services/blog/internal/store"
)

type cacheItem struct {
	comments  []store.Comment
	expiresAt time.Time
}

// TTLCache is an in-process Pages with per-entry expiry.
type TTLCache struct {
	mu    sync.RWMutex
	items map[PageKey]cacheItem
	gens  map[store.PostID]uint64
	ttl   time.Duration
	now   func() time.Time
}

// NewTTLCache creates a TTLCache. A non-positive ttl means 60s.
func NewTTLCache(ttl time.Duration) *TTLCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &TTLCache{
		items: make(map[PageKey]cacheItem),
		gens:  make(map[store.PostID]uint64),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *TTLCache) Get(_ context.Context, key PageKey) ([]store.Comment, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, ok2 := c.items[key]; ok2 && c.now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return cloneComments(it.comments), true
}

func (c *TTLCache) Generation(_ context.Context, postID store.PostID) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[postID]
}

func (c *TTLCache) Put(_ context.Context, key PageKey, gen uint64, comments []store.Comment) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key.PostID] != gen {
		return false
	}
	c.items[key] = cacheItem{comments: cloneComments(comments), expiresAt: c.now().Add(c.ttl)}
	return true
}

func (c *TTLCache) Invalidate(_ context.Context, postID store.PostID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[postID]++
	match := ForPost(postID)
	n := 0
	for k := range c.items {
		if match(k) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
