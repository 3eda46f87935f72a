// Package cache provides the pluggable read-through cache sitting in front
// of user and template lookups during acceptance.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Cache is the polymorphic capability every backend implements.
type Cache interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NoCache is the "none" variant: every get misses.
type NoCache struct{}

func NewNoCache() *NoCache { return &NoCache{} }

func (NoCache) Get(ctx context.Context, key string) (any, bool, error) { return nil, false, nil }
func (NoCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error { return nil }
func (NoCache) Delete(ctx context.Context, key string) error                           { return nil }

type lruEntry struct {
	key       string
	value     any
	expiresAt time.Time
}

// LRUCache is a bounded in-process cache with lazy TTL expiry on read and
// least-recently-used eviction once the size bound is exceeded. No library
// in the reference pack provides this, so it is hand-rolled on
// container/list, matching the scale of the original's OrderedDict-based
// implementation.
type LRUCache struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	order    *list.List
}

// NewLRUCache builds an LRU+TTL cache bounded at maxSize entries (defaults
// to 2048 when maxSize <= 0).
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 2048
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (c *LRUCache) Get(ctx context.Context, key string) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	entry := elem.Value.(*lruEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		return nil, false, nil
	}

	c.order.MoveToFront(elem)
	return entry.value, true, nil
}

func (c *LRUCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl < 0 {
		ttl = 0
	}
	expiresAt := time.Now().Add(ttl)

	if elem, ok := c.items[key]; ok {
		elem.Value.(*lruEntry).value = value
		elem.Value.(*lruEntry).expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return nil
	}

	elem := c.order.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruEntry).key)
	}

	return nil
}

func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
	return nil
}

// New selects a cache backend by name from the config-driven none/lru/remote
// switch. remote may be nil when backend is not "remote".
func New(backend string, lruSize int, remote Cache) Cache {
	switch backend {
	case "lru":
		return NewLRUCache(lruSize)
	case "remote":
		if remote != nil {
			return remote
		}
		return NewNoCache()
	default:
		return NewNoCache()
	}
}
