package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoCache_AlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := NewNoCache()

	assert.NoError(t, c.Set(ctx, "key", "value", time.Minute))

	_, ok, err := c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestLRUCache_SetAndGet(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2)

	assert.NoError(t, c.Set(ctx, "a", "value-a", time.Minute))

	value, ok, err := c.Get(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value-a", value)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2)

	c.Set(ctx, "a", 1, time.Minute)
	c.Set(ctx, "b", 2, time.Minute)

	// Touch "a" so "b" becomes the least recently used entry.
	c.Get(ctx, "a")
	c.Set(ctx, "c", 3, time.Minute)

	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok, "b should have been evicted")

	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok, "a should still be present")

	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok, "c should be present")
}

func TestLRUCache_ExpiresByTTL(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	assert.NoError(t, c.Set(ctx, "key", "value", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestLRUCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	c.Set(ctx, "key", "value", time.Minute)
	assert.NoError(t, c.Delete(ctx, "key"))

	_, ok, _ := c.Get(ctx, "key")
	assert.False(t, ok)
}

func TestNew_SelectsBackend(t *testing.T) {
	assert.IsType(t, &NoCache{}, New("none", 0, nil))
	assert.IsType(t, &LRUCache{}, New("lru", 16, nil))
	assert.IsType(t, &NoCache{}, New("remote", 0, nil))

	remote := NewLRUCache(4)
	assert.Same(t, remote, New("remote", 0, remote))
}
