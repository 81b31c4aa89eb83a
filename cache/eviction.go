package cache

import (
	"context"

	grouplru "github.com/golang/groupcache/lru"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEvictionSize is the number of keys an eviction decorator tracks
// when no size is configured.
const DefaultEvictionSize = 1024

// LRU bounds its delegate to the most recently used keys. Reads count as use.
type LRU struct {
	delegate Cache
	size     int
	keys     *lru.Cache[string, *CacheKey]
}

// NewLRU wraps delegate with least-recently-used eviction.
func NewLRU(delegate Cache, size int) (*LRU, error) {
	if size <= 0 {
		size = DefaultEvictionSize
	}
	keys, err := lru.New[string, *CacheKey](size)
	if err != nil {
		return nil, err
	}
	return &LRU{delegate: delegate, size: size, keys: keys}, nil
}

func (c *LRU) ID() string { return c.delegate.ID() }

func (c *LRU) Get(ctx context.Context, key *CacheKey) (any, error) {
	c.keys.Get(key.String())
	return c.delegate.Get(ctx, key)
}

func (c *LRU) Put(ctx context.Context, key *CacheKey, value any) error {
	if err := c.delegate.Put(ctx, key, value); err != nil {
		return err
	}
	return c.cycle(ctx, key)
}

// cycle records key as most recent and drops the eldest key from the
// delegate once the bound is exceeded.
func (c *LRU) cycle(ctx context.Context, key *CacheKey) error {
	s := key.String()
	if c.keys.Contains(s) || c.keys.Len() < c.size {
		c.keys.Add(s, key)
		return nil
	}

	_, eldest, ok := c.keys.GetOldest()
	c.keys.Add(s, key)
	if !ok {
		return nil
	}
	return c.delegate.Remove(ctx, eldest)
}

func (c *LRU) Remove(ctx context.Context, key *CacheKey) error {
	c.keys.Remove(key.String())
	return c.delegate.Remove(ctx, key)
}

func (c *LRU) Clear(ctx context.Context) error {
	c.keys.Purge()
	return c.delegate.Clear(ctx)
}

func (c *LRU) Size() int { return c.delegate.Size() }

// FIFO bounds its delegate to the most recently inserted keys. Reads do not
// affect eviction order.
type FIFO struct {
	delegate Cache
	queue    *grouplru.Cache
	present  map[string]struct{}
	evicted  []*CacheKey
}

// NewFIFO wraps delegate with first-in-first-out eviction.
func NewFIFO(delegate Cache, size int) *FIFO {
	if size <= 0 {
		size = DefaultEvictionSize
	}
	c := &FIFO{
		delegate: delegate,
		queue:    grouplru.New(size),
		present:  make(map[string]struct{}, size),
	}
	c.queue.OnEvicted = func(k grouplru.Key, v any) {
		delete(c.present, k.(string))
		c.evicted = append(c.evicted, v.(*CacheKey))
	}
	return c
}

func (c *FIFO) ID() string { return c.delegate.ID() }

func (c *FIFO) Get(ctx context.Context, key *CacheKey) (any, error) {
	return c.delegate.Get(ctx, key)
}

func (c *FIFO) Put(ctx context.Context, key *CacheKey, value any) error {
	if err := c.delegate.Put(ctx, key, value); err != nil {
		return err
	}

	s := key.String()
	if _, ok := c.present[s]; ok {
		return nil
	}
	c.present[s] = struct{}{}
	c.queue.Add(s, key)

	evicted := c.evicted
	c.evicted = nil
	for _, k := range evicted {
		if err := c.delegate.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (c *FIFO) Remove(ctx context.Context, key *CacheKey) error {
	s := key.String()
	if _, ok := c.present[s]; ok {
		delete(c.present, s)
		c.queue.Remove(s)
		c.evicted = nil
	}
	return c.delegate.Remove(ctx, key)
}

func (c *FIFO) Clear(ctx context.Context) error {
	c.queue.Clear()
	c.present = make(map[string]struct{}, len(c.present))
	c.evicted = nil
	return c.delegate.Clear(ctx)
}

func (c *FIFO) Size() int { return c.delegate.Size() }
