package cache

import (
	"context"
	"sync"
)

// Synchronized serializes every operation on its delegate. Eviction
// decorators mutate state on reads, so reads take the same lock.
type Synchronized struct {
	mu       sync.Mutex
	delegate Cache
}

// NewSynchronized wraps delegate with a mutex.
func NewSynchronized(delegate Cache) *Synchronized {
	return &Synchronized{delegate: delegate}
}

func (c *Synchronized) ID() string { return c.delegate.ID() }

func (c *Synchronized) Get(ctx context.Context, key *CacheKey) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Get(ctx, key)
}

func (c *Synchronized) Put(ctx context.Context, key *CacheKey, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Put(ctx, key, value)
}

func (c *Synchronized) Remove(ctx context.Context, key *CacheKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Remove(ctx, key)
}

func (c *Synchronized) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Clear(ctx)
}

func (c *Synchronized) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Size()
}
