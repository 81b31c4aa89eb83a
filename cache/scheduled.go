package cache

import (
	"context"
	"time"
)

// Scheduled clears its delegate entirely once per interval. The check runs
// lazily on access; no background goroutine is involved.
type Scheduled struct {
	delegate  Cache
	interval  time.Duration
	lastClear time.Time
	now       func() time.Time
}

// NewScheduled wraps delegate with a periodic full clear.
func NewScheduled(delegate Cache, interval time.Duration) *Scheduled {
	return &Scheduled{
		delegate:  delegate,
		interval:  interval,
		lastClear: time.Now(),
		now:       time.Now,
	}
}

func (c *Scheduled) ID() string { return c.delegate.ID() }

func (c *Scheduled) Get(ctx context.Context, key *CacheKey) (any, error) {
	if cleared, err := c.clearWhenStale(ctx); cleared || err != nil {
		return nil, err
	}
	return c.delegate.Get(ctx, key)
}

func (c *Scheduled) Put(ctx context.Context, key *CacheKey, value any) error {
	if _, err := c.clearWhenStale(ctx); err != nil {
		return err
	}
	return c.delegate.Put(ctx, key, value)
}

func (c *Scheduled) Remove(ctx context.Context, key *CacheKey) error {
	if _, err := c.clearWhenStale(ctx); err != nil {
		return err
	}
	return c.delegate.Remove(ctx, key)
}

func (c *Scheduled) Clear(ctx context.Context) error {
	c.lastClear = c.now()
	return c.delegate.Clear(ctx)
}

func (c *Scheduled) Size() int {
	_, _ = c.clearWhenStale(context.Background())
	return c.delegate.Size()
}

func (c *Scheduled) clearWhenStale(ctx context.Context) (bool, error) {
	if c.now().Sub(c.lastClear) <= c.interval {
		return false, nil
	}
	return true, c.Clear(ctx)
}
