package cache

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/goliatone/go-sqlmap/internal/logging"
)

// Logging counts lookups and hits and logs the running hit ratio at debug
// level on every Get.
type Logging struct {
	delegate Cache
	log      *slog.Logger
	requests atomic.Int64
	hits     atomic.Int64
}

// NewLogging wraps delegate with hit ratio instrumentation.
func NewLogging(delegate Cache) *Logging {
	return &Logging{
		delegate: delegate,
		log:      logging.WithCache(delegate.ID()),
	}
}

func (c *Logging) ID() string { return c.delegate.ID() }

func (c *Logging) Get(ctx context.Context, key *CacheKey) (any, error) {
	c.requests.Add(1)
	value, err := c.delegate.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if value != nil {
		c.hits.Add(1)
	}
	c.log.Debug("Cache Hit Ratio", "ratio", c.HitRatio())
	return value, nil
}

func (c *Logging) Put(ctx context.Context, key *CacheKey, value any) error {
	return c.delegate.Put(ctx, key, value)
}

func (c *Logging) Remove(ctx context.Context, key *CacheKey) error {
	return c.delegate.Remove(ctx, key)
}

func (c *Logging) Clear(ctx context.Context) error { return c.delegate.Clear(ctx) }

func (c *Logging) Size() int { return c.delegate.Size() }

// HitRatio returns hits divided by lookups, or 0 before the first lookup.
func (c *Logging) HitRatio() float64 {
	requests := c.requests.Load()
	if requests == 0 {
		return 0
	}
	return float64(c.hits.Load()) / float64(requests)
}

// Stats returns the raw lookup and hit counters.
func (c *Logging) Stats() (requests, hits int64) {
	return c.requests.Load(), c.hits.Load()
}
