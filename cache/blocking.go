package cache

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-sqlmap/errs"
)

type keyLock struct {
	done chan struct{}
}

// Blocking lets a single caller populate a missing key. A Get miss leaves
// the key locked; the lock is released by the next Put or Remove for that
// key. Other callers wait until then, until the timeout elapses or until
// their context is done.
type Blocking struct {
	delegate Cache
	timeout  time.Duration
	locks    *xsync.MapOf[string, *keyLock]
}

// NewBlocking wraps delegate. A zero timeout waits indefinitely.
func NewBlocking(delegate Cache, timeout time.Duration) *Blocking {
	return &Blocking{
		delegate: delegate,
		timeout:  timeout,
		locks:    xsync.NewMapOf[string, *keyLock](),
	}
}

func (c *Blocking) ID() string { return c.delegate.ID() }

func (c *Blocking) Get(ctx context.Context, key *CacheKey) (any, error) {
	if err := c.acquire(ctx, key); err != nil {
		return nil, err
	}
	value, err := c.delegate.Get(ctx, key)
	if err != nil || value != nil {
		c.release(key)
	}
	return value, err
}

func (c *Blocking) Put(ctx context.Context, key *CacheKey, value any) error {
	defer c.release(key)
	return c.delegate.Put(ctx, key, value)
}

func (c *Blocking) Remove(ctx context.Context, key *CacheKey) error {
	defer c.release(key)
	return c.delegate.Remove(ctx, key)
}

func (c *Blocking) Clear(ctx context.Context) error { return c.delegate.Clear(ctx) }

func (c *Blocking) Size() int { return c.delegate.Size() }

func (c *Blocking) acquire(ctx context.Context, key *CacheKey) error {
	s := key.String()
	for {
		existing, loaded := c.locks.LoadOrStore(s, &keyLock{done: make(chan struct{})})
		if !loaded {
			return nil
		}
		if err := c.wait(ctx, existing); err != nil {
			return err
		}
	}
}

func (c *Blocking) wait(ctx context.Context, l *keyLock) error {
	var expired <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-l.done:
		return nil
	case <-expired:
		return errs.Retryable(errs.CodeCacheLockTimeout,
			"couldn't get a lock in "+c.timeout.String()+" for cache "+c.delegate.ID(),
			goerrors.CategoryOperation)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Blocking) release(key *CacheKey) {
	if l, ok := c.locks.LoadAndDelete(key.String()); ok {
		close(l.done)
	}
}
