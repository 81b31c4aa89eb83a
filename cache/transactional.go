package cache

import (
	"context"
	"errors"
)

// TransactionalCache buffers writes to a shared cache for one unit of work.
// Reads go straight through; puts and clears only reach the shared cache on
// Commit.
type TransactionalCache struct {
	delegate      Cache
	clearOnCommit bool
	toAdd         map[string]entry
	addOrder      []string
	missed        map[string]*CacheKey
}

// NewTransactionalCache creates a buffer in front of delegate.
func NewTransactionalCache(delegate Cache) *TransactionalCache {
	return &TransactionalCache{
		delegate: delegate,
		toAdd:    make(map[string]entry),
		missed:   make(map[string]*CacheKey),
	}
}

func (c *TransactionalCache) ID() string { return c.delegate.ID() }

// Get reads through to the shared cache and remembers misses. Once a clear
// is staged every read reports a miss. A key that already missed in this
// unit of work is answered from the staged puts without reading the shared
// cache again, so a blocking delegate never waits on a lock this buffer
// holds.
func (c *TransactionalCache) Get(ctx context.Context, key *CacheKey) (any, error) {
	s := key.String()
	if _, ok := c.missed[s]; ok {
		if e, ok := c.toAdd[s]; ok && e.key.Equal(key) {
			return e.value, nil
		}
		return nil, nil
	}

	value, err := c.delegate.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if value == nil {
		c.missed[s] = key
	}
	if c.clearOnCommit {
		return nil, nil
	}
	return value, nil
}

// Put stages value for commit.
func (c *TransactionalCache) Put(_ context.Context, key *CacheKey, value any) error {
	s := key.String()
	if _, ok := c.toAdd[s]; !ok {
		c.addOrder = append(c.addOrder, s)
	}
	c.toAdd[s] = entry{key: key, value: value}
	return nil
}

// Remove is a no-op; removals never happen inside a unit of work.
func (c *TransactionalCache) Remove(context.Context, *CacheKey) error { return nil }

// Clear stages a full clear and drops pending puts.
func (c *TransactionalCache) Clear(context.Context) error {
	c.clearOnCommit = true
	c.toAdd = make(map[string]entry)
	c.addOrder = nil
	return nil
}

func (c *TransactionalCache) Size() int { return c.delegate.Size() }

// Commit applies a staged clear, then the staged puts, then an explicit nil
// for every key that missed and was never populated so blocked readers are
// released. Missed keys are released even when an earlier step fails.
func (c *TransactionalCache) Commit(ctx context.Context) error {
	var err error
	if c.clearOnCommit {
		if err = c.delegate.Clear(ctx); err != nil {
			err = errors.Join(err, c.unlockMissed(ctx))
		}
	}
	if err == nil {
		err = c.flushPending(ctx)
	}
	c.reset()
	return err
}

// Rollback pushes a nil for every missed key, releasing any locks taken on
// the miss, and discards everything staged.
func (c *TransactionalCache) Rollback(ctx context.Context) error {
	err := c.unlockMissed(ctx)
	c.reset()
	return err
}

func (c *TransactionalCache) flushPending(ctx context.Context) error {
	for _, s := range c.addOrder {
		e := c.toAdd[s]
		if err := c.delegate.Put(ctx, e.key, e.value); err != nil {
			// keys still missing must not stay locked
			return errors.Join(err, c.unlockMissed(ctx))
		}
	}
	var errList []error
	for s, key := range c.missed {
		if _, ok := c.toAdd[s]; ok {
			continue
		}
		if err := c.delegate.Put(ctx, key, nil); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func (c *TransactionalCache) unlockMissed(ctx context.Context) error {
	var errList []error
	for _, key := range c.missed {
		if err := c.delegate.Put(ctx, key, nil); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func (c *TransactionalCache) reset() {
	c.clearOnCommit = false
	c.toAdd = make(map[string]entry)
	c.addOrder = nil
	c.missed = make(map[string]*CacheKey)
}

// TransactionalCacheManager keeps one TransactionalCache per shared cache
// touched by a unit of work.
type TransactionalCacheManager struct {
	caches map[Cache]*TransactionalCache
	order  []*TransactionalCache
}

// NewTransactionalCacheManager returns an empty manager.
func NewTransactionalCacheManager() *TransactionalCacheManager {
	return &TransactionalCacheManager{caches: make(map[Cache]*TransactionalCache)}
}

func (m *TransactionalCacheManager) Clear(ctx context.Context, c Cache) error {
	return m.txCache(c).Clear(ctx)
}

func (m *TransactionalCacheManager) Get(ctx context.Context, c Cache, key *CacheKey) (any, error) {
	return m.txCache(c).Get(ctx, key)
}

func (m *TransactionalCacheManager) Put(ctx context.Context, c Cache, key *CacheKey, value any) error {
	return m.txCache(c).Put(ctx, key, value)
}

// Commit commits every buffered cache, returning all failures joined.
func (m *TransactionalCacheManager) Commit(ctx context.Context) error {
	var errList []error
	for _, tc := range m.order {
		if err := tc.Commit(ctx); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// Rollback rolls back every buffered cache, returning all failures joined.
func (m *TransactionalCacheManager) Rollback(ctx context.Context) error {
	var errList []error
	for _, tc := range m.order {
		if err := tc.Rollback(ctx); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func (m *TransactionalCacheManager) txCache(c Cache) *TransactionalCache {
	tc, ok := m.caches[c]
	if !ok {
		tc = NewTransactionalCache(c)
		m.caches[c] = tc
		m.order = append(m.order, tc)
	}
	return tc
}
