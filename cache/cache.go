package cache

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/goliatone/go-sqlmap/internal/cacheinfra"
)

// Cache is a second-level statement cache. A nil value from Get is a miss,
// whether or not a nil was stored explicitly.
type Cache interface {
	ID() string
	Get(ctx context.Context, key *CacheKey) (any, error)
	Put(ctx context.Context, key *CacheKey, value any) error
	Remove(ctx context.Context, key *CacheKey) error
	Clear(ctx context.Context) error
	Size() int
}

// entry keeps the full key next to the value so string collisions in the
// backing store never surface as false hits.
type entry struct {
	key   *CacheKey
	value any
}

var storeSeq atomic.Uint64

// Perpetual is the base store of every decorator chain. It never evicts on
// its own; bounds and expiry come from the decorators and the backing Store.
type Perpetual struct {
	id        string
	namespace string
	store     *cacheinfra.Store
}

// NewPerpetual creates a base cache over store. Several caches may share the
// same store; each one only sees and clears its own keys.
func NewPerpetual(id string, store *cacheinfra.Store) *Perpetual {
	return &Perpetual{
		id:        id,
		namespace: id + "#" + strconv.FormatUint(storeSeq.Add(1), 10) + componentSeparator,
		store:     store,
	}
}

// NewPerpetualDefault creates a base cache with its own default store.
func NewPerpetualDefault(id string) (*Perpetual, error) {
	store, err := cacheinfra.NewStore(cacheinfra.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return NewPerpetual(id, store), nil
}

func (p *Perpetual) ID() string { return p.id }

func (p *Perpetual) Get(_ context.Context, key *CacheKey) (any, error) {
	raw, ok := p.store.Get(p.namespace + key.String())
	if !ok {
		return nil, nil
	}
	e, ok := raw.(entry)
	if !ok || !e.key.Equal(key) {
		return nil, nil
	}
	return e.value, nil
}

func (p *Perpetual) Put(_ context.Context, key *CacheKey, value any) error {
	p.store.Set(p.namespace+key.String(), entry{key: key, value: value})
	return nil
}

func (p *Perpetual) Remove(_ context.Context, key *CacheKey) error {
	p.store.Delete(p.namespace + key.String())
	return nil
}

func (p *Perpetual) Clear(_ context.Context) error {
	p.store.DeleteByPrefix(p.namespace)
	return nil
}

func (p *Perpetual) Size() int {
	return p.store.CountPrefix(p.namespace)
}
