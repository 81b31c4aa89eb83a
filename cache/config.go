package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/internal/cacheinfra"
)

// Eviction names an eviction policy.
type Eviction string

const (
	EvictionLRU  Eviction = "lru"
	EvictionFIFO Eviction = "fifo"
	EvictionNone Eviction = "none"
)

// Config describes one second-level cache. Build assembles the decorators
// in a fixed order: base store, eviction, scheduled clear, serialized copy,
// logging, synchronization and, last, blocking.
type Config struct {
	// ID names the cache, usually after the statement namespace it serves.
	ID string

	// Eviction selects the bounding policy. Default: lru
	Eviction Eviction

	// Size bounds the number of keys the eviction policy tracks. Default: 1024
	Size int

	// FlushInterval clears the whole cache periodically when positive.
	FlushInterval time.Duration

	// ReadWrite makes every Get return an independent copy. When false all
	// callers share the cached instances and must treat them as read-only.
	ReadWrite bool

	// Blocking lets only one caller populate a missing key at a time.
	Blocking bool

	// BlockingTimeout bounds how long a blocked caller waits. Zero waits
	// until released or until the context is done.
	BlockingTimeout time.Duration

	// Store configures the sturdyc store used when no shared Store is given.
	Store cacheinfra.Config
}

// DefaultConfig returns a read-write LRU cache with id.
func DefaultConfig(id string) Config {
	return Config{
		ID:        id,
		Eviction:  EvictionLRU,
		Size:      DefaultEvictionSize,
		ReadWrite: true,
		Store:     cacheinfra.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Eviction, validation.In(EvictionLRU, EvictionFIFO, EvictionNone, Eviction(""))),
		validation.Field(&c.Size, validation.Min(0)),
		validation.Field(&c.FlushInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.BlockingTimeout, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid cache configuration").WithTextCode(errs.CodeInvalidConfig)
	}
	if err := c.Store.Validate(); err != nil {
		return errs.Wrap(err, errs.CodeInvalidConfig, "invalid cache store configuration", goerrors.CategoryValidation)
	}
	return nil
}

// Build creates the cache with its own backing store.
func (c Config) Build() (Cache, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	store, err := cacheinfra.NewStore(c.Store)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeInvalidConfig, "creating cache store", goerrors.CategoryValidation)
	}
	return c.decorate(NewPerpetual(c.ID, store))
}

// BuildOn creates the cache over a store shared with other caches.
func (c Config) BuildOn(store *cacheinfra.Store) (Cache, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c.decorate(NewPerpetual(c.ID, store))
}

// Decorate wraps an existing base cache using this configuration.
func (c Config) Decorate(base Cache) (Cache, error) {
	if c.ID == "" {
		c.ID = base.ID()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c.decorate(base)
}

func (c Config) decorate(base Cache) (Cache, error) {
	var cache Cache = base

	switch c.Eviction {
	case EvictionFIFO:
		cache = NewFIFO(cache, c.Size)
	case EvictionNone:
	default:
		l, err := NewLRU(cache, c.Size)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeInvalidConfig, "creating lru eviction", goerrors.CategoryValidation)
		}
		cache = l
	}

	if c.FlushInterval > 0 {
		cache = NewScheduled(cache, c.FlushInterval)
	}
	if c.ReadWrite {
		cache = NewSerialized(cache)
	}
	cache = NewLogging(cache)
	cache = NewSynchronized(cache)
	if c.Blocking {
		cache = NewBlocking(cache, c.BlockingTimeout)
	}
	return cache, nil
}
