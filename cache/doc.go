// Package cache provides statement cache keys and the second-level cache.
//
// # Overview
//
// The package exports three building blocks:
//
//   - CacheKey: an ordered, hashed list of components identifying a query
//   - Cache: the second-level cache interface and its decorators
//   - TransactionalCache: a per unit-of-work buffer in front of a shared Cache
//
// # Cache keys
//
// A CacheKey accumulates components in order. Each component is serialized
// deterministically and hashed with xxhash, so keys built in different
// processes agree:
//
//	key := cache.NewCacheKey("blog.selectByID", 0, math.MaxInt32, "SELECT * FROM blog WHERE id = ?")
//	key.Update(42)
//	key.Update("production")
//
// Equality compares the composite hash, the checksum, the component count and
// then every component. NullKey is a frozen key meaning "no identity".
//
// # Decorator chain
//
// Config.Build assembles the decorators in a fixed order:
//
//	Perpetual (sturdyc store) -> LRU | FIFO -> Scheduled -> Serialized -> Logging -> Synchronized -> Blocking
//
// Perpetual namespaces its keys so many caches can share one store. The
// eviction decorators remove the eldest key from the delegate once their
// bound is exceeded. Serialized stores msgpack copies, so values must be
// acyclic. Blocking keeps a per-key lock after a miss until the key is
// populated, removed or the waiter times out with a retryable error.
//
// # Transactions
//
// Writes reach a shared cache only when the owning unit of work commits:
//
//	tcm := cache.NewTransactionalCacheManager()
//	rows, _ := tcm.Get(ctx, shared, key) // miss is remembered
//	_ = tcm.Put(ctx, shared, key, result) // staged
//	_ = tcm.Commit(ctx)                   // now visible to other sessions
//
// On commit, keys that missed and were never populated receive an explicit
// nil so callers blocked on them are released. Since a nil value always reads
// as a miss, this never caches "no rows".
package cache
