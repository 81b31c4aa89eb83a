package executor

import (
	"context"
	"errors"
	"reflect"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/cache"
	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/reflection"
	"github.com/goliatone/go-sqlmap/transaction"
)

var _ Executor = (*Caching)(nil)

// Caching decorates an executor with the second-level caches bound to
// statements. Reads go through a transactional buffer so nothing written
// by this unit of work is visible to others before it commits.
type Caching struct {
	delegate Executor
	tcm      *cache.TransactionalCacheManager
}

// NewCaching wraps delegate. Nested queries issued by delegate run through
// the returned executor.
func NewCaching(delegate Executor) *Caching {
	c := &Caching{delegate: delegate, tcm: cache.NewTransactionalCacheManager()}
	if w, ok := delegate.(wrappable); ok {
		w.setWrapper(c)
	}
	return c
}

func (c *Caching) Transaction() transaction.Transaction { return c.delegate.Transaction() }

func (c *Caching) IsClosed() bool { return c.delegate.IsClosed() }

// Close publishes buffered entries, or discards them when forced to roll
// back, then closes the delegate.
func (c *Caching) Close(ctx context.Context, forceRollback bool) error {
	var err error
	if forceRollback {
		err = c.tcm.Rollback(ctx)
	} else {
		err = c.tcm.Commit(ctx)
	}
	return errors.Join(err, c.delegate.Close(ctx, forceRollback))
}

func (c *Caching) Update(ctx context.Context, ms *mapping.MappedStatement, param any) (int64, error) {
	if err := c.flushCacheIfRequired(ctx, ms); err != nil {
		return 0, err
	}
	return c.delegate.Update(ctx, ms, param)
}

func (c *Caching) Query(ctx context.Context, ms *mapping.MappedStatement, param any, rb mapping.RowBounds,
	handler mapping.ResultHandler) ([]any, error) {
	bound, err := ms.BoundSQL(param)
	if err != nil {
		return nil, errs.Annotate(statementContext(ctx, "executing a query", ms), err)
	}
	rb = rb.OrDefault()
	key := c.CreateCacheKey(ms, param, rb, bound)
	return c.QueryWithKey(ctx, ms, param, rb, handler, key, bound)
}

// QueryWithKey answers cacheable selects from the statement's cache and
// buffers the rows it had to load.
func (c *Caching) QueryWithKey(ctx context.Context, ms *mapping.MappedStatement, param any, rb mapping.RowBounds,
	handler mapping.ResultHandler, key *cache.CacheKey, bound *mapping.BoundSQL) ([]any, error) {
	if ms.Cache == nil {
		return c.delegate.QueryWithKey(ctx, ms, param, rb, handler, key, bound)
	}
	if err := c.flushCacheIfRequired(ctx, ms); err != nil {
		return nil, err
	}
	if !ms.UseCache || handler != nil {
		return c.delegate.QueryWithKey(ctx, ms, param, rb, handler, key, bound)
	}
	if err := ensureNoOutParams(ms, bound); err != nil {
		return nil, err
	}

	cached, err := c.tcm.Get(ctx, ms.Cache, key)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		list, ok := cached.([]any)
		if !ok {
			return nil, errs.New(errs.CodeResultShape,
				"cache '"+ms.Cache.ID()+"' holds a "+reflect.TypeOf(cached).String()+" for '"+ms.ID+"'",
				goerrors.CategoryInternal)
		}
		return list, nil
	}

	list, err := c.delegate.QueryWithKey(ctx, ms, param, rb, handler, key, bound)
	if err != nil {
		return nil, err
	}
	if err := c.tcm.Put(ctx, ms.Cache, key, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Caching) FlushStatements(ctx context.Context) ([]BatchResult, error) {
	return c.delegate.FlushStatements(ctx)
}

// Commit commits the delegate and then publishes buffered entries.
func (c *Caching) Commit(ctx context.Context, required bool) error {
	if err := c.delegate.Commit(ctx, required); err != nil {
		return err
	}
	return c.tcm.Commit(ctx)
}

func (c *Caching) Rollback(ctx context.Context, required bool) error {
	err := c.delegate.Rollback(ctx, required)
	if required {
		err = errors.Join(err, c.tcm.Rollback(ctx))
	}
	return err
}

func (c *Caching) CreateCacheKey(ms *mapping.MappedStatement, param any, rb mapping.RowBounds,
	bound *mapping.BoundSQL) *cache.CacheKey {
	return c.delegate.CreateCacheKey(ms, param, rb, bound)
}

func (c *Caching) IsCached(ms *mapping.MappedStatement, key *cache.CacheKey) bool {
	return c.delegate.IsCached(ms, key)
}

func (c *Caching) DeferLoad(ms *mapping.MappedStatement, target *reflection.MetaObject, property string,
	key *cache.CacheKey, targetType reflect.Type) error {
	return c.delegate.DeferLoad(ms, target, property, key, targetType)
}

func (c *Caching) ClearLocalCache() { c.delegate.ClearLocalCache() }

func (c *Caching) flushCacheIfRequired(ctx context.Context, ms *mapping.MappedStatement) error {
	if ms.Cache != nil && ms.FlushCacheRequired {
		return c.tcm.Clear(ctx, ms.Cache)
	}
	return nil
}

func ensureNoOutParams(ms *mapping.MappedStatement, bound *mapping.BoundSQL) error {
	if ms.StatementType == mapping.StatementCallable && mapping.HasOutParameters(bound) {
		return errs.New(errs.CodeInvalidMapping,
			"caching callable statements with OUT parameters is not supported: "+ms.ID,
			goerrors.CategoryValidation).WithMetadata(map[string]any{"statement": ms.ID})
	}
	return nil
}
