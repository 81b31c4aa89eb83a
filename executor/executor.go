// Package executor runs mapped statements on a transaction.
//
// Every executor keeps a session-scoped local cache of query results and
// coordinates nested queries issued while rows are materialized. The Base
// executor delegates statement execution to a strategy:
//
//   - Simple runs every statement directly
//   - Reuse prepares each distinct SQL text once per transaction
//   - Batch queues consecutive identical updates until they are flushed
//
// Caching decorates any executor with the shared second-level caches bound
// to statements, buffering writes until the unit of work commits.
package executor

import (
	"context"
	"math"

	"github.com/goliatone/go-sqlmap/loader"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/transaction"
)

// BatchPending is returned by updates queued in a batch.
const BatchPending int64 = math.MinInt32 + 1002

// Executor runs statements for one unit of work. It is not safe for
// concurrent use.
type Executor interface {
	loader.Executor

	// Update runs an insert, update or delete and returns the affected rows.
	Update(ctx context.Context, ms *mapping.MappedStatement, param any) (int64, error)
	// Query renders ms for param and returns its rows. With a handler the
	// rows are streamed to it and nothing is returned.
	Query(ctx context.Context, ms *mapping.MappedStatement, param any, rb mapping.RowBounds,
		handler mapping.ResultHandler) ([]any, error)
	// FlushStatements runs queued batch updates.
	FlushStatements(ctx context.Context) ([]BatchResult, error)
	Commit(ctx context.Context, required bool) error
	Rollback(ctx context.Context, required bool) error
	ClearLocalCache()
	Transaction() transaction.Transaction
}

// New returns an executor of type typ on tx, wrapped by Caching when the
// second-level cache is enabled.
func New(cfg *mapping.Configuration, tx transaction.Transaction, typ mapping.ExecutorType, opts ...Option) Executor {
	b := NewBase(cfg, tx, typ, opts...)
	if cfg.Settings.CacheEnabled {
		return NewCaching(b)
	}
	return b
}

// wrappable is implemented by executors that hand a decorator to nested
// queries instead of themselves.
type wrappable interface {
	setWrapper(Executor)
}
