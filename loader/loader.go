// Package loader runs nested statements for the result materializer.
//
// A ResultLoader holds everything needed to run one nested select: the
// statement, its parameter, the bound SQL and the cache key. It loads on
// the executor that created it while that executor is open and otherwise
// opens a short-lived one. Lazy[T] handles wrap a ResultLoader for
// properties that load on demand.
package loader

import (
	"context"
	"reflect"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/cache"
	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/internal/logging"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/reflection"
)

// Executor is the part of an executor nested loads run on.
type Executor interface {
	QueryWithKey(ctx context.Context, ms *mapping.MappedStatement, param any, rb mapping.RowBounds,
		handler mapping.ResultHandler, key *cache.CacheKey, bound *mapping.BoundSQL) ([]any, error)
	CreateCacheKey(ms *mapping.MappedStatement, param any, rb mapping.RowBounds, bound *mapping.BoundSQL) *cache.CacheKey
	IsCached(ms *mapping.MappedStatement, key *cache.CacheKey) bool
	DeferLoad(ms *mapping.MappedStatement, target *reflection.MetaObject, property string,
		key *cache.CacheKey, targetType reflect.Type) error
	IsClosed() bool
	Close(ctx context.Context, forceRollback bool) error
}

// Opener opens a short-lived executor with its own transaction.
type Opener func(ctx context.Context) (Executor, error)

// Source reopens loads for handles that lost their loader, such as handles
// copied out of a read-write cache.
type Source interface {
	Configuration() *mapping.Configuration
	OpenExecutor(ctx context.Context) (Executor, error)
}

var defaultSource atomic.Pointer[Source]

// SetDefaultSource registers the source used by detached handles.
func SetDefaultSource(s Source) {
	if s == nil {
		defaultSource.Store(nil)
		return
	}
	defaultSource.Store(&s)
}

func currentSource() Source {
	if p := defaultSource.Load(); p != nil {
		return *p
	}
	return nil
}

// ResultLoader runs one nested select and shapes its rows into TargetType.
type ResultLoader struct {
	Configuration *mapping.Configuration
	Statement     *mapping.MappedStatement
	Parameter     any
	TargetType    reflect.Type
	Key           *cache.CacheKey
	Bound         *mapping.BoundSQL

	executor Executor
	opener   Opener
}

// NewResultLoader binds a nested select to the executor that found it.
// opener may be nil when loads never outlive exec.
func NewResultLoader(cfg *mapping.Configuration, exec Executor, opener Opener, ms *mapping.MappedStatement,
	param any, targetType reflect.Type, key *cache.CacheKey, bound *mapping.BoundSQL) *ResultLoader {
	return &ResultLoader{
		Configuration: cfg,
		Statement:     ms,
		Parameter:     param,
		TargetType:    targetType,
		Key:           key,
		Bound:         bound,
		executor:      exec,
		opener:        opener,
	}
}

// Load runs the select on the creating executor, or on a fresh one when the
// creator has been closed.
func (rl *ResultLoader) Load(ctx context.Context) (any, error) {
	if rl.executor != nil && !rl.executor.IsClosed() {
		return rl.run(ctx, rl.executor)
	}
	return rl.LoadDetached(ctx)
}

// LoadDetached always runs the select on a fresh executor, closed before it
// returns. Use it from goroutines other than the one owning the session.
func (rl *ResultLoader) LoadDetached(ctx context.Context) (any, error) {
	if rl.opener == nil {
		return nil, errs.New(errs.CodeExecutorClosed,
			"cannot load '"+rl.Statement.ID+"': its executor is closed and no other can be opened",
			goerrors.CategoryOperation)
	}
	exec, err := rl.opener(ctx)
	if err != nil {
		return nil, err
	}
	logging.WithStatement("loader", rl.Statement.ID).Debug("loading on a detached executor")
	out, err := rl.run(ctx, exec)
	if cerr := exec.Close(ctx, false); err == nil {
		err = cerr
	}
	return out, err
}

func (rl *ResultLoader) run(ctx context.Context, exec Executor) (any, error) {
	if rl.Key == nil {
		rl.Key = exec.CreateCacheKey(rl.Statement, rl.Parameter, mapping.DefaultRowBounds, rl.Bound)
	}
	list, err := exec.QueryWithKey(ctx, rl.Statement, rl.Parameter, mapping.DefaultRowBounds, nil, rl.Key, rl.Bound)
	if err != nil {
		return nil, err
	}
	return Extract(list, rl.TargetType)
}
