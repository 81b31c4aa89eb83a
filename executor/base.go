package executor

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"reflect"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-sqlmap/cache"
	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/internal/logging"
	"github.com/goliatone/go-sqlmap/loader"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/reflection"
	"github.com/goliatone/go-sqlmap/resultset"
	"github.com/goliatone/go-sqlmap/transaction"
)

// Option configures a Base executor.
type Option func(*Base)

// WithOpener sets how lazy loads outliving the executor open their own.
func WithOpener(o loader.Opener) Option {
	return func(b *Base) { b.opener = o }
}

// WithID names the executor in logs.
func WithID(id string) Option {
	return func(b *Base) { b.id = id }
}

// Base implements the local cache, deferred loads and transaction handling
// shared by every execution strategy.
type Base struct {
	id       string
	cfg      *mapping.Configuration
	tx       transaction.Transaction
	strategy strategy
	wrapper  Executor
	opener   loader.Opener
	log      *slog.Logger

	local    *localCache
	localOut *localCache
	deferred []*deferredLoad
	depth    int
	closed   bool
}

// NewBase returns an executor of type typ on tx.
func NewBase(cfg *mapping.Configuration, tx transaction.Transaction, typ mapping.ExecutorType, opts ...Option) *Base {
	b := &Base{
		cfg:      cfg,
		tx:       tx,
		local:    newLocalCache(),
		localOut: newLocalCache(),
	}
	switch typ {
	case mapping.ExecutorReuse:
		b.strategy = newReuse()
	case mapping.ExecutorBatch:
		b.strategy = &batch{}
	default:
		b.strategy = simple{}
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.id == "" {
		b.id = uuid.NewString()
	}
	b.log = logging.WithComponent("executor").With("executor", b.id, "type", typ.String())
	return b
}

func (b *Base) setWrapper(w Executor) { b.wrapper = w }

// outer is the executor nested queries run on.
func (b *Base) outer() Executor {
	if b.wrapper != nil {
		return b.wrapper
	}
	return b
}

func (b *Base) Transaction() transaction.Transaction { return b.tx }

func (b *Base) IsClosed() bool { return b.closed }

func closedError() error {
	return errs.New(errs.CodeExecutorClosed, "executor was closed", goerrors.CategoryOperation)
}

func statementContext(ctx context.Context, activity string, ms *mapping.MappedStatement) context.Context {
	return errs.WithContext(ctx, errs.Resource(ms.Resource), errs.Activity(activity), errs.Object(ms.ID))
}

func (b *Base) Update(ctx context.Context, ms *mapping.MappedStatement, param any) (int64, error) {
	if b.closed {
		return 0, closedError()
	}
	ctx = statementContext(ctx, "executing an update", ms)
	b.ClearLocalCache()

	n, err := b.doUpdate(ctx, ms, param)
	return n, errs.Annotate(ctx, err)
}

func (b *Base) doUpdate(ctx context.Context, ms *mapping.MappedStatement, param any) (int64, error) {
	bound, err := ms.BoundSQL(param)
	if err != nil {
		return 0, err
	}
	ctx = errs.WithContext(ctx, errs.SQL(bound.SQL))
	conn, err := b.tx.Conn(ctx)
	if err != nil {
		return 0, err
	}
	st, err := b.newStatement(conn, ms, param, bound)
	if err != nil {
		return 0, err
	}
	b.logStatement(st)

	ctx, cancel := b.withTimeout(ctx, ms)
	defer cancel()
	res, err := b.strategy.update(ctx, b, conn, st)
	if err != nil {
		return 0, execError(err, "error updating database")
	}
	if res == pendingResult {
		return BatchPending, nil
	}
	if err := b.applyGeneratedKey(ms, param, res); err != nil {
		return 0, err
	}
	if err := b.applyOutParameters(st); err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, execError(err, "driver cannot report affected rows")
	}
	b.log.Debug("<== Updates", "statement", ms.ID, "rows", n)
	return n, nil
}

func (b *Base) Query(ctx context.Context, ms *mapping.MappedStatement, param any, rb mapping.RowBounds,
	handler mapping.ResultHandler) ([]any, error) {
	bound, err := ms.BoundSQL(param)
	if err != nil {
		return nil, errs.Annotate(statementContext(ctx, "executing a query", ms), err)
	}
	rb = rb.OrDefault()
	key := b.CreateCacheKey(ms, param, rb, bound)
	return b.QueryWithKey(ctx, ms, param, rb, handler, key, bound)
}

// QueryWithKey answers from the local cache when it can, otherwise runs the
// statement. Deferred loads queued by nested queries run once the outermost
// query returns.
func (b *Base) QueryWithKey(ctx context.Context, ms *mapping.MappedStatement, param any, rb mapping.RowBounds,
	handler mapping.ResultHandler, key *cache.CacheKey, bound *mapping.BoundSQL) ([]any, error) {
	if b.closed {
		return nil, closedError()
	}
	rb = rb.OrDefault()
	ctx = statementContext(ctx, "executing a query", ms)
	if b.depth == 0 && ms.FlushCacheRequired {
		b.ClearLocalCache()
	}

	b.depth++
	list, err := b.queryLocalOrDatabase(ctx, ms, param, rb, handler, key, bound)
	b.depth--
	if err != nil {
		if b.depth == 0 {
			b.deferred = nil
		}
		return nil, errs.Annotate(ctx, err)
	}

	if b.depth == 0 {
		pending := b.deferred
		b.deferred = nil
		for _, d := range pending {
			if err := d.load(); err != nil {
				return nil, errs.Annotate(ctx, err)
			}
		}
		if b.cfg.Settings.LocalCacheScope == mapping.LocalCacheStatement {
			b.ClearLocalCache()
		}
	}
	return list, nil
}

func (b *Base) queryLocalOrDatabase(ctx context.Context, ms *mapping.MappedStatement, param any, rb mapping.RowBounds,
	handler mapping.ResultHandler, key *cache.CacheKey, bound *mapping.BoundSQL) ([]any, error) {
	if handler == nil {
		if cached, ok := b.local.get(key); ok {
			if cached == executionPlaceholder {
				return nil, errs.New(errs.CodeRecursiveQuery,
					"statement '"+ms.ID+"' was called again with the same parameters while it was running",
					goerrors.CategoryOperation).WithMetadata(map[string]any{"statement": ms.ID})
			}
			b.log.Debug("local cache hit", "statement", ms.ID)
			if ms.StatementType == mapping.StatementCallable {
				if err := b.replayOutParameters(ms, key, param, bound); err != nil {
					return nil, err
				}
			}
			list, _ := cached.([]any)
			return list, nil
		}
	}
	return b.queryFromDatabase(ctx, ms, param, rb, handler, key, bound)
}

func (b *Base) queryFromDatabase(ctx context.Context, ms *mapping.MappedStatement, param any, rb mapping.RowBounds,
	handler mapping.ResultHandler, key *cache.CacheKey, bound *mapping.BoundSQL) ([]any, error) {
	b.local.put(key, executionPlaceholder)
	list, err := b.doQuery(ctx, ms, param, rb, handler, bound)
	b.local.remove(key)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		b.local.put(key, list)
	}
	if ms.StatementType == mapping.StatementCallable {
		b.localOut.put(key, param)
	}
	return list, nil
}

func (b *Base) doQuery(ctx context.Context, ms *mapping.MappedStatement, param any, rb mapping.RowBounds,
	handler mapping.ResultHandler, bound *mapping.BoundSQL) ([]any, error) {
	ctx = errs.WithContext(ctx, errs.SQL(bound.SQL))
	conn, err := b.tx.Conn(ctx)
	if err != nil {
		return nil, err
	}
	st, err := b.newStatement(conn, ms, param, bound)
	if err != nil {
		return nil, err
	}
	b.logStatement(st)

	ctx, cancel := b.withTimeout(ctx, ms)
	defer cancel()
	start := time.Now()
	rows, err := b.strategy.query(ctx, b, conn, st)
	if err != nil {
		return nil, execError(err, "error querying database")
	}
	defer rows.Close()

	m := resultset.New(b.cfg, resultset.Options{
		Executor:  b.outer(),
		Opener:    b.opener,
		Statement: ms,
		Bound:     bound,
		RowBounds: rb,
		Handler:   handler,
	})
	list, err := m.Handle(ctx, resultset.NewSQLCursor(rows))
	if err != nil {
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, execError(err, "error closing rows")
	}
	if err := b.applyOutParameters(st); err != nil {
		return nil, err
	}
	b.log.Debug("<== Total", "statement", ms.ID, "rows", len(list), "elapsed", time.Since(start))
	return list, nil
}

func (b *Base) logStatement(st *statement) {
	if !b.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	b.log.Debug("==> Preparing", "statement", st.ms.ID, "sql", st.sql)
	b.log.Debug("==> Parameters", "statement", st.ms.ID, "args", st.args)
}

// replayOutParameters copies the OUT values captured when key first ran
// into param.
func (b *Base) replayOutParameters(ms *mapping.MappedStatement, key *cache.CacheKey, param any, bound *mapping.BoundSQL) error {
	cached, ok := b.localOut.get(key)
	if !ok || cached == nil || param == nil {
		return nil
	}
	src := b.cfg.Reflection.MetaObject(cached)
	dst := b.cfg.Reflection.MetaObject(param)
	for _, pm := range bound.ParameterMappings {
		if !pm.IsOut() {
			continue
		}
		v, err := src.GetValue(pm.Property)
		if err != nil {
			return err
		}
		if err := dst.SetValue(pm.Property, v); err != nil {
			return errs.Wrap(err, errs.CodeReflection,
				"cannot replay OUT parameter '"+pm.Property+"' of '"+ms.ID+"'", goerrors.CategoryBadInput)
		}
	}
	return nil
}

// CreateCacheKey identifies a query: statement id, paging window, SQL text,
// every non-OUT parameter value in order and the environment id.
func (b *Base) CreateCacheKey(ms *mapping.MappedStatement, param any, rb mapping.RowBounds, bound *mapping.BoundSQL) *cache.CacheKey {
	if b.closed {
		return cache.NullKey
	}
	rb = rb.OrDefault()
	key := cache.NewCacheKey(ms.ID, rb.Offset, rb.Limit, bound.SQL)
	for _, pm := range bound.ParameterMappings {
		if pm.Mode == mapping.ModeOut {
			continue
		}
		v, err := bound.ParameterValue(pm.Property, b.cfg.Codecs)
		if err != nil {
			// the statement fails when it runs; keep the key apart from a nil value
			b.log.Warn("cannot read parameter for cache key", "statement", ms.ID,
				"property", pm.Property, "error", err)
			v = "!" + err.Error()
		}
		key.Update(v)
	}
	if env := b.cfg.Settings.EnvironmentID; env != "" {
		key.Update(env)
	}
	return key
}

// IsCached reports whether key has a result or a running query in the
// local cache.
func (b *Base) IsCached(_ *mapping.MappedStatement, key *cache.CacheKey) bool {
	if b.closed {
		return false
	}
	_, ok := b.local.get(key)
	return ok
}

// DeferLoad sets property of target from the local cache entry of key, now
// if the entry is complete or once the outermost query returns otherwise.
func (b *Base) DeferLoad(ms *mapping.MappedStatement, target *reflection.MetaObject, property string,
	key *cache.CacheKey, targetType reflect.Type) error {
	if b.closed {
		return closedError()
	}
	d := &deferredLoad{
		statementID: ms.ID,
		target:      target,
		property:    property,
		key:         key,
		targetType:  targetType,
		local:       b.local,
	}
	if d.canLoad() {
		return d.load()
	}
	b.deferred = append(b.deferred, d)
	return nil
}

// ClearLocalCache drops every locally cached result and OUT parameter.
func (b *Base) ClearLocalCache() {
	if b.closed {
		return
	}
	b.local.clear()
	b.localOut.clear()
}

func (b *Base) FlushStatements(ctx context.Context) ([]BatchResult, error) {
	return b.flushStatements(ctx, false)
}

func (b *Base) flushStatements(ctx context.Context, rollback bool) ([]BatchResult, error) {
	if b.closed {
		return nil, closedError()
	}
	return b.strategy.flush(ctx, b, rollback)
}

func (b *Base) Commit(ctx context.Context, required bool) error {
	if b.closed {
		return errs.New(errs.CodeExecutorClosed, "cannot commit, executor was closed", goerrors.CategoryOperation)
	}
	b.ClearLocalCache()
	if _, err := b.FlushStatements(ctx); err != nil {
		return err
	}
	if required {
		return b.tx.Commit(ctx)
	}
	return nil
}

func (b *Base) Rollback(ctx context.Context, required bool) error {
	if b.closed {
		return nil
	}
	b.ClearLocalCache()
	_, err := b.flushStatements(ctx, true)
	if required {
		err = errors.Join(err, b.tx.Rollback(ctx))
	}
	return err
}

// Close rolls back when forced, releases the transaction and discards the
// local caches.
func (b *Base) Close(ctx context.Context, forceRollback bool) error {
	if b.closed {
		return nil
	}
	err := b.Rollback(ctx, forceRollback)
	err = errors.Join(err, b.tx.Close(ctx), b.strategy.close())
	b.closed = true
	b.deferred = nil
	b.local.clear()
	b.localOut.clear()
	b.log.Debug("executor closed")
	return err
}

func execError(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(err, errs.CodeExecution, msg+": statement timed out", goerrors.CategoryOperation)
	}
	if errors.Is(err, sql.ErrTxDone) {
		return errs.Wrap(err, errs.CodeTransaction, msg, goerrors.CategoryOperation)
	}
	return errs.Wrap(err, errs.CodeExecution, msg, goerrors.CategoryOperation)
}
