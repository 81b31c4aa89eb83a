// Package session is the entry point for running mapped statements.
//
// A Session is one unit of work: one executor, one local cache and one
// transaction. It is used by a single goroutine at a time and must be
// closed. Sessions are opened by a Factory.
//
//	s := factory.Open()
//	defer s.Close(ctx)
//
//	blogs, err := session.List[*Blog](ctx, s, "blog.selectByAuthor", 7)
package session

import (
	"context"
	"log/slog"
	"strconv"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/cache"
	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/executor"
	"github.com/goliatone/go-sqlmap/mapping"
)

// Session runs statements by id within one unit of work.
type Session struct {
	id         string
	cfg        *mapping.Configuration
	exec       executor.Executor
	autoCommit bool
	dirty      bool
	closed     bool
	log        *slog.Logger
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

func (s *Session) Configuration() *mapping.Configuration { return s.cfg }

// Executor returns the executor backing the session.
func (s *Session) Executor() executor.Executor { return s.exec }

func (s *Session) statement(ctx context.Context, id string) (*mapping.MappedStatement, error) {
	if s.closed {
		return nil, errs.New(errs.CodeExecutorClosed, "session "+s.id+" was closed", goerrors.CategoryOperation)
	}
	ms, err := s.cfg.Statement(id)
	if err != nil {
		return nil, errs.Annotate(errs.WithContext(ctx, errs.Object(id)), err)
	}
	return ms, nil
}

// Execute runs a statement and shapes its result by command and declared
// shape: affected rows for writes, batch results for flushes, a single
// object, a map or a list for selects. With a result handler a select
// returns nil.
func (s *Session) Execute(ctx context.Context, id string, param any, opts ...Option) (any, error) {
	ms, err := s.statement(ctx, id)
	if err != nil {
		return nil, err
	}
	o := newExecOptions(opts)

	switch ms.Command {
	case mapping.CommandInsert, mapping.CommandUpdate, mapping.CommandDelete:
		return s.update(ctx, ms, param)
	case mapping.CommandFlush:
		return s.exec.FlushStatements(ctx)
	case mapping.CommandSelect:
	default:
		return nil, errs.New(errs.CodeInvalidMapping,
			"statement '"+id+"' has unknown command "+ms.Command.String(), goerrors.CategoryValidation)
	}

	if o.handler != nil {
		return nil, s.query(ctx, ms, param, o, o.handler)
	}
	switch {
	case o.mapKey != "" || ms.Shape == mapping.ShapeMap:
		return s.selectMap(ctx, ms, param, o)
	case ms.Shape == mapping.ShapeOne:
		return s.selectOne(ctx, ms, param, o)
	default:
		return s.selectList(ctx, ms, param, o)
	}
}

// SelectOne returns the single row of a select, or nil when there is none.
// More than one row is an error.
func (s *Session) SelectOne(ctx context.Context, id string, param any, opts ...Option) (any, error) {
	ms, err := s.statement(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.selectOne(ctx, ms, param, newExecOptions(opts))
}

func (s *Session) selectOne(ctx context.Context, ms *mapping.MappedStatement, param any, o execOptions) (any, error) {
	list, err := s.selectList(ctx, ms, param, o)
	if err != nil {
		return nil, err
	}
	switch len(list) {
	case 0:
		return nil, nil
	case 1:
		return list[0], nil
	default:
		return nil, errs.New(errs.CodeTooManyResults,
			"expected one result from '"+ms.ID+"', found "+strconv.Itoa(len(list)), goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"statement": ms.ID, "count": len(list)})
	}
}

// SelectList returns every row of a select.
func (s *Session) SelectList(ctx context.Context, id string, param any, opts ...Option) ([]any, error) {
	ms, err := s.statement(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.selectList(ctx, ms, param, newExecOptions(opts))
}

func (s *Session) selectList(ctx context.Context, ms *mapping.MappedStatement, param any, o execOptions) ([]any, error) {
	return s.exec.Query(ctx, ms, param, o.rowBounds, nil)
}

// SelectMap returns the rows of a select keyed by property. Later rows
// replace earlier ones with the same key.
func (s *Session) SelectMap(ctx context.Context, id string, param any, property string, opts ...Option) (map[any]any, error) {
	ms, err := s.statement(ctx, id)
	if err != nil {
		return nil, err
	}
	o := newExecOptions(opts)
	o.mapKey = property
	return s.selectMap(ctx, ms, param, o)
}

func (s *Session) selectMap(ctx context.Context, ms *mapping.MappedStatement, param any, o execOptions) (map[any]any, error) {
	property := o.mapKey
	if property == "" {
		property = ms.MapKey
	}
	if property == "" {
		return nil, errs.New(errs.CodeInvalidMapping,
			"map select '"+ms.ID+"' declares no key property", goerrors.CategoryValidation)
	}
	list, err := s.selectList(ctx, ms, param, o)
	if err != nil {
		return nil, err
	}
	out := make(map[any]any, len(list))
	for _, row := range list {
		if row == nil {
			continue
		}
		key, err := s.cfg.Reflection.MetaObject(row).GetValue(property)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeReflection,
				"cannot read map key '"+property+"' of '"+ms.ID+"'", goerrors.CategoryBadInput)
		}
		out[key] = row
	}
	return out, nil
}

// Select streams the rows of a select to handler.
func (s *Session) Select(ctx context.Context, id string, param any, handler mapping.ResultHandler, opts ...Option) error {
	ms, err := s.statement(ctx, id)
	if err != nil {
		return err
	}
	return s.query(ctx, ms, param, newExecOptions(opts), handler)
}

func (s *Session) query(ctx context.Context, ms *mapping.MappedStatement, param any, o execOptions,
	handler mapping.ResultHandler) error {
	_, err := s.exec.Query(ctx, ms, param, o.rowBounds, handler)
	return err
}

func (s *Session) Insert(ctx context.Context, id string, param any) (int64, error) {
	return s.Update(ctx, id, param)
}

func (s *Session) Delete(ctx context.Context, id string, param any) (int64, error) {
	return s.Update(ctx, id, param)
}

// Update runs an insert, update or delete and returns the affected rows,
// or executor.BatchPending on a batch session.
func (s *Session) Update(ctx context.Context, id string, param any) (int64, error) {
	ms, err := s.statement(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.update(ctx, ms, param)
}

func (s *Session) update(ctx context.Context, ms *mapping.MappedStatement, param any) (int64, error) {
	s.dirty = true
	return s.exec.Update(ctx, ms, param)
}

// FlushStatements runs queued batch updates.
func (s *Session) FlushStatements(ctx context.Context) ([]executor.BatchResult, error) {
	return s.exec.FlushStatements(ctx)
}

// Commit ends the unit of work. Without force nothing is sent to the
// database unless the session wrote something.
func (s *Session) Commit(ctx context.Context, force bool) error {
	required := s.commitOrRollbackRequired(force)
	if err := s.exec.Commit(ctx, required); err != nil {
		return errs.Wrap(err, errs.CodeTransaction, "error committing session", goerrors.CategoryOperation)
	}
	s.dirty = false
	s.log.Debug("session committed", "required", required)
	return nil
}

// Rollback discards the unit of work.
func (s *Session) Rollback(ctx context.Context, force bool) error {
	required := s.commitOrRollbackRequired(force)
	if err := s.exec.Rollback(ctx, required); err != nil {
		return errs.Wrap(err, errs.CodeTransaction, "error rolling back session", goerrors.CategoryOperation)
	}
	s.dirty = false
	s.log.Debug("session rolled back", "required", required)
	return nil
}

// ClearCache drops the session's local cache.
func (s *Session) ClearCache() { s.exec.ClearLocalCache() }

// Close releases the session, rolling back uncommitted writes.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	err := s.exec.Close(ctx, s.commitOrRollbackRequired(false))
	s.closed = true
	s.dirty = false
	s.log.Debug("session closed")
	return err
}

// CreateCacheKey returns the key a select would be cached under.
func (s *Session) CreateCacheKey(ctx context.Context, id string, param any, rb mapping.RowBounds) (*cache.CacheKey, error) {
	ms, err := s.statement(ctx, id)
	if err != nil {
		return nil, err
	}
	bound, err := ms.BoundSQL(param)
	if err != nil {
		return nil, err
	}
	return s.exec.CreateCacheKey(ms, param, rb, bound), nil
}

func (s *Session) commitOrRollbackRequired(force bool) bool {
	return (!s.autoCommit && s.dirty) || force
}
