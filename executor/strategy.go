package executor

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlmap/transaction"
)

// strategy runs statements on a connection.
type strategy interface {
	update(ctx context.Context, b *Base, conn bun.IConn, st *statement) (sql.Result, error)
	query(ctx context.Context, b *Base, conn bun.IConn, st *statement) (*sql.Rows, error)
	flush(ctx context.Context, b *Base, rollback bool) ([]BatchResult, error)
	close() error
}

// pending is the result of an update queued in a batch.
type pending struct{}

func (pending) LastInsertId() (int64, error) { return 0, nil }
func (pending) RowsAffected() (int64, error) { return BatchPending, nil }

var pendingResult sql.Result = pending{}

// simple runs every statement directly on the connection.
type simple struct{}

func (simple) update(ctx context.Context, _ *Base, conn bun.IConn, st *statement) (sql.Result, error) {
	return conn.ExecContext(ctx, st.sql, st.args...)
}

func (simple) query(ctx context.Context, _ *Base, conn bun.IConn, st *statement) (*sql.Rows, error) {
	return conn.QueryContext(ctx, st.sql, st.args...)
}

func (simple) flush(context.Context, *Base, bool) ([]BatchResult, error) { return nil, nil }

func (simple) close() error { return nil }

// reuse prepares each SQL text once and keeps the statement until the
// transaction ends. Connections that cannot prepare, or format arguments
// themselves, run statements directly.
type reuse struct {
	stmts map[string]*sql.Stmt
}

func newReuse() *reuse {
	return &reuse{stmts: make(map[string]*sql.Stmt)}
}

func (r *reuse) prepared(ctx context.Context, b *Base, conn bun.IConn, query string) (*sql.Stmt, error) {
	p, ok := conn.(transaction.Preparer)
	if !ok || transaction.Interpolates(conn) {
		return nil, nil
	}
	if s, ok := r.stmts[query]; ok {
		return s, nil
	}
	s, err := p.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	b.log.Debug("prepared statement", "sql", query)
	r.stmts[query] = s
	return s, nil
}

func (r *reuse) update(ctx context.Context, b *Base, conn bun.IConn, st *statement) (sql.Result, error) {
	s, err := r.prepared(ctx, b, conn, st.sql)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return conn.ExecContext(ctx, st.sql, st.args...)
	}
	return s.ExecContext(ctx, st.args...)
}

func (r *reuse) query(ctx context.Context, b *Base, conn bun.IConn, st *statement) (*sql.Rows, error) {
	s, err := r.prepared(ctx, b, conn, st.sql)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return conn.QueryContext(ctx, st.sql, st.args...)
	}
	return s.QueryContext(ctx, st.args...)
}

// flush closes the prepared statements, which do not survive the end of
// the transaction they were prepared on.
func (r *reuse) flush(context.Context, *Base, bool) ([]BatchResult, error) {
	return nil, r.close()
}

func (r *reuse) close() error {
	var errList []error
	for query, s := range r.stmts {
		if err := s.Close(); err != nil {
			errList = append(errList, err)
		}
		delete(r.stmts, query)
	}
	return errors.Join(errList...)
}
