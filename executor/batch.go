package executor

import (
	"context"
	"database/sql"
	"strconv"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/transaction"
)

// BatchResult reports one group of queued updates sharing a statement and
// SQL text.
type BatchResult struct {
	Statement    *mapping.MappedStatement
	SQL          string
	Parameters   []any
	UpdateCounts []int64
}

// BatchError reports the group that failed while flushing a batch. Results
// holds the groups that ran before it followed by the failing group, whose
// UpdateCounts and Parameters stop before Entry.
type BatchError struct {
	Results     []BatchResult
	Index       int
	Entry       int
	StatementID string
	SQL         string
	Err         error
}

func (e *BatchError) Error() string {
	return "batch group " + strconv.Itoa(e.Index) + " entry " + strconv.Itoa(e.Entry) +
		" (" + e.StatementID + ") failed: " + e.Err.Error()
}

func (e *BatchError) Unwrap() error { return e.Err }

type batchEntry struct {
	result BatchResult
	stmt   *sql.Stmt
	conn   bun.IConn
	args   [][]any
	outs   []*statement
}

// batch queues updates and runs them when flushed. Consecutive updates of
// the same statement and SQL share one prepared statement.
type batch struct {
	entries []*batchEntry
}

func (q *batch) update(ctx context.Context, b *Base, conn bun.IConn, st *statement) (sql.Result, error) {
	var last *batchEntry
	if n := len(q.entries); n > 0 {
		last = q.entries[n-1]
	}
	if last == nil || last.result.Statement != st.ms || last.result.SQL != st.sql {
		last = &batchEntry{
			result: BatchResult{Statement: st.ms, SQL: st.sql},
			conn:   conn,
		}
		if p, ok := conn.(transaction.Preparer); ok && !transaction.Interpolates(conn) {
			s, err := p.PrepareContext(ctx, st.sql)
			if err != nil {
				return nil, err
			}
			last.stmt = s
		}
		q.entries = append(q.entries, last)
	}
	last.result.Parameters = append(last.result.Parameters, st.param)
	last.args = append(last.args, st.args)
	last.outs = append(last.outs, st)
	return pendingResult, nil
}

// query runs the queued updates first so the select sees them.
func (q *batch) query(ctx context.Context, b *Base, conn bun.IConn, st *statement) (*sql.Rows, error) {
	if _, err := q.flush(ctx, b, false); err != nil {
		return nil, err
	}
	return conn.QueryContext(ctx, st.sql, st.args...)
}

func (q *batch) flush(ctx context.Context, b *Base, rollback bool) ([]BatchResult, error) {
	entries := q.entries
	q.entries = nil
	defer closeEntries(entries)
	if rollback || len(entries) == 0 {
		return nil, nil
	}

	results := make([]BatchResult, 0, len(entries))
	for i, e := range entries {
		for j, args := range e.args {
			res, err := e.exec(ctx, args)
			if err == nil {
				err = b.applyGeneratedKey(e.result.Statement, e.result.Parameters[j], res)
			}
			if err == nil {
				err = b.applyOutParameters(e.outs[j])
			}
			if err != nil {
				partial := e.result
				partial.Parameters = partial.Parameters[:j]
				results = append(results, partial)
				return results, batchError(results, i, j, e, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				n = -1
			}
			e.result.UpdateCounts = append(e.result.UpdateCounts, n)
		}
		b.log.Debug("<== Batch", "statement", e.result.Statement.ID, "updates", len(e.args))
		results = append(results, e.result)
	}
	return results, nil
}

func (e *batchEntry) exec(ctx context.Context, args []any) (sql.Result, error) {
	if e.stmt != nil {
		return e.stmt.ExecContext(ctx, args...)
	}
	return e.conn.ExecContext(ctx, e.result.SQL, args...)
}

func batchError(results []BatchResult, i, j int, e *batchEntry, err error) error {
	be := &BatchError{
		Results:     results,
		Index:       i,
		Entry:       j,
		StatementID: e.result.Statement.ID,
		SQL:         e.result.SQL,
		Err:         err,
	}
	return errs.Wrap(be, errs.CodeBatchFailed,
		"batch update of '"+be.StatementID+"' failed", goerrors.CategoryOperation).
		WithMetadata(map[string]any{"statement": be.StatementID, "index": i, "entry": j, "sql": be.SQL})
}

func closeEntries(entries []*batchEntry) {
	for _, e := range entries {
		if e.stmt != nil {
			_ = e.stmt.Close()
		}
	}
}

func (q *batch) close() error {
	closeEntries(q.entries)
	q.entries = nil
	return nil
}
