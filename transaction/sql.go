package transaction

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlmap/internal/logging"
)

// SQL is a Transaction over a *sql.DB.
type SQL struct {
	db         *sql.DB
	opts       *sql.TxOptions
	autoCommit bool
	tx         *sql.Tx
}

// NewSQL creates a transaction on db. With autoCommit every statement runs
// directly on db.
func NewSQL(db *sql.DB, opts *sql.TxOptions, autoCommit bool) *SQL {
	return &SQL{db: db, opts: opts, autoCommit: autoCommit}
}

func (t *SQL) Conn(ctx context.Context) (bun.IConn, error) {
	if t.autoCommit {
		return t.db, nil
	}
	if t.tx == nil {
		tx, err := t.db.BeginTx(ctx, t.opts)
		if err != nil {
			return nil, txError(err, "begin")
		}
		logging.WithComponent("transaction").Debug("began transaction")
		t.tx = tx
	}
	return t.tx, nil
}

func (t *SQL) Commit(context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	logging.WithComponent("transaction").Debug("committing transaction")
	return txError(tx.Commit(), "commit")
}

func (t *SQL) Rollback(context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	logging.WithComponent("transaction").Debug("rolling back transaction")
	return txError(tx.Rollback(), "roll back")
}

func (t *SQL) Close(ctx context.Context) error {
	return t.Rollback(ctx)
}

// SQLFactory opens SQL transactions on DB.
type SQLFactory struct {
	DB *sql.DB
}

func (f SQLFactory) NewTransaction(opts *sql.TxOptions, autoCommit bool) Transaction {
	return NewSQL(f.DB, opts, autoCommit)
}
