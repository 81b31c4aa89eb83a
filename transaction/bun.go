package transaction

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlmap/internal/logging"
)

// Bun is a Transaction over a bun.IDB. Statements run through bun, which
// formats the arguments into the SQL using its dialect.
type Bun struct {
	db         bun.IDB
	opts       *sql.TxOptions
	autoCommit bool
	tx         *bun.Tx
}

// NewBun creates a transaction on db. db may itself be a bun.Tx, in which
// case a savepoint is used.
func NewBun(db bun.IDB, opts *sql.TxOptions, autoCommit bool) *Bun {
	return &Bun{db: db, opts: opts, autoCommit: autoCommit}
}

func (t *Bun) Conn(ctx context.Context) (bun.IConn, error) {
	if t.autoCommit {
		return t.db, nil
	}
	if t.tx == nil {
		tx, err := t.db.BeginTx(ctx, t.opts)
		if err != nil {
			return nil, txError(err, "begin")
		}
		logging.WithComponent("transaction").Debug("began bun transaction")
		t.tx = &tx
	}
	return *t.tx, nil
}

func (t *Bun) Commit(context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	return txError(tx.Commit(), "commit")
}

func (t *Bun) Rollback(context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	return txError(tx.Rollback(), "roll back")
}

func (t *Bun) Close(ctx context.Context) error {
	return t.Rollback(ctx)
}

// BunFactory opens Bun transactions on DB.
type BunFactory struct {
	DB bun.IDB
}

func (f BunFactory) NewTransaction(opts *sql.TxOptions, autoCommit bool) Transaction {
	return NewBun(f.DB, opts, autoCommit)
}
