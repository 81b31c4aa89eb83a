// Package transaction binds a unit of work to a database connection.
//
// A Transaction hands out the connection statements run on and ends the
// unit of work with Commit or Rollback. Three flavours exist:
//
//   - SQL runs on a *sql.DB, beginning a *sql.Tx lazily unless auto-commit
//   - Bun runs on a bun.IDB, beginning a bun.Tx lazily unless auto-commit
//   - Managed runs on a connection whose lifecycle belongs to the caller
//
// Connections are typed as bun.IConn, which *sql.DB, *sql.Tx, *sql.Conn and
// the bun connection types all satisfy.
package transaction

import (
	"context"
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlmap/errs"
)

// Transaction is the connection scope of one unit of work.
type Transaction interface {
	// Conn returns the connection to run statements on, beginning the
	// transaction on first use.
	Conn(ctx context.Context) (bun.IConn, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Close rolls back an open transaction and releases the connection.
	Close(ctx context.Context) error
}

// Factory opens transactions.
type Factory interface {
	NewTransaction(opts *sql.TxOptions, autoCommit bool) Transaction
}

// Preparer is implemented by connections able to prepare statements.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Interpolates reports whether conn formats arguments into the SQL text
// itself, as bun connections do. Such connections take ? markers and no
// driver-level arguments like sql.Out.
func Interpolates(conn bun.IConn) bool {
	_, ok := conn.(bun.IDB)
	return ok
}

func txError(err error, op string) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(err, errs.CodeTransaction, "cannot "+op+" transaction", goerrors.CategoryOperation)
}
