package transaction

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// Managed is a Transaction over a connection owned by the caller, such as a
// *sql.Tx begun by surrounding code. Commit, Rollback and Close leave the
// connection untouched.
type Managed struct {
	conn bun.IConn
}

// NewManaged wraps conn.
func NewManaged(conn bun.IConn) *Managed { return &Managed{conn: conn} }

func (t *Managed) Conn(context.Context) (bun.IConn, error) { return t.conn, nil }
func (t *Managed) Commit(context.Context) error            { return nil }
func (t *Managed) Rollback(context.Context) error          { return nil }
func (t *Managed) Close(context.Context) error             { return nil }

// ManagedFactory hands out Managed transactions over Conn.
type ManagedFactory struct {
	Conn bun.IConn
}

func (f ManagedFactory) NewTransaction(*sql.TxOptions, bool) Transaction {
	return NewManaged(f.Conn)
}
