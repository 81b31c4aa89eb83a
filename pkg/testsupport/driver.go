package testsupport

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
)

// ResultSet is one scripted result set.
type ResultSet struct {
	Columns []string
	Rows    [][]driver.Value
}

// Response scripts the outcome of a statement. Queries return Sets, execs
// report RowsAffected and LastInsertID. Out values are written to sql.Out
// arguments by position.
type Response struct {
	Sets         []ResultSet
	RowsAffected int64
	LastInsertID int64
	Out          map[int]any
	Err          error
}

// Rows is a Response holding a single result set.
func Rows(columns []string, rows ...[]driver.Value) Response {
	return Response{Sets: []ResultSet{{Columns: columns, Rows: rows}}}
}

// Row builds a row.
func Row(values ...driver.Value) []driver.Value { return values }

// Call is one recorded driver interaction.
type Call struct {
	Kind  string // query, exec, prepare, begin, commit, rollback
	Query string
	Args  []any
}

type rule struct {
	contains string
	once     bool
	used     bool
	resp     Response
}

// Driver is an in-memory database/sql driver answering statements from
// scripted responses and recording every call.
type Driver struct {
	mu    sync.Mutex
	rules []*rule
	calls []Call
}

// NewDB returns a *sql.DB backed by a new Driver. The DB is closed when the
// test ends.
func NewDB(t testing.TB) (*sql.DB, *Driver) {
	t.Helper()
	d := &Driver{}
	db := sql.OpenDB(&connector{d: d})
	t.Cleanup(func() { _ = db.Close() })
	return db, d
}

// On answers every statement containing substr with resp. Rules are tried
// in registration order after one-shot rules.
func (d *Driver) On(substr string, resp Response) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = append(d.rules, &rule{contains: substr, resp: resp})
}

// Once answers the next statement containing substr with resp.
func (d *Driver) Once(substr string, resp Response) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = append(d.rules, &rule{contains: substr, resp: resp, once: true})
}

// Calls returns the recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallsOf returns the recorded calls of one kind.
func (d *Driver) CallsOf(kind string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many queries and execs contained substr.
func (d *Driver) Count(substr string) int {
	n := 0
	for _, c := range d.Calls() {
		if (c.Kind == "query" || c.Kind == "exec") && strings.Contains(c.Query, substr) {
			n++
		}
	}
	return n
}

// Reset drops the recorded calls.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

func (d *Driver) record(kind, query string, args []driver.NamedValue) {
	values := make([]any, len(args))
	for i, a := range args {
		values[i] = a.Value
	}
	d.mu.Lock()
	d.calls = append(d.calls, Call{Kind: kind, Query: query, Args: values})
	d.mu.Unlock()
}

func (d *Driver) respond(query string) Response {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.rules {
		if r.once && !r.used && strings.Contains(query, r.contains) {
			r.used = true
			return r.resp
		}
	}
	for _, r := range d.rules {
		if !r.once && strings.Contains(query, r.contains) {
			return r.resp
		}
	}
	return Response{}
}

func (d *Driver) query(query string, args []driver.NamedValue) (driver.Rows, error) {
	d.record("query", query, args)
	resp := d.respond(query)
	if resp.Err != nil {
		return nil, resp.Err
	}
	if err := writeOut(args, resp.Out); err != nil {
		return nil, err
	}
	sets := resp.Sets
	if len(sets) == 0 {
		sets = []ResultSet{{}}
	}
	return &rows{sets: sets}, nil
}

func (d *Driver) exec(query string, args []driver.NamedValue) (driver.Result, error) {
	d.record("exec", query, args)
	resp := d.respond(query)
	if resp.Err != nil {
		return nil, resp.Err
	}
	if err := writeOut(args, resp.Out); err != nil {
		return nil, err
	}
	return result{affected: resp.RowsAffected, lastID: resp.LastInsertID}, nil
}

func writeOut(args []driver.NamedValue, out map[int]any) error {
	for _, a := range args {
		o, ok := a.Value.(sql.Out)
		if !ok {
			continue
		}
		v, ok := out[a.Ordinal]
		if !ok {
			continue
		}
		dest := reflect.ValueOf(o.Dest)
		if dest.Kind() != reflect.Pointer || dest.IsNil() {
			return errors.New("testsupport: sql.Out destination must be a pointer")
		}
		if v == nil {
			dest.Elem().Set(reflect.Zero(dest.Elem().Type()))
			continue
		}
		dest.Elem().Set(reflect.ValueOf(v).Convert(dest.Elem().Type()))
	}
	return nil
}

type connector struct{ d *Driver }

func (c *connector) Connect(context.Context) (driver.Conn, error) { return &conn{d: c.d}, nil }
func (c *connector) Driver() driver.Driver                        { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("testsupport: use NewDB")
}

type conn struct{ d *Driver }

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *conn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	c.d.record("prepare", query, nil)
	return &stmt{d: c.d, query: query}, nil
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.d.record("begin", "", nil)
	return tx{d: c.d}, nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.d.query(query, args)
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return c.d.exec(query, args)
}

// CheckNamedValue accepts every argument, sql.Out included.
func (c *conn) CheckNamedValue(*driver.NamedValue) error { return nil }

type tx struct{ d *Driver }

func (t tx) Commit() error {
	t.d.record("commit", "", nil)
	return nil
}

func (t tx) Rollback() error {
	t.d.record("rollback", "", nil)
	return nil
}

type stmt struct {
	d     *Driver
	query string
}

func (s *stmt) Close() error  { return nil }
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.d.exec(s.query, named(args))
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.d.query(s.query, named(args))
}

func (s *stmt) ExecContext(_ context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.d.exec(s.query, args)
}

func (s *stmt) QueryContext(_ context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.d.query(s.query, args)
}

func (s *stmt) CheckNamedValue(*driver.NamedValue) error { return nil }

func named(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, a := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: a}
	}
	return out
}

type result struct {
	affected int64
	lastID   int64
}

func (r result) LastInsertId() (int64, error) { return r.lastID, nil }
func (r result) RowsAffected() (int64, error) { return r.affected, nil }

type rows struct {
	sets []ResultSet
	set  int
	i    int
}

func (r *rows) Columns() []string {
	return append([]string(nil), r.sets[r.set].Columns...)
}

func (r *rows) Close() error { return nil }

func (r *rows) Next(dest []driver.Value) error {
	data := r.sets[r.set].Rows
	if r.i >= len(data) {
		return io.EOF
	}
	row := data[r.i]
	for i := range dest {
		if i < len(row) {
			dest[i] = row[i]
		} else {
			dest[i] = nil
		}
	}
	r.i++
	return nil
}

func (r *rows) HasNextResultSet() bool { return r.set+1 < len(r.sets) }

func (r *rows) NextResultSet() error {
	if !r.HasNextResultSet() {
		return io.EOF
	}
	r.set++
	r.i = 0
	return nil
}

// ColumnTypeScanType reports the type of the first non-nil value of a
// column.
func (r *rows) ColumnTypeScanType(index int) reflect.Type {
	for _, row := range r.sets[r.set].Rows {
		if index < len(row) && row[index] != nil {
			return reflect.TypeOf(row[index])
		}
	}
	return reflect.TypeOf((*any)(nil)).Elem()
}
