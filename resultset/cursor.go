// Package resultset turns database rows into objects following result maps.
//
// The Materializer reads a RowCursor result set by result set. Simple result
// maps produce one object per row. Result maps with nested result maps
// deduplicate rows by their identity key, so the rows of a join collapse
// into one owner carrying its collections. Nested queries run through the
// executor, immediately, at the end of the outermost statement or lazily.
package resultset

import (
	"database/sql"
	"reflect"
)

// RowCursor is a forward-only view over one or more result sets.
type RowCursor interface {
	// Next advances to the next row of the current result set.
	Next() bool
	Columns() []string
	// ColumnTypes returns the Go scan type per column, nil when unknown.
	ColumnTypes() []reflect.Type
	// Value returns the value of column i in the current row.
	Value(i int) any
	// NextResultSet moves to the next result set.
	NextResultSet() bool
	Err() error
	Close() error
}

// SQLCursor is a RowCursor over *sql.Rows.
type SQLCursor struct {
	rows    *sql.Rows
	columns []string
	types   []reflect.Type
	values  []any
	dest    []any
	err     error
}

// NewSQLCursor wraps rows. The cursor owns rows and closes them.
func NewSQLCursor(rows *sql.Rows) *SQLCursor {
	c := &SQLCursor{rows: rows}
	c.describe()
	return c
}

func (c *SQLCursor) describe() {
	c.columns, c.err = c.rows.Columns()
	if c.err != nil {
		return
	}
	c.types = make([]reflect.Type, len(c.columns))
	if cts, err := c.rows.ColumnTypes(); err == nil {
		for i, ct := range cts {
			if i < len(c.types) {
				c.types[i] = ct.ScanType()
			}
		}
	}
	c.values = make([]any, len(c.columns))
	c.dest = make([]any, len(c.columns))
	for i := range c.dest {
		c.dest[i] = &c.values[i]
	}
}

func (c *SQLCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	for i := range c.values {
		c.values[i] = nil
	}
	if err := c.rows.Scan(c.dest...); err != nil {
		c.err = err
		return false
	}
	return true
}

func (c *SQLCursor) Columns() []string { return c.columns }

func (c *SQLCursor) ColumnTypes() []reflect.Type { return c.types }

func (c *SQLCursor) Value(i int) any {
	if i < 0 || i >= len(c.values) {
		return nil
	}
	return c.values[i]
}

func (c *SQLCursor) NextResultSet() bool {
	if c.err != nil || !c.rows.NextResultSet() {
		return false
	}
	c.describe()
	return c.err == nil
}

func (c *SQLCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *SQLCursor) Close() error { return c.rows.Close() }

// SliceCursor is a RowCursor over rows held in memory.
type SliceCursor struct {
	sets []SliceSet
	set  int
	row  int
}

// SliceSet is one in-memory result set.
type SliceSet struct {
	Columns []string
	Types   []reflect.Type
	Rows    [][]any
}

// NewSliceCursor returns a cursor over sets.
func NewSliceCursor(sets ...SliceSet) *SliceCursor {
	return &SliceCursor{sets: sets, row: -1}
}

func (c *SliceCursor) current() *SliceSet {
	if c.set >= len(c.sets) {
		return nil
	}
	return &c.sets[c.set]
}

func (c *SliceCursor) Next() bool {
	s := c.current()
	if s == nil || c.row+1 >= len(s.Rows) {
		return false
	}
	c.row++
	return true
}

func (c *SliceCursor) Columns() []string {
	if s := c.current(); s != nil {
		return s.Columns
	}
	return nil
}

func (c *SliceCursor) ColumnTypes() []reflect.Type {
	s := c.current()
	if s == nil {
		return nil
	}
	if len(s.Types) == len(s.Columns) {
		return s.Types
	}
	types := make([]reflect.Type, len(s.Columns))
	for _, row := range s.Rows {
		for i := range types {
			if types[i] == nil && i < len(row) && row[i] != nil {
				types[i] = reflect.TypeOf(row[i])
			}
		}
	}
	s.Types = types
	return types
}

func (c *SliceCursor) Value(i int) any {
	s := c.current()
	if s == nil || c.row < 0 || c.row >= len(s.Rows) || i < 0 || i >= len(s.Rows[c.row]) {
		return nil
	}
	return s.Rows[c.row][i]
}

func (c *SliceCursor) NextResultSet() bool {
	if c.set+1 >= len(c.sets) {
		c.set = len(c.sets)
		return false
	}
	c.set++
	c.row = -1
	return true
}

func (c *SliceCursor) Err() error   { return nil }
func (c *SliceCursor) Close() error { return nil }
