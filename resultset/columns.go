package resultset

import (
	"reflect"
	"strings"

	"github.com/goliatone/go-sqlmap/mapping"
)

// columnSet describes the current result set and caches, per result map
// and column prefix, which of its columns are mapped.
type columnSet struct {
	cur   RowCursor
	names []string
	types []reflect.Type
	index map[string]int

	mapped   map[string]map[string]struct{}
	unmapped map[string][]string
	auto     map[string][]autoMapping
}

func newColumnSet(cur RowCursor) *columnSet {
	names := cur.Columns()
	cs := &columnSet{
		cur:      cur,
		names:    names,
		types:    cur.ColumnTypes(),
		index:    make(map[string]int, len(names)),
		mapped:   make(map[string]map[string]struct{}),
		unmapped: make(map[string][]string),
		auto:     make(map[string][]autoMapping),
	}
	for i, n := range names {
		key := strings.ToLower(n)
		if _, dup := cs.index[key]; !dup {
			cs.index[key] = i
		}
	}
	return cs
}

// raw returns the current value of column, matched case-insensitively.
func (cs *columnSet) raw(column string) (any, bool) {
	i, ok := cs.index[strings.ToLower(column)]
	if !ok {
		return nil, false
	}
	return cs.cur.Value(i), true
}

func (cs *columnSet) has(column string) bool {
	_, ok := cs.index[strings.ToLower(column)]
	return ok
}

func (cs *columnSet) typeOf(column string) reflect.Type {
	i, ok := cs.index[strings.ToLower(column)]
	if !ok || i >= len(cs.types) {
		return nil
	}
	return cs.types[i]
}

func mapKey(rm *mapping.ResultMap, prefix string) string {
	return rm.ID + ":" + strings.ToLower(prefix)
}

// mappedColumns returns the lower-cased columns of this result set that rm
// maps explicitly once prefix is applied.
func (cs *columnSet) mappedColumns(rm *mapping.ResultMap, prefix string) map[string]struct{} {
	key := mapKey(rm, prefix)
	if m, ok := cs.mapped[key]; ok {
		return m
	}
	cs.split(rm, prefix, key)
	return cs.mapped[key]
}

// unmappedColumns returns, in result set order, the columns rm does not map.
func (cs *columnSet) unmappedColumns(rm *mapping.ResultMap, prefix string) []string {
	key := mapKey(rm, prefix)
	if _, ok := cs.mapped[key]; !ok {
		cs.split(rm, prefix, key)
	}
	return cs.unmapped[key]
}

func (cs *columnSet) split(rm *mapping.ResultMap, prefix, key string) {
	declared := rm.MappedColumns()
	lowerPrefix := strings.ToLower(prefix)
	mapped := make(map[string]struct{})
	var unmapped []string
	for _, name := range cs.names {
		lower := strings.ToLower(name)
		col := lower
		if lowerPrefix != "" {
			if !strings.HasPrefix(lower, lowerPrefix) {
				unmapped = append(unmapped, name)
				continue
			}
			col = lower[len(lowerPrefix):]
		}
		if _, ok := declared[col]; ok {
			mapped[lower] = struct{}{}
		} else {
			unmapped = append(unmapped, name)
		}
	}
	cs.mapped[key] = mapped
	cs.unmapped[key] = unmapped
}

func prependPrefix(column, prefix string) string {
	if column == "" || prefix == "" {
		return column
	}
	return prefix + column
}

func joinPrefix(parent, own string) string {
	if own == "" {
		return parent
	}
	return parent + own
}
