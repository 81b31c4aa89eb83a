package resultset

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/goliatone/go-sqlmap/cache"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/reflection"
)

// handleNestedRows maps rows of a result map with nested result maps. Rows
// with the same identity key extend the object of the first one.
func (m *Materializer) handleNestedRows(cs *columnSet, rm *mapping.ResultMap, handler mapping.ResultHandler,
	bounds mapping.RowBounds, owner *pendingOwner) error {
	rc := &mapping.ResultContext{}
	ordered := m.opts.Statement.ResultOrdered
	skipRows(cs.cur, bounds.Offset)

	var row any
	for shouldProcessMore(rc, bounds) && cs.cur.Next() {
		effective, err := m.resolveDiscriminator(cs, rm, "")
		if err != nil {
			return err
		}
		key := m.rowKey(cs, effective, "")
		partial := m.known(key)

		if ordered {
			if partial == nil && row != nil {
				m.nested = make(map[string]any)
				if err := m.store(cs, rc, handler, row, owner); err != nil {
					return err
				}
			}
			if row, err = m.nestedRowValue(cs, effective, key, "", partial); err != nil {
				return err
			}
			continue
		}
		if row, err = m.nestedRowValue(cs, effective, key, "", partial); err != nil {
			return err
		}
		if partial == nil {
			if err := m.store(cs, rc, handler, row, owner); err != nil {
				return err
			}
		}
	}
	if ordered && row != nil && shouldProcessMore(rc, bounds) {
		return m.store(cs, rc, handler, row, owner)
	}
	return nil
}

func (m *Materializer) known(key *cache.CacheKey) any {
	if key == cache.NullKey {
		return nil
	}
	return m.nested[key.String()]
}

func (m *Materializer) remember(key *cache.CacheKey, row any) {
	if key != cache.NullKey {
		m.nested[key.String()] = row
	}
}

// nestedRowValue builds or extends the object of rm for the current row.
// partial is the object an earlier row with the same key produced.
func (m *Materializer) nestedRowValue(cs *columnSet, rm *mapping.ResultMap, key *cache.CacheKey, prefix string, partial any) (any, error) {
	if partial != nil {
		meta := m.cfg.Reflection.MetaObject(partial)
		m.ancestors[rm.ID] = partial
		_, err := m.applyNestedMappings(cs, rm, meta, prefix, key, false)
		delete(m.ancestors, rm.ID)
		return partial, err
	}

	row, found, err := m.createResultObject(cs, rm, prefix)
	if err != nil {
		return nil, err
	}
	if row != nil && !m.isSingleValue(rm) {
		meta := m.cfg.Reflection.MetaObject(row)
		if m.shouldAutoMap(rm, true) {
			ok, err := m.applyAutoMappings(cs, rm, meta, prefix)
			if err != nil {
				return nil, err
			}
			found = ok || found
		}
		ok, err := m.applyPropertyMappings(cs, rm, meta, prefix)
		if err != nil {
			return nil, err
		}
		found = ok || found

		m.ancestors[rm.ID] = row
		ok, err = m.applyNestedMappings(cs, rm, meta, prefix, key, true)
		delete(m.ancestors, rm.ID)
		if err != nil {
			return nil, err
		}
		found = ok || found
		if !found && !m.cfg.Settings.ReturnInstanceForEmptyRow {
			row = nil
		}
	}
	if row != nil {
		m.remember(key, row)
	}
	return row, nil
}

// applyNestedMappings maps the nested result maps of rm from the current
// row and links the nested objects into meta.
func (m *Materializer) applyNestedMappings(cs *columnSet, rm *mapping.ResultMap, meta *reflection.MetaObject,
	parentPrefix string, parentKey *cache.CacheKey, newObject bool) (bool, error) {
	found := false
	for _, pm := range rm.PropertyMappings {
		if pm.NestedResultMapID == "" || pm.ResultSet != "" {
			continue
		}
		prefix := joinPrefix(parentPrefix, pm.ColumnPrefix)
		nrm, err := m.nestedResultMap(cs, pm.NestedResultMapID, prefix)
		if err != nil {
			return false, err
		}

		if pm.ColumnPrefix == "" {
			if ancestor, ok := m.ancestors[nrm.ID]; ok {
				if newObject {
					if err := m.link(meta, pm, ancestor); err != nil {
						return false, err
					}
				}
				continue
			}
		}

		key := combineKeys(m.rowKey(cs, nrm, prefix), parentKey)
		row := m.known(key)
		seen := row != nil
		if pm.IsCollection() && !meta.IsMap() {
			if _, err := meta.Instantiate(pm.Property); err != nil {
				return false, err
			}
		}
		if !m.anyNotNull(cs, pm, prefix) {
			continue
		}
		row, err = m.nestedRowValue(cs, nrm, key, prefix, row)
		if err != nil {
			return false, err
		}
		if row != nil && !seen {
			if err := m.link(meta, pm, row); err != nil {
				return false, err
			}
			found = true
		}
	}
	return found, nil
}

// anyNotNull reports whether the nested result of pm is present in the row:
// one of its guard columns is not NULL or, without guards but with a
// prefix, one of the prefixed columns is not NULL.
func (m *Materializer) anyNotNull(cs *columnSet, pm *mapping.ResultMapping, prefix string) bool {
	if len(pm.NotNullColumns) > 0 {
		for _, c := range pm.NotNullColumns {
			if v, _ := cs.raw(prependPrefix(c, prefix)); v != nil {
				return true
			}
		}
		return false
	}
	if prefix == "" {
		return true
	}
	lower := strings.ToLower(prefix)
	for i, name := range cs.names {
		if strings.HasPrefix(strings.ToLower(name), lower) && cs.cur.Value(i) != nil {
			return true
		}
	}
	return false
}

// link stores a nested object in its owner: appended for collections,
// assigned otherwise.
func (m *Materializer) link(meta *reflection.MetaObject, pm *mapping.ResultMapping, row any) error {
	if !pm.IsCollection() {
		return meta.SetValue(pm.Property, row)
	}
	if meta.IsMap() {
		current, err := meta.GetValue(pm.Property)
		if err != nil {
			return err
		}
		list, _ := current.([]any)
		return meta.SetValue(pm.Property, append(list, row))
	}
	return meta.AddTo(pm.Property, row)
}

// rowKey identifies the object rm builds from the current row: the result
// map id plus the values of its id columns, or of every mapped column when
// it declares none. Keys with nothing but the id never match.
func (m *Materializer) rowKey(cs *columnSet, rm *mapping.ResultMap, prefix string) *cache.CacheKey {
	key := cache.NewCacheKey(rm.ID)
	switch {
	case len(rm.Mappings) > 0:
		m.mappedRowKey(cs, rm, key, rm.IDMappings, prefix)
	case reflection.Deref(rm.Type).Kind() == reflect.Map || rm.Type.Kind() == reflect.Interface:
		for i, name := range cs.names {
			if v := cs.cur.Value(i); v != nil {
				key.UpdateAll(name, keyValue(v))
			}
		}
	default:
		m.unmappedRowKey(cs, rm, key, prefix)
	}
	if key.Count() < 2 {
		return cache.NullKey
	}
	return key
}

func (m *Materializer) mappedRowKey(cs *columnSet, rm *mapping.ResultMap, key *cache.CacheKey,
	mappings []*mapping.ResultMapping, prefix string) {
	mapped := cs.mappedColumns(rm, prefix)
	for _, pm := range mappings {
		switch {
		case pm.NestedResultMapID != "" && pm.ResultSet == "":
			nrm, err := m.cfg.ResultMap(pm.NestedResultMapID)
			if err != nil {
				continue
			}
			m.mappedRowKey(cs, nrm, key, nrm.ConstructorMappings, joinPrefix(prefix, pm.ColumnPrefix))
		case pm.NestedQueryID == "":
			column := prependPrefix(pm.Column, prefix)
			if column == "" {
				continue
			}
			if _, ok := mapped[strings.ToLower(column)]; !ok {
				continue
			}
			v, _ := cs.raw(column)
			if v != nil || m.cfg.Settings.ReturnInstanceForEmptyRow {
				key.UpdateAll(column, keyValue(v))
			}
		}
	}
}

func (m *Materializer) unmappedRowKey(cs *columnSet, rm *mapping.ResultMap, key *cache.CacheKey, prefix string) {
	mc := m.cfg.Reflection.ForType(reflection.Deref(rm.Type))
	lower := strings.ToLower(prefix)
	for _, column := range cs.unmappedColumns(rm, prefix) {
		name := column
		if lower != "" {
			if !strings.HasPrefix(strings.ToLower(column), lower) {
				continue
			}
			name = column[len(prefix):]
		}
		if _, ok := mc.FindProperty(name, m.cfg.Settings.MapUnderscoreToCamelCase); !ok {
			continue
		}
		if v, _ := cs.raw(column); v != nil {
			key.UpdateAll(column, keyValue(v))
		}
	}
}

// combineKeys scopes a nested key to its parent. Either key being NullKey
// makes the result NullKey.
func combineKeys(key, parent *cache.CacheKey) *cache.CacheKey {
	if key.Count() > 1 && parent.Count() > 1 {
		combined := key.Clone()
		combined.Update(parent)
		return combined
	}
	return cache.NullKey
}

// keyValue normalizes a column value so drivers returning text as bytes
// produce stable keys.
func keyValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case nil:
		return nil
	default:
		return fmt.Sprint(x)
	}
}
