package resultset

import (
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/cache"
	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/reflection"
)

// pendingRelation is an owner waiting for rows of a later result set.
type pendingRelation struct {
	meta    *reflection.MetaObject
	mapping *mapping.ResultMapping
}

// pendingOwner is the mapping a later result set is linked through.
type pendingOwner struct {
	owner   *mapping.ResultMap
	mapping *mapping.ResultMapping
}

// addPendingRelation registers meta as waiting for the rows of pm's result
// set whose foreign columns equal the current values of pm's columns.
func (m *Materializer) addPendingRelation(cs *columnSet, rm *mapping.ResultMap, meta *reflection.MetaObject,
	pm *mapping.ResultMapping) error {
	key := relationKey(cs, rm.MappingKey(pm), mapping.Columns(pm.Column), mapping.Columns(pm.Column))
	m.pending[key.String()] = append(m.pending[key.String()], pendingRelation{meta: meta, mapping: pm})

	if prev, ok := m.nextResults[pm.ResultSet]; ok {
		if prev.mapping != pm {
			return errs.New(errs.CodeInvalidMapping,
				"result set '"+pm.ResultSet+"' is mapped by both '"+prev.owner.MappingKey(prev.mapping)+
					"' and '"+rm.MappingKey(pm)+"'", goerrors.CategoryValidation).
				WithMetadata(map[string]any{"result_set": pm.ResultSet})
		}
		return nil
	}
	m.nextResults[pm.ResultSet] = pendingOwner{owner: rm, mapping: pm}
	return nil
}

// linkToOwners links a row of a later result set into every owner whose
// columns match the row's foreign columns.
func (m *Materializer) linkToOwners(cs *columnSet, owner *pendingOwner, row any) error {
	pm := owner.mapping
	key := relationKey(cs, owner.owner.MappingKey(pm), mapping.Columns(pm.Column), mapping.Columns(pm.ForeignColumn))
	if row == nil {
		return nil
	}
	for _, rel := range m.pending[key.String()] {
		if err := m.link(rel.meta, rel.mapping, row); err != nil {
			return err
		}
	}
	return nil
}

// relationKey pairs owner column names with the values read from columns,
// so the owner side and the child side produce equal keys for linked rows.
func relationKey(cs *columnSet, mappingKey string, names, columns []string) *cache.CacheKey {
	key := cache.NewCacheKey(mappingKey)
	for i, c := range columns {
		if i >= len(names) {
			break
		}
		if v, _ := cs.raw(c); v != nil {
			key.UpdateAll(names[i], keyValue(v))
		}
	}
	return key
}
