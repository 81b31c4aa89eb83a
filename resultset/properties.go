package resultset

import (
	"reflect"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/internal/logging"
	"github.com/goliatone/go-sqlmap/loader"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/reflection"
	"github.com/goliatone/go-sqlmap/types"
)

// autoMapping is a column matched to a property by name.
type autoMapping struct {
	column   string
	property string
	codec    types.Codec
	nilable  bool
}

func (m *Materializer) decode(raw any, codec types.Codec, column string) (any, error) {
	if raw == nil || codec == nil {
		return raw, nil
	}
	v, err := codec.Decode(raw)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeResultShape, "cannot decode column '"+column+"'", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"column": column})
	}
	return v, nil
}

func (m *Materializer) columnValue(cs *columnSet, column string, codec types.Codec) (any, error) {
	raw, _ := cs.raw(column)
	return m.decode(raw, codec, column)
}

// createResultObject instantiates the object of rm for the current row. It
// reports whether constructor arguments were taken from the row.
func (m *Materializer) createResultObject(cs *columnSet, rm *mapping.ResultMap, prefix string) (any, bool, error) {
	t := rm.Type
	factory := m.cfg.ObjectFactory

	switch {
	case m.isSingleValue(rm):
		v, err := m.singleValue(cs, rm, prefix)
		return v, false, err
	case len(rm.ConstructorMappings) > 0:
		return m.createWithConstructorMappings(cs, rm, prefix)
	case t.Kind() == reflect.Interface || factory.HasDefault(t):
		obj, err := factory.Create(t)
		return obj, false, err
	case m.shouldAutoMap(rm, false):
		obj, err := m.createByColumnTypes(cs, rm, prefix)
		return obj, obj != nil, err
	}
	return nil, false, errs.New(errs.CodeNoConstructor,
		"cannot create "+t.String()+" for result map '"+rm.ID+"': no default constructor and no constructor mappings",
		goerrors.CategoryValidation)
}

func (m *Materializer) singleValue(cs *columnSet, rm *mapping.ResultMap, prefix string) (any, error) {
	column := ""
	if len(rm.Mappings) > 0 {
		column = prependPrefix(rm.Mappings[0].Column, prefix)
	} else if len(cs.names) > 0 {
		column = cs.names[0]
	}
	codec, err := m.cfg.Codecs.MustLookup(rm.Type, "", "<result>", column)
	if err != nil {
		return nil, err
	}
	return m.columnValue(cs, column, codec)
}

func (m *Materializer) createWithConstructorMappings(cs *columnSet, rm *mapping.ResultMap, prefix string) (any, bool, error) {
	var (
		argTypes = make([]reflect.Type, 0, len(rm.ConstructorMappings))
		args     = make([]any, 0, len(rm.ConstructorMappings))
		found    bool
	)
	for _, cm := range rm.ConstructorMappings {
		var (
			value any
			err   error
		)
		switch {
		case cm.NestedQueryID != "":
			value, err = m.nestedQueryArgument(cs, cm, prefix)
		case cm.NestedResultMapID != "":
			var nrm *mapping.ResultMap
			if nrm, err = m.cfg.ResultMap(cm.NestedResultMapID); err == nil {
				value, err = m.rowValue(cs, nrm, joinPrefix(prefix, cm.ColumnPrefix))
			}
		default:
			value, err = m.columnValue(cs, prependPrefix(cm.Column, prefix), cm.Codec)
		}
		if err != nil {
			return nil, false, err
		}
		argTypes = append(argTypes, cm.GoType)
		args = append(args, value)
		found = found || value != nil
	}
	if !found {
		return nil, false, nil
	}
	obj, err := m.cfg.ObjectFactory.CreateWithArgs(rm.Type, argTypes, args)
	return obj, true, err
}

// createByColumnTypes calls the one registered constructor whose parameters
// accept the column types of the result set, in column order.
func (m *Materializer) createByColumnTypes(cs *columnSet, rm *mapping.ResultMap, prefix string) (any, error) {
	ctor, err := reflection.MatchConstructor(m.cfg.ObjectFactory, rm.Type, cs.types)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(cs.names))
	for i, name := range cs.names {
		codec, _ := m.cfg.Codecs.Lookup(ctor.Params[i], "")
		if args[i], err = m.columnValue(cs, name, codec); err != nil {
			return nil, err
		}
	}
	return m.cfg.ObjectFactory.CreateWithArgs(rm.Type, cs.types, args)
}

// applyAutoMappings copies unmapped columns onto same-named properties.
func (m *Materializer) applyAutoMappings(cs *columnSet, rm *mapping.ResultMap, meta *reflection.MetaObject, prefix string) (bool, error) {
	auto, err := m.autoMappings(cs, rm, meta, prefix)
	if err != nil {
		return false, err
	}
	found := false
	for _, am := range auto {
		value, err := m.columnValue(cs, am.column, am.codec)
		if err != nil {
			return false, err
		}
		if value != nil {
			found = true
		}
		if value != nil || (m.cfg.Settings.CallSettersOnNulls && am.nilable) {
			if err := meta.SetValue(am.property, value); err != nil {
				return false, m.propertyError(rm, am.property, am.column, err)
			}
		}
	}
	return found, nil
}

func (m *Materializer) autoMappings(cs *columnSet, rm *mapping.ResultMap, meta *reflection.MetaObject, prefix string) ([]autoMapping, error) {
	key := mapKey(rm, prefix)
	if auto, ok := cs.auto[key]; ok {
		return auto, nil
	}
	camel := m.cfg.Settings.MapUnderscoreToCamelCase
	lowerPrefix := strings.ToLower(prefix)
	auto := []autoMapping{}
	for _, column := range cs.unmappedColumns(rm, prefix) {
		name := column
		if lowerPrefix != "" {
			if !strings.HasPrefix(strings.ToLower(column), lowerPrefix) {
				continue
			}
			name = column[len(prefix):]
		}
		property, ok := meta.FindProperty(name, camel)
		if !ok || !meta.HasSetter(property) {
			if err := m.unknownColumn(rm, column, property, nil); err != nil {
				return nil, err
			}
			continue
		}
		if rm.IsMappedProperty(property) {
			continue
		}
		pt, err := meta.SetterType(property)
		if err != nil {
			return nil, err
		}
		am := autoMapping{column: column, property: property, nilable: nilable(pt)}
		if pt.Kind() != reflect.Interface {
			codec, ok := m.cfg.Codecs.Lookup(pt, "")
			if !ok {
				if err := m.unknownColumn(rm, column, property, pt); err != nil {
					return nil, err
				}
				continue
			}
			am.codec = codec
		}
		auto = append(auto, am)
	}
	cs.auto[key] = auto
	return auto, nil
}

func (m *Materializer) unknownColumn(rm *mapping.ResultMap, column, property string, pt reflect.Type) error {
	msg := "unknown column '" + column + "' for result map '" + rm.ID + "'"
	if pt != nil {
		msg = "no codec maps column '" + column + "' onto property '" + property + "' of type " + pt.String()
	}
	switch m.cfg.Settings.AutoMappingUnknownColumnBehavior {
	case mapping.UnknownColumnWarning:
		logging.WithStatement("resultset", m.opts.Statement.ID).Warn(msg,
			"result_map", rm.ID, "column", column, "property", property)
	case mapping.UnknownColumnFailing:
		return errs.New(errs.CodeInvalidMapping, msg, goerrors.CategoryValidation).
			WithMetadata(map[string]any{"result_map": rm.ID, "column": column})
	}
	return nil
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

// applyPropertyMappings assigns the declared column, composite, nested query
// and result set mappings of rm. Nested result maps are handled separately.
func (m *Materializer) applyPropertyMappings(cs *columnSet, rm *mapping.ResultMap, meta *reflection.MetaObject,
	prefix string) (bool, error) {
	mapped := cs.mappedColumns(rm, prefix)
	found := false
	for _, pm := range rm.PropertyMappings {
		column := prependPrefix(pm.Column, prefix)
		if pm.NestedResultMapID != "" && pm.ResultSet == "" {
			continue
		}
		_, isMapped := mapped[strings.ToLower(column)]
		if !pm.IsComposite() && !(column != "" && isMapped) && pm.ResultSet == "" {
			continue
		}
		value, err := m.propertyValue(cs, rm, meta, pm, prefix)
		if err != nil {
			return false, err
		}
		if value == deferred {
			found = true
			continue
		}
		if value != nil {
			found = true
		}
		if value != nil || (m.cfg.Settings.CallSettersOnNulls && pm.GoType != nil && nilable(pm.GoType)) {
			if err := meta.SetValue(pm.Property, value); err != nil {
				return false, m.propertyError(rm, pm.Property, pm.Column, err)
			}
		}
	}
	return found, nil
}

func (m *Materializer) propertyValue(cs *columnSet, rm *mapping.ResultMap, meta *reflection.MetaObject,
	pm *mapping.ResultMapping, prefix string) (any, error) {
	switch {
	case pm.NestedQueryID != "":
		return m.nestedQueryProperty(cs, meta, pm, prefix)
	case pm.ResultSet != "":
		if err := m.addPendingRelation(cs, rm, meta, pm); err != nil {
			return nil, err
		}
		return deferred, nil
	default:
		return m.columnValue(cs, prependPrefix(pm.Column, prefix), pm.Codec)
	}
}

func (m *Materializer) propertyError(rm *mapping.ResultMap, property, column string, err error) error {
	return errs.Wrap(err, errs.CodeReflection,
		"cannot set property '"+property+"' of result map '"+rm.ID+"'", goerrors.CategoryBadInput).
		WithMetadata(map[string]any{"result_map": rm.ID, "property": property, "column": column})
}

// nestedQueryArgument loads a constructor argument immediately.
func (m *Materializer) nestedQueryArgument(cs *columnSet, cm *mapping.ResultMapping, prefix string) (any, error) {
	ms, err := m.cfg.Statement(cm.NestedQueryID)
	if err != nil {
		return nil, err
	}
	param, err := m.nestedParameter(cs, ms, cm, prefix)
	if err != nil || param == nil {
		return nil, err
	}
	bound, err := ms.BoundSQL(param)
	if err != nil {
		return nil, err
	}
	key := m.opts.Executor.CreateCacheKey(ms, param, mapping.DefaultRowBounds, bound)
	rl := loader.NewResultLoader(m.cfg, m.opts.Executor, m.opts.Opener, ms, param, cm.GoType, key, bound)
	return rl.Load(m.ctx)
}

// nestedQueryProperty loads a property with another statement. A key the
// executor already holds is deferred to the end of the outermost query,
// lazy handles are bound to a loader, anything else loads now.
func (m *Materializer) nestedQueryProperty(cs *columnSet, meta *reflection.MetaObject, pm *mapping.ResultMapping,
	prefix string) (any, error) {
	ms, err := m.cfg.Statement(pm.NestedQueryID)
	if err != nil {
		return nil, err
	}
	param, err := m.nestedParameter(cs, ms, pm, prefix)
	if err != nil || param == nil {
		return nil, err
	}
	bound, err := ms.BoundSQL(param)
	if err != nil {
		return nil, err
	}
	exec := m.opts.Executor
	key := exec.CreateCacheKey(ms, param, mapping.DefaultRowBounds, bound)

	target := pm.GoType
	elem, isHandle := loader.ElemType(target)
	if isHandle {
		target = elem
	}

	if exec.IsCached(ms, key) {
		if err := exec.DeferLoad(ms, meta, pm.Property, key, target); err != nil {
			return nil, err
		}
		return deferred, nil
	}

	rl := loader.NewResultLoader(m.cfg, exec, m.opts.Opener, ms, param, target, key, bound)
	if isHandle && pm.Lazy {
		h, err := loader.NewHandle(pm.GoType, rl)
		if err != nil {
			return nil, err
		}
		if err := meta.SetValue(pm.Property, h); err != nil {
			return nil, err
		}
		return deferred, nil
	}

	value, err := rl.Load(m.ctx)
	if err != nil {
		return nil, err
	}
	if isHandle {
		return loader.NewResolvedHandle(pm.GoType, value)
	}
	return value, nil
}

// nestedParameter builds the parameter of a nested query from the row: the
// single column value, or an object filled from composite columns. It is
// nil when every source column is NULL.
func (m *Materializer) nestedParameter(cs *columnSet, ms *mapping.MappedStatement, pm *mapping.ResultMapping, prefix string) (any, error) {
	if !pm.IsComposite() {
		var codec types.Codec
		if ms.ParameterType != nil {
			codec, _ = m.cfg.Codecs.Lookup(ms.ParameterType, "")
		}
		return m.columnValue(cs, prependPrefix(pm.Column, prefix), codec)
	}

	var obj any = map[string]any{}
	if pt := ms.ParameterType; pt != nil && reflection.IsBean(pt) {
		created, err := m.cfg.ObjectFactory.Create(pt)
		if err != nil {
			return nil, err
		}
		obj = created
	}
	meta := m.cfg.Reflection.MetaObject(obj)
	found := false
	for _, c := range pm.Composites {
		var codec types.Codec
		if !meta.IsMap() {
			if pt, err := meta.SetterType(c.Property); err == nil {
				codec, _ = m.cfg.Codecs.Lookup(pt, "")
			}
		}
		value, err := m.columnValue(cs, prependPrefix(c.Column, prefix), codec)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}
		found = true
		if err := meta.SetValue(c.Property, value); err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, nil
	}
	return obj, nil
}
