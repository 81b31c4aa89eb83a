package mapping

import (
	"fmt"
	"reflect"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/reflection"
	"github.com/goliatone/go-sqlmap/types"
)

type mappingFlag uint8

const (
	flagID mappingFlag = 1 << iota
	flagConstructor
)

// ResultMapping maps one column, a group of columns or a nested result onto
// a property or constructor argument.
type ResultMapping struct {
	Property string
	Column   string
	GoType   reflect.Type
	SQLType  string
	Codec    types.Codec

	// NestedResultMapID maps the same row onto a nested object.
	NestedResultMapID string
	// NestedQueryID loads the nested object with another statement.
	NestedQueryID string
	// Composites pass several columns to a nested query as an object.
	Composites []*ResultMapping
	// NotNullColumns skip the nested object when all of them are NULL.
	NotNullColumns []string
	ColumnPrefix   string

	// ResultSet names a later result set holding the nested rows, linked
	// through Column (owner side) and ForeignColumn (child side).
	ResultSet     string
	ForeignColumn string

	Lazy    bool
	lazySet bool

	// ElemType is the element type of a collection property.
	ElemType reflect.Type

	codecName  string
	flags      mappingFlag
	collection bool
}

// IsID reports whether the mapping is part of the row identity.
func (m *ResultMapping) IsID() bool { return m.flags&flagID != 0 }

// IsConstructorArg reports whether the mapping feeds the constructor.
func (m *ResultMapping) IsConstructorArg() bool { return m.flags&flagConstructor != 0 }

// IsCollection reports whether the property holds many nested objects.
func (m *ResultMapping) IsCollection() bool { return m.collection }

// IsComposite reports whether the mapping groups several columns.
func (m *ResultMapping) IsComposite() bool { return len(m.Composites) > 0 }

// Key identifies the mapping within a result map. It is stable across
// calls, so pending relations can be matched by it.
func (m *ResultMapping) key(ownerID string) string {
	name := m.Property
	if name == "" {
		name = "arg:" + m.Column
	}
	return ownerID + "." + name
}

// Columns splits a comma separated column list.
func Columns(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MappingOption configures a ResultMapping.
type MappingOption func(*ResultMapping)

// NestedMap maps the same row onto the nested result map id.
func NestedMap(id string) MappingOption {
	return func(m *ResultMapping) { m.NestedResultMapID = id }
}

// NestedQuery loads the property with the statement id.
func NestedQuery(id string) MappingOption {
	return func(m *ResultMapping) { m.NestedQueryID = id }
}

// Column sets the source column, or columns for result set links.
func Column(column string) MappingOption {
	return func(m *ResultMapping) { m.Column = column }
}

// Composite passes property=column pairs to a nested query.
//
//	mapping.Composite("BlogID", "blog_id", "AuthorID", "author_id")
func Composite(pairs ...string) MappingOption {
	return func(m *ResultMapping) {
		for i := 0; i+1 < len(pairs); i += 2 {
			m.Composites = append(m.Composites, &ResultMapping{Property: pairs[i], Column: pairs[i+1]})
		}
		if len(pairs)%2 == 1 {
			m.Composites = append(m.Composites, &ResultMapping{Property: pairs[len(pairs)-1]})
		}
	}
}

// NotNull lists the columns guarding a nested result.
func NotNull(columns ...string) MappingOption {
	return func(m *ResultMapping) { m.NotNullColumns = append(m.NotNullColumns, columns...) }
}

// Prefix sets the column prefix of a nested result.
func Prefix(prefix string) MappingOption {
	return func(m *ResultMapping) { m.ColumnPrefix = prefix }
}

// Lazy marks a nested query to load on demand.
func Lazy() MappingOption {
	return func(m *ResultMapping) { m.Lazy, m.lazySet = true, true }
}

// Eager forces a nested query to load with its owner.
func Eager() MappingOption {
	return func(m *ResultMapping) { m.Lazy, m.lazySet = false, true }
}

// GoType overrides the inferred Go type.
func GoType(t reflect.Type) MappingOption {
	return func(m *ResultMapping) { m.GoType = t }
}

// SQLType narrows codec resolution.
func SQLType(name string) MappingOption {
	return func(m *ResultMapping) { m.SQLType = name }
}

// WithCodec sets the codec explicitly.
func WithCodec(c types.Codec) MappingOption {
	return func(m *ResultMapping) { m.Codec = c }
}

// CodecName refers to a codec registered by name.
func CodecName(name string) MappingOption {
	return func(m *ResultMapping) { m.codecName = name }
}

// FromResultSet links the property to rows of a later result set.
func FromResultSet(name, foreignColumn string) MappingOption {
	return func(m *ResultMapping) {
		m.ResultSet = name
		m.ForeignColumn = foreignColumn
	}
}

// OfType sets the element type of a collection.
func OfType(t reflect.Type) MappingOption {
	return func(m *ResultMapping) { m.ElemType = t }
}

func newMapping(property, column string, flags mappingFlag, opts []MappingOption) *ResultMapping {
	m := &ResultMapping{Property: property, Column: column, flags: flags}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Result maps column onto property.
func Result(property, column string, opts ...MappingOption) *ResultMapping {
	return newMapping(property, column, 0, opts)
}

// ID maps an identity column onto property.
func ID(property, column string, opts ...MappingOption) *ResultMapping {
	return newMapping(property, column, flagID, opts)
}

// Arg passes column as the next constructor argument. Use GoType when the
// argument type differs from the column's.
func Arg(column string, opts ...MappingOption) *ResultMapping {
	return newMapping("", column, flagConstructor, opts)
}

// IDArg is an Arg that is also part of the row identity.
func IDArg(column string, opts ...MappingOption) *ResultMapping {
	return newMapping("", column, flagConstructor|flagID, opts)
}

// Association maps a single nested object onto property.
func Association(property string, opts ...MappingOption) *ResultMapping {
	return newMapping(property, "", 0, opts)
}

// Collection maps many nested objects onto a slice property.
func Collection(property string, opts ...MappingOption) *ResultMapping {
	m := newMapping(property, "", 0, opts)
	m.collection = true
	return m
}

// Discriminator picks a result map per row from a column value.
type Discriminator struct {
	Column  string
	GoType  reflect.Type
	SQLType string
	Codec   types.Codec
	Cases   map[string]string // value -> result map id
}

// NewDiscriminator switches on column. Cases are value, result map id pairs.
//
//	mapping.NewDiscriminator("vehicle_type", "1", "carMap", "2", "truckMap")
func NewDiscriminator(column string, cases ...string) *Discriminator {
	d := &Discriminator{Column: column, Cases: make(map[string]string, len(cases)/2)}
	for i := 0; i+1 < len(cases); i += 2 {
		d.Cases[cases[i]] = cases[i+1]
	}
	return d
}

// CaseFor returns the result map id for a decoded column value.
func (d *Discriminator) CaseFor(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	var key string
	switch v := value.(type) {
	case []byte:
		key = string(v)
	default:
		key = fmt.Sprint(v)
	}
	id, ok := d.Cases[key]
	return id, ok
}

// ResultMap describes how rows become objects of Type.
type ResultMap struct {
	ID            string
	Type          reflect.Type
	Discriminator *Discriminator
	// AutoMapping overrides Settings.AutoMappingBehavior when not nil.
	AutoMapping *bool
	Extends     string

	Mappings            []*ResultMapping
	IDMappings          []*ResultMapping
	ConstructorMappings []*ResultMapping
	PropertyMappings    []*ResultMapping

	mappedColumns       map[string]struct{}
	mappedProperties    map[string]struct{}
	hasNestedResultMaps bool
	hasNestedQueries    bool
	built               bool
}

// ResultMapOption configures a ResultMap.
type ResultMapOption func(*ResultMap)

// WithDiscriminator sets the discriminator.
func WithDiscriminator(d *Discriminator) ResultMapOption {
	return func(rm *ResultMap) { rm.Discriminator = d }
}

// Extends inherits mappings and discriminator from the parent map id.
func Extends(parent string) ResultMapOption {
	return func(rm *ResultMap) { rm.Extends = parent }
}

// AutoMapping forces auto-mapping on or off for this map.
func AutoMapping(enabled bool) ResultMapOption {
	return func(rm *ResultMap) { rm.AutoMapping = &enabled }
}

// Mappings adds mappings.
func Mappings(mappings ...*ResultMapping) ResultMapOption {
	return func(rm *ResultMap) { rm.Mappings = append(rm.Mappings, mappings...) }
}

// NewResultMap describes rows of type typ, given as a sample value or a
// reflect.Type.
//
//	mapping.NewResultMap("blog.blogMap", Blog{}, mapping.Mappings(
//		mapping.ID("ID", "blog_id"),
//		mapping.Result("Title", "blog_title"),
//		mapping.Collection("Posts", mapping.NestedMap("blog.postMap"), mapping.Prefix("post_")),
//	))
func NewResultMap(id string, typ any, opts ...ResultMapOption) *ResultMap {
	rm := &ResultMap{ID: id, Type: typeOf(typ)}
	for _, opt := range opts {
		opt(rm)
	}
	return rm
}

func typeOf(v any) reflect.Type {
	switch t := v.(type) {
	case nil:
		return nil
	case reflect.Type:
		return t
	default:
		return reflect.TypeOf(v)
	}
}

// HasNestedResultMaps reports whether any mapping maps the same row onto a
// nested result map.
func (rm *ResultMap) HasNestedResultMaps() bool { return rm.hasNestedResultMaps }

// HasNestedQueries reports whether any mapping runs a nested statement.
func (rm *ResultMap) HasNestedQueries() bool { return rm.hasNestedQueries }

// IsMapped reports whether a column is explicitly mapped, after prefix
// removal by the caller.
func (rm *ResultMap) IsMapped(column string) bool {
	_, ok := rm.mappedColumns[strings.ToLower(column)]
	return ok
}

// MappedColumns returns the lower-cased explicitly mapped columns.
func (rm *ResultMap) MappedColumns() map[string]struct{} { return rm.mappedColumns }

// IsMappedProperty reports whether a property is explicitly mapped.
func (rm *ResultMap) IsMappedProperty(property string) bool {
	_, ok := rm.mappedProperties[property]
	return ok
}

// MappingKey returns the stable id of m inside rm.
func (rm *ResultMap) MappingKey(m *ResultMapping) string { return m.key(rm.ID) }

func invalidMapping(rm *ResultMap, msg string) error {
	return errs.New(errs.CodeInvalidMapping, "result map '"+rm.ID+"': "+msg, goerrors.CategoryValidation).
		WithMetadata(map[string]any{"result_map": rm.ID})
}

// build resolves property types and codecs and indexes the mappings.
func (rm *ResultMap) build(cfg *Configuration, parent *ResultMap) error {
	if rm.ID == "" {
		return errs.New(errs.CodeInvalidMapping, "result map id is required", goerrors.CategoryValidation)
	}
	if rm.Type == nil {
		return invalidMapping(rm, "type is required")
	}
	if parent != nil {
		rm.inherit(parent)
	}

	rm.IDMappings, rm.ConstructorMappings, rm.PropertyMappings = nil, nil, nil
	rm.mappedColumns = make(map[string]struct{})
	rm.mappedProperties = make(map[string]struct{})
	rm.hasNestedResultMaps, rm.hasNestedQueries = false, false

	for _, m := range rm.Mappings {
		if err := rm.resolveMapping(cfg, m); err != nil {
			return err
		}
		if m.NestedResultMapID != "" && m.ResultSet == "" {
			rm.hasNestedResultMaps = true
		}
		if m.NestedQueryID != "" {
			rm.hasNestedQueries = true
		}
		if m.IsConstructorArg() {
			rm.ConstructorMappings = append(rm.ConstructorMappings, m)
		} else {
			rm.PropertyMappings = append(rm.PropertyMappings, m)
			rm.mappedProperties[m.Property] = struct{}{}
		}
		if m.IsID() {
			rm.IDMappings = append(rm.IDMappings, m)
		}
		if m.Column != "" && m.ResultSet == "" {
			rm.mappedColumns[strings.ToLower(m.Column)] = struct{}{}
		}
		for _, c := range m.Composites {
			rm.mappedColumns[strings.ToLower(c.Column)] = struct{}{}
		}
	}
	if len(rm.IDMappings) == 0 {
		rm.IDMappings = rm.Mappings
	}

	if d := rm.Discriminator; d != nil {
		if d.Column == "" {
			return invalidMapping(rm, "discriminator column is required")
		}
		if d.Codec == nil && d.GoType != nil {
			c, err := cfg.Codecs.MustLookup(d.GoType, d.SQLType, "<discriminator>", d.Column)
			if err != nil {
				return err
			}
			d.Codec = c
		}
		rm.mappedColumns[strings.ToLower(d.Column)] = struct{}{}
	}
	rm.built = true
	return nil
}

// inherit copies parent mappings the child does not override, and the
// parent's discriminator when the child has none.
func (rm *ResultMap) inherit(parent *ResultMap) {
	own := make(map[string]struct{}, len(rm.Mappings))
	for _, m := range rm.Mappings {
		if m.Property != "" {
			own[m.Property] = struct{}{}
		}
	}
	hasCtor := false
	for _, m := range rm.Mappings {
		if m.IsConstructorArg() {
			hasCtor = true
		}
	}
	merged := make([]*ResultMapping, 0, len(parent.Mappings)+len(rm.Mappings))
	for _, m := range parent.Mappings {
		if m.IsConstructorArg() && hasCtor {
			continue
		}
		if _, ok := own[m.Property]; ok && m.Property != "" {
			continue
		}
		cp := *m
		merged = append(merged, &cp)
	}
	rm.Mappings = append(merged, rm.Mappings...)
	if rm.Discriminator == nil {
		rm.Discriminator = parent.Discriminator
	}
	if rm.AutoMapping == nil {
		rm.AutoMapping = parent.AutoMapping
	}
}

func (rm *ResultMap) resolveMapping(cfg *Configuration, m *ResultMapping) error {
	if m.NestedResultMapID != "" && m.NestedQueryID != "" {
		return invalidMapping(rm, "property '"+m.Property+"' cannot use both a nested result map and a nested query")
	}
	if !m.IsConstructorArg() && m.Property == "" {
		return invalidMapping(rm, "mapping for column '"+m.Column+"' has no property")
	}
	if m.ResultSet != "" {
		if m.NestedResultMapID == "" {
			return invalidMapping(rm, "property '"+m.Property+"' names result set '"+m.ResultSet+"' without a nested result map")
		}
		if len(Columns(m.Column)) != len(Columns(m.ForeignColumn)) || len(Columns(m.Column)) == 0 {
			return invalidMapping(rm, "property '"+m.Property+"' must declare as many columns as foreign columns")
		}
	}
	if m.IsComposite() && m.NestedQueryID == "" {
		return invalidMapping(rm, "composite columns of '"+m.Property+"' need a nested query")
	}
	if !m.lazySet {
		m.Lazy = cfg.Settings.LazyLoadingEnabled && m.NestedQueryID != ""
	}

	if m.GoType == nil && m.Property != "" {
		t, err := propertyType(rm.Type, m.Property)
		if err != nil {
			return invalidMapping(rm, err.Error())
		}
		m.GoType = t
	}
	if m.IsConstructorArg() && m.GoType == nil && m.NestedResultMapID == "" && m.NestedQueryID == "" {
		return invalidMapping(rm, "constructor argument '"+m.Column+"' needs GoType")
	}
	if m.GoType != nil {
		base := reflection.Deref(m.GoType)
		if reflection.IsCollection(m.GoType) {
			m.collection = true
			if m.ElemType == nil {
				m.ElemType = base.Elem()
			}
		}
	}

	if m.codecName != "" {
		c, ok := cfg.Codecs.Named(m.codecName)
		if !ok {
			return errs.New(errs.CodeCodecNotFound,
				"result map '"+rm.ID+"': unknown codec '"+m.codecName+"' for property '"+m.Property+"'",
				goerrors.CategoryNotFound)
		}
		m.Codec = c
	}
	simple := m.NestedResultMapID == "" && m.NestedQueryID == "" && !m.IsComposite()
	if simple && m.Codec == nil && m.GoType != nil && m.GoType.Kind() != reflect.Interface {
		c, err := cfg.Codecs.MustLookup(m.GoType, m.SQLType, m.Property, m.Column)
		if err != nil {
			return err
		}
		m.Codec = c
	}
	for _, c := range m.Composites {
		if c.Column == "" {
			return invalidMapping(rm, "composite property '"+c.Property+"' of '"+m.Property+"' has no column")
		}
	}
	return nil
}

func propertyType(t reflect.Type, property string) (reflect.Type, error) {
	base := reflection.Deref(t)
	switch base.Kind() {
	case reflect.Map, reflect.Interface:
		return nil, nil
	case reflect.Struct:
		return reflection.Default().ForType(base).PropertyType(property)
	default:
		return nil, fmt.Errorf("type %s has no property '%s'", t, property)
	}
}
