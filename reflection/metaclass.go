package reflection

import (
	"reflect"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-sqlmap/errs"
)

// Property is one settable and gettable field of a mapped struct.
type Property struct {
	Name   string // Go field name
	Column string // name from the db tag, if any
	Index  []int  // field path, embedded structs included
	Type   reflect.Type
}

// MetaClass is the accessor table of a struct type. It is built once per
// type and shared by every row that maps onto that type.
type MetaClass struct {
	typ    reflect.Type
	props  []*Property
	byName map[string]*Property
	lookup map[string]*Property
}

// Registry caches MetaClass values by type.
type Registry struct {
	classes *xsync.MapOf[reflect.Type, *MetaClass]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: xsync.NewMapOf[reflect.Type, *MetaClass]()}
}

var defaultRegistry = NewRegistry()

// Default returns the process wide registry.
func Default() *Registry { return defaultRegistry }

// ForType returns the MetaClass for t, with pointers removed.
func (r *Registry) ForType(t reflect.Type) *MetaClass {
	t = Deref(t)
	if mc, ok := r.classes.Load(t); ok {
		return mc
	}
	mc, _ := r.classes.LoadOrStore(t, newMetaClass(t))
	return mc
}

func newMetaClass(t reflect.Type) *MetaClass {
	mc := &MetaClass{
		typ:    t,
		byName: make(map[string]*Property),
		lookup: make(map[string]*Property),
	}
	if t.Kind() != reflect.Struct {
		return mc
	}

	var walk func(t reflect.Type, base []int, forceInline bool)
	walk = func(t reflect.Type, base []int, forceInline bool) {
		t = Deref(t)
		if t.Kind() != reflect.Struct {
			return
		}
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if sf.PkgPath != "" && !sf.Anonymous {
				continue
			}
			tag := sf.Tag.Get("db")
			column, inline, omit := parseTag(tag)
			if omit {
				continue
			}
			path := append(append([]int(nil), base...), i)

			if inline || (sf.Anonymous && (forceInline || tag == "")) {
				if Deref(sf.Type).Kind() == reflect.Struct && !isValueStruct(Deref(sf.Type)) {
					walk(sf.Type, path, inline)
					continue
				}
			}
			if sf.PkgPath != "" {
				continue
			}
			if _, dup := mc.byName[sf.Name]; dup {
				continue
			}
			p := &Property{Name: sf.Name, Column: column, Index: path, Type: sf.Type}
			mc.props = append(mc.props, p)
			mc.byName[sf.Name] = p
			mc.alias(strings.ToLower(sf.Name), p)
			if column != "" {
				mc.alias(strings.ToLower(column), p)
			}
			mc.alias(ToSnake(sf.Name), p)
		}
	}
	walk(t, nil, false)
	return mc
}

func (mc *MetaClass) alias(key string, p *Property) {
	if _, ok := mc.lookup[key]; !ok {
		mc.lookup[key] = p
	}
}

// parseTag supports "-", "col", ",inline", "col,inline" and "inline,col".
func parseTag(tag string) (name string, inline bool, omit bool) {
	if tag == "-" {
		return "", false, true
	}
	if tag == "" {
		return "", false, false
	}
	for _, part := range strings.Split(tag, ",") {
		if part == "inline" {
			inline = true
		} else if part != "" && name == "" {
			name = part
		}
	}
	return name, inline, false
}

// Type returns the struct type described by mc.
func (mc *MetaClass) Type() reflect.Type { return mc.typ }

// Properties returns the properties in declaration order.
func (mc *MetaClass) Properties() []*Property { return mc.props }

// Property finds a property by Go name, then by any of its aliases ignoring
// case: the db tag, the lower-cased name or its snake_case form.
func (mc *MetaClass) Property(name string) (*Property, bool) {
	if p, ok := mc.byName[name]; ok {
		return p, true
	}
	p, ok := mc.lookup[normalizeColumn(name)]
	return p, ok
}

// FindProperty resolves a column label or a loosely spelled property path to
// the Go property path. With underscoreToCamel, underscores in the name are
// ignored so author_id finds AuthorID.
func (mc *MetaClass) FindProperty(name string, underscoreToCamel bool) (string, bool) {
	segments := strings.Split(name, ".")
	resolved := make([]string, 0, len(segments))
	cur := mc
	for i, seg := range segments {
		if cur == nil || cur.typ.Kind() != reflect.Struct {
			return "", false
		}
		p, ok := cur.Property(seg)
		if !ok && underscoreToCamel {
			p, ok = cur.Property(strings.ReplaceAll(seg, "_", ""))
		}
		if !ok {
			return "", false
		}
		resolved = append(resolved, p.Name)
		if i < len(segments)-1 {
			cur = defaultRegistry.ForType(p.Type)
		}
	}
	return strings.Join(resolved, "."), true
}

// HasProperty reports whether path names a property of mc.
func (mc *MetaClass) HasProperty(path string) bool {
	_, err := mc.PropertyType(path)
	return err == nil
}

// PropertyType returns the declared type at path. Map values report their
// element type and any further segments are not checked.
func (mc *MetaClass) PropertyType(path string) (reflect.Type, error) {
	t := mc.typ
	for _, seg := range parsePath(path) {
		t = Deref(t)
		switch t.Kind() {
		case reflect.Struct:
			p, ok := defaultRegistry.ForType(t).Property(seg.name)
			if !ok {
				return nil, noProperty(seg.name, t)
			}
			t = p.Type
		case reflect.Map:
			return t.Elem(), nil
		default:
			return nil, noProperty(seg.name, t)
		}
		if seg.indexed {
			t = Deref(t)
			switch t.Kind() {
			case reflect.Slice, reflect.Array, reflect.Map:
				t = t.Elem()
			default:
				return nil, noProperty(seg.name+"["+seg.index+"]", t)
			}
		}
	}
	return t, nil
}

func noProperty(name string, t reflect.Type) error {
	return errs.New(errs.CodeReflection,
		"there is no property named '"+name+"' in '"+t.String()+"'",
		goerrors.CategoryBadInput).
		WithMetadata(map[string]any{"property": name, "type": t.String()})
}

// Deref removes every pointer layer from t.
func Deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
