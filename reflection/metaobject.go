package reflection

import (
	"reflect"
	"strconv"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
)

// MetaObject reads and writes properties of a value by path. Structs are
// addressed through their MetaClass, maps by key, slices by index:
//
//	mo := reflection.Of(&blog)
//	_ = mo.SetValue("Author.Name", "jane")
//	name, _ := mo.GetValue("author.name")
//
// Writes allocate nil pointers and maps along the path. Writes into a struct
// passed by value only change the MetaObject's private copy.
type MetaObject struct {
	original any
	root     reflect.Value
	registry *Registry
}

// Of wraps obj using the default registry.
func Of(obj any) *MetaObject { return defaultRegistry.MetaObject(obj) }

// MetaObject wraps obj.
func (r *Registry) MetaObject(obj any) *MetaObject {
	mo := &MetaObject{original: obj, registry: r}
	if obj == nil {
		return mo
	}
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return mo
		}
		mo.root = rv.Elem()
	case reflect.Struct, reflect.Array:
		cp := reflect.New(rv.Type()).Elem()
		cp.Set(rv)
		mo.root = cp
	default:
		mo.root = rv
	}
	return mo
}

// Object returns the wrapped value.
func (m *MetaObject) Object() any { return m.original }

// IsNil reports whether the wrapped value is nil.
func (m *MetaObject) IsNil() bool { return !m.root.IsValid() }

// Type returns the type of the wrapped value with pointers removed.
func (m *MetaObject) Type() reflect.Type {
	if !m.root.IsValid() {
		return nil
	}
	return m.root.Type()
}

// IsMap reports whether the wrapped value is a map.
func (m *MetaObject) IsMap() bool {
	return m.root.IsValid() && m.root.Kind() == reflect.Map
}

// IsCollection reports whether the wrapped value is a slice or array.
func (m *MetaObject) IsCollection() bool {
	return m.root.IsValid() && IsCollection(m.root.Type())
}

// MetaClass returns the accessor table of the wrapped struct, or nil.
func (m *MetaObject) MetaClass() *MetaClass {
	if !m.root.IsValid() || m.root.Kind() != reflect.Struct {
		return nil
	}
	return m.registry.ForType(m.root.Type())
}

// FindProperty resolves a column label to a property path. Maps accept any
// name as is.
func (m *MetaObject) FindProperty(name string, underscoreToCamel bool) (string, bool) {
	if m.IsMap() {
		return name, true
	}
	mc := m.MetaClass()
	if mc == nil {
		return "", false
	}
	return mc.FindProperty(name, underscoreToCamel)
}

// GetValue returns the value at path. Missing map keys, nil pointers along
// the way and nil references yield nil without error.
func (m *MetaObject) GetValue(path string) (any, error) {
	v, err := m.lookup(path)
	if err != nil || IsNil(v) {
		return nil, err
	}
	return v.Interface(), nil
}

// HasGetter reports whether path can be read.
func (m *MetaObject) HasGetter(path string) bool {
	if m.IsMap() {
		return true
	}
	mc := m.MetaClass()
	return mc != nil && mc.HasProperty(path)
}

// HasSetter reports whether path can be written.
func (m *MetaObject) HasSetter(path string) bool {
	if !m.root.IsValid() {
		return false
	}
	if m.IsMap() {
		return true
	}
	mc := m.MetaClass()
	return mc != nil && m.root.CanAddr() && mc.HasProperty(path)
}

// SetterType returns the type a value written to path must convert to.
// Map entries report their current value's type, or the map element type.
func (m *MetaObject) SetterType(path string) (reflect.Type, error) {
	if !m.root.IsValid() {
		return nil, errs.New(errs.CodeReflection, "cannot resolve '"+path+"' on a nil object", goerrors.CategoryBadInput)
	}
	if m.IsMap() {
		if v, err := m.lookup(path); err == nil && !IsNil(v) {
			return v.Type(), nil
		}
		return m.root.Type().Elem(), nil
	}
	mc := m.MetaClass()
	if mc == nil {
		return nil, noProperty(path, m.root.Type())
	}
	return mc.PropertyType(path)
}

// GetterType is SetterType for reads.
func (m *MetaObject) GetterType(path string) (reflect.Type, error) {
	return m.SetterType(path)
}

func (m *MetaObject) lookup(path string) (reflect.Value, error) {
	cur := m.root
	for _, seg := range parsePath(path) {
		cur = Indirect(cur)
		if !cur.IsValid() {
			return reflect.Value{}, nil
		}
		next, err := m.child(cur, seg.name)
		if err != nil {
			return reflect.Value{}, err
		}
		if seg.indexed {
			next, err = indexValue(Indirect(next), seg.index)
			if err != nil {
				return reflect.Value{}, err
			}
		}
		cur = next
	}
	return cur, nil
}

func (m *MetaObject) child(cur reflect.Value, name string) (reflect.Value, error) {
	switch cur.Kind() {
	case reflect.Struct:
		p, ok := m.registry.ForType(cur.Type()).Property(name)
		if !ok {
			return reflect.Value{}, noProperty(name, cur.Type())
		}
		return fieldByIndex(cur, p.Index), nil
	case reflect.Map:
		key, err := mapKey(name, cur.Type().Key())
		if err != nil {
			return reflect.Value{}, err
		}
		return cur.MapIndex(key), nil
	default:
		return reflect.Value{}, noProperty(name, cur.Type())
	}
}

// fieldByIndex walks an embedded field path and stops at nil pointers.
func fieldByIndex(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 {
			v = Indirect(v)
			if !v.IsValid() {
				return reflect.Value{}
			}
		}
		v = v.Field(x)
	}
	return v
}

// fieldByIndexAlloc walks an embedded field path allocating nil pointers so
// the final field is settable.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

func indexValue(v reflect.Value, index string) (reflect.Value, error) {
	if !v.IsValid() {
		return reflect.Value{}, nil
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(index)
		if err != nil {
			return reflect.Value{}, errs.Wrap(err, errs.CodeReflection, "invalid index '"+index+"'", goerrors.CategoryBadInput)
		}
		if i < 0 || i >= v.Len() {
			return reflect.Value{}, nil
		}
		return v.Index(i), nil
	case reflect.Map:
		key, err := mapKey(index, v.Type().Key())
		if err != nil {
			return reflect.Value{}, err
		}
		return v.MapIndex(key), nil
	default:
		return reflect.Value{}, errs.New(errs.CodeReflection,
			"cannot index a value of type "+v.Type().String(), goerrors.CategoryBadInput)
	}
}

func mapKey(name string, keyType reflect.Type) (reflect.Value, error) {
	if keyType.Kind() == reflect.Interface {
		return reflect.ValueOf(name), nil
	}
	return Convert(name, keyType)
}

// SetValue writes value at path, converting it to the property type.
func (m *MetaObject) SetValue(path string, value any) error {
	if !m.root.IsValid() {
		return errs.New(errs.CodeReflection, "cannot set '"+path+"' on a nil object", goerrors.CategoryBadInput)
	}
	segs := parsePath(path)
	cur := m.root
	for i, seg := range segs {
		last := i == len(segs)-1
		cur = allocIndirect(cur)
		if !cur.IsValid() {
			return errs.New(errs.CodeReflection, "cannot set '"+path+"': nil value on the way", goerrors.CategoryBadInput)
		}

		switch cur.Kind() {
		case reflect.Struct:
			if !cur.CanAddr() {
				return errs.New(errs.CodeReflection, "cannot set '"+path+"' on a non addressable struct", goerrors.CategoryBadInput)
			}
			p, ok := m.registry.ForType(cur.Type()).Property(seg.name)
			if !ok {
				return noProperty(seg.name, cur.Type())
			}
			field := fieldByIndexAlloc(cur, p.Index)
			if seg.indexed {
				return setIndexed(field, seg.index, value, path)
			}
			if last {
				return Assign(field, value)
			}
			cur = field

		case reflect.Map:
			if cur.IsNil() {
				if !cur.CanSet() {
					return errs.New(errs.CodeReflection, "cannot set '"+path+"' on a nil map", goerrors.CategoryBadInput)
				}
				cur.Set(reflect.MakeMap(cur.Type()))
			}
			key, err := mapKey(seg.name, cur.Type().Key())
			if err != nil {
				return err
			}
			if seg.indexed {
				return setIndexed(cur.MapIndex(key), seg.index, value, path)
			}
			if last {
				v, err := Convert(value, cur.Type().Elem())
				if err != nil {
					return err
				}
				cur.SetMapIndex(key, v)
				return nil
			}
			next := cur.MapIndex(key)
			if IsNil(next) {
				next = newChild(cur.Type().Elem())
				cur.SetMapIndex(key, next)
			}
			cur = next

		default:
			return noProperty(seg.name, cur.Type())
		}
	}
	return nil
}

func setIndexed(container reflect.Value, index string, value any, path string) error {
	container = Indirect(container)
	if !container.IsValid() {
		return errs.New(errs.CodeReflection, "cannot set '"+path+"': collection is nil", goerrors.CategoryBadInput)
	}
	switch container.Kind() {
	case reflect.Slice:
		i, err := strconv.Atoi(index)
		if err != nil || i < 0 || i >= container.Len() {
			return errs.New(errs.CodeReflection, "cannot set '"+path+"': index out of range", goerrors.CategoryBadInput)
		}
		return Assign(container.Index(i), value)
	case reflect.Map:
		key, err := mapKey(index, container.Type().Key())
		if err != nil {
			return err
		}
		v, err := Convert(value, container.Type().Elem())
		if err != nil {
			return err
		}
		container.SetMapIndex(key, v)
		return nil
	default:
		return errs.New(errs.CodeReflection, "cannot index '"+path+"'", goerrors.CategoryBadInput)
	}
}

// allocIndirect follows pointers and interfaces, allocating settable nil
// pointers.
func allocIndirect(v reflect.Value) reflect.Value {
	for v.IsValid() {
		switch v.Kind() {
		case reflect.Pointer:
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		case reflect.Interface:
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		default:
			return v
		}
	}
	return v
}

func newChild(t reflect.Type) reflect.Value {
	switch t.Kind() {
	case reflect.Interface:
		return reflect.ValueOf(map[string]any{})
	case reflect.Map:
		return reflect.MakeMap(t)
	case reflect.Pointer:
		return reflect.New(t.Elem())
	default:
		return reflect.New(t).Elem()
	}
}

// Add appends elem to the wrapped slice. The MetaObject must wrap a pointer
// to the slice.
func (m *MetaObject) Add(elem any) error {
	if !m.root.IsValid() || m.root.Kind() != reflect.Slice || !m.root.CanSet() {
		return errs.New(errs.CodeReflection, "Add requires a pointer to a slice", goerrors.CategoryBadInput)
	}
	return appendTo(m.root, elem)
}

// AddTo appends elem to the slice property at path, allocating it first.
func (m *MetaObject) AddTo(path string, elem any) error {
	field, err := m.settableField(path)
	if err != nil {
		return err
	}
	field = allocIndirect(field)
	if !field.IsValid() || field.Kind() != reflect.Slice {
		return errs.New(errs.CodeReflection, "property '"+path+"' is not a collection", goerrors.CategoryBadInput)
	}
	return appendTo(field, elem)
}

// Instantiate makes sure the property at path is not nil: pointers get a new
// value, maps are made and nil slices become empty. It returns the property
// value afterwards.
func (m *MetaObject) Instantiate(path string) (any, error) {
	field, err := m.settableField(path)
	if err != nil {
		return nil, err
	}
	switch field.Kind() {
	case reflect.Pointer:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
	case reflect.Slice:
		if field.IsNil() {
			field.Set(reflect.MakeSlice(field.Type(), 0, 0))
		}
	case reflect.Map:
		if field.IsNil() {
			field.Set(reflect.MakeMap(field.Type()))
		}
	}
	return field.Interface(), nil
}

// settableField returns the struct field at path, allocating along the way.
func (m *MetaObject) settableField(path string) (reflect.Value, error) {
	if !m.root.IsValid() || m.root.Kind() != reflect.Struct || !m.root.CanAddr() {
		return reflect.Value{}, errs.New(errs.CodeReflection,
			"cannot address '"+path+"' on a non struct object", goerrors.CategoryBadInput)
	}
	cur := m.root
	for _, seg := range parsePath(path) {
		cur = allocIndirect(cur)
		if !cur.IsValid() || cur.Kind() != reflect.Struct {
			return reflect.Value{}, errs.New(errs.CodeReflection, "cannot address '"+path+"'", goerrors.CategoryBadInput)
		}
		p, ok := m.registry.ForType(cur.Type()).Property(seg.name)
		if !ok {
			return reflect.Value{}, noProperty(seg.name, cur.Type())
		}
		cur = fieldByIndexAlloc(cur, p.Index)
	}
	return cur, nil
}

func appendTo(slice reflect.Value, elem any) error {
	v, err := Convert(elem, slice.Type().Elem())
	if err != nil {
		return err
	}
	slice.Set(reflect.Append(slice, v))
	return nil
}
