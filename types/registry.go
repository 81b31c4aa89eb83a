package types

import (
	"reflect"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/reflection"
)

// UUID decodes text and 16 byte values into uuid.UUID and encodes it as text.
var UUID Codec = convertCodec{typ: reflect.TypeOf(uuid.UUID{})}

type codecKey struct {
	typ     reflect.Type
	sqlType string
}

// Registry resolves codecs by Go type, SQL type and name.
type Registry struct {
	mu      sync.RWMutex
	byType  map[codecKey]Codec
	byName  map[string]Codec
	derived map[codecKey]Codec
	aliases map[string]reflect.Type
}

// NewRegistry returns a registry holding the default codecs.
func NewRegistry() *Registry {
	r := &Registry{
		byType:  make(map[codecKey]Codec),
		byName:  make(map[string]Codec),
		derived: make(map[codecKey]Codec),
		aliases: defaultAliases(),
	}
	r.Register(reflect.TypeOf(time.Time{}), "", Time)
	r.RegisterNamed("time", Time)
	r.Register(reflect.TypeOf(uuid.UUID{}), "", UUID)
	r.RegisterNamed("uuid", UUID)
	r.RegisterNamed("passthrough", Passthrough)
	return r
}

// Register binds c to t. An empty sqlType makes c the default for t.
func (r *Registry) Register(t reflect.Type, sqlType string, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[codecKey{typ: t, sqlType: sqlType}] = c
	clear(r.derived)
}

// RegisterNamed binds c to a name usable as codec=name in placeholders.
func (r *Registry) RegisterNamed(name string, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = c
}

// Named returns the codec registered under name.
func (r *Registry) Named(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// Register binds c to T.
//
//	types.Register[Money](registry, moneyCodec)
func Register[T any](r *Registry, c Codec) {
	r.Register(reflect.TypeOf((*T)(nil)).Elem(), "", c)
}

// Lookup returns the codec for t narrowed by sqlType.
func (r *Registry) Lookup(t reflect.Type, sqlType string) (Codec, bool) {
	if t == nil {
		return Passthrough, true
	}
	key := codecKey{typ: t, sqlType: sqlType}

	r.mu.RLock()
	if c, ok := r.byType[key]; ok {
		r.mu.RUnlock()
		return c, true
	}
	if c, ok := r.derived[key]; ok {
		r.mu.RUnlock()
		return c, c != nil
	}
	r.mu.RUnlock()

	c := r.resolve(t, sqlType)

	r.mu.Lock()
	r.derived[key] = c
	r.mu.Unlock()
	return c, c != nil
}

func (r *Registry) resolve(t reflect.Type, sqlType string) Codec {
	r.mu.RLock()
	if sqlType != "" {
		if c, ok := r.byType[codecKey{typ: t}]; ok {
			r.mu.RUnlock()
			return c
		}
	}
	r.mu.RUnlock()

	if t.Kind() == reflect.Pointer {
		elem, ok := r.Lookup(t.Elem(), sqlType)
		if !ok {
			return nil
		}
		return pointerCodec{elem: elem, typ: t}
	}

	switch {
	case t.Kind() == reflect.Interface:
		return Passthrough
	case reflection.ImplementsScanner(t):
		return convertCodec{typ: t}
	case reflection.IsBean(t):
		return nil
	case t.Kind() == reflect.Struct:
		return textCodec{typ: t}
	}

	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return convertCodec{typ: t}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return convertCodec{typ: t}
		}
	}
	return nil
}

// Has reports whether t is a single-column value with a codec.
func (r *Registry) Has(t reflect.Type) bool {
	if t == nil || t.Kind() == reflect.Interface {
		return false
	}
	_, ok := r.Lookup(t, "")
	return ok
}

// MustLookup is Lookup that reports a missing codec as CODEC_NOT_FOUND,
// naming the property and column involved.
func (r *Registry) MustLookup(t reflect.Type, sqlType, property, column string) (Codec, error) {
	if c, ok := r.Lookup(t, sqlType); ok {
		return c, nil
	}
	name := "<nil>"
	if t != nil {
		name = t.String()
	}
	return nil, errs.New(errs.CodeCodecNotFound,
		"no codec for property '"+property+"' of type "+name+" (column '"+column+"', sql type '"+sqlType+"')",
		goerrors.CategoryNotFound).
		WithMetadata(map[string]any{"property": property, "column": column, "type": name, "sql_type": sqlType})
}

// ForValue returns the codec for the dynamic type of v, falling back to
// passing the value through.
func (r *Registry) ForValue(v any, sqlType string) Codec {
	if v == nil {
		return Passthrough
	}
	if c, ok := r.Lookup(reflect.TypeOf(v), sqlType); ok {
		return c
	}
	return Passthrough
}
