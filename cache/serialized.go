package cache

import (
	"context"
	"reflect"

	goerrors "github.com/goliatone/go-errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-sqlmap/errs"
)

// serializedValue is what Serialized stores in its delegate. Element types of
// []any values are kept so rows decode back into their concrete types.
type serializedValue struct {
	typ       reflect.Type
	elemTypes []reflect.Type
	data      []byte
}

// Serialized stores msgpack copies so every Get hands out an independent
// object graph. Values must be acyclic and encodable by msgpack.
type Serialized struct {
	delegate Cache
}

// NewSerialized wraps delegate with copy-on-write/copy-on-read semantics.
func NewSerialized(delegate Cache) *Serialized {
	return &Serialized{delegate: delegate}
}

func (c *Serialized) ID() string { return c.delegate.ID() }

func (c *Serialized) Get(ctx context.Context, key *CacheKey) (any, error) {
	raw, err := c.delegate.Get(ctx, key)
	if err != nil || raw == nil {
		return nil, err
	}
	sv, ok := raw.(serializedValue)
	if !ok {
		return raw, nil
	}
	return c.decode(sv)
}

func (c *Serialized) Put(ctx context.Context, key *CacheKey, value any) error {
	if value == nil {
		return c.delegate.Put(ctx, key, nil)
	}
	sv, err := c.encode(value)
	if err != nil {
		return err
	}
	return c.delegate.Put(ctx, key, sv)
}

func (c *Serialized) Remove(ctx context.Context, key *CacheKey) error {
	return c.delegate.Remove(ctx, key)
}

func (c *Serialized) Clear(ctx context.Context) error { return c.delegate.Clear(ctx) }

func (c *Serialized) Size() int { return c.delegate.Size() }

func (c *Serialized) encode(value any) (serializedValue, error) {
	rv := reflect.ValueOf(value)
	if hasCycle(rv, make(map[uintptr]bool)) {
		return serializedValue{}, errs.New(errs.CodeCacheSerialization,
			"cannot copy a cyclic object graph of type "+rv.Type().String()+"; use a read-only cache for self-referencing results",
			goerrors.CategoryBadInput)
	}

	sv := serializedValue{typ: rv.Type()}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Interface {
		sv.elemTypes = make([]reflect.Type, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if elem := rv.Index(i); !elem.IsNil() {
				sv.elemTypes[i] = elem.Elem().Type()
			}
		}
	}

	data, err := msgpack.Marshal(value)
	if err != nil {
		return serializedValue{}, errs.Wrap(err, errs.CodeCacheSerialization,
			"cache failed to make a copy of "+rv.Type().String(), goerrors.CategoryBadInput)
	}
	sv.data = data
	return sv, nil
}

func (c *Serialized) decode(sv serializedValue) (any, error) {
	if sv.elemTypes == nil {
		ptr := reflect.New(sv.typ)
		if err := msgpack.Unmarshal(sv.data, ptr.Interface()); err != nil {
			return nil, errs.Wrap(err, errs.CodeCacheSerialization, "cache failed to decode a copy", goerrors.CategoryInternal)
		}
		return ptr.Elem().Interface(), nil
	}

	var raws []msgpack.RawMessage
	if err := msgpack.Unmarshal(sv.data, &raws); err != nil {
		return nil, errs.Wrap(err, errs.CodeCacheSerialization, "cache failed to decode a copy", goerrors.CategoryInternal)
	}

	out := reflect.MakeSlice(sv.typ, len(raws), len(raws))
	for i, raw := range raws {
		if i >= len(sv.elemTypes) || sv.elemTypes[i] == nil {
			continue
		}
		ptr := reflect.New(sv.elemTypes[i])
		if err := msgpack.Unmarshal(raw, ptr.Interface()); err != nil {
			return nil, errs.Wrap(err, errs.CodeCacheSerialization, "cache failed to decode a copy", goerrors.CategoryInternal)
		}
		out.Index(i).Set(ptr.Elem())
	}
	return out.Interface(), nil
}

// hasCycle reports whether a pointer, map or slice reachable from v points
// back to one of its own ancestors.
func hasCycle(v reflect.Value, onPath map[uintptr]bool) bool {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return false
		}
		return hasCycle(v.Elem(), onPath)
	case reflect.Ptr, reflect.Map:
		if v.IsNil() {
			return false
		}
		addr := v.Pointer()
		if onPath[addr] {
			return true
		}
		onPath[addr] = true
		defer delete(onPath, addr)

		if v.Kind() == reflect.Ptr {
			return hasCycle(v.Elem(), onPath)
		}
		iter := v.MapRange()
		for iter.Next() {
			if hasCycle(iter.Value(), onPath) {
				return true
			}
		}
	case reflect.Slice:
		if v.IsNil() || v.Type().Elem().Kind() == reflect.Uint8 {
			return false
		}
		for i := 0; i < v.Len(); i++ {
			if hasCycle(v.Index(i), onPath) {
				return true
			}
		}
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if hasCycle(v.Index(i), onPath) {
				return true
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			if hasCycle(v.Field(i), onPath) {
				return true
			}
		}
	}
	return false
}
