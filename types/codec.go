// Package types converts between Go values and database values.
//
// A Codec encodes statement parameters and decodes column values for one Go
// type, optionally narrowed by a SQL type name. The Registry resolves the
// codec for a property with this precedence:
//
//  1. a codec registered for (type, sqlType)
//  2. a codec registered for the type alone
//  3. the element type's codec, for pointer types
//  4. types implementing sql.Scanner or encoding.TextUnmarshaler
//  5. a conversion codec for builtin kinds and []byte
//
// Struct, slice (other than []byte) and map types have no codec unless one
// is registered: they are mapped property by property instead.
package types

import (
	"database/sql/driver"
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/reflection"
)

// Codec converts one Go type to and from driver values.
type Codec interface {
	// Encode converts a parameter value to something the driver accepts.
	Encode(value any) (any, error)
	// Decode converts a raw column value. A nil raw value decodes to nil.
	Decode(raw any) (any, error)
}

// Funcs adapts two functions to a Codec. A nil function passes values
// through unchanged.
type Funcs struct {
	EncodeFunc func(any) (any, error)
	DecodeFunc func(any) (any, error)
}

func (f Funcs) Encode(value any) (any, error) {
	if f.EncodeFunc == nil || value == nil {
		return value, nil
	}
	return f.EncodeFunc(value)
}

func (f Funcs) Decode(raw any) (any, error) {
	if f.DecodeFunc == nil || raw == nil {
		return raw, nil
	}
	return f.DecodeFunc(raw)
}

// convertCodec decodes by reflective conversion to a fixed type.
type convertCodec struct {
	typ reflect.Type
}

func (c convertCodec) Encode(value any) (any, error) {
	return encodeDefault(value)
}

func (c convertCodec) Decode(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := reflection.Convert(raw, c.typ)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// pointerCodec decodes through the element codec and adds the pointer.
type pointerCodec struct {
	elem Codec
	typ  reflect.Type
}

func (c pointerCodec) Encode(value any) (any, error) {
	rv := reflect.ValueOf(value)
	if value == nil || rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}
	if rv.Kind() == reflect.Pointer {
		value = rv.Elem().Interface()
	}
	return c.elem.Encode(value)
}

func (c pointerCodec) Decode(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := c.elem.Decode(raw)
	if err != nil {
		return nil, err
	}
	out, err := reflection.Convert(v, c.typ)
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// Passthrough hands values to the driver and back untouched.
var Passthrough Codec = Funcs{}

// textCodec handles encoding.TextMarshaler / TextUnmarshaler types.
type textCodec struct {
	typ reflect.Type
}

func (c textCodec) Encode(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if v, ok := value.(driver.Valuer); ok {
		return v.Value()
	}
	if m, ok := value.(encoding.TextMarshaler); ok {
		b, err := m.MarshalText()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return value, nil
}

func (c textCodec) Decode(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := reflection.Convert(raw, c.typ)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// timeLayouts lists the textual forms drivers use for timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time decodes time.Time, string, []byte and unix seconds into time.Time.
var Time Codec = Funcs{DecodeFunc: decodeTime}

func decodeTime(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case []byte:
		return parseTime(string(v))
	case string:
		return parseTime(v)
	default:
		return nil, errs.New(errs.CodeReflection, fmt.Sprintf("cannot decode %T as time.Time", raw), goerrors.CategoryBadInput)
	}
}

func parseTime(s string) (any, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, errs.New(errs.CodeReflection, "cannot parse time '"+s+"'", goerrors.CategoryBadInput)
}

func encodeDefault(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if v, ok := value.(driver.Valuer); ok {
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, nil
		}
		return v.Value()
	}
	return value, nil
}
