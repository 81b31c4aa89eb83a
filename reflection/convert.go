package reflection

import (
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
)

var (
	scannerType         = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType          = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	timeType            = reflect.TypeOf(time.Time{})
	bytesType           = reflect.TypeOf([]byte(nil))
)

// ImplementsScanner reports whether *t can scan database values itself.
func ImplementsScanner(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(scannerType)
}

// isValueStruct reports whether a struct type is used as a single value
// (time.Time, uuid-like scanners) rather than a bag of properties.
func isValueStruct(t reflect.Type) bool {
	if t == timeType {
		return true
	}
	return ImplementsScanner(t) || t.Implements(valuerType) || reflect.PointerTo(t).Implements(textUnmarshalerType)
}

// IsBean reports whether values of t are mapped property by property.
func IsBean(t reflect.Type) bool {
	t = Deref(t)
	return t.Kind() == reflect.Struct && !isValueStruct(t)
}

// IsCollection reports whether t holds many results.
func IsCollection(t reflect.Type) bool {
	t = Deref(t)
	return (t.Kind() == reflect.Slice && t != bytesType) || t.Kind() == reflect.Array
}

// Assign stores value into dst, converting it to dst's type.
func Assign(dst reflect.Value, value any) error {
	v, err := Convert(value, dst.Type())
	if err != nil {
		return err
	}
	dst.Set(v)
	return nil
}

// Convert returns value as a reflect.Value of type t. Conversions stay within
// a kind family: numbers widen or narrow, strings and byte slices swap,
// named types convert to and from their underlying kind. Pointers are added
// or removed as needed and a nil value becomes the zero of t.
func Convert(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(t) {
		return v, nil
	}

	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Zero(t), nil
		}
		if t.Kind() != reflect.Pointer || !v.Type().ConvertibleTo(t) {
			return Convert(v.Elem().Interface(), t)
		}
	}

	if t.Kind() == reflect.Pointer {
		inner, err := Convert(value, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil
	}

	if ImplementsScanner(t) {
		p := reflect.New(t)
		if err := p.Interface().(sql.Scanner).Scan(value); err != nil {
			return reflect.Value{}, conversionError(value, t, err)
		}
		return p.Elem(), nil
	}

	if out, ok, err := convertKind(v, t); ok || err != nil {
		if err != nil {
			return reflect.Value{}, conversionError(value, t, err)
		}
		return out, nil
	}

	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		var text []byte
		switch raw := value.(type) {
		case string:
			text = []byte(raw)
		case []byte:
			text = raw
		}
		if text != nil {
			p := reflect.New(t)
			if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText(text); err != nil {
				return reflect.Value{}, conversionError(value, t, err)
			}
			return p.Elem(), nil
		}
	}

	if v.Kind() == t.Kind() && v.Type().ConvertibleTo(t) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, conversionError(value, t, nil)
}

func convertKind(v reflect.Value, t reflect.Type) (reflect.Value, bool, error) {
	switch {
	case isNumberKind(t.Kind()):
		switch {
		case isNumberKind(v.Kind()):
			return v.Convert(t), true, nil
		case v.Kind() == reflect.Bool:
			out := reflect.New(t).Elem()
			if v.Bool() {
				out.Set(reflect.ValueOf(1).Convert(t))
			}
			return out, true, nil
		case v.Kind() == reflect.String || v.Type() == bytesType:
			return parseNumber(textOf(v), t)
		}
	case t.Kind() == reflect.String:
		switch {
		case v.Kind() == reflect.String:
			return v.Convert(t), true, nil
		case v.Type() == bytesType:
			return reflect.ValueOf(string(v.Bytes())).Convert(t), true, nil
		case isNumberKind(v.Kind()) || v.Kind() == reflect.Bool:
			return reflect.ValueOf(fmt.Sprint(v.Interface())).Convert(t), true, nil
		}
	case t.Kind() == reflect.Bool:
		switch {
		case v.Kind() == reflect.Bool:
			return v.Convert(t), true, nil
		case isIntKind(v.Kind()):
			return reflect.ValueOf(v.Int() != 0).Convert(t), true, nil
		case isUintKind(v.Kind()):
			return reflect.ValueOf(v.Uint() != 0).Convert(t), true, nil
		case v.Kind() == reflect.String || v.Type() == bytesType:
			b, err := strconv.ParseBool(textOf(v))
			if err != nil {
				return reflect.Value{}, true, err
			}
			return reflect.ValueOf(b).Convert(t), true, nil
		}
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		switch {
		case v.Kind() == reflect.String:
			return reflect.ValueOf([]byte(v.String())).Convert(t), true, nil
		case v.Type() == bytesType:
			b := append([]byte(nil), v.Bytes()...)
			return reflect.ValueOf(b).Convert(t), true, nil
		}
	}
	return reflect.Value{}, false, nil
}

func parseNumber(s string, t reflect.Type) (reflect.Value, bool, error) {
	out := reflect.New(t).Elem()
	switch {
	case isIntKind(t.Kind()):
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return reflect.Value{}, true, err
		}
		out.SetInt(n)
	case isUintKind(t.Kind()):
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return reflect.Value{}, true, err
		}
		out.SetUint(n)
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return reflect.Value{}, true, err
		}
		out.SetFloat(f)
	}
	return out, true, nil
}

func textOf(v reflect.Value) string {
	if v.Kind() == reflect.String {
		return v.String()
	}
	return string(v.Bytes())
}

func isIntKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isNumberKind(k reflect.Kind) bool {
	return isIntKind(k) || isUintKind(k) || k == reflect.Float32 || k == reflect.Float64
}

func conversionError(value any, t reflect.Type, cause error) error {
	msg := fmt.Sprintf("cannot convert %T to %s", value, t)
	if cause != nil {
		return errs.Wrap(cause, errs.CodeReflection, msg, goerrors.CategoryBadInput)
	}
	return errs.New(errs.CodeReflection, msg, goerrors.CategoryBadInput)
}

// IsNil reports whether v is invalid or a nil reference.
func IsNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// Indirect follows pointers and interfaces. It returns an invalid value when
// it meets a nil.
func Indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
