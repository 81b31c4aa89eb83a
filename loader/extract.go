package loader

import (
	"reflect"
	"strconv"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/reflection"
)

// Extract shapes the rows of a nested select for a property of type target.
// Slice and array targets receive every row; any other target receives the
// single row, or nil when there is none. More than one row for a single
// target is a TOO_MANY_RESULTS error.
func Extract(list []any, target reflect.Type) (any, error) {
	if target == nil || target.Kind() == reflect.Interface {
		return single(list)
	}
	if target == reflect.TypeOf(list) {
		return list, nil
	}

	base := target
	if base.Kind() == reflect.Pointer && reflection.IsCollection(base) {
		base = base.Elem()
	}
	switch {
	case base.Kind() == reflect.Slice && reflection.IsCollection(base):
		out := reflect.MakeSlice(base, 0, len(list))
		for i, row := range list {
			v, err := elem(row, base.Elem(), i)
			if err != nil {
				return nil, err
			}
			out = reflect.Append(out, v)
		}
		return pointerTo(out, target), nil
	case base.Kind() == reflect.Array:
		if len(list) > base.Len() {
			return nil, tooMany(len(list), base.Len())
		}
		out := reflect.New(base).Elem()
		for i, row := range list {
			v, err := elem(row, base.Elem(), i)
			if err != nil {
				return nil, err
			}
			out.Index(i).Set(v)
		}
		return pointerTo(out, target), nil
	}
	return single(list)
}

func single(list []any) (any, error) {
	switch len(list) {
	case 0:
		return nil, nil
	case 1:
		return list[0], nil
	default:
		return nil, tooMany(len(list), 1)
	}
}

func elem(row any, t reflect.Type, i int) (reflect.Value, error) {
	v, err := reflection.Convert(row, t)
	if err != nil {
		return reflect.Value{}, errs.Wrap(err, errs.CodeResultShape,
			"row "+strconv.Itoa(i)+" does not fit "+t.String(), goerrors.CategoryValidation)
	}
	return v, nil
}

func pointerTo(v reflect.Value, target reflect.Type) any {
	if target.Kind() != reflect.Pointer {
		return v.Interface()
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	return p.Interface()
}

func tooMany(got, want int) error {
	return errs.New(errs.CodeTooManyResults,
		"statement returned "+strconv.Itoa(got)+" rows where at most "+strconv.Itoa(want)+" were expected",
		goerrors.CategoryValidation).
		WithMetadata(map[string]any{"rows": got, "expected": want})
}
