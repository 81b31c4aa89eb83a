package session

import (
	"context"
	"reflect"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
)

// List runs a select and asserts every row to T.
func List[T any](ctx context.Context, s *Session, id string, param any, opts ...Option) ([]T, error) {
	list, err := s.SelectList(ctx, id, param, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(list))
	for i, row := range list {
		v, err := as[T](id, row)
		if err != nil {
			return nil, err.WithMetadata(map[string]any{"row": i})
		}
		out = append(out, v)
	}
	return out, nil
}

// One runs a single-row select. found is false when no row matched.
func One[T any](ctx context.Context, s *Session, id string, param any, opts ...Option) (value T, found bool, err error) {
	row, err := s.SelectOne(ctx, id, param, opts...)
	if err != nil || row == nil {
		return value, false, err
	}
	value, cerr := as[T](id, row)
	if cerr != nil {
		return value, false, cerr
	}
	return value, true, nil
}

func as[T any](id string, row any) (T, *goerrors.Error) {
	if row == nil {
		var zero T
		return zero, nil
	}
	v, ok := row.(T)
	if !ok {
		var zero T
		return zero, errs.New(errs.CodeResultShape,
			"statement '"+id+"' produced "+reflect.TypeOf(row).String()+", not "+reflect.TypeOf((*T)(nil)).Elem().String(),
			goerrors.CategoryBadInput)
	}
	return v, nil
}
