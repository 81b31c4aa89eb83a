package reflection

import (
	"fmt"
	"reflect"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-sqlmap/errs"
)

// ObjectFactory creates result objects. Structs are returned as pointers so
// that every materialized row can be shared and mutated in place.
type ObjectFactory interface {
	Create(t reflect.Type) (any, error)
	CreateWithArgs(t reflect.Type, argTypes []reflect.Type, args []any) (any, error)
	Constructors(t reflect.Type) []Constructor
	HasDefault(t reflect.Type) bool
}

// Constructor is a registered constructor function for a result type.
type Constructor struct {
	fn       reflect.Value
	Params   []reflect.Type
	Result   reflect.Type
	hasError bool
}

func (c Constructor) String() string {
	names := make([]string, len(c.Params))
	for i, p := range c.Params {
		names[i] = p.String()
	}
	return "func(" + strings.Join(names, ", ") + ") " + c.Result.String()
}

// Accepts reports whether argTypes can be passed to the constructor. A nil
// entry accepts any parameter type.
func (c Constructor) Accepts(argTypes []reflect.Type) bool {
	if len(argTypes) != len(c.Params) {
		return false
	}
	for i, at := range argTypes {
		if at == nil {
			continue
		}
		if !compatible(at, c.Params[i]) {
			return false
		}
	}
	return true
}

func compatible(from, to reflect.Type) bool {
	if from.AssignableTo(to) || to.Kind() == reflect.Interface && from.Implements(to) {
		return true
	}
	f, t := Deref(from), Deref(to)
	switch {
	case f == t:
		return true
	case isNumberKind(f.Kind()) && isNumberKind(t.Kind()):
		return true
	case f.Kind() == reflect.String && t.Kind() == reflect.String:
		return true
	case f == bytesType && t.Kind() == reflect.String:
		return true
	case ImplementsScanner(t):
		return true
	}
	return false
}

// DefaultObjectFactory builds zero values with reflect.New unless a
// constructor has been registered for the type.
type DefaultObjectFactory struct {
	ctors *xsync.MapOf[reflect.Type, []Constructor]
}

// NewObjectFactory returns a factory with no constructors.
func NewObjectFactory() *DefaultObjectFactory {
	return &DefaultObjectFactory{ctors: xsync.NewMapOf[reflect.Type, []Constructor]()}
}

// RegisterConstructor registers fn as a constructor of its first result
// type. fn may return (T) or (T, error), with T a struct or pointer to one.
//
//	f.RegisterConstructor(func(id int64, title string) *Blog { ... })
func (f *DefaultObjectFactory) RegisterConstructor(fn any) error {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return errs.New(errs.CodeNoConstructor, fmt.Sprintf("constructor must be a function, got %T", fn), goerrors.CategoryBadInput)
	}
	ft := fv.Type()
	if ft.IsVariadic() || ft.NumOut() == 0 || ft.NumOut() > 2 {
		return errs.New(errs.CodeNoConstructor, "constructor must return T or (T, error): "+ft.String(), goerrors.CategoryBadInput)
	}
	hasError := ft.NumOut() == 2
	if hasError && ft.Out(1) != reflect.TypeOf((*error)(nil)).Elem() {
		return errs.New(errs.CodeNoConstructor, "constructor second result must be error: "+ft.String(), goerrors.CategoryBadInput)
	}
	c := Constructor{fn: fv, Result: ft.Out(0), hasError: hasError}
	for i := 0; i < ft.NumIn(); i++ {
		c.Params = append(c.Params, ft.In(i))
	}

	key := Deref(c.Result)
	f.ctors.Compute(key, func(old []Constructor, _ bool) ([]Constructor, bool) {
		return append(append([]Constructor(nil), old...), c), false
	})
	return nil
}

// Constructors returns the constructors registered for t.
func (f *DefaultObjectFactory) Constructors(t reflect.Type) []Constructor {
	ctors, _ := f.ctors.Load(Deref(t))
	return ctors
}

// HasDefault reports whether t can be built without arguments.
func (f *DefaultObjectFactory) HasDefault(t reflect.Type) bool {
	ctors := f.Constructors(t)
	if len(ctors) == 0 {
		return true
	}
	for _, c := range ctors {
		if len(c.Params) == 0 {
			return true
		}
	}
	return false
}

// Create returns a new value of t: a pointer for structs, an empty map for
// maps and interfaces, a pointer to an empty slice for slices.
func (f *DefaultObjectFactory) Create(t reflect.Type) (any, error) {
	for _, c := range f.Constructors(t) {
		if len(c.Params) == 0 {
			return c.call(t, nil)
		}
	}
	if !f.HasDefault(t) {
		return nil, errs.New(errs.CodeNoConstructor,
			"type "+t.String()+" has no constructor without arguments", goerrors.CategoryBadInput)
	}
	return newValue(t), nil
}

// CreateWithArgs calls the single registered constructor accepting argTypes.
// No match is a NO_CONSTRUCTOR error and several matches are ambiguous.
func (f *DefaultObjectFactory) CreateWithArgs(t reflect.Type, argTypes []reflect.Type, args []any) (any, error) {
	if len(args) == 0 {
		return f.Create(t)
	}
	var matches []Constructor
	for _, c := range f.Constructors(t) {
		if c.Accepts(argTypes) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return nil, errs.New(errs.CodeNoConstructor,
			fmt.Sprintf("no constructor of %s accepts %v", t, argTypes), goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"type": t.String()})
	case 1:
		return matches[0].call(t, args)
	default:
		return nil, ambiguous(t, matches)
	}
}

func ambiguous(t reflect.Type, matches []Constructor) error {
	sigs := make([]string, len(matches))
	for i, c := range matches {
		sigs[i] = c.String()
	}
	return errs.New(errs.CodeAmbiguousConstructor,
		fmt.Sprintf("ambiguous constructors for %s: %s", t, strings.Join(sigs, "; ")),
		goerrors.CategoryBadInput).
		WithMetadata(map[string]any{"type": t.String(), "candidates": sigs})
}

func (c Constructor) call(t reflect.Type, args []any) (any, error) {
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		v, err := Convert(a, c.Params[i])
		if err != nil {
			return nil, err
		}
		in[i] = v
	}
	out := c.fn.Call(in)
	if c.hasError && !out[1].IsNil() {
		return nil, errs.Wrap(out[1].Interface().(error), errs.CodeReflection,
			"constructor of "+t.String()+" failed", goerrors.CategoryOperation)
	}
	res := out[0]
	if res.Kind() == reflect.Struct {
		p := reflect.New(res.Type())
		p.Elem().Set(res)
		res = p
	}
	return res.Interface(), nil
}

func newValue(t reflect.Type) any {
	switch t.Kind() {
	case reflect.Interface:
		return map[string]any{}
	case reflect.Map:
		return reflect.MakeMap(t).Interface()
	case reflect.Pointer:
		return reflect.New(Deref(t)).Interface()
	case reflect.Slice:
		p := reflect.New(t)
		p.Elem().Set(reflect.MakeSlice(t, 0, 0))
		return p.Interface()
	default:
		return reflect.New(t).Interface()
	}
}

// MatchConstructor picks the single constructor of t whose parameters accept
// argTypes, for types that have no default construction.
func MatchConstructor(f ObjectFactory, t reflect.Type, argTypes []reflect.Type) (Constructor, error) {
	var matches []Constructor
	for _, c := range f.Constructors(t) {
		if c.Accepts(argTypes) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return Constructor{}, errs.New(errs.CodeNoConstructor,
			fmt.Sprintf("no constructor of %s matches column types %v", t, argTypes), goerrors.CategoryBadInput)
	case 1:
		return matches[0], nil
	default:
		return Constructor{}, ambiguous(t, matches)
	}
}
