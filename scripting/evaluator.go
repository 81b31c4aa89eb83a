package scripting

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	goerrors "github.com/goliatone/go-errors"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/goliatone/go-sqlmap/errs"
)

// Evaluator compiles and runs template expressions. Compiled programs are
// kept in an expiring LRU keyed by the expression text.
//
// Expressions run against a map environment, so undefined names evaluate to
// nil instead of failing: `title != nil && title != ""`.
type Evaluator struct {
	programs *expirable.LRU[string, *vm.Program]
}

// NewEvaluator creates an evaluator caching up to size programs for ttl.
// A size of zero means no bound and a ttl of zero means no expiry.
func NewEvaluator(size int, ttl time.Duration) *Evaluator {
	return &Evaluator{programs: expirable.NewLRU[string, *vm.Program](size, nil, ttl)}
}

// Compile returns the compiled program for expression.
func (e *Evaluator) Compile(expression string) (*vm.Program, error) {
	if p, ok := e.programs.Get(expression); ok {
		return p, nil
	}
	p, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, expressionError(expression, "compile", err)
	}
	e.programs.Add(expression, p)
	return p, nil
}

// Evaluate runs expression against env.
func (e *Evaluator) Evaluate(expression string, env map[string]any) (any, error) {
	p, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(p, env)
	if err != nil {
		return nil, expressionError(expression, "evaluate", err)
	}
	return out, nil
}

// EvaluateBool runs expression and reads the result as a condition: a bool
// is itself, a number is true when not zero, nil is false and anything else
// is true.
func (e *Evaluator) EvaluateBool(expression string, env map[string]any) (bool, error) {
	v, err := e.Evaluate(expression, env)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// entry is one iteration step of a collection.
type entry struct {
	index any
	value any
}

// iterate runs expression and flattens the result into iteration
// entries. Slices and arrays are indexed by position and maps iterate in
// key order with the key as index. A nil result is reported as ok == false.
func (e *Evaluator) iterate(expression string, env map[string]any) ([]entry, bool, error) {
	v, err := e.Evaluate(expression, env)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		out := make([]entry, rv.Len())
		for i := range out {
			out[i] = entry{index: i, value: rv.Index(i).Interface()}
		}
		return out, true, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
		out := make([]entry, len(keys))
		for i, k := range keys {
			out[i] = entry{index: k.Interface(), value: rv.MapIndex(k).Interface()}
		}
		return out, true, nil
	}
	return nil, false, errs.New(errs.CodeExpression,
		fmt.Sprintf("expression '%s' evaluated to %T which is not iterable", expression, v),
		goerrors.CategoryBadInput).
		WithMetadata(map[string]any{"expression": expression})
}

func keyLess(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.String:
		return a.String() < b.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() < b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return a.Uint() < b.Uint()
	case reflect.Float32, reflect.Float64:
		return a.Float() < b.Float()
	}
	return fmt.Sprint(a.Interface()) < fmt.Sprint(b.Interface())
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return truthy(rv.Elem().Interface())
	}
	return true
}

func expressionError(expression, op string, cause error) error {
	return errs.Wrap(cause, errs.CodeExpression, "cannot "+op+" expression '"+expression+"'", goerrors.CategoryBadInput).
		WithMetadata(map[string]any{"expression": expression})
}
