package loader

import (
	"context"
	"reflect"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/internal/logging"
	"github.com/goliatone/go-sqlmap/reflection"
)

// Lazy is a property loaded on first use. Declare it as a pointer field:
//
//	type Blog struct {
//		ID     int64
//		Author *loader.Lazy[*Author]
//	}
//
// The materializer fills the handle; Load runs the nested select once and
// remembers the result.
type Lazy[T any] struct {
	mu     sync.Mutex
	loader *ResultLoader
	value  T
	loaded bool

	// set when the handle was decoded without its loader
	statementID string
	param       any
}

// Resolved returns a handle already holding v.
func Resolved[T any](v T) *Lazy[T] {
	return &Lazy[T]{value: v, loaded: true}
}

// Load returns the value, running the nested select on first use.
func (l *Lazy[T]) Load(ctx context.Context) (T, error) {
	return l.load(ctx, false)
}

// LoadDetached is Load on a fresh executor, for use outside the goroutine
// that owns the session which created the handle.
func (l *Lazy[T]) LoadDetached(ctx context.Context) (T, error) {
	return l.load(ctx, true)
}

// Loaded reports whether the value is available without a query.
func (l *Lazy[T]) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Get returns the value and whether it has been loaded.
func (l *Lazy[T]) Get() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.loaded
}

func (l *Lazy[T]) load(ctx context.Context, detached bool) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	if l.loaded {
		return l.value, nil
	}

	rl := l.loader
	if rl == nil {
		var err error
		if rl, err = l.reattach(); err != nil {
			return zero, err
		}
		detached = true
	}

	logging.WithStatement("loader", rl.Statement.ID).Debug("lazy load", "detached", detached)
	var (
		out any
		err error
	)
	if detached {
		out, err = rl.LoadDetached(ctx)
	} else {
		out, err = rl.Load(ctx)
	}
	if err != nil {
		return zero, err
	}
	if err := l.set(out); err != nil {
		return zero, err
	}
	l.loader = nil
	return l.value, nil
}

// reattach rebuilds the loader of a decoded handle from the default source.
func (l *Lazy[T]) reattach() (*ResultLoader, error) {
	if l.statementID == "" {
		return nil, errs.New(errs.CodeExecutorClosed, "lazy handle has no loader", goerrors.CategoryOperation)
	}
	src := currentSource()
	if src == nil {
		return nil, errs.New(errs.CodeExecutorClosed,
			"lazy handle for '"+l.statementID+"' was detached and no default source is set",
			goerrors.CategoryOperation)
	}
	cfg := src.Configuration()
	ms, err := cfg.Statement(l.statementID)
	if err != nil {
		return nil, err
	}
	bound, err := ms.BoundSQL(l.param)
	if err != nil {
		return nil, err
	}
	opener := func(ctx context.Context) (Executor, error) { return src.OpenExecutor(ctx) }
	return &ResultLoader{
		Configuration: cfg,
		Statement:     ms,
		Parameter:     l.param,
		TargetType:    l.elemType(),
		Bound:         bound,
		opener:        opener,
	}, nil
}

func (l *Lazy[T]) set(v any) error {
	if t, ok := v.(T); ok {
		l.value, l.loaded = t, true
		return nil
	}
	rv, err := reflection.Convert(v, l.elemType())
	if err != nil {
		return errs.Wrap(err, errs.CodeResultShape,
			"lazy "+l.elemType().String()+" cannot hold the loaded value", goerrors.CategoryValidation)
	}
	var value T
	if rv.IsValid() && rv.CanInterface() {
		value, _ = rv.Interface().(T)
	}
	l.value, l.loaded = value, true
	return nil
}

func (l *Lazy[T]) elemType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (l *Lazy[T]) attach(rl *ResultLoader) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loader, l.loaded = rl, false
}

func (l *Lazy[T]) resolve(v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loader = nil
	return l.set(v)
}

// EncodeMsgpack writes the loaded value, or the statement and parameter an
// unloaded handle needs to load later.
func (l *Lazy[T]) EncodeMsgpack(enc *msgpack.Encoder) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return enc.EncodeMulti(true, l.value)
	}
	id, param := l.statementID, l.param
	if l.loader != nil {
		id, param = l.loader.Statement.ID, l.loader.Parameter
	}
	return enc.EncodeMulti(false, id, param)
}

func (l *Lazy[T]) DecodeMsgpack(dec *msgpack.Decoder) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	loaded, err := dec.DecodeBool()
	if err != nil {
		return err
	}
	l.loader = nil
	if loaded {
		l.loaded = true
		return dec.Decode(&l.value)
	}
	l.loaded = false
	return dec.DecodeMulti(&l.statementID, &l.param)
}

// handle is implemented by every *Lazy[T].
type handle interface {
	elemType() reflect.Type
	attach(rl *ResultLoader)
	resolve(v any) error
}

var handleType = reflect.TypeOf((*handle)(nil)).Elem()

// ElemType reports whether t is a *Lazy[T] and returns T.
func ElemType(t reflect.Type) (reflect.Type, bool) {
	if t == nil || t.Kind() != reflect.Pointer || !t.Implements(handleType) {
		return nil, false
	}
	return reflect.New(t.Elem()).Interface().(handle).elemType(), true
}

// NewHandle returns a *Lazy[T] of type t that loads through rl.
func NewHandle(t reflect.Type, rl *ResultLoader) (any, error) {
	h, err := newHandle(t)
	if err != nil {
		return nil, err
	}
	h.attach(rl)
	return h, nil
}

// NewResolvedHandle returns a *Lazy[T] of type t already holding v.
func NewResolvedHandle(t reflect.Type, v any) (any, error) {
	h, err := newHandle(t)
	if err != nil {
		return nil, err
	}
	if err := h.resolve(v); err != nil {
		return nil, err
	}
	return h, nil
}

func newHandle(t reflect.Type) (handle, error) {
	if _, ok := ElemType(t); !ok {
		return nil, errs.New(errs.CodeInvalidMapping, "type "+t.String()+" is not a lazy handle", goerrors.CategoryValidation)
	}
	return reflect.New(t.Elem()).Interface().(handle), nil
}

// LoadAll resolves every unloaded handle reachable from the exported fields
// of obj, one level deep.
func LoadAll(ctx context.Context, obj any) error {
	v := reflect.Indirect(reflect.ValueOf(obj))
	if v.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !v.Type().Field(i).IsExported() || f.Kind() != reflect.Pointer || f.IsNil() {
			continue
		}
		if l, ok := f.Interface().(interface {
			Loaded() bool
			loadAny(context.Context) error
		}); ok && !l.Loaded() {
			if err := l.loadAny(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Lazy[T]) loadAny(ctx context.Context) error {
	_, err := l.Load(ctx)
	return err
}
