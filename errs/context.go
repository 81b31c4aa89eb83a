package errs

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

type errorContextKey struct{}

// ErrorContext describes what the engine was doing when an error happened.
// It travels inside context.Context so nested calls can refine it.
type ErrorContext struct {
	Resource string
	Activity string
	Object   string
	SQL      string
}

// Option refines an ErrorContext.
type Option func(*ErrorContext)

// Resource names the statement or mapping source being processed.
func Resource(resource string) Option {
	return func(ec *ErrorContext) { ec.Resource = resource }
}

// Activity names the current step, for example "executing a query".
func Activity(activity string) Option {
	return func(ec *ErrorContext) { ec.Activity = activity }
}

// Object names the mapping element involved, usually a result map id.
func Object(object string) Option {
	return func(ec *ErrorContext) { ec.Object = object }
}

// SQL records the SQL text being executed.
func SQL(sql string) Option {
	return func(ec *ErrorContext) { ec.SQL = sql }
}

// WithContext returns a child context whose ErrorContext is the parent's
// refined by opts.
func WithContext(ctx context.Context, opts ...Option) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(opts) == 0 {
		return ctx
	}

	ec := FromContext(ctx)
	for _, opt := range opts {
		opt(&ec)
	}
	return context.WithValue(ctx, errorContextKey{}, ec)
}

// FromContext returns the ErrorContext stored in ctx, or the zero value.
func FromContext(ctx context.Context) ErrorContext {
	if ctx == nil {
		return ErrorContext{}
	}
	if ec, ok := ctx.Value(errorContextKey{}).(ErrorContext); ok {
		return ec
	}
	return ErrorContext{}
}

func (ec ErrorContext) metadata() map[string]any {
	meta := make(map[string]any, 4)
	if ec.Resource != "" {
		meta["resource"] = ec.Resource
	}
	if ec.Activity != "" {
		meta["activity"] = ec.Activity
	}
	if ec.Object != "" {
		meta["object"] = ec.Object
	}
	if ec.SQL != "" {
		meta["sql"] = ec.SQL
	}
	return meta
}

// Annotate attaches the ErrorContext from ctx to err. Plain errors are
// wrapped as execution errors first. Keys already set on err win.
func Annotate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	ec := FromContext(ctx)
	meta := ec.metadata()
	if len(meta) == 0 {
		return err
	}

	var rerr *goerrors.RetryableError
	if errors.As(err, &rerr) && rerr.BaseError != nil {
		mergeMissing(rerr.BaseError, meta)
		return err
	}

	var gerr *goerrors.Error
	if !errors.As(err, &gerr) {
		msg := "execution failed"
		if ec.Activity != "" {
			msg = "error " + ec.Activity
		}
		wrapped := Wrap(err, CodeExecution, msg, goerrors.CategoryOperation)
		mergeMissing(wrapped, meta)
		return wrapped
	}
	mergeMissing(gerr, meta)
	return err
}

func mergeMissing(e *goerrors.Error, meta map[string]any) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any, len(meta))
	}
	for k, v := range meta {
		if _, ok := e.Metadata[k]; !ok {
			e.Metadata[k] = v
		}
	}
}
