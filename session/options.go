package session

import "github.com/goliatone/go-sqlmap/mapping"

// Option configures one statement execution.
type Option func(*execOptions)

type execOptions struct {
	rowBounds mapping.RowBounds
	handler   mapping.ResultHandler
	mapKey    string
}

func newExecOptions(opts []Option) execOptions {
	o := execOptions{rowBounds: mapping.DefaultRowBounds}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRowBounds skips offset rows and returns at most limit.
func WithRowBounds(rb mapping.RowBounds) Option {
	return func(o *execOptions) { o.rowBounds = rb }
}

// WithResultHandler streams rows to h instead of returning them.
func WithResultHandler(h mapping.ResultHandler) Option {
	return func(o *execOptions) { o.handler = h }
}

// WithMapKey keys map results by property, overriding the statement.
func WithMapKey(property string) Option {
	return func(o *execOptions) { o.mapKey = property }
}
