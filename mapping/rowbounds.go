package mapping

import "math"

// NoRowLimit is the limit of unbounded RowBounds.
const NoRowLimit = math.MaxInt32

// RowBounds is the paging window applied while reading rows. The zero value
// is unset and reads every row; use NewRowBounds for an explicit window,
// including one with a zero limit.
type RowBounds struct {
	Offset int
	Limit  int
	set    bool
}

// DefaultRowBounds reads every row.
var DefaultRowBounds = RowBounds{Offset: 0, Limit: NoRowLimit, set: true}

// NewRowBounds returns a window of limit rows after offset.
func NewRowBounds(offset, limit int) RowBounds {
	return RowBounds{Offset: offset, Limit: limit, set: true}
}

// OrDefault returns DefaultRowBounds for the zero value and rb otherwise.
func (rb RowBounds) OrDefault() RowBounds {
	if rb == (RowBounds{}) {
		return DefaultRowBounds
	}
	return rb
}

// IsDefault reports whether rb reads every row.
func (rb RowBounds) IsDefault() bool {
	return rb.Offset == 0 && rb.Limit == NoRowLimit
}

// ResultContext is handed to a ResultHandler for each top-level object.
type ResultContext struct {
	Object  any
	Count   int
	stopped bool
}

// Stop asks the materializer not to read further rows.
func (rc *ResultContext) Stop() { rc.stopped = true }

// IsStopped reports whether Stop was called.
func (rc *ResultContext) IsStopped() bool { return rc.stopped }

// ResultHandler receives objects as they are materialized instead of them
// being collected into a list.
type ResultHandler func(rc *ResultContext) error
