package resultset

import (
	"context"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/loader"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/reflection"
)

// Options are the per-statement inputs of a Materializer.
type Options struct {
	// Executor runs nested queries. It is the outermost executor so nested
	// queries see the second-level cache.
	Executor loader.Executor
	// Opener opens executors for lazy loads outliving Executor.
	Opener    loader.Opener
	Statement *mapping.MappedStatement
	Bound     *mapping.BoundSQL
	RowBounds mapping.RowBounds
	Handler   mapping.ResultHandler
}

// Materializer builds the results of one statement execution. It is not
// safe for concurrent use and must not be reused across executions.
type Materializer struct {
	cfg  *mapping.Configuration
	opts Options
	ctx  context.Context

	// rows materialized in this result set, by identity key
	nested map[string]any
	// objects being built for the current row, by result map id
	ancestors map[string]any

	pending     map[string][]pendingRelation
	nextResults map[string]pendingOwner
}

// deferredValue marks a property whose value arrives later.
type deferredValue struct{}

var deferred = deferredValue{}

// New creates a Materializer for one execution of opts.Statement.
func New(cfg *mapping.Configuration, opts Options) *Materializer {
	opts.RowBounds = opts.RowBounds.OrDefault()
	return &Materializer{
		cfg:         cfg,
		opts:        opts,
		nested:      make(map[string]any),
		ancestors:   make(map[string]any),
		pending:     make(map[string][]pendingRelation),
		nextResults: make(map[string]pendingOwner),
	}
}

// collector gathers top-level objects when the caller passed no handler.
type collector struct {
	list []any
}

func (c *collector) handle(rc *mapping.ResultContext) error {
	c.list = append(c.list, rc.Object)
	return nil
}

// Handle reads every result set of cur. The first result sets are mapped by
// the statement's result maps in order; later named result sets are linked
// into the owners waiting for them. With one result map the rows are
// returned as a flat list, otherwise as one list per result map. With a
// ResultHandler nothing is collected.
func (m *Materializer) Handle(ctx context.Context, cur RowCursor) ([]any, error) {
	m.ctx = ctx
	ms := m.opts.Statement
	var results []any

	cs := newColumnSet(cur)
	if len(ms.ResultMaps) == 0 && len(cs.names) > 0 {
		return nil, errs.New(errs.CodeInvalidMapping,
			"statement '"+ms.ID+"' returned rows but declares no result map", goerrors.CategoryValidation)
	}

	count := 0
	for cs != nil && count < len(ms.ResultMaps) {
		rm := ms.ResultMaps[count]
		list, err := m.handleResultSet(cs, rm, nil)
		if err != nil {
			return nil, err
		}
		if m.opts.Handler == nil {
			results = append(results, list)
		}
		cs = m.nextResultSet(cur)
		count++
	}

	for cs != nil && count < len(ms.ResultSets) {
		if owner, ok := m.nextResults[ms.ResultSets[count]]; ok {
			rm, err := m.cfg.ResultMap(owner.mapping.NestedResultMapID)
			if err != nil {
				return nil, err
			}
			if _, err := m.handleResultSet(cs, rm, &owner); err != nil {
				return nil, err
			}
		}
		cs = m.nextResultSet(cur)
		count++
	}
	if err := cur.Err(); err != nil {
		return nil, errs.Wrap(err, errs.CodeExecution, "reading rows of '"+ms.ID+"'", goerrors.CategoryOperation)
	}

	if len(results) == 1 {
		list, _ := results[0].([]any)
		return list, nil
	}
	return results, nil
}

func (m *Materializer) nextResultSet(cur RowCursor) *columnSet {
	m.nested = make(map[string]any)
	if !cur.NextResultSet() {
		return nil
	}
	return newColumnSet(cur)
}

// handleResultSet maps every row of cs with rm. A non-nil owner links the
// rows into pending owners instead of returning them.
func (m *Materializer) handleResultSet(cs *columnSet, rm *mapping.ResultMap, owner *pendingOwner) ([]any, error) {
	var (
		handler = m.opts.Handler
		bounds  = m.opts.RowBounds
		col     *collector
	)
	if owner != nil {
		bounds = mapping.DefaultRowBounds
	} else if handler == nil {
		col = &collector{}
		handler = col.handle
	}

	var err error
	if rm.HasNestedResultMaps() {
		if m.cfg.Settings.SafeRowBoundsEnabled && !bounds.IsDefault() {
			return nil, errs.New(errs.CodeInvalidMapping,
				"statement '"+m.opts.Statement.ID+"' maps nested results and cannot be paged; disable SafeRowBoundsEnabled to allow it",
				goerrors.CategoryValidation)
		}
		err = m.handleNestedRows(cs, rm, handler, bounds, owner)
	} else {
		err = m.handleSimpleRows(cs, rm, handler, bounds, owner)
	}
	if err != nil {
		return nil, err
	}
	if col != nil {
		if col.list == nil {
			col.list = make([]any, 0)
		}
		return col.list, nil
	}
	return nil, nil
}

func skipRows(cur RowCursor, offset int) {
	for i := 0; i < offset; i++ {
		if !cur.Next() {
			return
		}
	}
}

func shouldProcessMore(rc *mapping.ResultContext, bounds mapping.RowBounds) bool {
	return !rc.IsStopped() && rc.Count < bounds.Limit
}

func (m *Materializer) handleSimpleRows(cs *columnSet, rm *mapping.ResultMap, handler mapping.ResultHandler,
	bounds mapping.RowBounds, owner *pendingOwner) error {
	rc := &mapping.ResultContext{}
	skipRows(cs.cur, bounds.Offset)
	for shouldProcessMore(rc, bounds) && cs.cur.Next() {
		effective, err := m.resolveDiscriminator(cs, rm, "")
		if err != nil {
			return err
		}
		row, err := m.rowValue(cs, effective, "")
		if err != nil {
			return err
		}
		if err := m.store(cs, rc, handler, row, owner); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) store(cs *columnSet, rc *mapping.ResultContext, handler mapping.ResultHandler,
	row any, owner *pendingOwner) error {
	if owner != nil {
		return m.linkToOwners(cs, owner, row)
	}
	rc.Object = row
	rc.Count++
	return handler(rc)
}

// resolveDiscriminator follows discriminators from rm for the current row.
// A value without a case keeps the current map. A map reached twice is a
// cycle, except when it inherits the discriminator that led to it.
func (m *Materializer) resolveDiscriminator(cs *columnSet, rm *mapping.ResultMap, prefix string) (*mapping.ResultMap, error) {
	visited := map[string]struct{}{rm.ID: {}}
	d := rm.Discriminator
	for d != nil {
		raw, _ := cs.raw(prependPrefix(d.Column, prefix))
		value, err := m.decode(raw, d.Codec, d.Column)
		if err != nil {
			return nil, err
		}
		id, ok := d.CaseFor(value)
		if !ok {
			break
		}
		next, err := m.cfg.ResultMap(id)
		if err != nil {
			return nil, err
		}
		last := d
		rm = next
		d = rm.Discriminator
		if d == last {
			break
		}
		if _, seen := visited[id]; seen {
			return nil, errs.New(errs.CodeDiscriminatorCycle,
				"discriminator of result map '"+id+"' leads back to itself", goerrors.CategoryValidation).
				WithMetadata(map[string]any{"result_map": id})
		}
		visited[id] = struct{}{}
	}
	return rm, nil
}

// rowValue builds the object of a simple result map from the current row.
func (m *Materializer) rowValue(cs *columnSet, rm *mapping.ResultMap, prefix string) (any, error) {
	row, found, err := m.createResultObject(cs, rm, prefix)
	if err != nil || row == nil || m.isSingleValue(rm) {
		return row, err
	}

	meta := m.cfg.Reflection.MetaObject(row)
	if m.shouldAutoMap(rm, false) {
		ok, err := m.applyAutoMappings(cs, rm, meta, prefix)
		if err != nil {
			return nil, err
		}
		found = ok || found
	}
	ok, err := m.applyPropertyMappings(cs, rm, meta, prefix)
	if err != nil {
		return nil, err
	}
	found = ok || found
	if found || m.cfg.Settings.ReturnInstanceForEmptyRow {
		return row, nil
	}
	return nil, nil
}

func (m *Materializer) shouldAutoMap(rm *mapping.ResultMap, nested bool) bool {
	if rm.AutoMapping != nil {
		return *rm.AutoMapping
	}
	if nested {
		return m.cfg.Settings.AutoMappingBehavior == mapping.AutoMappingFull
	}
	return m.cfg.Settings.AutoMappingBehavior != mapping.AutoMappingNone
}

func (m *Materializer) isSingleValue(rm *mapping.ResultMap) bool {
	if reflection.IsBean(rm.Type) {
		return false
	}
	return m.cfg.Codecs.Has(rm.Type)
}

func (m *Materializer) nestedResultMap(cs *columnSet, id, prefix string) (*mapping.ResultMap, error) {
	rm, err := m.cfg.ResultMap(id)
	if err != nil {
		return nil, err
	}
	return m.resolveDiscriminator(cs, rm, prefix)
}
