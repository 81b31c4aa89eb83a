package mapping

import (
	"reflect"
	"time"

	"github.com/goliatone/go-sqlmap/cache"
)

// CommandType is the kind of SQL command a statement runs.
type CommandType int

const (
	CommandUnknown CommandType = iota
	CommandSelect
	CommandInsert
	CommandUpdate
	CommandDelete
	CommandFlush
)

func (c CommandType) String() string {
	switch c {
	case CommandSelect:
		return "SELECT"
	case CommandInsert:
		return "INSERT"
	case CommandUpdate:
		return "UPDATE"
	case CommandDelete:
		return "DELETE"
	case CommandFlush:
		return "FLUSH"
	default:
		return "UNKNOWN"
	}
}

// StatementType selects how the driver runs the SQL.
type StatementType int

const (
	StatementPrepared StatementType = iota
	StatementPlain
	StatementCallable
)

// ResultShape is the declared return shape of a select.
type ResultShape int

const (
	ShapeList ResultShape = iota
	ShapeOne
	ShapeMap
)

// SQLSource renders the SQL of a statement for one parameter object.
type SQLSource interface {
	BoundSQL(param any) (*BoundSQL, error)
}

// MappedStatement is a registered statement.
type MappedStatement struct {
	ID            string
	Resource      string
	Command       CommandType
	StatementType StatementType
	Source        SQLSource
	ParameterType reflect.Type

	ResultMapIDs []string
	ResultMaps   []*ResultMap
	// ResultSets names the result sets the statement returns, in order.
	ResultSets []string

	Cache              cache.Cache
	UseCache           bool
	FlushCacheRequired bool

	FetchSize     int
	Timeout       time.Duration
	ResultOrdered bool
	Shape         ResultShape
	// MapKey is the property keying ShapeMap results.
	MapKey string
	// KeyProperty receives the generated id after an insert.
	KeyProperty string
	DatabaseID  string

	resultType  reflect.Type
	useCacheSet bool
	flushSet    bool
}

// StatementOption configures a MappedStatement.
type StatementOption func(*MappedStatement)

// WithResultMaps references registered result maps by id.
func WithResultMaps(ids ...string) StatementOption {
	return func(ms *MappedStatement) { ms.ResultMapIDs = append(ms.ResultMapIDs, ids...) }
}

// WithResultType maps rows onto typ by auto-mapping alone. typ is a sample
// value or a reflect.Type.
func WithResultType(typ any) StatementOption {
	return func(ms *MappedStatement) { ms.resultType = typeOf(typ) }
}

// WithCache binds the statement to a second-level cache.
func WithCache(c cache.Cache) StatementOption {
	return func(ms *MappedStatement) { ms.Cache = c }
}

// UseCache overrides whether a select reads the second-level cache.
func UseCache(use bool) StatementOption {
	return func(ms *MappedStatement) { ms.UseCache, ms.useCacheSet = use, true }
}

// FlushCache overrides whether the statement clears caches before running.
func FlushCache(flush bool) StatementOption {
	return func(ms *MappedStatement) { ms.FlushCacheRequired, ms.flushSet = flush, true }
}

// Timeout sets the statement deadline.
func Timeout(d time.Duration) StatementOption {
	return func(ms *MappedStatement) { ms.Timeout = d }
}

// FetchSize sets the expected number of rows.
func FetchSize(n int) StatementOption {
	return func(ms *MappedStatement) { ms.FetchSize = n }
}

// ResultOrdered declares rows sorted by the top level id, so nested results
// can be released as soon as the id changes.
func ResultOrdered() StatementOption {
	return func(ms *MappedStatement) { ms.ResultOrdered = true }
}

// ResultSets names the result sets returned by a callable statement.
func ResultSets(names ...string) StatementOption {
	return func(ms *MappedStatement) { ms.ResultSets = append(ms.ResultSets, names...) }
}

// ReturnsOne declares a single-row select.
func ReturnsOne() StatementOption {
	return func(ms *MappedStatement) { ms.Shape = ShapeOne }
}

// ReturnsMap declares a select returning objects keyed by property.
func ReturnsMap(property string) StatementOption {
	return func(ms *MappedStatement) {
		ms.Shape = ShapeMap
		ms.MapKey = property
	}
}

// Callable runs the statement as a stored procedure call.
func Callable() StatementOption {
	return func(ms *MappedStatement) { ms.StatementType = StatementCallable }
}

// Plain runs the SQL without preparing it.
func Plain() StatementOption {
	return func(ms *MappedStatement) { ms.StatementType = StatementPlain }
}

// ParameterType documents the expected parameter type.
func ParameterType(typ any) StatementOption {
	return func(ms *MappedStatement) { ms.ParameterType = typeOf(typ) }
}

// KeyProperty stores the generated key of an insert into property.
func KeyProperty(property string) StatementOption {
	return func(ms *MappedStatement) { ms.KeyProperty = property }
}

// DatabaseID restricts the statement to one environment.
func DatabaseID(id string) StatementOption {
	return func(ms *MappedStatement) { ms.DatabaseID = id }
}

// Resource records where the statement was declared.
func Resource(resource string) StatementOption {
	return func(ms *MappedStatement) { ms.Resource = resource }
}

// NewStatement declares a statement. Selects use the second-level cache and
// do not flush; the other commands flush and skip it.
func NewStatement(id string, command CommandType, source SQLSource, opts ...StatementOption) *MappedStatement {
	ms := &MappedStatement{ID: id, Command: command, Source: source}
	for _, opt := range opts {
		opt(ms)
	}
	isSelect := command == CommandSelect
	if !ms.useCacheSet {
		ms.UseCache = isSelect
	}
	if !ms.flushSet {
		ms.FlushCacheRequired = !isSelect
	}
	return ms
}

// BoundSQL renders the statement for param.
func (ms *MappedStatement) BoundSQL(param any) (*BoundSQL, error) {
	return ms.Source.BoundSQL(param)
}

// IsSelect reports whether the statement reads rows.
func (ms *MappedStatement) IsSelect() bool { return ms.Command == CommandSelect }

// HasNestedResultMaps reports whether any result map of the statement maps
// rows onto nested objects.
func (ms *MappedStatement) HasNestedResultMaps() bool {
	for _, rm := range ms.ResultMaps {
		if rm.HasNestedResultMaps() {
			return true
		}
	}
	return false
}

// HasOutParameters reports whether bound contains OUT or INOUT parameters.
func HasOutParameters(bound *BoundSQL) bool {
	for _, pm := range bound.ParameterMappings {
		if pm.IsOut() {
			return true
		}
	}
	return false
}
