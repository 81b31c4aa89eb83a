package mapping

import (
	"reflect"
	"strings"

	"github.com/goliatone/go-sqlmap/reflection"
	"github.com/goliatone/go-sqlmap/types"
)

// ParameterMode tells whether a parameter is sent, received or both.
type ParameterMode int

const (
	ModeIn ParameterMode = iota
	ModeOut
	ModeInOut
)

func (m ParameterMode) String() string {
	switch m {
	case ModeOut:
		return "OUT"
	case ModeInOut:
		return "INOUT"
	default:
		return "IN"
	}
}

// ParseParameterMode parses IN, OUT or INOUT.
func ParseParameterMode(s string) (ParameterMode, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "IN":
		return ModeIn, true
	case "OUT":
		return ModeOut, true
	case "INOUT":
		return ModeInOut, true
	}
	return ModeIn, false
}

// ParameterMapping describes one positional parameter of a BoundSQL.
type ParameterMapping struct {
	Property string
	Mode     ParameterMode
	GoType   reflect.Type // nil when unknown until the value is seen
	SQLType  string
	Codec    types.Codec // nil resolves by the value's type
}

// IsOut reports whether the driver writes the parameter back.
func (p ParameterMapping) IsOut() bool { return p.Mode != ModeIn }

// BoundSQL is the final SQL text of one invocation with its positional
// parameters. SQL always uses ? markers; drivers expecting another style
// get it rewritten at execution.
type BoundSQL struct {
	SQL               string
	ParameterMappings []ParameterMapping
	ParameterObject   any

	additional map[string]any
}

// NewBoundSQL creates a BoundSQL for param.
func NewBoundSQL(sql string, mappings []ParameterMapping, param any) *BoundSQL {
	return &BoundSQL{
		SQL:               sql,
		ParameterMappings: mappings,
		ParameterObject:   param,
		additional:        make(map[string]any),
	}
}

// SetAdditionalParameter binds a value produced while rendering, such as a
// foreach item alias.
func (b *BoundSQL) SetAdditionalParameter(name string, value any) {
	b.additional[name] = value
}

// HasAdditionalParameter reports whether the first segment of a property
// path was bound while rendering.
func (b *BoundSQL) HasAdditionalParameter(path string) bool {
	_, ok := b.additional[reflection.BaseName(path)]
	return ok
}

// AdditionalParameter reads a property path from the rendering bindings.
func (b *BoundSQL) AdditionalParameter(path string) (any, error) {
	return reflection.Of(b.additional).GetValue(path)
}

// AdditionalParameters returns the rendering bindings.
func (b *BoundSQL) AdditionalParameters() map[string]any { return b.additional }

// ParameterValue resolves the value of a parameter mapping the way the
// statement will send it: rendering bindings first, then a nil object, then
// a single-value object, then a property of the object.
func (b *BoundSQL) ParameterValue(property string, codecs *types.Registry) (any, error) {
	if b.HasAdditionalParameter(property) {
		return b.AdditionalParameter(property)
	}
	param := b.ParameterObject
	if param == nil {
		return nil, nil
	}
	if codecs != nil && IsSingleValue(param, codecs) {
		return param, nil
	}
	return reflection.Of(param).GetValue(property)
}

// IsSingleValue reports whether param is a scalar bound directly to every
// placeholder rather than an object whose properties are read.
func IsSingleValue(param any, codecs *types.Registry) bool {
	t := reflect.TypeOf(param)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer && reflection.IsBean(t) {
		return false
	}
	return codecs.Has(t)
}
