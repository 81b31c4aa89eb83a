package scripting

import (
	"reflect"
	"regexp"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/reflection"
)

// StaticSource is SQL already reduced to ? markers and parameter mappings.
type StaticSource struct {
	SQL               string
	ParameterMappings []mapping.ParameterMapping
}

// BoundSQL binds param to the parsed SQL.
func (s *StaticSource) BoundSQL(param any) (*mapping.BoundSQL, error) {
	return mapping.NewBoundSQL(s.SQL, s.ParameterMappings, param), nil
}

// RawSource is SQL without dynamic nodes, parsed once when built.
type RawSource struct {
	static *StaticSource
}

// BoundSQL binds param to the parsed SQL.
func (s *RawSource) BoundSQL(param any) (*mapping.BoundSQL, error) {
	return s.static.BoundSQL(param)
}

// SQL returns the parsed SQL text.
func (s *RawSource) SQL() string { return s.static.SQL }

// DynamicSource renders its template for every call.
type DynamicSource struct {
	lang *Language
	root Node
}

// BoundSQL renders the template against param. Values bound while
// rendering become additional parameters of the result.
func (s *DynamicSource) BoundSQL(param any) (*mapping.BoundSQL, error) {
	ctx := newContext(s.lang, param)
	if _, err := s.root.Apply(ctx); err != nil {
		return nil, err
	}
	var paramType reflect.Type
	if param != nil {
		paramType = reflect.TypeOf(param)
	}
	static, err := s.lang.builder.Parse(ctx.SQL(), paramType, ctx.Bindings())
	if err != nil {
		return nil, err
	}
	bound, err := static.BoundSQL(param)
	if err != nil {
		return nil, err
	}
	for k, v := range ctx.Bindings() {
		bound.SetAdditionalParameter(k, v)
	}
	return bound, nil
}

// Language builds SQL sources for one configuration.
type Language struct {
	eval              *Evaluator
	builder           *SourceBuilder
	reflection        *reflection.Registry
	filter            *regexp.Regexp
	databaseID        string
	nullableOnForEach bool
}

// NewLanguage creates a language using the settings, codecs and reflection
// registry of cfg.
func NewLanguage(cfg *mapping.Configuration) (*Language, error) {
	s := cfg.Settings
	l := &Language{
		eval:              NewEvaluator(s.ExpressionCacheSize, s.ExpressionCacheTTL),
		builder:           NewSourceBuilder(cfg.Codecs, cfg.Reflection, s.ShrinkWhitespacesInSQL),
		reflection:        cfg.Reflection,
		databaseID:        s.EnvironmentID,
		nullableOnForEach: s.NullableOnForEach,
	}
	if s.InjectionFilter != "" {
		re, err := regexp.Compile(s.InjectionFilter)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeInvalidConfig, "invalid injection filter", goerrors.CategoryValidation)
		}
		l.filter = re
	}
	return l, nil
}

// Evaluator returns the expression evaluator.
func (l *Language) Evaluator() *Evaluator { return l.eval }

// Builder returns the placeholder parser.
func (l *Language) Builder() *SourceBuilder { return l.builder }

// Source builds a source from template nodes. A template without dynamic
// nodes is parsed once, otherwise it is rendered per call. Expressions are
// compiled here so syntax errors surface when the statement is declared.
func (l *Language) Source(nodes ...Node) (mapping.SQLSource, error) {
	var root Node
	if len(nodes) == 1 {
		root = nodes[0]
	} else {
		root = Mixed(nodes...)
	}
	if !isDynamic(root) {
		return l.Raw(staticText(root), nil)
	}
	if err := compileAll(l.eval, root); err != nil {
		return nil, err
	}
	return &DynamicSource{lang: l, root: root}, nil
}

// Raw parses sql holding only #{} placeholders. paramType, a sample value or
// reflect.Type, types the placeholder properties when not nil.
func (l *Language) Raw(sql string, paramType any) (mapping.SQLSource, error) {
	var t reflect.Type
	switch v := paramType.(type) {
	case nil:
	case reflect.Type:
		t = v
	default:
		t = reflect.TypeOf(v)
	}
	static, err := l.builder.Parse(sql, t, map[string]any{})
	if err != nil {
		return nil, err
	}
	return &RawSource{static: static}, nil
}

// MustSource is Source for templates known to be valid. It panics on error.
func (l *Language) MustSource(nodes ...Node) mapping.SQLSource {
	src, err := l.Source(nodes...)
	if err != nil {
		panic(err)
	}
	return src
}
