package scripting

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/goliatone/go-sqlmap/reflection"
)

// Names bound in every context.
const (
	ParameterKey  = "_parameter"
	DatabaseIDKey = "_databaseId"
)

// sqlSink receives rendered SQL fragments.
type sqlSink interface {
	appendSQL(sql string)
}

// joinSink collects fragments and joins them with single spaces.
type joinSink struct {
	parts []string
}

func (s *joinSink) appendSQL(sql string) {
	if sql != "" {
		s.parts = append(s.parts, sql)
	}
}

func (s *joinSink) String() string { return strings.Join(s.parts, " ") }

// DynamicContext is the state of one template evaluation: the SQL rendered
// so far and the name to value bindings visible to expressions.
type DynamicContext struct {
	lang     *Language
	param    any
	base     map[string]any
	bindings map[string]any
	sink     sqlSink
	root     *joinSink
	unique   *int
}

func newContext(lang *Language, param any) *DynamicContext {
	root := &joinSink{}
	c := &DynamicContext{
		lang:     lang,
		param:    param,
		bindings: make(map[string]any),
		sink:     root,
		root:     root,
		unique:   new(int),
	}
	c.base = lang.reflection.Env(param)
	c.bindings[ParameterKey] = param
	c.bindings[DatabaseIDKey] = lang.databaseID

	if param != nil {
		t := reflection.Deref(reflect.TypeOf(param))
		switch {
		case t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8:
			c.bindings["list"] = param
			c.bindings["collection"] = param
		case t.Kind() == reflect.Array:
			c.bindings["array"] = param
		case t.Kind() != reflect.Map && !reflection.IsBean(t):
			c.bindings["value"] = param
		}
	}
	return c
}

// Parameter returns the parameter object being rendered.
func (c *DynamicContext) Parameter() any { return c.param }

// Bind makes value visible to later expressions under name.
func (c *DynamicContext) Bind(name string, value any) {
	c.bindings[name] = value
}

// Bindings returns the explicit bindings, without parameter properties.
func (c *DynamicContext) Bindings() map[string]any { return c.bindings }

// AppendSQL adds a fragment to the output.
func (c *DynamicContext) AppendSQL(sql string) {
	c.sink.appendSQL(sql)
}

// SQL returns the rendered text.
func (c *DynamicContext) SQL() string { return strings.TrimSpace(c.root.String()) }

// UniqueNumber returns a number not handed out before in this evaluation.
func (c *DynamicContext) UniqueNumber() int {
	n := *c.unique
	*c.unique++
	return n
}

// Env returns the expression environment: parameter properties overlaid by
// the explicit bindings.
func (c *DynamicContext) Env() map[string]any {
	env := make(map[string]any, len(c.base)+len(c.bindings))
	for k, v := range c.base {
		env[k] = v
	}
	for k, v := range c.bindings {
		env[k] = c.lang.reflection.EnvValue(v)
	}
	return env
}

// Evaluate runs an expression against the context.
func (c *DynamicContext) Evaluate(expression string) (any, error) {
	return c.lang.eval.Evaluate(expression, c.Env())
}

// Test runs a condition against the context.
func (c *DynamicContext) Test(expression string) (bool, error) {
	return c.lang.eval.EvaluateBool(expression, c.Env())
}

// withSink returns a context sharing state with c whose output goes to s.
func (c *DynamicContext) withSink(s sqlSink) *DynamicContext {
	cp := *c
	cp.sink = s
	return &cp
}

// prefixedSink writes prefix before the first non-blank fragment.
type prefixedSink struct {
	delegate sqlSink
	prefix   string
	applied  bool
}

func (s *prefixedSink) appendSQL(sql string) {
	if !s.applied && strings.TrimSpace(sql) != "" {
		s.delegate.appendSQL(s.prefix)
		s.applied = true
	}
	s.delegate.appendSQL(sql)
}

// itemSink rewrites #{item...} and #{index...} placeholders of one
// iteration to the names bound for that iteration.
type itemSink struct {
	delegate sqlSink
	item     string
	index    string
	n        int
}

func (s *itemSink) appendSQL(sql string) {
	p := newTokenParser("#{", "}", func(content string) (string, error) {
		rewritten, ok := itemize(content, s.item, s.n)
		if !ok {
			rewritten, _ = itemize(content, s.index, s.n)
		}
		return "#{" + rewritten + "}", nil
	})
	out, _ := p.parse(sql)
	s.delegate.appendSQL(out)
}

// itemize replaces a leading reference to name in a placeholder body with
// its per-iteration alias. The reference must be followed by the end of the
// body, a property separator or whitespace.
func itemize(content, name string, n int) (string, bool) {
	if name == "" {
		return content, false
	}
	body := strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(body, name) {
		return content, false
	}
	rest := body[len(name):]
	if rest != "" {
		switch rest[0] {
		case '.', ',', ':', ' ', '\t', '\r', '\n':
		default:
			return content, false
		}
	}
	return itemAlias(name, n) + rest, true
}

func itemAlias(name string, n int) string {
	return "__frch_" + name + "_" + strconv.Itoa(n)
}
