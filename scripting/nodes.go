package scripting

import (
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
)

// Node is one element of a statement template. Apply renders the node into
// ctx and reports whether it produced output.
type Node interface {
	Apply(ctx *DynamicContext) (bool, error)
}

// expressions lists the expressions a node evaluates, so they can be
// compiled when the statement is built.
type expressive interface {
	expressions() []string
}

// parent is implemented by nodes holding children.
type parent interface {
	children() []Node
}

// StaticText is text without ${} substitutions.
type StaticText string

func (t StaticText) Apply(ctx *DynamicContext) (bool, error) {
	ctx.AppendSQL(string(t))
	return true, nil
}

// TextNode is text holding ${expression} substitutions. Substituted values
// are spliced into the SQL as is, so they must come from trusted input or
// pass the configured injection filter.
type TextNode struct {
	Text string
}

// Text returns a StaticText, or a TextNode when sql holds ${} tokens.
func Text(sql string) Node {
	if isDynamicText(sql) {
		return &TextNode{Text: sql}
	}
	return StaticText(sql)
}

func isDynamicText(sql string) bool {
	dynamic := false
	p := newTokenParser("${", "}", func(string) (string, error) {
		dynamic = true
		return "", nil
	})
	_, _ = p.parse(sql)
	return dynamic
}

func (t *TextNode) Apply(ctx *DynamicContext) (bool, error) {
	p := newTokenParser("${", "}", func(content string) (string, error) {
		v, err := ctx.Evaluate(content)
		if err != nil {
			return "", err
		}
		s := ""
		if v != nil {
			s = fmt.Sprint(v)
		}
		if f := ctx.lang.filter; f != nil && !f.MatchString(s) {
			return "", errs.New(errs.CodeInvalidTemplate,
				"value of '${"+content+"}' does not match the injection filter", goerrors.CategoryBadInput).
				WithMetadata(map[string]any{"expression": content, "filter": f.String()})
		}
		return s, nil
	})
	out, err := p.parse(t.Text)
	if err != nil {
		return false, err
	}
	ctx.AppendSQL(out)
	return true, nil
}

func (t *TextNode) expressions() []string {
	var out []string
	p := newTokenParser("${", "}", func(content string) (string, error) {
		out = append(out, content)
		return "", nil
	})
	_, _ = p.parse(t.Text)
	return out
}

// MixedNode renders its children in order.
type MixedNode struct {
	Nodes []Node
}

// Mixed groups nodes into a sequence.
func Mixed(nodes ...Node) *MixedNode { return &MixedNode{Nodes: nodes} }

func (m *MixedNode) Apply(ctx *DynamicContext) (bool, error) {
	for _, n := range m.Nodes {
		if _, err := n.Apply(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (m *MixedNode) children() []Node { return m.Nodes }

// IfNode renders its children when Test holds.
type IfNode struct {
	Test  string
	Nodes []Node
}

// If renders nodes when test evaluates to true.
//
//	scripting.If(`title != nil`, scripting.Text("AND title like #{title}"))
func If(test string, nodes ...Node) *IfNode {
	return &IfNode{Test: test, Nodes: nodes}
}

// When is If used as a Choose branch.
func When(test string, nodes ...Node) *IfNode { return If(test, nodes...) }

func (n *IfNode) Apply(ctx *DynamicContext) (bool, error) {
	ok, err := ctx.Test(n.Test)
	if err != nil || !ok {
		return false, err
	}
	for _, c := range n.Nodes {
		if _, err := c.Apply(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (n *IfNode) expressions() []string { return []string{n.Test} }
func (n *IfNode) children() []Node      { return n.Nodes }

// OtherwiseNode is the default branch of a Choose.
type OtherwiseNode struct {
	Nodes []Node
}

// Otherwise builds the default branch of a Choose.
func Otherwise(nodes ...Node) *OtherwiseNode { return &OtherwiseNode{Nodes: nodes} }

func (n *OtherwiseNode) Apply(ctx *DynamicContext) (bool, error) {
	for _, c := range n.Nodes {
		if _, err := c.Apply(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (n *OtherwiseNode) children() []Node { return n.Nodes }

// ChooseNode renders the first branch whose test holds, or the default.
type ChooseNode struct {
	Whens     []*IfNode
	Otherwise *OtherwiseNode
}

// NewChoose builds a Choose from When and Otherwise branches. At most one
// Otherwise is allowed and any other node kind is rejected.
func NewChoose(branches ...Node) (*ChooseNode, error) {
	c := &ChooseNode{}
	for _, b := range branches {
		switch n := b.(type) {
		case *IfNode:
			c.Whens = append(c.Whens, n)
		case *OtherwiseNode:
			if c.Otherwise != nil {
				return nil, errs.New(errs.CodeInvalidTemplate,
					"choose has more than one otherwise branch", goerrors.CategoryValidation)
			}
			c.Otherwise = n
		default:
			return nil, errs.New(errs.CodeInvalidTemplate,
				fmt.Sprintf("choose accepts when and otherwise branches, got %T", b), goerrors.CategoryValidation)
		}
	}
	return c, nil
}

// Choose is NewChoose for templates known to be valid. It panics on error.
func Choose(branches ...Node) *ChooseNode {
	c, err := NewChoose(branches...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *ChooseNode) Apply(ctx *DynamicContext) (bool, error) {
	for _, w := range c.Whens {
		ok, err := w.Apply(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	if c.Otherwise != nil {
		return c.Otherwise.Apply(ctx)
	}
	return false, nil
}

func (c *ChooseNode) children() []Node {
	out := make([]Node, 0, len(c.Whens)+1)
	for _, w := range c.Whens {
		out = append(out, w)
	}
	if c.Otherwise != nil {
		out = append(out, c.Otherwise)
	}
	return out
}

// BindNode evaluates an expression once and binds the result under Name.
type BindNode struct {
	Name       string
	Expression string
}

// Bind binds the value of expression under name.
//
//	scripting.Bind("pattern", `"%" + title + "%"`)
func Bind(name, expression string) *BindNode {
	return &BindNode{Name: name, Expression: expression}
}

func (b *BindNode) Apply(ctx *DynamicContext) (bool, error) {
	v, err := ctx.Evaluate(b.Expression)
	if err != nil {
		return false, err
	}
	ctx.Bind(b.Name, v)
	return true, nil
}

func (b *BindNode) expressions() []string { return []string{b.Expression} }

// isDynamic reports whether rendering n depends on the parameter object.
func isDynamic(n Node) bool {
	switch v := n.(type) {
	case StaticText:
		return false
	case *MixedNode:
		for _, c := range v.Nodes {
			if isDynamic(c) {
				return true
			}
		}
		return false
	}
	return true
}

// staticText concatenates the text of a node tree without dynamic parts.
func staticText(n Node) string {
	switch v := n.(type) {
	case StaticText:
		return string(v)
	case *MixedNode:
		parts := make([]string, 0, len(v.Nodes))
		for _, c := range v.Nodes {
			if s := staticText(c); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// compileAll compiles every expression of the tree, returning the first
// error.
func compileAll(e *Evaluator, n Node) error {
	if x, ok := n.(expressive); ok {
		for _, expr := range x.expressions() {
			if _, err := e.Compile(expr); err != nil {
				return err
			}
		}
	}
	if p, ok := n.(parent); ok {
		for _, c := range p.children() {
			if err := compileAll(e, c); err != nil {
				return err
			}
		}
	}
	return nil
}
