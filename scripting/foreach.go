package scripting

import (
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
)

// ForEachNode renders its children once per element of a collection.
//
// Every iteration binds Item and Index, plus per-iteration aliases that
// placeholders of the iteration are rewritten to, so #{id} inside the loop
// becomes #{__frch_id_0}, #{__frch_id_1} and so on.
type ForEachNode struct {
	Collection string
	Item       string
	Index      string
	Open       string
	Close      string
	Separator  string
	// Nullable renders nothing for a nil collection instead of failing.
	Nullable *bool
	Nodes    []Node
}

// ForEach iterates collection binding each element to item.
//
//	scripting.ForEach("ids", "id", scripting.Text("#{id}")).
//		Wrap("(", ")").Sep(",")
func ForEach(collection, item string, nodes ...Node) *ForEachNode {
	return &ForEachNode{Collection: collection, Item: item, Nodes: nodes}
}

// Wrap sets the open and close text.
func (f *ForEachNode) Wrap(openText, closeText string) *ForEachNode {
	f.Open, f.Close = openText, closeText
	return f
}

// Sep sets the separator.
func (f *ForEachNode) Sep(separator string) *ForEachNode {
	f.Separator = separator
	return f
}

// WithIndex names the binding of the element index or map key.
func (f *ForEachNode) WithIndex(index string) *ForEachNode {
	f.Index = index
	return f
}

// AllowNil sets whether a nil collection renders nothing.
func (f *ForEachNode) AllowNil(nullable bool) *ForEachNode {
	f.Nullable = &nullable
	return f
}

func (f *ForEachNode) Apply(ctx *DynamicContext) (bool, error) {
	entries, ok, err := ctx.lang.eval.iterate(f.Collection, ctx.Env())
	if err != nil {
		return false, err
	}
	if !ok {
		nullable := ctx.lang.nullableOnForEach
		if f.Nullable != nil {
			nullable = *f.Nullable
		}
		if nullable {
			return false, nil
		}
		return false, errs.New(errs.CodeInvalidTemplate,
			"foreach collection '"+f.Collection+"' evaluated to nil", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"collection": f.Collection})
	}

	ctx.AppendSQL(f.Open)
	first := true
	for _, e := range entries {
		prefix := f.Separator
		if first {
			prefix = ""
		}
		sink := &prefixedSink{delegate: ctx.sink, prefix: prefix}
		scoped := ctx.withSink(sink)

		n := ctx.UniqueNumber()
		f.bind(ctx, e, n)
		iter := scoped.withSink(&itemSink{delegate: sink, item: f.Item, index: f.Index, n: n})
		for _, c := range f.Nodes {
			if _, err := c.Apply(iter); err != nil {
				return false, err
			}
		}
		if first {
			first = !sink.applied
		}
	}
	ctx.AppendSQL(f.Close)

	delete(ctx.bindings, f.Item)
	if f.Index != "" {
		delete(ctx.bindings, f.Index)
	}
	return true, nil
}

func (f *ForEachNode) bind(ctx *DynamicContext, e entry, n int) {
	if f.Index != "" {
		ctx.Bind(f.Index, e.index)
		ctx.Bind(itemAlias(f.Index, n), e.index)
	}
	if f.Item != "" {
		ctx.Bind(f.Item, e.value)
		ctx.Bind(itemAlias(f.Item, n), e.value)
	}
}

func (f *ForEachNode) expressions() []string { return []string{f.Collection} }
func (f *ForEachNode) children() []Node      { return f.Nodes }
