package scripting

import "strings"

// TrimNode wraps the output of its children with Prefix and Suffix when
// they rendered anything, after removing the first matching override token
// at either end. Overrides match case-insensitively.
type TrimNode struct {
	Prefix          string
	Suffix          string
	PrefixOverrides []string
	SuffixOverrides []string
	Nodes           []Node
}

// Overrides splits a pipe separated override list. Tokens are not trimmed
// so "AND |OR " only matches whole words.
func Overrides(list string) []string {
	if list == "" {
		return nil
	}
	parts := strings.Split(list, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

// Trim builds a TrimNode.
func Trim(prefix, prefixOverrides, suffix, suffixOverrides string, nodes ...Node) *TrimNode {
	return &TrimNode{
		Prefix:          prefix,
		Suffix:          suffix,
		PrefixOverrides: Overrides(prefixOverrides),
		SuffixOverrides: Overrides(suffixOverrides),
		Nodes:           nodes,
	}
}

// Where renders a WHERE clause, dropping a leading AND or OR.
//
//	scripting.Where(
//		scripting.If(`state != nil`, scripting.Text("state = #{state}")),
//		scripting.If(`title != nil`, scripting.Text("AND title like #{title}")),
//	)
func Where(nodes ...Node) *TrimNode {
	return Trim("WHERE", "AND |OR |AND\n|OR\n|AND\r|OR\r|AND\t|OR\t", "", "", nodes...)
}

// Set renders a SET clause, dropping a stray comma at either end.
func Set(nodes ...Node) *TrimNode {
	return Trim("SET", ",", "", ",", nodes...)
}

func (t *TrimNode) Apply(ctx *DynamicContext) (bool, error) {
	buf := &joinSink{}
	child := ctx.withSink(buf)
	for _, n := range t.Nodes {
		if _, err := n.Apply(child); err != nil {
			return false, err
		}
	}
	ctx.AppendSQL(t.wrap(buf.String()))
	return true, nil
}

func (t *TrimNode) wrap(sql string) string {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return ""
	}
	for _, o := range t.PrefixOverrides {
		if hasPrefixFold(sql, o) {
			sql = strings.TrimSpace(sql[len(o):])
			break
		}
	}
	for _, o := range t.SuffixOverrides {
		if n, ok := suffixOverride(sql, o); ok {
			sql = strings.TrimSpace(sql[:len(sql)-n])
			break
		}
	}
	if sql == "" {
		return ""
	}
	if t.Prefix != "" {
		sql = t.Prefix + " " + sql
	}
	if t.Suffix != "" {
		sql = sql + " " + t.Suffix
	}
	return sql
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// suffixOverride returns how many trailing bytes of sql the override
// removes. Trailing whitespace of the override was trimmed off sql already,
// so a word override also matches when preceded by whitespace.
func suffixOverride(sql, o string) (int, bool) {
	if len(sql) >= len(o) && strings.EqualFold(sql[len(sql)-len(o):], o) {
		return len(o), true
	}
	word := strings.TrimSpace(o)
	if word == "" || word == o || len(sql) < len(word) {
		return 0, false
	}
	if !strings.EqualFold(sql[len(sql)-len(word):], word) {
		return 0, false
	}
	if rest := sql[:len(sql)-len(word)]; rest == "" || strings.ContainsAny(rest[len(rest)-1:], " \t\r\n") {
		return len(word), true
	}
	return 0, false
}

func (t *TrimNode) children() []Node { return t.Nodes }
