package reflection

import "strings"

type segment struct {
	name    string
	index   string
	indexed bool
}

// parsePath splits "orders[0].lines[2].sku" into its segments. Only one
// index per segment is supported.
func parsePath(path string) []segment {
	parts := strings.Split(path, ".")
	out := make([]segment, 0, len(parts))
	for _, part := range parts {
		seg := segment{name: part}
		if open := strings.IndexByte(part, '['); open >= 0 && strings.HasSuffix(part, "]") {
			seg.name = part[:open]
			seg.index = part[open+1 : len(part)-1]
			seg.indexed = true
		}
		out = append(out, seg)
	}
	return out
}

// SplitProperty returns the first segment of a property path and the rest.
func SplitProperty(path string) (head, rest string) {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

// BaseName returns the first segment of path without any index.
func BaseName(path string) string {
	head, _ := SplitProperty(path)
	if i := strings.IndexByte(head, '['); i >= 0 {
		return head[:i]
	}
	return head
}
