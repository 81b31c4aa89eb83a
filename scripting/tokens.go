package scripting

import "strings"

// tokenParser finds open/close delimited tokens in text and replaces each
// with the handler's result. A backslash before the open or close token
// escapes it.
type tokenParser struct {
	open    string
	close   string
	handler func(content string) (string, error)
}

func newTokenParser(openToken, closeToken string, handler func(string) (string, error)) tokenParser {
	return tokenParser{open: openToken, close: closeToken, handler: handler}
}

func (p tokenParser) parse(text string) (string, error) {
	start := strings.Index(text, p.open)
	if start < 0 {
		return text, nil
	}

	var out strings.Builder
	out.Grow(len(text))
	offset := 0
	for start > -1 {
		if start > 0 && text[start-1] == '\\' {
			out.WriteString(text[offset : start-1])
			out.WriteString(p.open)
			offset = start + len(p.open)
			start = indexFrom(text, p.open, offset)
			continue
		}

		out.WriteString(text[offset:start])
		offset = start + len(p.open)

		var expr strings.Builder
		end := indexFrom(text, p.close, offset)
		for end > -1 {
			if end > offset && text[end-1] == '\\' {
				expr.WriteString(text[offset : end-1])
				expr.WriteString(p.close)
				offset = end + len(p.close)
				end = indexFrom(text, p.close, offset)
				continue
			}
			expr.WriteString(text[offset:end])
			break
		}

		if end == -1 {
			// unterminated token is kept verbatim
			out.WriteString(text[start:])
			offset = len(text)
			break
		}

		replaced, err := p.handler(expr.String())
		if err != nil {
			return "", err
		}
		out.WriteString(replaced)
		offset = end + len(p.close)
		start = indexFrom(text, p.open, offset)
	}
	if offset < len(text) {
		out.WriteString(text[offset:])
	}
	return out.String(), nil
}

func indexFrom(s, substr string, from int) int {
	if from >= len(s) {
		return -1
	}
	i := strings.Index(s[from:], substr)
	if i < 0 {
		return -1
	}
	return from + i
}
