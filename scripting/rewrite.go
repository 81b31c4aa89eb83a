package scripting

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goliatone/go-sqlmap/mapping"
)

// Rewrite converts the ? markers of sql to the positional style a driver
// expects: $1 for PostgreSQL, @p1 for SQL Server, :1 for Oracle. Quoted
// strings, identifiers, comments and dollar-quoted blocks are copied as is.
func Rewrite(sql string, style mapping.PlaceholderStyle) string {
	if style == mapping.PlaceholderQuestion || !strings.Contains(sql, "?") {
		return sql
	}
	out := make([]byte, 0, len(sql)+16)
	i, arg := 0, 1

	for i < len(sql) {
		r, w := utf8.DecodeRuneInString(sql[i:])
		switch r {
		case '\'', '"', '`':
			j := skipQuoted(sql, i+w, byte(r))
			out = append(out, sql[i:j]...)
			i = j
			continue
		case '-':
			if strings.HasPrefix(sql[i:], "--") {
				j := skipLineComment(sql, i+2)
				out = append(out, sql[i:j]...)
				i = j
				continue
			}
		case '/':
			if strings.HasPrefix(sql[i:], "/*") {
				j := skipBlockComment(sql, i+2)
				out = append(out, sql[i:j]...)
				i = j
				continue
			}
		case '$':
			if j, ok := skipDollarQuoted(sql, i); ok {
				out = append(out, sql[i:j]...)
				i = j
				continue
			}
		case '?':
			switch style {
			case mapping.PlaceholderDollar:
				out = append(out, '$')
			case mapping.PlaceholderAt:
				out = append(out, '@', 'p')
			case mapping.PlaceholderColon:
				out = append(out, ':')
			}
			out = strconv.AppendInt(out, int64(arg), 10)
			arg++
			i += w
			continue
		}
		out = append(out, sql[i:i+w]...)
		i += w
	}
	return string(out)
}

// skipQuoted returns the index after the closing quote. A doubled quote is
// an escaped one. Unterminated text runs to the end.
func skipQuoted(s string, i int, quote byte) int {
	for i < len(s) {
		c := s[i]
		i++
		if c == quote {
			if i < len(s) && s[i] == quote {
				i++
				continue
			}
			return i
		}
	}
	return len(s)
}

func skipLineComment(s string, i int) int {
	if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
		return i + j + 1
	}
	return len(s)
}

func skipBlockComment(s string, i int) int {
	if j := strings.Index(s[i:], "*/"); j >= 0 {
		return i + j + 2
	}
	return len(s)
}

// skipDollarQuoted handles $$...$$ and $tag$...$tag$ blocks.
func skipDollarQuoted(s string, i int) (int, bool) {
	j := i + 1
	for j < len(s) && s[j] != '$' && isTagChar(rune(s[j])) {
		j++
	}
	if j >= len(s) || s[j] != '$' {
		return 0, false
	}
	tag := s[i : j+1]
	k := j + 1
	idx := strings.Index(s[k:], tag)
	if idx < 0 {
		return len(s), true
	}
	return k + idx + len(tag), true
}

func isTagChar(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

// ShrinkWhitespace collapses every run of whitespace to a single space.
func ShrinkWhitespace(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
