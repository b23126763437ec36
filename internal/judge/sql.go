package judge

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?is)^```(?:sql)?\\s*\\n?(.*?)\\n?```\\s*$")

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// normalizeSQL cleans model output into a bare single-line statement:
// fences stripped, whitespace collapsed, trailing semicolons removed.
func normalizeSQL(s string) string {
	s = stripFences(s)
	s = strings.Join(strings.Fields(s), " ")
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

// escapes reports whether ch starts a backslash escape inside the active
// quote. MySQL honors backslash escapes in string literals but not inside
// backtick-quoted identifiers.
func escapes(ch, quote rune) bool {
	return ch == '\\' && quote != '`'
}

// splitStatements splits SQL on semicolons, ignoring semicolons inside
// single-quoted, double-quoted, or backtick-quoted runs. Empty fragments
// (e.g. from a trailing semicolon) are dropped.
func splitStatements(s string) []string {
	var (
		stmts   []string
		current strings.Builder
		quote   rune // active quote char, 0 when outside quotes
		esc     bool
	)

	for _, ch := range s {
		switch {
		case quote != 0:
			current.WriteRune(ch)
			switch {
			case esc:
				esc = false
			case escapes(ch, quote):
				esc = true
			case ch == quote:
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			current.WriteRune(ch)
		case ch == ';':
			if frag := strings.TrimSpace(current.String()); frag != "" {
				stmts = append(stmts, frag)
			}
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if frag := strings.TrimSpace(current.String()); frag != "" {
		stmts = append(stmts, frag)
	}
	return stmts
}

// balanced reports whether parentheses nest correctly and every quoted run
// is terminated.
func balanced(s string) bool {
	depth := 0
	var quote rune
	var esc bool
	for _, ch := range s {
		switch {
		case quote != 0:
			switch {
			case esc:
				esc = false
			case escapes(ch, quote):
				esc = true
			case ch == quote:
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && quote == 0
}

// isReadOnly reports whether the statement begins with an allowed read-only
// keyword.
func isReadOnly(stmt string) bool {
	fields := strings.Fields(strings.ToUpper(stmt))
	if len(fields) == 0 {
		return false
	}
	return fields[0] == "SELECT" || fields[0] == "WITH"
}

// sqlKeywords are tokens the identifier scan must not mistake for columns.
// This covers the keywords and functions the generator is instructed to use;
// anything unknown degrades to a warning, never a hard failure.
var sqlKeywords = map[string]bool{
	"select": true, "distinct": true, "from": true, "where": true, "and": true,
	"or": true, "not": true, "in": true, "is": true, "null": true, "like": true,
	"between": true, "group": true, "by": true, "having": true, "order": true,
	"asc": true, "desc": true, "limit": true, "offset": true, "as": true,
	"join": true, "inner": true, "left": true, "right": true, "outer": true,
	"on": true, "union": true, "all": true, "case": true, "when": true,
	"then": true, "else": true, "end": true, "with": true, "over": true,
	"partition": true, "rows": true, "exists": true, "true": true, "false": true,
	"interval": true, "day": true, "month": true, "year": true, "cast": true,
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"round": true, "coalesce": true, "ifnull": true, "nullif": true,
	"concat": true, "substring": true, "upper": true, "lower": true,
	"row_number": true, "rank": true, "dense_rank": true, "date_format": true,
	"curdate": true, "now": true, "datediff": true, "timestampdiff": true,
	"date": true, "if": true, "abs": true, "floor": true, "ceil": true,
}

var identRe = regexp.MustCompile("`([^`]+)`|[A-Za-z_][A-Za-z0-9_]*")

// scanIdentifiers extracts candidate identifier tokens from a statement,
// skipping string literals. Backtick-quoted tokens are returned unwrapped.
func scanIdentifiers(stmt string) []string {
	// blank out single- and double-quoted literals so their contents are
	// never mistaken for identifiers
	var cleaned strings.Builder
	var quote rune
	var esc bool
	for _, ch := range stmt {
		switch {
		case quote != 0:
			switch {
			case esc:
				esc = false
			case escapes(ch, quote):
				esc = true
			case ch == quote:
				quote = 0
			}
			cleaned.WriteRune(' ')
		case ch == '\'' || ch == '"':
			quote = ch
			cleaned.WriteRune(' ')
		default:
			cleaned.WriteRune(ch)
		}
	}

	var idents []string
	for _, m := range identRe.FindAllStringSubmatch(cleaned.String(), -1) {
		tok := m[1]
		if tok == "" {
			tok = m[0]
		}
		idents = append(idents, tok)
	}
	return idents
}
