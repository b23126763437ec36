package database

import (
	"fmt"
	"strings"
)

// Dialect controls identifier quoting and placeholder style.
type Dialect int

const (
	// DialectMySQL uses ? placeholders and backtick-quoted identifiers.
	DialectMySQL Dialect = iota

	// DialectPostgres uses $1, $2, … placeholders and double-quoted identifiers.
	DialectPostgres
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// The operator position cannot be parameterized, so anything outside this
// list is rejected.
var validOps = map[string]bool{
	"=":    true,
	"!=":   true,
	"<>":   true,
	"<":    true,
	">":    true,
	"<=":   true,
	">=":   true,
	"LIKE": true,
}

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are never interpolated into the SQL string — always passed as args.
//
// Usage:
//
//	sql, args, err := Select("doctor_info", DialectMySQL).
//	    Columns("department").
//	    Distinct().
//	    WhereNotNull("department").
//	    Limit(11).
//	    Build()
type SelectBuilder struct {
	table    string
	dialect  Dialect
	distinct bool
	columns  []string
	where    []whereClause
	orderBy  []orderClause
	limit    *int
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type whereClause struct {
	column  string
	op      string
	value   any
	notNull bool
}

type orderClause struct {
	column string
	dir    SortDirection
}

// Select starts a new SelectBuilder for the given table and dialect.
// The table may be qualified as "db.table"; each part is quoted separately.
func Select(table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Distinct adds the DISTINCT qualifier to the column list.
func (b *SelectBuilder) Distinct() *SelectBuilder {
	b.distinct = true
	return b
}

// Where adds a WHERE condition. op must be one of the allowed comparison
// operators. Multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column: column, op: op, value: value})
	return b
}

// WhereNotNull adds a "column IS NOT NULL" condition.
func (b *SelectBuilder) WhereNotNull(column string) *SelectBuilder {
	b.where = append(b.where, whereClause{column: column, notNull: true})
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column: column, dir: dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Build produces the final SQL string and argument slice.
// Returns an error if any WHERE operator is not in the allowlist.
func (b *SelectBuilder) Build() (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}

	if len(b.columns) == 0 {
		sb.WriteString("*")
	} else {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = b.quoteIdent(c)
		}
		sb.WriteString(strings.Join(quoted, ", "))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(b.quoteQualified(b.table))

	var args []any
	for i, w := range b.where {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		if w.notNull {
			sb.WriteString(b.quoteIdent(w.column))
			sb.WriteString(" IS NOT NULL")
			continue
		}
		if !validOps[strings.ToUpper(w.op)] {
			return "", nil, fmt.Errorf("disallowed operator %q in WHERE clause", w.op)
		}
		args = append(args, w.value)
		sb.WriteString(b.quoteIdent(w.column))
		sb.WriteString(" ")
		sb.WriteString(strings.ToUpper(w.op))
		sb.WriteString(" ")
		sb.WriteString(b.placeholder(len(args)))
	}

	for i, o := range b.orderBy {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(b.quoteIdent(o.column))
		if o.dir == Desc {
			sb.WriteString(" DESC")
		}
	}

	if b.limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *b.limit)
	}

	return sb.String(), args, nil
}

func (b *SelectBuilder) placeholder(n int) string {
	if b.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (b *SelectBuilder) quoteIdent(ident string) string {
	if b.dialect == DialectPostgres {
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// quoteQualified quotes a possibly db-qualified table name part by part.
func (b *SelectBuilder) quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = b.quoteIdent(p)
	}
	return strings.Join(parts, ".")
}
