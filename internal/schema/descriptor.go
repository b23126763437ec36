// Package schema builds the per-table descriptor that constrains SQL
// generation: column names, types, nullability, comments, and a bounded
// sample of distinct values per column.
package schema

import (
	"fmt"
	"strings"
)

// MaxSampleValues bounds the distinct-value sample kept per column.
// A column whose full distinct set fits in the sample is "constrained":
// the generator may treat the sample as the complete value domain.
const MaxSampleValues = 10

// ColumnSpec describes one column of the target table.
type ColumnSpec struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Nullable     bool     `json:"nullable"`
	Comment      string   `json:"comment,omitempty"`
	SampleValues []string `json:"sample_values,omitempty"`
	Constrained  bool     `json:"constrained"`
}

// TableDescriptor describes the single table a generation request targets.
// It is immutable for the lifetime of the request.
type TableDescriptor struct {
	Database string       `json:"database"`
	Table    string       `json:"table"`
	Columns  []ColumnSpec `json:"columns"`
}

// Column returns the spec for the named column, matched case-insensitively.
func (d *TableDescriptor) Column(name string) (ColumnSpec, bool) {
	for _, c := range d.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// ColumnNames returns the column names in table order.
func (d *TableDescriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// QualifiedName returns the backtick-quoted `db`.`table` form used in prompts.
func (d *TableDescriptor) QualifiedName() string {
	return fmt.Sprintf("`%s`.`%s`", d.Database, d.Table)
}

// PromptText renders the descriptor as the schema block embedded in
// generation and judgment prompts.
func (d *TableDescriptor) PromptText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Table %s columns:\n", d.QualifiedName())
	for _, c := range d.Columns {
		nullable := "NOT NULL"
		if c.Nullable {
			nullable = "NULL"
		}
		fmt.Fprintf(&sb, "- `%s` %s %s", c.Name, c.Type, nullable)
		if c.Comment != "" {
			fmt.Fprintf(&sb, " -- %s", c.Comment)
		}
		sb.WriteString("\n")
	}

	var constraints []string
	for _, c := range d.Columns {
		if len(c.SampleValues) == 0 {
			continue
		}
		vals := strings.Join(c.SampleValues, ", ")
		if c.Constrained {
			constraints = append(constraints,
				fmt.Sprintf("- `%s` only takes these values: %s", c.Name, vals))
		} else {
			constraints = append(constraints,
				fmt.Sprintf("- `%s` example values (not exhaustive): %s", c.Name, vals))
		}
	}
	if len(constraints) > 0 {
		sb.WriteString("Column value constraints:\n")
		sb.WriteString(strings.Join(constraints, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}
