// Package rowset turns raw driver result sets into a JSON-friendly shape:
// every value becomes a tagged Cell so clients can render and sort columns
// without guessing types from JSON's untyped numbers and strings.
package rowset

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/koustreak/nlquery/internal/database"
	"github.com/koustreak/nlquery/internal/errs"
)

// Cell kinds. Every cell carries exactly one of these tags.
const (
	KindNumber = "number"
	KindString = "string"
	KindDate   = "date"
	KindBool   = "bool"
	KindNull   = "null"
)

// Cell is one typed value in a result row.
type Cell struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

// String renders the cell for plain-text output (table previews, prompts).
func (c Cell) String() string {
	if c.Kind == KindNull {
		return "NULL"
	}
	return fmt.Sprintf("%v", c.Value)
}

// Rowset is a fully scanned, typed result set.
type Rowset struct {
	Columns []string `json:"columns"`
	Rows    [][]Cell `json:"rows"`

	// Truncated is set when scanning stopped at the row limit with more
	// rows remaining.
	Truncated bool `json:"truncated,omitempty"`
}

// Empty reports whether the result set has no rows.
func (r *Rowset) Empty() bool { return len(r.Rows) == 0 }

// FromRows scans up to limit rows from the result set (limit <= 0 means
// unbounded) and normalizes every value into a tagged Cell.
// FromRows always closes the Rows.
func FromRows(rows database.Rows, limit int) (*Rowset, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	rs := &Rowset{Columns: columns, Rows: make([][]Cell, 0)}

	for rows.Next() {
		if limit > 0 && len(rs.Rows) == limit {
			rs.Truncated = true
			break
		}

		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}
		if err := rows.Scan(destPtrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}

		row := make([]Cell, len(columns))
		for i, v := range dest {
			row[i] = Normalize(v)
		}
		rs.Rows = append(rs.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}

	return rs, nil
}

// Normalize maps one driver value to its tagged cell.
//
// MySQL returns DECIMAL (and, depending on flags, most text) as []byte: byte
// slices that parse as numbers become number cells with the exact decimal
// text preserved via json.Number, everything else becomes a string.
func Normalize(v any) Cell {
	switch x := v.(type) {
	case nil:
		return Cell{Kind: KindNull}
	case bool:
		return Cell{Kind: KindBool, Value: x}
	case int:
		return Cell{Kind: KindNumber, Value: int64(x)}
	case int32:
		return Cell{Kind: KindNumber, Value: int64(x)}
	case int64:
		return Cell{Kind: KindNumber, Value: x}
	case float32:
		return Cell{Kind: KindNumber, Value: float64(x)}
	case float64:
		return Cell{Kind: KindNumber, Value: x}
	case time.Time:
		return Cell{Kind: KindDate, Value: x.UTC().Format(time.RFC3339)}
	case []byte:
		return normalizeText(string(x))
	case string:
		return normalizeText(x)
	default:
		return Cell{Kind: KindString, Value: fmt.Sprintf("%v", x)}
	}
}

func normalizeText(s string) Cell {
	// both checks: ParseFloat alone also accepts hex floats and NaN, which
	// are not valid JSON number tokens
	if _, err := strconv.ParseFloat(s, 64); err == nil && json.Valid([]byte(s)) {
		// json.Number keeps the decimal text exact in the output
		return Cell{Kind: KindNumber, Value: json.Number(s)}
	}
	return Cell{Kind: KindString, Value: s}
}
