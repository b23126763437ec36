package judge

import (
	"fmt"
	"strings"

	"github.com/koustreak/nlquery/internal/schema"
)

// SyntaxValidator is the structural check on a candidate: exactly one
// read-only statement, balanced constructs, and column references resolved
// against the descriptor. It is a pure function of its inputs — no model
// calls, no database access — and is the only layer that short-circuits the
// iteration on failure.
type SyntaxValidator struct{}

// Check validates the candidate's structure against the descriptor.
func (SyntaxValidator) Check(cand Candidate, desc *schema.TableDescriptor) LayerResult {
	res := LayerResult{Layer: LayerSyntax}

	stmts := splitStatements(cand.SQL)
	switch {
	case len(stmts) == 0:
		res.Reason = "candidate is empty"
		res.FixSuggestion = "generate exactly one SELECT statement"
		return res
	case len(stmts) > 1:
		res.Reason = fmt.Sprintf("candidate contains %d statements, expected exactly one", len(stmts))
		res.FixSuggestion = "generate exactly one SELECT statement without trailing clauses"
		return res
	}
	stmt := stmts[0]

	if !isReadOnly(stmt) {
		res.Reason = "statement is not a read-only SELECT"
		res.FixSuggestion = "rewrite the query as a single SELECT statement"
		return res
	}

	if !balanced(stmt) {
		res.Reason = "unbalanced parentheses or unterminated quotes"
		res.FixSuggestion = "close every parenthesis and quote"
		return res
	}

	// Resolve identifier tokens against schema columns. Unresolved bare
	// tokens become warnings, not failures: aliases, qualified references,
	// and computed expressions are legitimate.
	seen := map[string]bool{}
	for _, ident := range scanIdentifiers(stmt) {
		low := strings.ToLower(ident)
		if sqlKeywords[low] || seen[low] {
			continue
		}
		seen[low] = true

		if col, ok := desc.Column(ident); ok {
			res.ColumnsUsed = append(res.ColumnsUsed, col.Name)
			continue
		}
		if strings.EqualFold(ident, desc.Table) || strings.EqualFold(ident, desc.Database) {
			continue
		}
		res.Errors = append(res.Errors, fmt.Sprintf("unresolved identifier: %s", ident))
	}
	if res.ColumnsUsed == nil {
		res.ColumnsUsed = []string{}
	}

	res.Valid = true
	return res
}
