package judge

import (
	"context"

	"github.com/koustreak/nlquery/internal/database"
	"github.com/koustreak/nlquery/internal/errs"
	"github.com/koustreak/nlquery/internal/schema"
)

// Prechecker confirms a candidate is executable without running it for real.
// The Method field of the result records which guarantee was obtained.
type Prechecker interface {
	Precheck(ctx context.Context, cand Candidate, desc *schema.TableDescriptor) (LayerResult, error)
}

// ExplainPrechecker dry-runs the candidate through the database planner
// (EXPLAIN). The planner resolves tables, columns, and comparison types
// without scanning data, so failures here are real executability failures.
type ExplainPrechecker struct {
	db database.DB
}

// NewExplainPrechecker creates a prechecker on the given connection.
func NewExplainPrechecker(db database.DB) *ExplainPrechecker {
	return &ExplainPrechecker{db: db}
}

// Precheck runs EXPLAIN on the candidate. Planner rejections become an
// invalid layer result; losing the database connection is a fatal error.
// The plan's step count is kept as a metric for the iteration record.
func (p *ExplainPrechecker) Precheck(ctx context.Context, cand Candidate, desc *schema.TableDescriptor) (LayerResult, error) {
	res := LayerResult{Layer: LayerExecution, Method: "explain"}

	reject := func(err error) (LayerResult, error) {
		if errs.IsFatal(err) {
			return LayerResult{}, err
		}
		res.Reason = "query plan rejected the candidate"
		res.FixSuggestion = "fix the reported execution error"
		res.Errors = []string{err.Error()}
		return res, nil
	}

	rows, err := p.db.Query(ctx, "EXPLAIN "+cand.SQL)
	if err != nil {
		return reject(err)
	}
	plan, err := database.ScanRows(rows)
	if err != nil {
		return reject(err)
	}

	res.Valid = true
	res.Reason = "query plan accepted"
	res.Metrics = map[string]float64{"plan_steps": float64(len(plan))}
	return res, nil
}

// SchemaPrechecker is the fallback when no live connection is configured:
// it re-validates the candidate structurally against the descriptor only.
// The weaker guarantee is visible to callers through Method "schema".
type SchemaPrechecker struct{}

// Precheck mirrors the syntax layer's verdict under the execution layer id.
func (SchemaPrechecker) Precheck(_ context.Context, cand Candidate, desc *schema.TableDescriptor) (LayerResult, error) {
	syntax := SyntaxValidator{}.Check(cand, desc)

	res := LayerResult{
		Layer:         LayerExecution,
		Method:        "schema",
		Valid:         syntax.Valid,
		Reason:        syntax.Reason,
		FixSuggestion: syntax.FixSuggestion,
		Errors:        syntax.Errors,
	}
	if res.Valid {
		res.Reason = "structural revalidation passed (no live connection)"
	}
	return res, nil
}
