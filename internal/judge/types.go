// Package judge implements the generation-validation-iteration pipeline:
// one candidate SQL statement per iteration, five judgment layers, and a
// bounded retry loop that feeds failure reasons back into generation.
package judge

// Layer identifiers, in the fixed order layers run within one iteration.
const (
	LayerSyntax    = "syntax"
	LayerSemantic  = "semantic"
	LayerRoundTrip = "roundtrip"
	LayerEmbedding = "embedding"
	LayerExecution = "execution"
)

// Candidate is one generated read-only query with its provenance.
// Immutable once produced — later iterations supersede it, never mutate it.
type Candidate struct {
	SQL       string `json:"sql"`
	Iteration int    `json:"iteration"`
	Feedback  string `json:"feedback,omitempty"` // corrective context this candidate was generated with
}

// LayerResult is the verdict of a single validation layer for one iteration.
type LayerResult struct {
	Layer         string             `json:"layer"`
	Valid         bool               `json:"valid"`
	Reason        string             `json:"reason,omitempty"`
	FixSuggestion string             `json:"fix_suggestion,omitempty"`
	Errors        []string           `json:"errors,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`

	// ColumnsUsed is set by the syntax layer: schema columns the candidate
	// references, for observability.
	ColumnsUsed []string `json:"columns_used,omitempty"`

	// Method is set by the execution layer: "explain" for a live dry run,
	// "schema" for structural revalidation only.
	Method string `json:"method,omitempty"`
}

// IterationRecord is the aggregate judgment for one loop iteration.
type IterationRecord struct {
	Index         int           `json:"index"`
	Candidate     Candidate     `json:"candidate"`
	Layers        []LayerResult `json:"layers"`
	Valid         bool          `json:"valid"`
	Reason        string        `json:"reason,omitempty"`
	FixSuggestion string        `json:"fix_suggestion,omitempty"`
	Similarity    *float64      `json:"semantic_similarity,omitempty"`
}

// Layer returns the result for the given layer id, or nil if that layer did
// not run in this iteration (syntax short-circuit).
func (r *IterationRecord) Layer(id string) *LayerResult {
	for i := range r.Layers {
		if r.Layers[i].Layer == id {
			return &r.Layers[i]
		}
	}
	return nil
}

// JudgeResult is the full outcome of one generation request.
type JudgeResult struct {
	Iterations []IterationRecord `json:"iterations"`
	LastJudge  IterationRecord   `json:"last_judge"`
	Accepted   bool              `json:"accepted"`
}

// SQL returns the accepted candidate's SQL, or the last attempt's SQL when
// nothing was accepted.
func (r *JudgeResult) SQL() string {
	return r.LastJudge.Candidate.SQL
}
