package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/koustreak/nlquery/internal/schema"
)

const semanticSystemPrompt = `You are a senior SQL reviewer. Decide whether the candidate MySQL query correctly answers the user's question given the table schema.

Check: syntactic legality, that referenced columns exist in the schema, correct WHERE/GROUP BY/HAVING usage, and semantic agreement with the question (aggregation, grouping, ordering, top-N, time ranges, units).

Output strict JSON only, with exactly these keys:
{"valid": boolean, "reason": string, "fix_suggestion": string}
When valid is false, fix_suggestion must be an actionable correction (e.g. "use COUNT(*) not SUM(salary)"). When valid is true, fix_suggestion may be empty.`

// SemanticValidator asks a reasoning judge whether the candidate answers the
// question. Its output varies across identical inputs; only convergence over
// iterations is assumed, never reproducibility.
type SemanticValidator struct {
	llm Completer
}

// NewSemanticValidator creates a SemanticValidator on the given model.
func NewSemanticValidator(llm Completer) *SemanticValidator {
	return &SemanticValidator{llm: llm}
}

// Check returns the judge's verdict. A transport failure is returned as an
// error (fatal for the request); an unparseable verdict degrades to a
// recoverable invalid result.
func (v *SemanticValidator) Check(ctx context.Context, question string, cand Candidate, desc *schema.TableDescriptor) (LayerResult, error) {
	user := fmt.Sprintf("Question: %s\n\n%sCandidate SQL:\n%s\n\nOutput the strict JSON verdict.",
		question, desc.PromptText(), cand.SQL)

	raw, err := v.llm.Complete(ctx, semanticSystemPrompt, user)
	if err != nil {
		return LayerResult{}, err
	}

	verdict, ok := parseVerdict(raw)
	if !ok {
		return LayerResult{
			Layer:         LayerSemantic,
			Valid:         false,
			Reason:        "judge returned no parseable verdict",
			FixSuggestion: "re-check column existence, grouping, and ordering against the question",
			Errors:        []string{fmt.Sprintf("unparseable judge output: %.120s", raw)},
		}, nil
	}

	return LayerResult{
		Layer:         LayerSemantic,
		Valid:         verdict.Valid,
		Reason:        verdict.Reason,
		FixSuggestion: verdict.FixSuggestion,
	}, nil
}

type verdict struct {
	Valid         bool   `json:"valid"`
	Reason        string `json:"reason"`
	FixSuggestion string `json:"fix_suggestion"`
}

// parseVerdict extracts the JSON verdict from model output, tolerating code
// fences and surrounding prose.
func parseVerdict(raw string) (verdict, bool) {
	s := stripFences(raw)

	var v verdict
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v, true
	}

	// fall back to the outermost {...} in the text
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(s[start:end+1]), &v); err == nil {
			return v, true
		}
	}
	return verdict{}, false
}
