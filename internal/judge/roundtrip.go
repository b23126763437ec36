package judge

import (
	"context"
	"strings"
)

const roundTripSystemPrompt = `You translate SQL back into natural language. Describe in one or two plain sentences what the given SELECT statement retrieves: which quantities, from what, under which filters, grouped or ordered how. Output only that description — no SQL, no commentary on query quality.`

// RoundTripExplainer paraphrases a candidate back into natural language
// ("SQL→NL"). The explanation is the comparand for the embedding similarity
// layer and human-readable evidence in the iteration record. It is not a
// pass/fail gate.
type RoundTripExplainer struct {
	llm Completer
}

// NewRoundTripExplainer creates a RoundTripExplainer on the given model.
func NewRoundTripExplainer(llm Completer) *RoundTripExplainer {
	return &RoundTripExplainer{llm: llm}
}

// Explain returns the natural-language paraphrase and the layer record.
// The layer is always structurally valid; an empty explanation is recorded
// and degrades the embedding layer downstream.
func (e *RoundTripExplainer) Explain(ctx context.Context, cand Candidate) (string, LayerResult, error) {
	raw, err := e.llm.Complete(ctx, roundTripSystemPrompt, cand.SQL)
	if err != nil {
		return "", LayerResult{}, err
	}

	explanation := strings.TrimSpace(stripFences(raw))

	res := LayerResult{Layer: LayerRoundTrip, Valid: true, Reason: explanation}
	if explanation == "" {
		res.Errors = []string{"model returned an empty explanation"}
	}
	return explanation, res, nil
}
