package judge

import (
	"context"
	"testing"

	"github.com/koustreak/nlquery/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantValid bool
		wantFix   string
	}{
		{
			name:      "plain json",
			raw:       `{"valid": true, "reason": "matches the question", "fix_suggestion": ""}`,
			wantOK:    true,
			wantValid: true,
		},
		{
			name:    "fenced json",
			raw:     "```json\n{\"valid\": false, \"reason\": \"wrong aggregate\", \"fix_suggestion\": \"use COUNT(*) not SUM(salary)\"}\n```",
			wantOK:  true,
			wantFix: "use COUNT(*) not SUM(salary)",
		},
		{
			name:    "json embedded in prose",
			raw:     "Here is my verdict:\n{\"valid\": false, \"reason\": \"missing GROUP BY\", \"fix_suggestion\": \"add GROUP BY department\"}\nHope this helps.",
			wantOK:  true,
			wantFix: "add GROUP BY department",
		},
		{name: "no json at all", raw: "the query looks fine to me", wantOK: false},
		{name: "empty", raw: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := parseVerdict(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantValid, v.Valid)
				assert.Equal(t, tt.wantFix, v.FixSuggestion)
			}
		})
	}
}

func TestSemanticValidator_Check(t *testing.T) {
	fc := &fakeCompleter{outputs: []string{
		`{"valid": false, "reason": "the question asks for a count", "fix_suggestion": "use COUNT(*) not SUM(salary)"}`,
	}}
	v := NewSemanticValidator(fc)

	res, err := v.Check(context.Background(), "how many doctors",
		Candidate{SQL: "SELECT SUM(salary) FROM doctor_info"}, doctorDescriptor())
	require.NoError(t, err)

	assert.Equal(t, LayerSemantic, res.Layer)
	assert.False(t, res.Valid)
	assert.Equal(t, "the question asks for a count", res.Reason)
	assert.Equal(t, "use COUNT(*) not SUM(salary)", res.FixSuggestion)

	// judge saw both the question and the candidate
	require.Len(t, fc.users, 1)
	assert.Contains(t, fc.users[0], "how many doctors")
	assert.Contains(t, fc.users[0], "SELECT SUM(salary)")
}

func TestSemanticValidator_UnparseableVerdict(t *testing.T) {
	v := NewSemanticValidator(&fakeCompleter{outputs: []string{"looks good to me!"}})

	res, err := v.Check(context.Background(), "q", Candidate{SQL: "SELECT 1"}, doctorDescriptor())
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, "judge returned no parseable verdict", res.Reason)
	assert.NotEmpty(t, res.Errors)
}

func TestSemanticValidator_TransportErrorPropagates(t *testing.T) {
	v := NewSemanticValidator(&fakeCompleter{err: errs.New(errs.ErrKindTimeout, "deadline")})

	_, err := v.Check(context.Background(), "q", Candidate{SQL: "SELECT 1"}, doctorDescriptor())
	assert.True(t, errs.IsTimeout(err))
}
