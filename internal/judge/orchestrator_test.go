package judge

import (
	"context"
	"testing"

	"github.com/koustreak/nlquery/internal/errs"
	"github.com/koustreak/nlquery/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptGen returns one scripted candidate (or error) per call and records
// the feedback each call received.
type scriptGen struct {
	sqls      []string
	errs      []error
	feedbacks []string
	calls     int
}

func (g *scriptGen) Generate(_ context.Context, _ string, _ *schema.TableDescriptor, feedback string, iteration int) (Candidate, error) {
	g.feedbacks = append(g.feedbacks, feedback)
	i := g.calls
	g.calls++
	if i < len(g.errs) && g.errs[i] != nil {
		return Candidate{}, g.errs[i]
	}
	return Candidate{SQL: g.sqls[i], Iteration: iteration, Feedback: feedback}, nil
}

// scriptSemantic replays scripted verdicts in order, repeating the last one.
type scriptSemantic struct {
	verdicts []LayerResult
	err      error
	calls    int
}

func (s *scriptSemantic) Check(context.Context, string, Candidate, *schema.TableDescriptor) (LayerResult, error) {
	if s.err != nil {
		return LayerResult{}, s.err
	}
	i := s.calls
	s.calls++
	if i >= len(s.verdicts) {
		i = len(s.verdicts) - 1
	}
	v := s.verdicts[i]
	v.Layer = LayerSemantic
	return v, nil
}

type scriptExplainer struct {
	explanation string
	err         error
}

func (e *scriptExplainer) Explain(context.Context, Candidate) (string, LayerResult, error) {
	if e.err != nil {
		return "", LayerResult{}, e.err
	}
	return e.explanation, LayerResult{Layer: LayerRoundTrip, Valid: true, Reason: e.explanation}, nil
}

type scriptScorer struct {
	valid bool
	score float64
}

func (s *scriptScorer) Score(context.Context, string, string) (LayerResult, error) {
	return LayerResult{
		Layer:   LayerEmbedding,
		Valid:   s.valid,
		Metrics: map[string]float64{"score": s.score, "threshold": DefaultSimilarityThreshold},
	}, nil
}

type okPrecheck struct{}

func (okPrecheck) Precheck(context.Context, Candidate, *schema.TableDescriptor) (LayerResult, error) {
	return LayerResult{Layer: LayerExecution, Valid: true, Method: "explain"}, nil
}

func passSemantic() *scriptSemantic {
	return &scriptSemantic{verdicts: []LayerResult{{Valid: true, Reason: "matches the question"}}}
}

func newTestPipeline(gen CandidateGenerator, sem SemanticJudge, opts Options) *Pipeline {
	return NewPipeline(gen, sem,
		&scriptExplainer{explanation: "counts all doctors"},
		&scriptScorer{valid: true, score: 0.91},
		okPrecheck{}, opts, nil)
}

// A clean first candidate is accepted on iteration one with all five layers
// recorded and no column references for an aggregate-only query.
func TestPipeline_AcceptsFirstCandidate(t *testing.T) {
	gen := &scriptGen{sqls: []string{"SELECT COUNT(*) FROM `hospital`.`doctor_info`"}}
	p := newTestPipeline(gen, passSemantic(), Options{})

	res, err := p.Run(context.Background(), "查询医生总人数是多少", doctorDescriptor())
	require.NoError(t, err)

	require.True(t, res.Accepted)
	require.Len(t, res.Iterations, 1)
	assert.Equal(t, 1, res.Iterations[0].Index)
	assert.Equal(t, "SELECT COUNT(*) FROM `hospital`.`doctor_info`", res.SQL())
	assert.True(t, res.LastJudge.Valid)

	require.Len(t, res.LastJudge.Layers, 5)
	syntax := res.LastJudge.Layer(LayerSyntax)
	require.NotNil(t, syntax)
	assert.Equal(t, []string{}, syntax.ColumnsUsed)
	require.NotNil(t, res.LastJudge.Similarity)
	assert.Equal(t, 0.91, *res.LastJudge.Similarity)
}

// A syntax failure short-circuits: only the syntax layer is present in that
// iteration's record and no collaborator is consulted.
func TestPipeline_SyntaxFailureShortCircuits(t *testing.T) {
	gen := &scriptGen{sqls: []string{
		"SELECT 1; SELECT 2",
		"SELECT COUNT(*) FROM doctor_info",
	}}
	sem := &scriptSemantic{verdicts: []LayerResult{{Valid: true, Reason: "ok"}}}
	p := newTestPipeline(gen, sem, Options{})

	res, err := p.Run(context.Background(), "how many doctors", doctorDescriptor())
	require.NoError(t, err)

	require.True(t, res.Accepted)
	require.Len(t, res.Iterations, 2)

	first := res.Iterations[0]
	assert.False(t, first.Valid)
	require.Len(t, first.Layers, 1)
	assert.Equal(t, LayerSyntax, first.Layers[0].Layer)
	assert.Equal(t, 1, sem.calls)
}

// The failing layer's reason and fix suggestion are threaded verbatim into
// the next generation call.
func TestPipeline_FeedbackThreading(t *testing.T) {
	gen := &scriptGen{sqls: []string{
		"SELECT SUM(salary) FROM doctor_info",
		"SELECT COUNT(*) FROM doctor_info",
	}}
	sem := &scriptSemantic{verdicts: []LayerResult{
		{Valid: false, Reason: "the question asks for a count", FixSuggestion: "use COUNT(*) not SUM(salary)"},
		{Valid: true, Reason: "matches the question"},
	}}
	p := newTestPipeline(gen, sem, Options{})

	res, err := p.Run(context.Background(), "how many doctors", doctorDescriptor())
	require.NoError(t, err)

	require.True(t, res.Accepted)
	require.Len(t, res.Iterations, 2)
	assert.False(t, res.Iterations[0].Valid)
	assert.Equal(t, "use COUNT(*) not SUM(salary)", res.Iterations[0].FixSuggestion)

	require.Len(t, gen.feedbacks, 2)
	assert.Empty(t, gen.feedbacks[0])
	assert.Equal(t, "the question asks for a count. use COUNT(*) not SUM(salary)", gen.feedbacks[1])
	assert.Equal(t, 2, res.Iterations[1].Index)
}

// Exhausting the budget leaves exactly MaxIterations records, indices
// contiguous from 1, with LastJudge mirroring the final rejection.
func TestPipeline_BudgetExhaustion(t *testing.T) {
	gen := &scriptGen{sqls: []string{
		"SELECT SUM(salary) FROM doctor_info",
		"SELECT AVG(salary) FROM doctor_info",
		"SELECT MAX(salary) FROM doctor_info",
	}}
	sem := &scriptSemantic{verdicts: []LayerResult{
		{Valid: false, Reason: "wrong aggregate", FixSuggestion: "count rows instead"},
	}}
	p := newTestPipeline(gen, sem, Options{MaxIterations: 3})

	res, err := p.Run(context.Background(), "how many doctors", doctorDescriptor())
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Equal(t, "SELECT MAX(salary) FROM doctor_info", res.SQL())
	require.Len(t, res.Iterations, 3)
	for i, rec := range res.Iterations {
		assert.Equal(t, i+1, rec.Index)
		assert.False(t, rec.Valid)
	}
	assert.Equal(t, res.Iterations[2], res.LastJudge)
	assert.Equal(t, 3, gen.calls)
}

// A low similarity score is advisory by default: the iteration stays valid
// and the embedding layer's verdict is still visible in the record.
func TestPipeline_EmbeddingAdvisoryByDefault(t *testing.T) {
	gen := &scriptGen{sqls: []string{"SELECT COUNT(*) FROM doctor_info"}}
	p := NewPipeline(gen, passSemantic(),
		&scriptExplainer{explanation: "retrieves salary totals"},
		&scriptScorer{valid: false, score: 0.41},
		okPrecheck{}, Options{}, nil)

	res, err := p.Run(context.Background(), "how many doctors", doctorDescriptor())
	require.NoError(t, err)

	require.True(t, res.Accepted)
	emb := res.LastJudge.Layer(LayerEmbedding)
	require.NotNil(t, emb)
	assert.False(t, emb.Valid)
	require.NotNil(t, res.LastJudge.Similarity)
	assert.Equal(t, 0.41, *res.LastJudge.Similarity)
}

// With EmbeddingBlocking set the same low score rejects the candidate.
func TestPipeline_EmbeddingBlocking(t *testing.T) {
	gen := &scriptGen{sqls: []string{
		"SELECT COUNT(*) FROM doctor_info",
		"SELECT COUNT(*) FROM doctor_info",
		"SELECT COUNT(*) FROM doctor_info",
	}}
	p := NewPipeline(gen, passSemantic(),
		&scriptExplainer{explanation: "retrieves salary totals"},
		&scriptScorer{valid: false, score: 0.41},
		okPrecheck{}, Options{EmbeddingBlocking: true}, nil)

	res, err := p.Run(context.Background(), "how many doctors", doctorDescriptor())
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Len(t, res.Iterations, DefaultMaxIterations)
}

// A generation failure is absorbed into an iteration record and the loop
// moves on; the record has no layer verdicts.
func TestPipeline_GenerationFailureRecorded(t *testing.T) {
	gen := &scriptGen{
		sqls: []string{"", "SELECT COUNT(*) FROM doctor_info"},
		errs: []error{errs.New(errs.ErrKindGeneration, "model returned two statements")},
	}
	p := newTestPipeline(gen, passSemantic(), Options{})

	res, err := p.Run(context.Background(), "how many doctors", doctorDescriptor())
	require.NoError(t, err)

	require.True(t, res.Accepted)
	require.Len(t, res.Iterations, 2)
	assert.False(t, res.Iterations[0].Valid)
	assert.Empty(t, res.Iterations[0].Layers)
	assert.Equal(t, "generation failed", res.Iterations[0].Reason)
	assert.NotEmpty(t, gen.feedbacks[1])
}

// Fatal collaborator errors abort the run instead of being recorded.
func TestPipeline_FatalErrorsPropagate(t *testing.T) {
	t.Run("generator transport failure", func(t *testing.T) {
		gen := &scriptGen{errs: []error{errs.New(errs.ErrKindModelUnavailable, "gateway down")}}
		p := newTestPipeline(gen, passSemantic(), Options{})

		_, err := p.Run(context.Background(), "q", doctorDescriptor())
		assert.True(t, errs.IsModelUnavailable(err))
	})

	t.Run("semantic judge timeout", func(t *testing.T) {
		gen := &scriptGen{sqls: []string{"SELECT COUNT(*) FROM doctor_info"}}
		sem := &scriptSemantic{err: errs.New(errs.ErrKindTimeout, "deadline exceeded")}
		p := newTestPipeline(gen, sem, Options{})

		_, err := p.Run(context.Background(), "q", doctorDescriptor())
		assert.True(t, errs.IsTimeout(err))
	})
}

func TestPipeline_InputValidation(t *testing.T) {
	p := newTestPipeline(&scriptGen{}, passSemantic(), Options{})

	_, err := p.Run(context.Background(), "   ", doctorDescriptor())
	assert.True(t, errs.IsInvalidInput(err))

	_, err = p.Run(context.Background(), "how many doctors", nil)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestPipeline_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(&scriptGen{sqls: []string{"SELECT 1"}}, passSemantic(), Options{})
	_, err := p.Run(ctx, "how many doctors", doctorDescriptor())
	assert.True(t, errs.IsTimeout(err))
}

func TestPipeline_DefaultMaxIterations(t *testing.T) {
	gen := &scriptGen{sqls: []string{
		"SELECT SUM(salary) FROM doctor_info",
		"SELECT SUM(salary) FROM doctor_info",
		"SELECT SUM(salary) FROM doctor_info",
		"SELECT SUM(salary) FROM doctor_info",
	}}
	sem := &scriptSemantic{verdicts: []LayerResult{{Valid: false, Reason: "wrong aggregate"}}}
	p := newTestPipeline(gen, sem, Options{MaxIterations: 0})

	res, err := p.Run(context.Background(), "how many doctors", doctorDescriptor())
	require.NoError(t, err)
	assert.Len(t, res.Iterations, DefaultMaxIterations)
}
