package judge

import (
	"context"
	"strings"

	"github.com/koustreak/nlquery/internal/errs"
	"github.com/koustreak/nlquery/internal/logger"
	"github.com/koustreak/nlquery/internal/schema"
)

// CandidateGenerator produces one candidate per iteration.
type CandidateGenerator interface {
	Generate(ctx context.Context, question string, desc *schema.TableDescriptor, feedback string, iteration int) (Candidate, error)
}

// SemanticJudge decides question↔candidate intent consistency.
type SemanticJudge interface {
	Check(ctx context.Context, question string, cand Candidate, desc *schema.TableDescriptor) (LayerResult, error)
}

// Explainer paraphrases a candidate back into natural language.
type Explainer interface {
	Explain(ctx context.Context, cand Candidate) (string, LayerResult, error)
}

// Scorer compares the question against the round-trip explanation.
type Scorer interface {
	Score(ctx context.Context, question, explanation string) (LayerResult, error)
}

// Options configures the iteration loop.
type Options struct {
	// MaxIterations bounds the retry loop. Non-positive selects 3.
	MaxIterations int

	// EmbeddingBlocking promotes the embedding similarity layer from
	// advisory to mandatory.
	EmbeddingBlocking bool
}

// DefaultMaxIterations matches the generate→judge→regenerate loop depth the
// pipeline was tuned with.
const DefaultMaxIterations = 3

// Pipeline drives the iterate-generate-validate loop and aggregates the
// per-layer verdicts into per-iteration judgments.
//
// Iterations are strictly sequential: each generation call consumes the
// previous iteration's failure reason and fix suggestion as feedback, so
// there is nothing to parallelize across iterations.
type Pipeline struct {
	gen       CandidateGenerator
	syntax    SyntaxValidator
	semantic  SemanticJudge
	explainer Explainer
	scorer    Scorer
	precheck  Prechecker
	opts      Options
	log       *logger.Logger
}

// NewPipeline wires the pipeline from its layers. A nil precheck falls back
// to the schema-only prechecker.
func NewPipeline(gen CandidateGenerator, semantic SemanticJudge, explainer Explainer, scorer Scorer, precheck Prechecker, opts Options, log *logger.Logger) *Pipeline {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if precheck == nil {
		precheck = SchemaPrechecker{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		gen:       gen,
		semantic:  semantic,
		explainer: explainer,
		scorer:    scorer,
		precheck:  precheck,
		opts:      opts,
		log:       log,
	}
}

// Run executes the loop for one request: generate a candidate, judge it
// through the layers, and either accept it, retry with feedback, or stop
// when the iteration budget is exhausted.
//
// Recoverable failures are absorbed into iteration records; only collaborator
// transport failures (and cancellation) return an error.
func (p *Pipeline) Run(ctx context.Context, question string, desc *schema.TableDescriptor) (*JudgeResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "question must not be empty")
	}
	if desc == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "table descriptor is required")
	}

	result := &JudgeResult{}
	feedback := ""

	for i := 1; i <= p.opts.MaxIterations; i++ {
		// cancellation is honored at iteration boundaries: an in-flight
		// collaborator call completes, its result is simply discarded
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.ErrKindTimeout, "request cancelled", err)
		}

		log := p.log.With().Int("iteration", i).Logger()

		cand, err := p.gen.Generate(ctx, question, desc, feedback, i)
		if err != nil {
			if !errs.IsGeneration(err) {
				return nil, err
			}
			log.With().Err(err).Logger().Warn("generation failed")
			rec := IterationRecord{
				Index:         i,
				Candidate:     Candidate{Iteration: i, Feedback: feedback},
				Valid:         false,
				Reason:        "generation failed",
				FixSuggestion: "produce exactly one SELECT statement answering the question",
			}
			rec.Layers = []LayerResult{}
			result.Iterations = append(result.Iterations, rec)
			feedback = joinFeedback(rec.Reason, rec.FixSuggestion)
			continue
		}

		rec, err := p.judge(ctx, question, cand, desc)
		if err != nil {
			return nil, err
		}
		rec.Index = i
		result.Iterations = append(result.Iterations, rec)

		if rec.Valid {
			log.With().Str("sql", cand.SQL).Logger().Info("candidate accepted")
			result.Accepted = true
			result.LastJudge = rec
			return result, nil
		}

		log.With().Str("reason", rec.Reason).Logger().Info("candidate rejected, retrying")
		feedback = joinFeedback(rec.Reason, rec.FixSuggestion)
	}

	result.LastJudge = result.Iterations[len(result.Iterations)-1]
	return result, nil
}

// judge runs the five layers for one candidate. Syntax failure
// short-circuits; the remaining four layers always all run so the caller
// sees the full diagnostic picture even when an early one fails.
func (p *Pipeline) judge(ctx context.Context, question string, cand Candidate, desc *schema.TableDescriptor) (IterationRecord, error) {
	rec := IterationRecord{Candidate: cand}

	syntaxRes := p.syntax.Check(cand, desc)
	rec.Layers = append(rec.Layers, syntaxRes)
	if !syntaxRes.Valid {
		rec.Reason = syntaxRes.Reason
		rec.FixSuggestion = syntaxRes.FixSuggestion
		return rec, nil
	}

	semanticRes, err := p.semantic.Check(ctx, question, cand, desc)
	if err != nil {
		return IterationRecord{}, err
	}
	rec.Layers = append(rec.Layers, semanticRes)

	explanation, rtRes, err := p.explainer.Explain(ctx, cand)
	if err != nil {
		return IterationRecord{}, err
	}
	rec.Layers = append(rec.Layers, rtRes)

	embRes, err := p.scorer.Score(ctx, question, explanation)
	if err != nil {
		return IterationRecord{}, err
	}
	rec.Layers = append(rec.Layers, embRes)
	if score, ok := embRes.Metrics["score"]; ok {
		s := score
		rec.Similarity = &s
	}

	execRes, err := p.precheck.Precheck(ctx, cand, desc)
	if err != nil {
		return IterationRecord{}, err
	}
	rec.Layers = append(rec.Layers, execRes)

	rec.Valid = syntaxRes.Valid && semanticRes.Valid && execRes.Valid
	if p.opts.EmbeddingBlocking {
		rec.Valid = rec.Valid && embRes.Valid
	}

	if rec.Valid {
		rec.Reason = semanticRes.Reason
		return rec, nil
	}

	// surface the first failing decisive layer in the fixed layer order, so
	// the feedback fed to the next generation is deterministic even if the
	// layers were ever computed concurrently
	for _, lr := range rec.Layers {
		if lr.Valid {
			continue
		}
		if lr.Layer == LayerEmbedding && !p.opts.EmbeddingBlocking {
			continue
		}
		rec.Reason = lr.Reason
		rec.FixSuggestion = lr.FixSuggestion
		break
	}
	return rec, nil
}

func joinFeedback(reason, fix string) string {
	switch {
	case reason != "" && fix != "":
		return reason + ". " + fix
	case fix != "":
		return fix
	default:
		return reason
	}
}
