package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/nlquery/internal/errs"
	"github.com/koustreak/nlquery/internal/logger"
	"github.com/koustreak/nlquery/internal/schema"
)

// Completer is the language-model capability the pipeline depends on.
// Production code injects *llm.Client; tests inject scripted doubles.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const generateSystemPrompt = `You are a senior SQL assistant that translates natural-language questions into MySQL queries.

Output requirements:
1) Output exactly one SQL statement, starting with SELECT. No explanations, no comments, no code fences.
2) Use only columns that exist in the provided table schema. Wrap identifiers in backticks.
3) Avoid SELECT * — list the columns the question needs.
4) When the question implies grouping ("per", "each", "by ..."), use GROUP BY and include the grouping column in the SELECT list.
5) "highest/largest within each group" means a per-group extreme: use a window function (ROW_NUMBER/RANK) or a subquery, not a global ORDER BY.
6) Round averages, sums, and ratios to 2 decimal places with ROUND(..., 2). Guard divisions with NULLIF(denominator, 0).
7) Use HAVING for post-aggregation filters and WHERE for row filters.
8) For a constrained column, only compare against the listed values.`

const refineSystemPrompt = `You normalize natural-language data questions. Rewrite the user's question as one clear, unambiguous sentence that preserves its meaning, making grouping, aggregation, ordering, and time-range intent explicit. Output only that one sentence — no SQL, no lists, no explanations. If the question is already clear, return it unchanged.`

// Generator produces one candidate query per call from the question, the
// table descriptor, and optional feedback from a prior rejected iteration.
type Generator struct {
	llm    Completer
	refine bool
	log    *logger.Logger
}

// NewGenerator creates a Generator. When refine is true, the question is
// first rewritten into an explicit single sentence by a separate model call
// before SQL generation.
func NewGenerator(llm Completer, refine bool, log *logger.Logger) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{llm: llm, refine: refine, log: log}
}

// Generate returns a cleaned single-statement candidate, or an error:
// generation_failed when the model answered but produced nothing usable
// (recoverable — the loop retries), or a transport error kind (fatal).
func (g *Generator) Generate(ctx context.Context, question string, desc *schema.TableDescriptor, feedback string, iteration int) (Candidate, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Candidate{}, errs.New(errs.ErrKindInvalidInput, "question must not be empty")
	}
	if desc == nil || len(desc.Columns) == 0 {
		return Candidate{}, errs.New(errs.ErrKindInvalidInput, "table descriptor must describe the target table")
	}

	if g.refine {
		question = g.refineQuestion(ctx, question)
	}

	raw, err := g.llm.Complete(ctx, generateSystemPrompt, g.userPrompt(question, desc, feedback))
	if err != nil {
		return Candidate{}, err
	}

	sql := normalizeSQL(raw)
	if sql == "" {
		return Candidate{}, errs.New(errs.ErrKindGeneration, "model produced an empty candidate")
	}
	if n := len(splitStatements(sql)); n != 1 {
		return Candidate{}, errs.New(errs.ErrKindGeneration,
			fmt.Sprintf("model produced %d statements, expected exactly one", n))
	}
	if !isReadOnly(sql) {
		return Candidate{}, errs.New(errs.ErrKindGeneration, "model produced a non-SELECT statement")
	}

	return Candidate{SQL: sql, Iteration: iteration, Feedback: feedback}, nil
}

func (g *Generator) userPrompt(question string, desc *schema.TableDescriptor, feedback string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n%s", question, desc.PromptText())
	if feedback != "" {
		fmt.Fprintf(&sb, "\nA previous attempt was rejected. Correction to apply strictly:\n%s\n", feedback)
	}
	sb.WriteString("\nGenerate the single MySQL SELECT statement that answers the question. Output only the SQL.")
	return sb.String()
}

// refineQuestion rewrites a vague question into one explicit sentence.
// Any failure — or a rewrite that looks like SQL instead of prose — falls
// back to the original question.
func (g *Generator) refineQuestion(ctx context.Context, question string) string {
	out, err := g.llm.Complete(ctx, refineSystemPrompt, question)
	if err != nil {
		g.log.With().Err(err).Logger().Warn("question refinement failed, using original")
		return question
	}

	refined := strings.Join(strings.Fields(stripFences(out)), " ")
	if refined == "" {
		return question
	}
	low := strings.ToLower(refined)
	for _, kw := range []string{"select ", "insert ", "update ", "delete ", "create ", "drop "} {
		if strings.Contains(low, kw) {
			return question
		}
	}
	return refined
}
