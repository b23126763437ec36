// Package analysis turns an executed result set into something a person can
// read: a rendered text table of the rows plus a short model-written report
// tied back to the original question.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/koustreak/nlquery/internal/logger"
	"github.com/koustreak/nlquery/internal/rowset"
)

// MaxPreviewRows caps how many rows are rendered and shown to the model.
const MaxPreviewRows = 20

const reportSystemPrompt = `You are a data analyst. You are given a user's question and the query result that answers it, rendered as a table. Write a short plain-text report (2-5 sentences) that directly answers the question using the data shown. Mention concrete values. Do not invent data that is not in the table. Do not mention SQL.`

// Completer is the single model call the analyzer needs.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Report is the analyzer's output. Report is empty when the model was
// unavailable; Table is always populated.
type Report struct {
	Table  string `json:"table"`
	Report string `json:"report,omitempty"`
}

// Analyzer renders result previews and asks the model for a report.
type Analyzer struct {
	llm Completer
	log *logger.Logger
}

// New creates an analyzer. A nil completer disables the report step.
func New(llm Completer, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{llm: llm, log: log}
}

// Analyze renders the preview table and, when a model is configured, a short
// report answering the question from the data. A model failure degrades to
// table-only output: execution results are never blocked on the report.
func (a *Analyzer) Analyze(ctx context.Context, question string, rs *rowset.Rowset) Report {
	rep := Report{Table: RenderTable(rs)}

	if a.llm == nil || rs.Empty() {
		return rep
	}

	user := fmt.Sprintf("Question: %s\n\nResult (%s):\n%s", question, rowCountNote(rs), rep.Table)
	text, err := a.llm.Complete(ctx, reportSystemPrompt, user)
	if err != nil {
		a.log.With().Err(err).Logger().Warn("analysis report unavailable, returning table only")
		return rep
	}

	rep.Report = strings.TrimSpace(text)
	return rep
}

// RenderTable renders up to MaxPreviewRows rows as a bordered text table.
func RenderTable(rs *rowset.Rowset) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)

	header := make(table.Row, 0, len(rs.Columns))
	for _, c := range rs.Columns {
		header = append(header, c)
	}
	w.AppendHeader(header)

	n := len(rs.Rows)
	if n > MaxPreviewRows {
		n = MaxPreviewRows
	}
	for _, cells := range rs.Rows[:n] {
		row := make(table.Row, 0, len(cells))
		for _, c := range cells {
			row = append(row, c.String())
		}
		w.AppendRow(row)
	}

	if len(rs.Rows) > n || rs.Truncated {
		w.AppendFooter(table.Row{fmt.Sprintf("showing first %d rows", n)})
	}

	return w.Render()
}

func rowCountNote(rs *rowset.Rowset) string {
	if rs.Truncated || len(rs.Rows) > MaxPreviewRows {
		return fmt.Sprintf("first %d rows shown", MaxPreviewRows)
	}
	if len(rs.Rows) == 1 {
		return "1 row"
	}
	return fmt.Sprintf("%d rows", len(rs.Rows))
}
