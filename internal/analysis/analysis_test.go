package analysis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/koustreak/nlquery/internal/errs"
	"github.com/koustreak/nlquery/internal/rowset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	output string
	err    error
	users  []string
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, user string) (string, error) {
	f.users = append(f.users, user)
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

func departmentCounts() *rowset.Rowset {
	return &rowset.Rowset{
		Columns: []string{"department", "doctors"},
		Rows: [][]rowset.Cell{
			{{Kind: rowset.KindString, Value: "surgery"}, {Kind: rowset.KindNumber, Value: json.Number("12")}},
			{{Kind: rowset.KindString, Value: "cardiology"}, {Kind: rowset.KindNumber, Value: json.Number("8")}},
		},
	}
}

func TestAnalyzer_TableAndReport(t *testing.T) {
	fc := &fakeCompleter{output: "Surgery has the most doctors with 12, followed by cardiology with 8."}
	a := New(fc, nil)

	rep := a.Analyze(context.Background(), "doctors per department?", departmentCounts())

	assert.Contains(t, rep.Table, "department")
	assert.Contains(t, rep.Table, "surgery")
	assert.Contains(t, rep.Table, "12")
	assert.Equal(t, "Surgery has the most doctors with 12, followed by cardiology with 8.", rep.Report)

	// the model saw the question and the rendered rows
	require.Len(t, fc.users, 1)
	assert.Contains(t, fc.users[0], "doctors per department?")
	assert.Contains(t, fc.users[0], "cardiology")
}

func TestAnalyzer_ModelFailureDegradesToTableOnly(t *testing.T) {
	fc := &fakeCompleter{err: errs.New(errs.ErrKindModelUnavailable, "gateway down")}
	a := New(fc, nil)

	rep := a.Analyze(context.Background(), "doctors per department?", departmentCounts())

	assert.NotEmpty(t, rep.Table)
	assert.Empty(t, rep.Report)
}

func TestAnalyzer_EmptyResultSkipsModel(t *testing.T) {
	fc := &fakeCompleter{output: "should not be called"}
	a := New(fc, nil)

	rep := a.Analyze(context.Background(), "q", &rowset.Rowset{Columns: []string{"n"}, Rows: [][]rowset.Cell{}})

	assert.Empty(t, fc.users)
	assert.Empty(t, rep.Report)
	assert.Contains(t, rep.Table, "n")
}

func TestAnalyzer_NilCompleter(t *testing.T) {
	rep := New(nil, nil).Analyze(context.Background(), "q", departmentCounts())
	assert.NotEmpty(t, rep.Table)
	assert.Empty(t, rep.Report)
}

func TestRenderTable_PreviewCap(t *testing.T) {
	rs := &rowset.Rowset{Columns: []string{"n"}}
	for i := 0; i < MaxPreviewRows+5; i++ {
		rs.Rows = append(rs.Rows, []rowset.Cell{{Kind: rowset.KindNumber, Value: int64(i)}})
	}

	out := RenderTable(rs)
	assert.Contains(t, out, "showing first 20 rows")
}
