package judge

import (
	"testing"

	"github.com/koustreak/nlquery/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doctorDescriptor() *schema.TableDescriptor {
	return &schema.TableDescriptor{
		Database: "hospital",
		Table:    "doctor_info",
		Columns: []schema.ColumnSpec{
			{Name: "name", Type: "varchar(64)"},
			{Name: "department", Type: "varchar(32)", Nullable: true},
			{Name: "salary", Type: "decimal(10,2)"},
		},
	}
}

func TestSyntaxValidator_Check(t *testing.T) {
	desc := doctorDescriptor()

	tests := []struct {
		name        string
		sql         string
		wantValid   bool
		wantColumns []string
		wantWarning bool
	}{
		{
			name:        "count without column references",
			sql:         "SELECT COUNT(*) FROM `hospital`.`doctor_info`",
			wantValid:   true,
			wantColumns: []string{},
		},
		{
			name:        "columns resolved case-insensitively",
			sql:         "SELECT Name, SALARY FROM doctor_info WHERE department = 'surgery'",
			wantValid:   true,
			wantColumns: []string{"name", "salary", "department"},
		},
		{
			name:        "unresolved identifier degrades to warning",
			sql:         "SELECT d.name AS doctor FROM doctor_info d",
			wantValid:   true,
			wantColumns: []string{"name"},
			wantWarning: true,
		},
		{
			name:      "two statements rejected",
			sql:       "SELECT 1; DROP TABLE doctor_info",
			wantValid: false,
		},
		{
			name:      "write statement rejected",
			sql:       "DELETE FROM doctor_info",
			wantValid: false,
		},
		{
			name:      "unbalanced parentheses rejected",
			sql:       "SELECT ROUND(AVG(salary), 2 FROM doctor_info",
			wantValid: false,
		},
		{
			name:      "empty candidate rejected",
			sql:       "",
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := SyntaxValidator{}.Check(Candidate{SQL: tt.sql, Iteration: 1}, desc)

			assert.Equal(t, LayerSyntax, res.Layer)
			assert.Equal(t, tt.wantValid, res.Valid)
			if tt.wantValid {
				assert.Equal(t, tt.wantColumns, res.ColumnsUsed)
			} else {
				require.NotEmpty(t, res.Reason)
				require.NotEmpty(t, res.FixSuggestion)
			}
			if tt.wantWarning {
				assert.NotEmpty(t, res.Errors)
			}
		})
	}
}

// the syntax layer is a pure function: same inputs, same verdict
func TestSyntaxValidator_Idempotent(t *testing.T) {
	desc := doctorDescriptor()
	cand := Candidate{SQL: "SELECT name, salary FROM doctor_info WHERE salary > 100", Iteration: 1}

	first := SyntaxValidator{}.Check(cand, desc)
	for i := 0; i < 5; i++ {
		again := SyntaxValidator{}.Check(cand, desc)
		assert.Equal(t, first.Valid, again.Valid)
		assert.Equal(t, first.ColumnsUsed, again.ColumnsUsed)
		assert.Equal(t, first.Errors, again.Errors)
	}
}

func TestSyntaxValidator_LiteralsNotIdentifiers(t *testing.T) {
	desc := doctorDescriptor()
	res := SyntaxValidator{}.Check(Candidate{
		SQL: "SELECT COUNT(*) FROM doctor_info WHERE department = 'not a column name'",
	}, desc)

	assert.True(t, res.Valid)
	assert.Equal(t, []string{"department"}, res.ColumnsUsed)
	assert.Empty(t, res.Errors)
}

func TestSyntaxValidator_EscapedQuoteInLiteral(t *testing.T) {
	desc := doctorDescriptor()
	res := SyntaxValidator{}.Check(Candidate{
		SQL: `SELECT salary FROM doctor_info WHERE name = 'O\'Brien'`,
	}, desc)

	assert.True(t, res.Valid)
	assert.Equal(t, []string{"salary", "name"}, res.ColumnsUsed)
	assert.Empty(t, res.Errors)
}
