package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"trailing semicolon", "SELECT 1;", "SELECT 1"},
		{"stacked semicolons", "SELECT 1;;", "SELECT 1"},
		{"sql fence", "```sql\nSELECT COUNT(*) FROM `t`;\n```", "SELECT COUNT(*) FROM `t`"},
		{"bare fence", "```\nSELECT 1\n```", "SELECT 1"},
		{"multiline collapsed", "SELECT name,\n  salary\nFROM t", "SELECT name, salary FROM t"},
		{"whitespace only", "   \n\t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeSQL(tt.in))
		})
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"single", "SELECT 1", 1},
		{"single with trailing semicolon", "SELECT 1;", 1},
		{"two statements", "SELECT 1; SELECT 2", 2},
		{"semicolon inside string literal", "SELECT * FROM t WHERE note = 'a;b'", 1},
		{"semicolon inside backticks", "SELECT `weird;col` FROM t", 1},
		{"escaped quote inside literal", `SELECT * FROM t WHERE name = 'O\'Brien; Jr'`, 1},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, splitStatements(tt.in), tt.want)
		})
	}
}

func TestBalanced(t *testing.T) {
	assert.True(t, balanced("SELECT ROUND(AVG(salary), 2) FROM t"))
	assert.True(t, balanced("SELECT * FROM t WHERE note = '(('"))
	assert.True(t, balanced(`SELECT * FROM t WHERE name = 'O\'Brien'`))
	assert.True(t, balanced(`SELECT * FROM t WHERE path = 'a\\' AND id = 1`))
	assert.False(t, balanced("SELECT ROUND(AVG(salary), 2 FROM t"))
	assert.False(t, balanced("SELECT a) FROM t"))
	assert.False(t, balanced("SELECT * FROM t WHERE note = 'unterminated"))
	assert.False(t, balanced(`SELECT * FROM t WHERE name = 'O\'Brien`))
}

func TestIsReadOnly(t *testing.T) {
	assert.True(t, isReadOnly("SELECT 1"))
	assert.True(t, isReadOnly("select count(*) from t"))
	assert.True(t, isReadOnly("WITH cte AS (SELECT 1) SELECT * FROM cte"))
	assert.False(t, isReadOnly("DELETE FROM t"))
	assert.False(t, isReadOnly("UPDATE t SET a = 1"))
	assert.False(t, isReadOnly(""))
}
