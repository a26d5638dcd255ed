package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperator(t *testing.T) {
	op, err := ParseOperator(" EQ ")
	require.NoError(t, err)
	assert.Equal(t, OperatorEq, op)

	_, err = ParseOperator("contains")
	assert.Error(t, err)
}

func TestOperatorSQL(t *testing.T) {
	tests := map[Operator]string{
		OperatorEq: "=",
		OperatorNe: "<>",
		OperatorGt: ">",
		OperatorGe: ">=",
		OperatorLt: "<",
		OperatorLe: "<=",
	}
	for op, want := range tests {
		assert.Equal(t, want, op.SQL(), string(op))
	}
}

func TestFilterLiteral(t *testing.T) {
	tests := []struct {
		value  string
		want   string
		quoted bool
	}{
		{"'Request pick up tab intro-new'", "Request pick up tab intro-new", true},
		{"'O''Brien'", "O'Brien", true},
		{"42", "42", false},
		{"  'x'  ", "x", true},
		{"'", "'", false},
	}

	for _, tt := range tests {
		f := Filter{Column: "Title", Operator: OperatorEq, Value: tt.value}
		assert.Equal(t, tt.want, f.Literal(), tt.value)
		assert.Equal(t, tt.quoted, f.Quoted(), tt.value)
	}
}

func TestQueryFilterExpression(t *testing.T) {
	q := Query{
		SourceName: "Master Table",
		Columns:    []Column{{Name: "Column1", DisplayName: "Column 1"}, {Name: "Column2"}},
		Filters: []Filter{
			{Column: "Title", Operator: OperatorEq, Value: "'Validation'"},
			{Column: "SubTitle", Operator: OperatorEq, Value: "'Project'"},
		},
	}

	assert.Equal(t, "Title eq 'Validation' and SubTitle eq 'Project'", q.FilterExpression())
	assert.Equal(t, []string{"Column1", "Column2"}, q.ColumnNames())
	assert.Equal(t, "Column 1", q.Columns[0].Label())
	assert.Equal(t, "Column2", q.Columns[1].Label())
}
