package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EvaluatesArithmetic(t *testing.T) {
	vars := map[string]decimal.Decimal{
		"hours":     decimal.NewFromInt(10),
		"purchases": decimal.NewFromInt(200),
	}

	tests := []struct {
		name string
		expr string
		want string
	}{
		{name: "Plain variable", expr: "hours", want: "10"},
		{name: "Constant", expr: "2.5", want: "2.5"},
		{name: "Weighted sum", expr: "hours * 1.5 + purchases * 0.25", want: "65"},
		{name: "Parentheses override precedence", expr: "(hours + purchases) * 2", want: "420"},
		{name: "Division", expr: "purchases / hours", want: "20"},
		{name: "Unary minus", expr: "-hours + 30", want: "20"},
		{name: "Unknown category evaluates to zero", expr: "acreage + hours", want: "10"},
		{name: "Whitespace tolerated", expr: "  hours	+ 1 ", want: "11"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Parse(tt.expr)
			require.NoError(t, err)
			got, err := prog.Eval(vars)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"%s should evaluate to %s, got %s", tt.expr, tt.want, got)
		})
	}
}

func TestParse_RejectsMalformedExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{name: "Empty", expr: ""},
		{name: "Dangling operator", expr: "hours +"},
		{name: "Unclosed parenthesis", expr: "(hours + 1"},
		{name: "Adjacent operands", expr: "hours purchases"},
		{name: "Illegal character", expr: "hours % 2"},
		{name: "Bad number", expr: "1.2.3 + hours"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			assert.Error(t, err)
		})
	}
}

func TestEval_DivisionByZero(t *testing.T) {
	prog, err := Parse("hours / acreage")
	require.NoError(t, err)
	_, err = prog.Eval(map[string]decimal.Decimal{"hours": decimal.NewFromInt(5)})
	assert.Error(t, err)
}

func TestProgram_Categories(t *testing.T) {
	prog, err := Parse("hours * 2 + purchases - (hours / 4)")
	require.NoError(t, err)
	assert.Equal(t, []string{"hours", "purchases"}, prog.Categories())

	constOnly, err := Parse("42")
	require.NoError(t, err)
	assert.Nil(t, constOnly.Categories())
}
