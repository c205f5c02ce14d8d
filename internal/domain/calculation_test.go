package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormulaSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		formula FormulaSpec
		wantErr bool
		errMsg  string
	}{
		{
			name: "Weighted formula with weights summing to one should pass",
			formula: FormulaSpec{
				Kind: FormulaWeighted,
				Weights: map[string]decimal.Decimal{
					"hours":     decimal.RequireFromString("0.6"),
					"purchases": decimal.RequireFromString("0.4"),
				},
			},
			wantErr: false,
		},
		{
			name: "Weighted formula within tolerance should pass",
			formula: FormulaSpec{
				Kind: FormulaWeighted,
				Weights: map[string]decimal.Decimal{
					"hours":     decimal.RequireFromString("0.33335"),
					"purchases": decimal.RequireFromString("0.33335"),
					"acreage":   decimal.RequireFromString("0.3334"),
				},
			},
			wantErr: false,
		},
		{
			name: "Weighted formula with weights summing past tolerance should fail",
			formula: FormulaSpec{
				Kind: FormulaWeighted,
				Weights: map[string]decimal.Decimal{
					"hours":     decimal.RequireFromString("0.6"),
					"purchases": decimal.RequireFromString("0.5"),
				},
			},
			wantErr: true,
			errMsg:  "must sum to 1.0",
		},
		{
			name: "Weighted formula with negative weight should fail",
			formula: FormulaSpec{
				Kind: FormulaWeighted,
				Weights: map[string]decimal.Decimal{
					"hours":     decimal.RequireFromString("1.4"),
					"purchases": decimal.RequireFromString("-0.4"),
				},
			},
			wantErr: true,
			errMsg:  "cannot be negative",
		},
		{
			name:    "Weighted formula without weights should fail",
			formula: FormulaSpec{Kind: FormulaWeighted},
			wantErr: true,
			errMsg:  "requires at least one category weight",
		},
		{
			name:    "Equal formula should pass",
			formula: FormulaSpec{Kind: FormulaEqual},
			wantErr: false,
		},
		{
			name:    "Single-category formula with category should pass",
			formula: FormulaSpec{Kind: FormulaSingleCategory, Category: "purchases"},
			wantErr: false,
		},
		{
			name:    "Single-category formula without category should fail",
			formula: FormulaSpec{Kind: FormulaSingleCategory},
			wantErr: true,
			errMsg:  "requires a category",
		},
		{
			name:    "Expression formula with expression should pass",
			formula: FormulaSpec{Kind: FormulaExpr, Expr: "hours * 0.5 + purchases"},
			wantErr: false,
		},
		{
			name:    "Expression formula without expression should fail",
			formula: FormulaSpec{Kind: FormulaExpr},
			wantErr: true,
			errMsg:  "requires an expression",
		},
		{
			name:    "Unknown formula kind should fail",
			formula: FormulaSpec{Kind: FormulaKind("RANDOM")},
			wantErr: true,
			errMsg:  "formula kind must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.formula.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCloseState_Done(t *testing.T) {
	var nilState *CloseState
	assert.False(t, nilState.Done(CloseStepCutoff))

	state := &CloseState{Step: CloseStepNetIncome}
	assert.True(t, state.Done(CloseStepCutoff))
	assert.True(t, state.Done(CloseStepFinalize))
	assert.True(t, state.Done(CloseStepNetIncome))
	assert.False(t, state.Done(CloseStepAllocate))
	assert.False(t, state.Done(CloseStepSnapshot))
}

func TestNextCloseStep(t *testing.T) {
	assert.Equal(t, CloseStepFinalize, NextCloseStep(CloseStepCutoff))
	assert.Equal(t, CloseStepPost, NextCloseStep(CloseStepAllocate))
	assert.Equal(t, CloseStepComplete, NextCloseStep(CloseStepSnapshot))
	assert.Equal(t, CloseStepComplete, NextCloseStep(CloseStepComplete))
}
