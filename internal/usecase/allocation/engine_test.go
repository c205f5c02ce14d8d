package allocation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Fixed ids so ordering and tie-breaks are deterministic in assertions.
var (
	memberA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	memberB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	memberC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
)

func resultFor(t *testing.T, results []domain.AllocationResult, id uuid.UUID) domain.AllocationResult {
	t.Helper()
	for _, r := range results {
		if r.MemberID == id {
			return r
		}
	}
	t.Fatalf("no result for member %s", id)
	return domain.AllocationResult{}
}

func TestCompute_WeightedThreeMemberScenario(t *testing.T) {
	// Weighted totals 4050 / 3000 / 2200 over a 12000 net income.
	// Percentages round to 4 places: 0.4378 / 0.3243 / 0.2378.
	// Amounts round to cents: 5253.60 / 3891.60 / 2853.60, leaving a
	// 1.20 residual that lands on the largest allocation.
	outcome, err := Compute(Input{
		NetIncome: decimal.NewFromInt(12000),
		Formula: domain.FormulaSpec{
			Kind:    domain.FormulaWeighted,
			Weights: map[string]decimal.Decimal{"work": decimal.NewFromInt(1)},
		},
		Totals: []domain.PatronageTotal{
			{MemberID: memberA, Category: "work", Amount: decimal.NewFromInt(4050)},
			{MemberID: memberB, Category: "work", Amount: decimal.NewFromInt(3000)},
			{MemberID: memberC, Category: "work", Amount: decimal.NewFromInt(2200)},
		},
		Members: []uuid.UUID{memberA, memberB, memberC},
	})

	require.NoError(t, err)
	require.Len(t, outcome.Results, 3)

	a := resultFor(t, outcome.Results, memberA)
	b := resultFor(t, outcome.Results, memberB)
	c := resultFor(t, outcome.Results, memberC)

	assert.True(t, a.Percentage.Equal(dec("0.4378")), "A percentage should be 0.4378, got %s", a.Percentage)
	assert.True(t, b.Percentage.Equal(dec("0.3243")), "B percentage should be 0.3243, got %s", b.Percentage)
	assert.True(t, c.Percentage.Equal(dec("0.2378")), "C percentage should be 0.2378, got %s", c.Percentage)

	assert.True(t, outcome.Residual.Equal(dec("1.20")), "residual should be 1.20, got %s", outcome.Residual)
	assert.True(t, a.Amount.Equal(dec("5254.80")), "A should absorb the residual: 5253.60 + 1.20")
	assert.True(t, b.Amount.Equal(dec("3891.60")))
	assert.True(t, c.Amount.Equal(dec("2853.60")))

	total := a.Amount.Add(b.Amount).Add(c.Amount)
	assert.True(t, total.Equal(decimal.NewFromInt(12000)), "amounts must sum to net income exactly")
}

func TestCompute_ResidualTieGoesToSmallestMemberID(t *testing.T) {
	// Two equal weights over 100.01: each rounds to 50.01, so the
	// over-allocation of 0.01 comes back off the smallest member id.
	outcome, err := Compute(Input{
		NetIncome: dec("100.01"),
		Formula: domain.FormulaSpec{
			Kind:    domain.FormulaWeighted,
			Weights: map[string]decimal.Decimal{"work": decimal.NewFromInt(1)},
		},
		Totals: []domain.PatronageTotal{
			{MemberID: memberB, Category: "work", Amount: decimal.NewFromInt(500)},
			{MemberID: memberA, Category: "work", Amount: decimal.NewFromInt(500)},
		},
	})

	require.NoError(t, err)
	a := resultFor(t, outcome.Results, memberA)
	b := resultFor(t, outcome.Results, memberB)
	assert.True(t, outcome.Residual.Equal(dec("-0.01")))
	assert.True(t, a.Amount.Equal(dec("50.00")), "A (smallest id) should carry the residual, got %s", a.Amount)
	assert.True(t, b.Amount.Equal(dec("50.01")))
}

func TestCompute_MinContributionExcludesAndRecomputes(t *testing.T) {
	outcome, err := Compute(Input{
		NetIncome: decimal.NewFromInt(1000),
		Formula: domain.FormulaSpec{
			Kind:    domain.FormulaWeighted,
			Weights: map[string]decimal.Decimal{"work": decimal.NewFromInt(1)},
		},
		Totals: []domain.PatronageTotal{
			{MemberID: memberA, Category: "work", Amount: decimal.NewFromInt(100)},
			{MemberID: memberB, Category: "work", Amount: decimal.NewFromInt(50)},
			{MemberID: memberC, Category: "work", Amount: decimal.NewFromInt(10)},
		},
		MinContribution: decimal.NewFromInt(20),
	})

	require.NoError(t, err)
	require.Len(t, outcome.Results, 2, "member below the threshold is excluded entirely")

	a := resultFor(t, outcome.Results, memberA)
	b := resultFor(t, outcome.Results, memberB)
	assert.True(t, a.Percentage.Equal(dec("0.6667")), "percentages recompute over survivors, got %s", a.Percentage)
	assert.True(t, b.Percentage.Equal(dec("0.3333")))
	assert.True(t, a.Amount.Add(b.Amount).Equal(decimal.NewFromInt(1000)))
}

func TestCompute_MaxShareCapRedistributes(t *testing.T) {
	// Weights 80/10/10 with a 0.5 cap: the dominant member is clipped to
	// 50% and the rest split the remaining half evenly.
	outcome, err := Compute(Input{
		NetIncome: decimal.NewFromInt(1000),
		Formula: domain.FormulaSpec{
			Kind:    domain.FormulaWeighted,
			Weights: map[string]decimal.Decimal{"work": decimal.NewFromInt(1)},
		},
		Totals: []domain.PatronageTotal{
			{MemberID: memberA, Category: "work", Amount: decimal.NewFromInt(80)},
			{MemberID: memberB, Category: "work", Amount: decimal.NewFromInt(10)},
			{MemberID: memberC, Category: "work", Amount: decimal.NewFromInt(10)},
		},
		MaxShare: dec("0.5"),
	})

	require.NoError(t, err)
	a := resultFor(t, outcome.Results, memberA)
	b := resultFor(t, outcome.Results, memberB)
	c := resultFor(t, outcome.Results, memberC)
	assert.True(t, a.Percentage.Equal(dec("0.5")), "capped at the max share, got %s", a.Percentage)
	assert.True(t, b.Percentage.Equal(dec("0.25")))
	assert.True(t, c.Percentage.Equal(dec("0.25")))
	assert.True(t, a.Amount.Equal(decimal.NewFromInt(500)))
	assert.True(t, b.Amount.Equal(decimal.NewFromInt(250)))
	assert.True(t, c.Amount.Equal(decimal.NewFromInt(250)))
}

func TestCompute_MaxShareInfeasibleFails(t *testing.T) {
	_, err := Compute(Input{
		NetIncome: decimal.NewFromInt(1000),
		Formula: domain.FormulaSpec{
			Kind:    domain.FormulaWeighted,
			Weights: map[string]decimal.Decimal{"work": decimal.NewFromInt(1)},
		},
		Totals: []domain.PatronageTotal{
			{MemberID: memberA, Category: "work", Amount: decimal.NewFromInt(80)},
			{MemberID: memberB, Category: "work", Amount: decimal.NewFromInt(20)},
		},
		MaxShare: dec("0.3"),
	})
	assert.Error(t, err, "two members capped at 30% cannot absorb 100%")
}

func TestCompute_EqualFormulaSplitsAcrossMembers(t *testing.T) {
	outcome, err := Compute(Input{
		NetIncome: decimal.NewFromInt(100),
		Formula:   domain.FormulaSpec{Kind: domain.FormulaEqual},
		Members:   []uuid.UUID{memberA, memberB, memberC},
	})

	require.NoError(t, err)
	require.Len(t, outcome.Results, 3)
	a := resultFor(t, outcome.Results, memberA)
	b := resultFor(t, outcome.Results, memberB)
	c := resultFor(t, outcome.Results, memberC)
	assert.True(t, a.Percentage.Equal(dec("0.3333")))
	assert.True(t, outcome.Residual.Equal(dec("0.01")))
	assert.True(t, a.Amount.Equal(dec("33.34")), "smallest id takes the residual on an amount tie")
	assert.True(t, b.Amount.Equal(dec("33.33")))
	assert.True(t, c.Amount.Equal(dec("33.33")))
}

func TestCompute_SingleCategoryIgnoresOtherCategories(t *testing.T) {
	outcome, err := Compute(Input{
		NetIncome: decimal.NewFromInt(900),
		Formula:   domain.FormulaSpec{Kind: domain.FormulaSingleCategory, Category: "purchases"},
		Totals: []domain.PatronageTotal{
			{MemberID: memberA, Category: "purchases", Amount: decimal.NewFromInt(200)},
			{MemberID: memberA, Category: "hours", Amount: decimal.NewFromInt(9999)},
			{MemberID: memberB, Category: "purchases", Amount: decimal.NewFromInt(100)},
		},
	})

	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)
	a := resultFor(t, outcome.Results, memberA)
	assert.True(t, a.Percentage.Equal(dec("0.6667")), "only the selected category weighs in, got %s", a.Percentage)
}

func TestCompute_ExpressionFormula(t *testing.T) {
	outcome, err := Compute(Input{
		NetIncome: decimal.NewFromInt(1000),
		Formula:   domain.FormulaSpec{Kind: domain.FormulaExpr, Expr: "hours * 2 + purchases"},
		Totals: []domain.PatronageTotal{
			{MemberID: memberA, Category: "hours", Amount: decimal.NewFromInt(100)},
			{MemberID: memberA, Category: "purchases", Amount: decimal.NewFromInt(50)},
			{MemberID: memberB, Category: "hours", Amount: decimal.NewFromInt(125)},
		},
	})

	require.NoError(t, err)
	a := resultFor(t, outcome.Results, memberA)
	b := resultFor(t, outcome.Results, memberB)
	assert.True(t, a.WeightedTotal.Equal(decimal.NewFromInt(250)), "100*2 + 50")
	assert.True(t, b.WeightedTotal.Equal(decimal.NewFromInt(250)), "125*2")
	assert.True(t, a.Amount.Equal(decimal.NewFromInt(500)))
	assert.True(t, b.Amount.Equal(decimal.NewFromInt(500)))
}

func TestCompute_RejectsNonPositiveNetIncome(t *testing.T) {
	_, err := Compute(Input{
		NetIncome: decimal.Zero,
		Formula:   domain.FormulaSpec{Kind: domain.FormulaEqual},
		Members:   []uuid.UUID{memberA},
	})
	assert.Error(t, err)
}

func TestCompute_RejectsZeroTotalPatronage(t *testing.T) {
	_, err := Compute(Input{
		NetIncome: decimal.NewFromInt(1000),
		Formula: domain.FormulaSpec{
			Kind:    domain.FormulaWeighted,
			Weights: map[string]decimal.Decimal{"work": decimal.NewFromInt(1)},
		},
		Totals: nil,
	})
	assert.Error(t, err, "nobody to allocate to")
}

func TestVerify_DetectsTamperedAmounts(t *testing.T) {
	input := Input{
		NetIncome: decimal.NewFromInt(12000),
		Formula: domain.FormulaSpec{
			Kind:    domain.FormulaWeighted,
			Weights: map[string]decimal.Decimal{"work": decimal.NewFromInt(1)},
		},
		Totals: []domain.PatronageTotal{
			{MemberID: memberA, Category: "work", Amount: decimal.NewFromInt(4050)},
			{MemberID: memberB, Category: "work", Amount: decimal.NewFromInt(3000)},
			{MemberID: memberC, Category: "work", Amount: decimal.NewFromInt(2200)},
		},
	}
	outcome, err := Compute(input)
	require.NoError(t, err)

	calc := &domain.AllocationCalculation{
		ID:        uuid.New(),
		NetIncome: input.NetIncome,
		Formula:   input.Formula,
		Inputs:    input.Totals,
		Results:   outcome.Results,
		Residual:  outcome.Residual,
	}
	assert.NoError(t, Verify(calc), "an untouched calculation verifies")

	calc.Results[0].Amount = calc.Results[0].Amount.Add(decimal.NewFromInt(1))
	err = Verify(calc)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCalculationMismatch)
}
