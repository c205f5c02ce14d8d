package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FormulaKind selects how an allocation formula turns patronage totals into
// member weights.
type FormulaKind string

const (
	// FormulaWeighted sums category totals scaled by configured weights.
	FormulaWeighted FormulaKind = "WEIGHTED"
	// FormulaEqual splits equally across eligible members.
	FormulaEqual FormulaKind = "EQUAL"
	// FormulaSingleCategory uses one category's totals directly.
	FormulaSingleCategory FormulaKind = "SINGLE_CATEGORY"
	// FormulaExpr evaluates an arithmetic expression over category totals.
	FormulaExpr FormulaKind = "EXPR"
)

// weightTolerance is how far weighted-formula weights may drift from
// summing to exactly 1.
var weightTolerance = decimal.RequireFromString("0.0001")

// FormulaSpec is the persisted definition of an allocation formula. Only
// the fields for its kind are set.
type FormulaSpec struct {
	Kind     FormulaKind                `yaml:"kind"`
	Weights  map[string]decimal.Decimal `yaml:"weights,omitempty"`
	Category string                     `yaml:"category,omitempty"`
	Expr     string                     `yaml:"expr,omitempty"`
}

// Validate checks the formula's own parameters. Expression syntax is
// checked by the allocation engine, which owns the evaluator.
func (f *FormulaSpec) Validate() error {
	switch f.Kind {
	case FormulaWeighted:
		if len(f.Weights) == 0 {
			return errors.New("weighted formula requires at least one category weight")
		}
		var sum decimal.Decimal
		for category, w := range f.Weights {
			if category == "" {
				return errors.New("weighted formula category cannot be empty")
			}
			if w.IsNegative() {
				return errors.New("weighted formula weights cannot be negative")
			}
			sum = sum.Add(w)
		}
		if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(weightTolerance) {
			return errors.New("weighted formula weights must sum to 1.0 within 0.0001")
		}
	case FormulaEqual:
	case FormulaSingleCategory:
		if f.Category == "" {
			return errors.New("single-category formula requires a category")
		}
	case FormulaExpr:
		if f.Expr == "" {
			return errors.New("expression formula requires an expression")
		}
	default:
		return errors.New("formula kind must be WEIGHTED, EQUAL, SINGLE_CATEGORY, or EXPR")
	}
	return nil
}

// CalculationStatus is the lifecycle state of a stored allocation
// calculation.
type CalculationStatus string

const (
	CalculationPending  CalculationStatus = "PENDING_APPROVAL"
	CalculationApproved CalculationStatus = "APPROVED"
	CalculationPosted   CalculationStatus = "POSTED"
	CalculationVoid     CalculationStatus = "VOID"
)

// AllocationResult is one member's share of an allocation: the weighted
// patronage total that fed the split, the 4-place percentage, and the final
// 2-place amount including any rounding residual assigned to this member.
type AllocationResult struct {
	MemberID      uuid.UUID
	WeightedTotal decimal.Decimal
	Percentage    decimal.Decimal
	Amount        decimal.Decimal
	Residual      decimal.Decimal
}

// AllocationCalculation stores the full inputs and outputs of one
// allocation run so it can be re-verified and audited later. It is written
// before approval and posted only after an explicit approval. The
// thresholds in force at computation time are stored too, so verification
// does not depend on the current policy file. A calculation is never
// recomputed in place: a replacement is a new record pointing at its
// predecessor through SupersedesID.
type AllocationCalculation struct {
	ID              uuid.UUID
	PeriodID        uuid.UUID
	Formula         FormulaSpec
	NetIncome       decimal.Decimal
	MinContribution decimal.Decimal
	MaxShare        decimal.Decimal
	Inputs          []PatronageTotal
	Results         []AllocationResult
	Residual        decimal.Decimal
	SupersedesID    *uuid.UUID
	Status          CalculationStatus
	CreatedAt       time.Time
	ApprovedAt      *time.Time
	ApprovedBy      string
	PostedAt        *time.Time
}

// Allocated returns the sum of all result amounts. After residual
// assignment this equals the allocated net income exactly.
func (c *AllocationCalculation) Allocated() decimal.Decimal {
	var sum decimal.Decimal
	for _, r := range c.Results {
		sum = sum.Add(r.Amount)
	}
	return sum
}
