package allocation

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/domain"
)

// PercentPlaces is the precision of allocation percentages.
const PercentPlaces = 4

var one = decimal.NewFromInt(1)

// Input bundles everything one allocation run needs. Zero thresholds are
// disabled.
type Input struct {
	NetIncome decimal.Decimal
	Formula   domain.FormulaSpec
	Totals    []domain.PatronageTotal

	// Members is the eligible member universe. The equal formula splits
	// across it; the other formulas give members without patronage a zero
	// weight, which drops them from the split.
	Members []uuid.UUID

	// MinContribution excludes members whose weighted total falls below it.
	MinContribution decimal.Decimal

	// MaxShare caps any member's percentage, redistributing the excess.
	MaxShare decimal.Decimal
}

// Outcome is the result of an allocation run.
type Outcome struct {
	Results  []domain.AllocationResult
	Residual decimal.Decimal
}

// Compute allocates a positive net income across members by the formula.
// Logic:
//  1. Weigh each member's patronage per the formula
//  2. Drop members below the minimum-contribution threshold, then recompute
//     over the survivors
//  3. Percentage = member weight over total weight, rounded to 4 places;
//     with a max-share cap, capped members hold the cap while the rest
//     split the remaining percentage by weight, repeated until stable
//  4. Amount = net income times percentage, rounded to 2 places
//  5. The rounding residual goes to the largest allocation, ties broken by
//     the smallest member id
//
// Safety: after residual assignment the amounts sum to the net income
// exactly.
func Compute(input Input) (*Outcome, error) {
	if input.NetIncome.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("net income must be positive")
	}
	if err := input.Formula.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidFormula, err)
	}

	weights, err := weigh(input.Formula, input.Totals, input.Members)
	if err != nil {
		return nil, err
	}

	// Threshold pass: zero out members below the minimum, then the split
	// recomputes over the survivors only.
	for id, w := range weights {
		if w.LessThanOrEqual(decimal.Zero) {
			delete(weights, id)
			continue
		}
		if input.MinContribution.IsPositive() && w.LessThan(input.MinContribution) {
			delete(weights, id)
		}
	}
	if len(weights) == 0 {
		return nil, errors.New("no members carry an allocatable patronage weight")
	}

	percentages, err := percentagesFor(weights, input.MaxShare)
	if err != nil {
		return nil, err
	}

	members := make([]uuid.UUID, 0, len(weights))
	for id := range weights {
		members = append(members, id)
	}
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare(members[i][:], members[j][:]) < 0
	})

	results := make([]domain.AllocationResult, 0, len(members))
	allocated := decimal.Zero
	for _, id := range members {
		amount := input.NetIncome.Mul(percentages[id]).Round(domain.LedgerPlaces)
		results = append(results, domain.AllocationResult{
			MemberID:      id,
			WeightedTotal: weights[id],
			Percentage:    percentages[id],
			Amount:        amount,
		})
		allocated = allocated.Add(amount)
	}

	// The residual from rounding lands on the largest allocation so the
	// total matches the net income to the cent.
	residual := input.NetIncome.Sub(allocated)
	if !residual.IsZero() {
		largest := 0
		for i := 1; i < len(results); i++ {
			if results[i].Amount.GreaterThan(results[largest].Amount) {
				largest = i
			}
		}
		results[largest].Amount = results[largest].Amount.Add(residual)
		results[largest].Residual = residual
	}

	total := decimal.Zero
	for _, r := range results {
		total = total.Add(r.Amount)
	}
	if !total.Equal(input.NetIncome) {
		return nil, fmt.Errorf("allocated total %s does not equal net income %s", total, input.NetIncome)
	}

	return &Outcome{Results: results, Residual: residual}, nil
}

// weigh turns patronage totals into per-member weights per the formula.
func weigh(formula domain.FormulaSpec, totals []domain.PatronageTotal, members []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	byMember := make(map[uuid.UUID]map[string]decimal.Decimal)
	for _, t := range totals {
		cats, ok := byMember[t.MemberID]
		if !ok {
			cats = make(map[string]decimal.Decimal)
			byMember[t.MemberID] = cats
		}
		cats[t.Category] = cats[t.Category].Add(t.Amount)
	}

	weights := make(map[uuid.UUID]decimal.Decimal)
	switch formula.Kind {
	case domain.FormulaWeighted:
		for id, cats := range byMember {
			w := decimal.Zero
			for category, amount := range cats {
				if factor, ok := formula.Weights[category]; ok {
					w = w.Add(amount.Mul(factor))
				}
			}
			weights[id] = w
		}
	case domain.FormulaEqual:
		for _, id := range members {
			weights[id] = one
		}
	case domain.FormulaSingleCategory:
		for id, cats := range byMember {
			weights[id] = cats[formula.Category]
		}
	case domain.FormulaExpr:
		prog, err := Parse(formula.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidFormula, err)
		}
		for id, cats := range byMember {
			v, err := prog.Eval(cats)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", domain.ErrInvalidFormula, err)
			}
			if v.IsNegative() {
				return nil, fmt.Errorf("%w: expression yields negative weight for member %s", domain.ErrInvalidFormula, id)
			}
			weights[id] = v
		}
	default:
		return nil, domain.ErrInvalidFormula
	}
	return weights, nil
}

// percentagesFor converts weights into 4-place percentages, honoring the
// max-share cap. Capping loops because clipping one member can push another
// over the cap.
func percentagesFor(weights map[uuid.UUID]decimal.Decimal, maxShare decimal.Decimal) (map[uuid.UUID]decimal.Decimal, error) {
	percentages := make(map[uuid.UUID]decimal.Decimal, len(weights))

	if !maxShare.IsPositive() {
		total := decimal.Zero
		for _, w := range weights {
			total = total.Add(w)
		}
		for id, w := range weights {
			percentages[id] = w.Div(total).Round(PercentPlaces)
		}
		return percentages, nil
	}

	if maxShare.Mul(decimal.NewFromInt(int64(len(weights)))).LessThan(one) {
		return nil, fmt.Errorf("max share %s cannot absorb the full allocation across %d members", maxShare, len(weights))
	}

	capped := make(map[uuid.UUID]bool)
	for {
		uncappedTotal := decimal.Zero
		for id, w := range weights {
			if !capped[id] {
				uncappedTotal = uncappedTotal.Add(w)
			}
		}
		remaining := one.Sub(maxShare.Mul(decimal.NewFromInt(int64(len(capped)))))

		moved := false
		for id, w := range weights {
			if capped[id] {
				continue
			}
			raw := w.Div(uncappedTotal).Mul(remaining)
			if raw.GreaterThan(maxShare) {
				capped[id] = true
				moved = true
			}
		}
		if !moved {
			for id, w := range weights {
				if capped[id] {
					percentages[id] = maxShare.Round(PercentPlaces)
					continue
				}
				percentages[id] = w.Div(uncappedTotal).Mul(remaining).Round(PercentPlaces)
			}
			return percentages, nil
		}
	}
}

// Verify recomputes a stored calculation from its stored inputs and
// compares the outcome with the stored results. Any difference, in
// percentage, amount, or membership, reports ErrCalculationMismatch.
func Verify(calc *domain.AllocationCalculation) error {
	members := make([]uuid.UUID, 0, len(calc.Results))
	seen := make(map[uuid.UUID]bool)
	for _, t := range calc.Inputs {
		if !seen[t.MemberID] {
			seen[t.MemberID] = true
			members = append(members, t.MemberID)
		}
	}
	for _, r := range calc.Results {
		if !seen[r.MemberID] {
			seen[r.MemberID] = true
			members = append(members, r.MemberID)
		}
	}

	outcome, err := Compute(Input{
		NetIncome:       calc.NetIncome,
		Formula:         calc.Formula,
		Totals:          calc.Inputs,
		Members:         members,
		MinContribution: calc.MinContribution,
		MaxShare:        calc.MaxShare,
	})
	if err != nil {
		return fmt.Errorf("%w: recomputation failed: %s", domain.ErrCalculationMismatch, err)
	}

	if len(outcome.Results) != len(calc.Results) {
		return fmt.Errorf("%w: %d members recomputed, %d stored", domain.ErrCalculationMismatch, len(outcome.Results), len(calc.Results))
	}
	stored := make(map[uuid.UUID]domain.AllocationResult, len(calc.Results))
	for _, r := range calc.Results {
		stored[r.MemberID] = r
	}
	for _, r := range outcome.Results {
		s, ok := stored[r.MemberID]
		if !ok {
			return fmt.Errorf("%w: member %s missing from stored results", domain.ErrCalculationMismatch, r.MemberID)
		}
		if !s.Percentage.Equal(r.Percentage) || !s.Amount.Equal(r.Amount) {
			return fmt.Errorf("%w: member %s recomputed %s%%/%s, stored %s%%/%s",
				domain.ErrCalculationMismatch, r.MemberID, r.Percentage, r.Amount, s.Percentage, s.Amount)
		}
	}
	if !outcome.Residual.Equal(calc.Residual) {
		return fmt.Errorf("%w: residual recomputed %s, stored %s", domain.ErrCalculationMismatch, outcome.Residual, calc.Residual)
	}
	return nil
}
