package allocation

import (
	"bytes"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/domain"
)

// Share pairs a key with its weight for a pro-rata split.
type Share struct {
	Key    uuid.UUID
	Weight decimal.Decimal
}

// Split divides an amount across shares proportionally to weight, rounded
// to ledger precision, with the rounding residual folded into the largest
// piece (ties broken by the smallest key). The pieces always sum to the
// amount exactly. Negative amounts split symmetrically, e.g. a write-down
// spread over capital holders.
func Split(amount decimal.Decimal, shares []Share) (map[uuid.UUID]decimal.Decimal, error) {
	if len(shares) == 0 {
		return nil, errors.New("cannot split across zero shares")
	}
	total := decimal.Zero
	for _, s := range shares {
		if s.Weight.IsNegative() {
			return nil, errors.New("share weights cannot be negative")
		}
		total = total.Add(s.Weight)
	}
	if !total.IsPositive() {
		return nil, errors.New("share weights must sum to a positive total")
	}

	ordered := make([]Share, len(shares))
	copy(ordered, shares)
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].Key[:], ordered[j].Key[:]) < 0
	})

	pieces := make(map[uuid.UUID]decimal.Decimal, len(ordered))
	assigned := decimal.Zero
	largest := ordered[0].Key
	largestAbs := decimal.Zero
	for _, s := range ordered {
		piece := amount.Mul(s.Weight).Div(total).Round(domain.LedgerPlaces)
		pieces[s.Key] = piece
		assigned = assigned.Add(piece)
		if piece.Abs().GreaterThan(largestAbs) {
			largestAbs = piece.Abs()
			largest = s.Key
		}
	}
	residual := amount.Sub(assigned)
	if !residual.IsZero() {
		pieces[largest] = pieces[largest].Add(residual)
	}
	return pieces, nil
}
