package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CapitalPair links a member to its two capital accounts, one per basis
// world. Both accounts are created together when the member enrolls.
type CapitalPair struct {
	MemberID      uuid.UUID
	BookAccountID uuid.UUID
	TaxAccountID  uuid.UUID
	CreatedAt     time.Time
}

// LayerOrigin records what created a capital layer.
type LayerOrigin string

const (
	LayerOriginContribution LayerOrigin = "CONTRIBUTION"
	LayerOriginRevaluation  LayerOrigin = "REVALUATION"
)

// LayerStatus is the lifecycle state of a capital layer.
type LayerStatus string

const (
	LayerOpen     LayerStatus = "OPEN"
	LayerDisposed LayerStatus = "DISPOSED"
)

// LayerAttribution assigns a share of a layer's built-in gain to a member.
type LayerAttribution struct {
	MemberID uuid.UUID
	Amount   decimal.Decimal
}

// CapitalLayer tracks one book/tax disparity on an asset: the wedge between
// what the books carry it at and its tax basis, frozen at the event that
// created it. Attributions pin the built-in gain to the members who held
// capital when the disparity arose, so later tax allocations follow them
// rather than the current membership.
type CapitalLayer struct {
	ID           uuid.UUID
	AssetRef     string
	Origin       LayerOrigin
	BookValue    decimal.Decimal
	TaxBasis     decimal.Decimal
	Attributions []LayerAttribution
	Status       LayerStatus
	PeriodID     uuid.UUID
	EventID      string
	CreatedAt    time.Time
	DisposedAt   *time.Time
}

// BuiltInGain is the layer's book value minus its tax basis. Negative for
// built-in losses.
func (l *CapitalLayer) BuiltInGain() decimal.Decimal {
	return l.BookValue.Sub(l.TaxBasis)
}

// Validate ensures the layer adheres to domain rules, in particular that
// attributions sum exactly to the built-in gain.
func (l *CapitalLayer) Validate() error {
	if l.AssetRef == "" {
		return errors.New("layer asset reference cannot be empty")
	}
	switch l.Origin {
	case LayerOriginContribution, LayerOriginRevaluation:
	default:
		return errors.New("layer origin must be CONTRIBUTION or REVALUATION")
	}
	switch l.Status {
	case LayerOpen, LayerDisposed:
	default:
		return errors.New("layer status must be OPEN or DISPOSED")
	}
	if len(l.Attributions) == 0 {
		return errors.New("layer must attribute its gain to at least one member")
	}
	var sum decimal.Decimal
	for _, a := range l.Attributions {
		sum = sum.Add(a.Amount)
	}
	if !sum.Equal(l.BuiltInGain()) {
		return fmt.Errorf("layer attributions sum %s does not equal built-in gain %s", sum, l.BuiltInGain())
	}
	return nil
}
