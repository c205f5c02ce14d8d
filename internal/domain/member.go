package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Member is a cooperative member eligible for patronage allocations.
// DeficitRestoration records whether the member has signed a deficit
// restoration obligation; a negative book capital balance is only
// defensible when this is set.
type Member struct {
	ID                 uuid.UUID
	Code               string
	Name               string
	JoinedAt           time.Time
	Active             bool
	DeficitRestoration bool
}

// Validate ensures the member adheres to domain rules.
func (m *Member) Validate() error {
	if m.Name == "" {
		return errors.New("member name cannot be empty")
	}
	if m.Code == "" {
		return errors.New("member code cannot be empty")
	}
	return nil
}

// Patronage records one unit of member business activity with the
// cooperative, bucketed by category. Per-period category totals feed the
// allocation formula as its contribution inputs.
type Patronage struct {
	ID         uuid.UUID
	MemberID   uuid.UUID
	PeriodID   uuid.UUID
	Category   string
	Amount     decimal.Decimal
	RecordedAt time.Time
	EventID    string
}

// Validate ensures the patronage record adheres to domain rules.
func (p *Patronage) Validate() error {
	if p.Category == "" {
		return errors.New("patronage category cannot be empty")
	}
	if p.Amount.IsNegative() {
		return errors.New("patronage amount cannot be negative")
	}
	return nil
}

// PatronageTotal is a per-member, per-category sum over a period.
type PatronageTotal struct {
	MemberID uuid.UUID
	Category string
	Amount   decimal.Decimal
}
