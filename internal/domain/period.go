package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PeriodStatus is the lifecycle state of an accounting period. Transitions
// only ever move forward except for the audited reopen of a closed period.
type PeriodStatus string

const (
	PeriodOpen    PeriodStatus = "OPEN"
	PeriodClosing PeriodStatus = "CLOSING"
	PeriodClosed  PeriodStatus = "CLOSED"
	PeriodLocked  PeriodStatus = "LOCKED"
)

// Period is an accounting period. Start is inclusive, End exclusive.
type Period struct {
	ID        uuid.UUID
	Name      string
	Start     time.Time
	End       time.Time
	Status    PeriodStatus
	ClosedAt  *time.Time
	LockedAt  *time.Time
	CreatedAt time.Time
}

// Contains reports whether the effective date falls inside the period.
func (p *Period) Contains(date time.Time) bool {
	return !date.Before(p.Start) && date.Before(p.End)
}

// Validate ensures the period adheres to domain rules.
func (p *Period) Validate() error {
	if p.Name == "" {
		return errors.New("period name cannot be empty")
	}
	if !p.End.After(p.Start) {
		return errors.New("period end must be after start")
	}
	switch p.Status {
	case PeriodOpen, PeriodClosing, PeriodClosed, PeriodLocked:
	default:
		return errors.New("period status must be OPEN, CLOSING, CLOSED, or LOCKED")
	}
	return nil
}

// CloseStep names one stage of the period close sequence.
type CloseStep string

const (
	CloseStepCutoff    CloseStep = "CUTOFF"
	CloseStepFinalize  CloseStep = "FINALIZE"
	CloseStepNetIncome CloseStep = "NET_INCOME"
	CloseStepAllocate  CloseStep = "ALLOCATE"
	CloseStepPost      CloseStep = "POST_ALLOCATIONS"
	CloseStepSnapshot  CloseStep = "SNAPSHOT"
	CloseStepComplete  CloseStep = "COMPLETE"
)

// CloseSequence is the fixed order of close steps.
var CloseSequence = []CloseStep{
	CloseStepCutoff,
	CloseStepFinalize,
	CloseStepNetIncome,
	CloseStepAllocate,
	CloseStepPost,
	CloseStepSnapshot,
	CloseStepComplete,
}

// NextCloseStep returns the step after s, or s itself if s is terminal or
// unknown.
func NextCloseStep(s CloseStep) CloseStep {
	for i, step := range CloseSequence {
		if step == s && i+1 < len(CloseSequence) {
			return CloseSequence[i+1]
		}
	}
	return s
}

// CloseState is the persisted progress marker of a close run. Step records
// the last step that completed, so an interrupted close resumes exactly
// where it stopped instead of replaying finished work.
type CloseState struct {
	PeriodID      uuid.UUID
	Step          CloseStep
	CalculationID *uuid.UUID // set once the allocation calculation exists
	UpdatedAt     time.Time
}

// Done reports whether step has already completed in this close run.
func (c *CloseState) Done(step CloseStep) bool {
	if c == nil || c.Step == "" {
		return false
	}
	reached := false
	for _, s := range CloseSequence {
		if s == step {
			reached = true
		}
		if s == c.Step {
			return reached
		}
	}
	return false
}

// BalanceSnapshot freezes per-account closing balances for one basis world
// at period close. Snapshots are never deleted; a reopen marks them void
// and a later re-close writes a fresh one.
type BalanceSnapshot struct {
	ID       uuid.UUID
	PeriodID uuid.UUID
	Basis    Basis
	TakenAt  time.Time
	Void     bool
	Balances map[uuid.UUID]decimal.Decimal // leaf account id -> signed balance, normal side positive
}
