package domain

import "errors"

// Sentinel errors shared across services and adapters. Callers match them
// with errors.Is; services wrap them with context via fmt.Errorf and %w.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnbalanced is returned when a transaction's debits and credits
	// do not sum to the same amount.
	ErrUnbalanced = errors.New("transaction is unbalanced")

	// ErrPeriodClosed is returned when posting into a period that is no
	// longer open.
	ErrPeriodClosed = errors.New("period is closed")

	// ErrPeriodLocked is returned when attempting to reopen or modify a
	// locked period.
	ErrPeriodLocked = errors.New("period is locked")

	// ErrInactiveAccount is returned when a transaction references a
	// deactivated account.
	ErrInactiveAccount = errors.New("account is inactive")

	// ErrNonLeafAccount is returned when posting directly to a parent
	// account. Parent balances are derived from descendants only.
	ErrNonLeafAccount = errors.New("cannot post to a parent account")

	// ErrBasisMixed is returned when one transaction references accounts
	// from both basis worlds.
	ErrBasisMixed = errors.New("transaction mixes book and tax basis accounts")

	// ErrInsufficientCapital is returned when a distribution would drive a
	// member's book capital balance negative.
	ErrInsufficientCapital = errors.New("insufficient capital balance")

	// ErrConsistency is returned when a post-commit accounting equation
	// check fails. The affected basis world halts until the fault is
	// resolved.
	ErrConsistency = errors.New("accounting equation violated")

	// ErrHalted is returned when posting into a basis world that has an
	// unresolved consistency fault.
	ErrHalted = errors.New("basis world halted by unresolved consistency fault")

	// ErrCalculationMismatch is returned when re-running a stored
	// allocation calculation yields different results than recorded.
	ErrCalculationMismatch = errors.New("allocation calculation does not reproduce stored results")

	// ErrDuplicateEvent is returned when an already-processed feed event
	// arrives again.
	ErrDuplicateEvent = errors.New("event already processed")

	// ErrAwaitingApproval is returned when a period close reaches the
	// allocation step and parks for an explicit approval.
	ErrAwaitingApproval = errors.New("allocation awaiting approval")

	// ErrInvalidFormula is returned when an allocation formula fails
	// validation.
	ErrInvalidFormula = errors.New("invalid allocation formula")
)
