package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType describes what business event a transaction records.
type TransactionType string

const (
	TransactionTypeGeneral      TransactionType = "GENERAL"
	TransactionTypeContribution TransactionType = "CONTRIBUTION"
	TransactionTypeRevaluation  TransactionType = "REVALUATION"
	TransactionTypeDistribution TransactionType = "DISTRIBUTION"
	TransactionTypeDisposal     TransactionType = "DISPOSAL"
	TransactionTypeAllocation   TransactionType = "ALLOCATION"
	TransactionTypeClosing      TransactionType = "CLOSING"
	TransactionTypeReversal     TransactionType = "REVERSAL"
)

// LedgerPlaces is the fixed-point precision of the ledger. Every entry
// amount must be representable in this many decimal places.
const LedgerPlaces = 2

// Entry is a single leg of a transaction. Amounts are absolute values,
// always positive; the side carries the direction.
type Entry struct {
	AccountID uuid.UUID
	Side      EntrySide
	Amount    decimal.Decimal
}

// Transaction is an immutable, balanced set of entries posted into a single
// basis world. Seq is assigned by the store at post time and is strictly
// monotonic across the ledger. Posted transactions are never mutated;
// corrections post a reversal that references the original.
type Transaction struct {
	ID         uuid.UUID
	Seq        uint64
	Date       time.Time
	PostedAt   time.Time
	PeriodID   uuid.UUID
	Basis      Basis
	Type       TransactionType
	MemberID   *uuid.UUID
	EventID    string // idempotency key for feed-driven postings, empty for internal ones
	Accrual    bool   // marks a cutoff adjustment allowed while the period is closing
	ReversalOf *uuid.UUID
	Memo       string
	Entries    []Entry
}

// Validate ensures the transaction adheres to domain rules: entries present,
// amounts positive and within ledger precision, and sum of debits equal to
// sum of credits. Checks that need the chart of accounts (active, leaf,
// basis-homogeneous) live in the ledger service.
func (t *Transaction) Validate() error {
	if len(t.Entries) == 0 {
		return errors.New("transaction must have at least one entry")
	}

	var totalDebits decimal.Decimal
	var totalCredits decimal.Decimal

	for i, entry := range t.Entries {
		if entry.Amount.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("entry %d: amount must be positive (absolute value)", i)
		}
		if !entry.Amount.Equal(entry.Amount.Round(LedgerPlaces)) {
			return fmt.Errorf("entry %d: amount %s exceeds %d decimal places", i, entry.Amount, LedgerPlaces)
		}
		switch entry.Side {
		case SideDebit:
			totalDebits = totalDebits.Add(entry.Amount)
		case SideCredit:
			totalCredits = totalCredits.Add(entry.Amount)
		default:
			return fmt.Errorf("entry %d: side must be DEBIT or CREDIT", i)
		}
	}

	if !totalDebits.Equal(totalCredits) {
		return fmt.Errorf("%w: debits %s, credits %s", ErrUnbalanced, totalDebits, totalCredits)
	}
	return nil
}

// Total returns the transaction's debit total, which by the balance
// invariant equals its credit total.
func (t *Transaction) Total() decimal.Decimal {
	var total decimal.Decimal
	for _, e := range t.Entries {
		if e.Side == SideDebit {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// Reversal builds the offsetting transaction for t: same amounts, mirrored
// sides, linked back to the original. The caller assigns the period it
// posts into.
func (t *Transaction) Reversal(id uuid.UUID, date time.Time, memo string) *Transaction {
	rev := &Transaction{
		ID:         id,
		Date:       date,
		Basis:      t.Basis,
		Type:       TransactionTypeReversal,
		MemberID:   t.MemberID,
		ReversalOf: &t.ID,
		Memo:       memo,
		Entries:    make([]Entry, len(t.Entries)),
	}
	for i, e := range t.Entries {
		side := SideDebit
		if e.Side == SideDebit {
			side = SideCredit
		}
		rev.Entries[i] = Entry{AccountID: e.AccountID, Side: side, Amount: e.Amount}
	}
	return rev
}
