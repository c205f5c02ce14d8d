package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AccountType classifies accounts in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// EntrySide is the direction of a transaction entry and the normal balance
// side of an account.
type EntrySide string

const (
	SideDebit  EntrySide = "DEBIT"
	SideCredit EntrySide = "CREDIT"
)

// Basis tags the accounting basis an account participates in. Untagged
// accounts belong to the book world.
type Basis string

const (
	BasisNone Basis = ""
	BasisBook Basis = "BOOK"
	BasisTax  Basis = "TAX"
)

// Account is a node in the typed account hierarchy. Parent accounts never
// receive direct postings; their balance is the sum of their descendants.
type Account struct {
	ID         uuid.UUID
	Code       string
	Name       string
	Type       AccountType
	NormalSide EntrySide
	ParentID   *uuid.UUID // nil = top-level
	MemberID   *uuid.UUID // set on member capital accounts
	Basis      Basis
	Active     bool
	CreatedAt  time.Time
}

// NormalSideFor returns the conventional normal balance side for an account
// type: assets and expenses carry debit balances, the rest credit balances.
func NormalSideFor(t AccountType) EntrySide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// BalanceWorld maps an account's basis tag to the basis world its postings
// balance within: untagged and book-tagged accounts form the book world,
// tax-tagged accounts the tax world.
func (a *Account) BalanceWorld() Basis {
	if a.Basis == BasisTax {
		return BasisTax
	}
	return BasisBook
}

// Validate ensures the account adheres to domain rules.
func (a *Account) Validate() error {
	if a.Name == "" {
		return errors.New("account name cannot be empty")
	}
	if a.Code == "" {
		return errors.New("account code cannot be empty")
	}
	switch a.Type {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
	default:
		return errors.New("account type must be ASSET, LIABILITY, EQUITY, REVENUE, or EXPENSE")
	}
	if a.NormalSide != SideDebit && a.NormalSide != SideCredit {
		return errors.New("account normal side must be DEBIT or CREDIT")
	}
	switch a.Basis {
	case BasisNone, BasisBook, BasisTax:
	default:
		return errors.New("account basis must be BOOK, TAX, or empty")
	}
	// Book-tagged accounts are always member capital accounts. Tax-tagged
	// accounts are either member capital accounts or the tax mirror set
	// (tax-basis control, tax capital parent), which carry no member.
	if a.Basis == BasisBook && a.MemberID == nil {
		return errors.New("book-basis account must belong to a member capital pair")
	}
	return nil
}
