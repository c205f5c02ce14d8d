package seeder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/coopledger/coopledger/internal/domain"
)

// Fixed UUIDs for the system chart of accounts, stable across stores and
// re-seeds.
var (
	SysAssets              = uuid.MustParse("00000000-0000-0000-0001-000000001000")
	SysCash                = uuid.MustParse("00000000-0000-0000-0001-000000001010")
	SysContributedProperty = uuid.MustParse("00000000-0000-0000-0001-000000001020")
	SysTaxBasisControl     = uuid.MustParse("00000000-0000-0000-0001-000000001900")
	SysLiabilities         = uuid.MustParse("00000000-0000-0000-0001-000000002000")
	SysPayables            = uuid.MustParse("00000000-0000-0000-0001-000000002010")
	SysMembersEquity       = uuid.MustParse("00000000-0000-0000-0001-000000003000")
	SysTaxCapital          = uuid.MustParse("00000000-0000-0000-0001-000000003800")
	SysNetIncomeSummary    = uuid.MustParse("00000000-0000-0000-0001-000000003900")
	SysRevenue             = uuid.MustParse("00000000-0000-0000-0001-000000004000")
	SysMemberRevenue       = uuid.MustParse("00000000-0000-0000-0001-000000004010")
	SysExpenses            = uuid.MustParse("00000000-0000-0000-0001-000000005000")
	SysOperatingExpenses   = uuid.MustParse("00000000-0000-0000-0001-000000005010")
)

// SystemAccount defines one account of the system chart to be seeded.
type SystemAccount struct {
	ID       uuid.UUID
	Code     string
	Name     string
	Type     domain.AccountType
	ParentID *uuid.UUID
	Basis    domain.Basis
}

// ChartSeeder ensures the system chart of accounts exists. Member capital
// accounts are not seeded here; they are created per member at enrollment
// under the members' equity and tax capital parents.
type ChartSeeder struct {
	repo domain.AccountRepository
}

// NewChartSeeder creates a new ChartSeeder instance.
func NewChartSeeder(repo domain.AccountRepository) *ChartSeeder {
	return &ChartSeeder{repo: repo}
}

// Seed creates every missing system account. Existing accounts are left
// untouched, so seeding is safe to run on every start.
//
// The tax basis control and tax capital accounts carry the tax basis tag
// and sit outside the book hierarchy: a rollup account must never mix the
// two basis worlds.
func (s *ChartSeeder) Seed(ctx context.Context) error {
	systemAccounts := []SystemAccount{
		{ID: SysAssets, Code: domain.CodeAssets, Name: "Assets", Type: domain.AccountTypeAsset},
		{ID: SysCash, Code: domain.CodeCash, Name: "Cash", Type: domain.AccountTypeAsset, ParentID: &SysAssets},
		{ID: SysContributedProperty, Code: domain.CodeContributedProperty, Name: "Contributed Property", Type: domain.AccountTypeAsset, ParentID: &SysAssets},
		{ID: SysTaxBasisControl, Code: domain.CodeTaxBasisControl, Name: "Tax Basis Control", Type: domain.AccountTypeAsset, Basis: domain.BasisTax},
		{ID: SysLiabilities, Code: domain.CodeLiabilities, Name: "Liabilities", Type: domain.AccountTypeLiability},
		{ID: SysPayables, Code: domain.CodePayables, Name: "Payables", Type: domain.AccountTypeLiability, ParentID: &SysLiabilities},
		{ID: SysMembersEquity, Code: domain.CodeMembersEquity, Name: "Members' Equity", Type: domain.AccountTypeEquity},
		{ID: SysTaxCapital, Code: domain.CodeTaxCapital, Name: "Tax Capital", Type: domain.AccountTypeEquity, Basis: domain.BasisTax},
		{ID: SysNetIncomeSummary, Code: domain.CodeNetIncomeSummary, Name: "Net Income Summary", Type: domain.AccountTypeEquity},
		{ID: SysRevenue, Code: domain.CodeRevenue, Name: "Revenue", Type: domain.AccountTypeRevenue},
		{ID: SysMemberRevenue, Code: domain.CodeMemberRevenue, Name: "Member Revenue", Type: domain.AccountTypeRevenue, ParentID: &SysRevenue},
		{ID: SysExpenses, Code: domain.CodeExpenses, Name: "Expenses", Type: domain.AccountTypeExpense},
		{ID: SysOperatingExpenses, Code: domain.CodeOperatingExpenses, Name: "Operating Expenses", Type: domain.AccountTypeExpense, ParentID: &SysExpenses},
	}

	for _, sys := range systemAccounts {
		_, err := s.repo.GetByID(ctx, sys.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		account := &domain.Account{
			ID:         sys.ID,
			Code:       sys.Code,
			Name:       sys.Name,
			Type:       sys.Type,
			NormalSide: domain.NormalSideFor(sys.Type),
			ParentID:   sys.ParentID,
			Basis:      sys.Basis,
			Active:     true,
			CreatedAt:  time.Now(),
		}
		if err := account.Validate(); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, account); err != nil {
			return err
		}
	}
	return nil
}
