package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/domain"
	"github.com/coopledger/coopledger/internal/usecase/balance"
)

// Balances is the slice of the balance service reports derive from.
type Balances interface {
	Balance(ctx context.Context, accountID uuid.UUID, asOf time.Time) (decimal.Decimal, error)
	TrialBalance(ctx context.Context, basis domain.Basis, asOf time.Time) ([]balance.AccountBalance, error)
}

// CapitalReconciliation rolls one member's capital forward over a period
// in one basis world: opening balance, the movements by kind, and the
// closing balance they tie out to.
type CapitalReconciliation struct {
	Basis         domain.Basis
	Opening       decimal.Decimal
	Contributions decimal.Decimal
	Allocations   decimal.Decimal
	Distributions decimal.Decimal // reported positive, reduces capital
	Other         decimal.Decimal // revaluations, disposals, reversals
	Closing       decimal.Decimal
}

// MemberStatement is one member's period statement across both basis
// worlds.
type MemberStatement struct {
	Member *domain.Member
	Period *domain.Period
	Book   *CapitalReconciliation
	Tax    *CapitalReconciliation
}

// LayerShare is one member's open attribution on a capital layer.
type LayerShare struct {
	LayerID  uuid.UUID
	AssetRef string
	Origin   domain.LayerOrigin
	Amount   decimal.Decimal
}

// CapitalDivergence compares a member's book and tax capital and lists the
// open layer attributions that explain the gap.
type CapitalDivergence struct {
	Member      *domain.Member
	BookBalance decimal.Decimal
	TaxBalance  decimal.Decimal
	Delta       decimal.Decimal // book minus tax
	OpenLayers  []LayerShare
}

// ReportService derives read-only member and ledger reports. Nothing here
// mutates state.
type ReportService struct {
	MemberRepo      domain.MemberRepository
	PeriodRepo      domain.PeriodRepository
	CapitalRepo     domain.CapitalRepository
	TransactionRepo domain.TransactionRepository
	AccountRepo     domain.AccountRepository
	Balances        Balances
}

// NewReportService creates a new ReportService instance.
func NewReportService(store domain.Store, balances Balances) *ReportService {
	return &ReportService{
		MemberRepo:      store.Members(),
		PeriodRepo:      store.Periods(),
		CapitalRepo:     store.Capital(),
		TransactionRepo: store.Transactions(),
		AccountRepo:     store.Accounts(),
		Balances:        balances,
	}
}

// Statement builds one member's capital statement for a period, both basis
// worlds side by side.
func (s *ReportService) Statement(ctx context.Context, memberID, periodID uuid.UUID) (*MemberStatement, error) {
	member, err := s.MemberRepo.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	period, err := s.PeriodRepo.GetByID(ctx, periodID)
	if err != nil {
		return nil, err
	}
	pair, err := s.CapitalRepo.GetPair(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("member %s capital pair: %w", member.Code, err)
	}

	book, err := s.reconcile(ctx, pair.BookAccountID, domain.BasisBook, period)
	if err != nil {
		return nil, err
	}
	tax, err := s.reconcile(ctx, pair.TaxAccountID, domain.BasisTax, period)
	if err != nil {
		return nil, err
	}
	return &MemberStatement{Member: member, Period: period, Book: book, Tax: tax}, nil
}

// Statements builds the period statement for every member, ordered by
// member code.
func (s *ReportService) Statements(ctx context.Context, periodID uuid.UUID) ([]*MemberStatement, error) {
	members, err := s.MemberRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Code < members[j].Code })
	var out []*MemberStatement
	for _, m := range members {
		statement, err := s.Statement(ctx, m.ID, periodID)
		if err != nil {
			return nil, err
		}
		out = append(out, statement)
	}
	return out, nil
}

// Divergence reports every member's book/tax capital gap together with the
// open layer attributions that will close it on disposal.
func (s *ReportService) Divergence(ctx context.Context) ([]*CapitalDivergence, error) {
	members, err := s.MemberRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Code < members[j].Code })

	layers, err := s.CapitalRepo.ListLayers(ctx, domain.LayerOpen)
	if err != nil {
		return nil, err
	}
	sharesByMember := make(map[uuid.UUID][]LayerShare)
	for _, layer := range layers {
		for _, attr := range layer.Attributions {
			sharesByMember[attr.MemberID] = append(sharesByMember[attr.MemberID], LayerShare{
				LayerID:  layer.ID,
				AssetRef: layer.AssetRef,
				Origin:   layer.Origin,
				Amount:   attr.Amount,
			})
		}
	}

	var out []*CapitalDivergence
	for _, m := range members {
		pair, err := s.CapitalRepo.GetPair(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("member %s capital pair: %w", m.Code, err)
		}
		book, err := s.Balances.Balance(ctx, pair.BookAccountID, time.Time{})
		if err != nil {
			return nil, err
		}
		tax, err := s.Balances.Balance(ctx, pair.TaxAccountID, time.Time{})
		if err != nil {
			return nil, err
		}
		out = append(out, &CapitalDivergence{
			Member:      m,
			BookBalance: book,
			TaxBalance:  tax,
			Delta:       book.Sub(tax),
			OpenLayers:  sharesByMember[m.ID],
		})
	}
	return out, nil
}

// TrialBalance lists every leaf account of a basis world with its balance.
func (s *ReportService) TrialBalance(ctx context.Context, basis domain.Basis, asOf time.Time) ([]balance.AccountBalance, error) {
	return s.Balances.TrialBalance(ctx, basis, asOf)
}

// reconcile derives the roll-forward of one capital account over a period.
// The movements come from the period's transactions split by kind, so
// opening plus contributions plus allocations minus distributions plus
// other always ties out to closing.
func (s *ReportService) reconcile(ctx context.Context, accountID uuid.UUID, basis domain.Basis, period *domain.Period) (*CapitalReconciliation, error) {
	account, err := s.AccountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	opening, err := s.Balances.Balance(ctx, accountID, period.Start.Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	closing, err := s.Balances.Balance(ctx, accountID, period.End.Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}

	txs, err := s.TransactionRepo.List(ctx, domain.TransactionFilter{
		PeriodID:   &period.ID,
		AccountIDs: []uuid.UUID{accountID},
	})
	if err != nil {
		return nil, err
	}

	recon := &CapitalReconciliation{Basis: basis, Opening: opening, Closing: closing}
	for _, tx := range txs {
		for _, e := range tx.Entries {
			if e.AccountID != accountID {
				continue
			}
			v := e.Amount
			if e.Side != account.NormalSide {
				v = v.Neg()
			}
			switch tx.Type {
			case domain.TransactionTypeContribution:
				recon.Contributions = recon.Contributions.Add(v)
			case domain.TransactionTypeAllocation:
				recon.Allocations = recon.Allocations.Add(v)
			case domain.TransactionTypeDistribution:
				recon.Distributions = recon.Distributions.Sub(v)
			default:
				recon.Other = recon.Other.Add(v)
			}
		}
	}
	return recon, nil
}
