package balance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/domain"
)

// AccountBalance pairs an account with its derived balance.
type AccountBalance struct {
	Account *domain.Account
	Balance decimal.Decimal
}

// BalanceService derives balances from the transaction log. Balances are
// signed by each account's normal side, and a parent's balance is the sum
// over its descendant leaves. Nothing here is stored state: every figure
// can be recomputed from entries, with closed-period snapshots serving as a
// fast path and a sequence-keyed cache for current balances.
type BalanceService struct {
	AccountRepo     domain.AccountRepository
	TransactionRepo domain.TransactionRepository
	PeriodRepo      domain.PeriodRepository
	SnapshotRepo    domain.SnapshotRepository

	mu    sync.Mutex
	cache map[uuid.UUID]cachedBalance
}

type cachedBalance struct {
	seq   uint64
	value decimal.Decimal
}

// NewBalanceService creates a new BalanceService instance.
func NewBalanceService(
	accountRepo domain.AccountRepository,
	transactionRepo domain.TransactionRepository,
	periodRepo domain.PeriodRepository,
	snapshotRepo domain.SnapshotRepository,
) *BalanceService {
	return &BalanceService{
		AccountRepo:     accountRepo,
		TransactionRepo: transactionRepo,
		PeriodRepo:      periodRepo,
		SnapshotRepo:    snapshotRepo,
		cache:           make(map[uuid.UUID]cachedBalance),
	}
}

// Balance returns the account's signed balance. A zero asOf means "now":
// every posted entry counts, and the result is cached against the ledger's
// current sequence number. A non-zero asOf bounds the effective date
// inclusively and prefers the latest usable snapshot plus a delta over a
// full scan.
func (s *BalanceService) Balance(ctx context.Context, accountID uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	tree, err := s.tree(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	account := tree.Get(accountID)
	if account == nil {
		return decimal.Zero, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	leaves := tree.Leaves(accountID)

	if asOf.IsZero() {
		return s.currentBalance(ctx, tree, accountID, leaves)
	}

	bound := asOf.Add(time.Nanosecond) // inclusive asOf against an exclusive To

	if snap, snapEnd, err := s.latestSnapshot(ctx, account.BalanceWorld(), bound); err != nil {
		return decimal.Zero, err
	} else if snap != nil {
		base := decimal.Zero
		for _, leaf := range leaves {
			if v, ok := snap.Balances[leaf]; ok {
				base = base.Add(v)
			}
		}
		delta, err := s.sumEntries(ctx, tree, leaves, &snapEnd, &bound)
		if err != nil {
			return decimal.Zero, err
		}
		return base.Add(delta), nil
	}

	return s.sumEntries(ctx, tree, leaves, nil, &bound)
}

// Movement returns the account's net signed change over [from, to).
func (s *BalanceService) Movement(ctx context.Context, accountID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	tree, err := s.tree(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if tree.Get(accountID) == nil {
		return decimal.Zero, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	leaves := tree.Leaves(accountID)
	return s.sumEntries(ctx, tree, leaves, &from, &to)
}

// TrialBalance returns every leaf account of a basis world with its signed
// balance as of the given time, ordered by account code.
func (s *BalanceService) TrialBalance(ctx context.Context, basis domain.Basis, asOf time.Time) ([]AccountBalance, error) {
	balances, tree, err := s.worldBalances(ctx, basis, asOf)
	if err != nil {
		return nil, err
	}
	var out []AccountBalance
	for id, v := range balances {
		out = append(out, AccountBalance{Account: tree.Get(id), Balance: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account.Code < out[j].Account.Code })
	return out, nil
}

// TotalsByType sums a basis world's signed balances per account type.
func (s *BalanceService) TotalsByType(ctx context.Context, basis domain.Basis, asOf time.Time) (map[domain.AccountType]decimal.Decimal, error) {
	balances, tree, err := s.worldBalances(ctx, basis, asOf)
	if err != nil {
		return nil, err
	}
	totals := map[domain.AccountType]decimal.Decimal{
		domain.AccountTypeAsset:     decimal.Zero,
		domain.AccountTypeLiability: decimal.Zero,
		domain.AccountTypeEquity:    decimal.Zero,
		domain.AccountTypeRevenue:   decimal.Zero,
		domain.AccountTypeExpense:   decimal.Zero,
	}
	for id, v := range balances {
		account := tree.Get(id)
		totals[account.Type] = totals[account.Type].Add(v)
	}
	return totals, nil
}

// NetIncome returns revenue minus expenses over a period's transactions in
// the book world. Once closing entries have zeroed the period's revenue and
// expense accounts this returns only what new postings added since, which
// is exactly the amount a re-run close still has to allocate.
func (s *BalanceService) NetIncome(ctx context.Context, periodID uuid.UUID) (decimal.Decimal, error) {
	tree, err := s.tree(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	book := domain.BasisBook
	txs, err := s.TransactionRepo.List(ctx, domain.TransactionFilter{PeriodID: &periodID, Basis: &book})
	if err != nil {
		return decimal.Zero, err
	}
	net := decimal.Zero
	for _, tx := range txs {
		for _, e := range tx.Entries {
			account := tree.Get(e.AccountID)
			if account == nil {
				continue
			}
			switch account.Type {
			case domain.AccountTypeRevenue:
				net = net.Add(signed(account, e))
			case domain.AccountTypeExpense:
				net = net.Sub(signed(account, e))
			}
		}
	}
	return net, nil
}

// Check verifies the accounting equation for a basis world: assets plus
// expenses must equal liabilities plus equity plus revenue. Balanced,
// basis-homogeneous transactions preserve this identity, so a violation
// means lost or corrupted entries rather than a business mistake.
func (s *BalanceService) Check(ctx context.Context, basis domain.Basis) error {
	totals, err := s.TotalsByType(ctx, basis, time.Time{})
	if err != nil {
		return err
	}
	left := totals[domain.AccountTypeAsset].Add(totals[domain.AccountTypeExpense])
	right := totals[domain.AccountTypeLiability].
		Add(totals[domain.AccountTypeEquity]).
		Add(totals[domain.AccountTypeRevenue])
	if !left.Equal(right) {
		return fmt.Errorf("%s world: assets+expenses %s != liabilities+equity+revenue %s",
			basis, left, right)
	}
	return nil
}

// BuildSnapshot derives the closing balances of every leaf account in a
// basis world as of the period's end. Zero balances are omitted. The caller
// persists the result.
func (s *BalanceService) BuildSnapshot(ctx context.Context, period *domain.Period, basis domain.Basis, at time.Time) (*domain.BalanceSnapshot, error) {
	balances, _, err := s.worldBalances(ctx, basis, period.End.Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	snap := &domain.BalanceSnapshot{
		ID:       uuid.New(),
		PeriodID: period.ID,
		Basis:    basis,
		TakenAt:  at,
		Balances: make(map[uuid.UUID]decimal.Decimal, len(balances)),
	}
	for id, v := range balances {
		if !v.IsZero() {
			snap.Balances[id] = v
		}
	}
	return snap, nil
}

// worldBalances derives the signed balance of every leaf account in a
// basis world, keyed by account id. Zero asOf means all entries.
func (s *BalanceService) worldBalances(ctx context.Context, basis domain.Basis, asOf time.Time) (map[uuid.UUID]decimal.Decimal, *domain.AccountTree, error) {
	tree, err := s.tree(ctx)
	if err != nil {
		return nil, nil, err
	}
	var to *time.Time
	if !asOf.IsZero() {
		bound := asOf.Add(time.Nanosecond)
		to = &bound
	}
	txs, err := s.TransactionRepo.List(ctx, domain.TransactionFilter{Basis: &basis, To: to})
	if err != nil {
		return nil, nil, err
	}
	balances := make(map[uuid.UUID]decimal.Decimal)
	for _, a := range tree.All() {
		if a.BalanceWorld() == basis && !tree.HasChildren(a.ID) {
			balances[a.ID] = decimal.Zero
		}
	}
	for _, tx := range txs {
		for _, e := range tx.Entries {
			account := tree.Get(e.AccountID)
			if account == nil {
				continue
			}
			balances[e.AccountID] = balances[e.AccountID].Add(signed(account, e))
		}
	}
	return balances, tree, nil
}

func (s *BalanceService) currentBalance(ctx context.Context, tree *domain.AccountTree, accountID uuid.UUID, leaves []uuid.UUID) (decimal.Decimal, error) {
	seq, err := s.TransactionRepo.MaxSeq(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	if c, ok := s.cache[accountID]; ok && c.seq == seq {
		s.mu.Unlock()
		return c.value, nil
	}
	s.mu.Unlock()

	value, err := s.sumEntries(ctx, tree, leaves, nil, nil)
	if err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	s.cache[accountID] = cachedBalance{seq: seq, value: value}
	s.mu.Unlock()
	return value, nil
}

// latestSnapshot finds the newest non-void snapshot whose period ended at
// or before bound. It returns the snapshot and the period end to resume
// delta derivation from.
func (s *BalanceService) latestSnapshot(ctx context.Context, basis domain.Basis, bound time.Time) (*domain.BalanceSnapshot, time.Time, error) {
	periods, err := s.PeriodRepo.List(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].End.After(periods[j].End) })
	for _, p := range periods {
		if p.Status != domain.PeriodClosed && p.Status != domain.PeriodLocked {
			continue
		}
		if p.End.After(bound) {
			continue
		}
		snap, err := s.SnapshotRepo.GetByPeriod(ctx, p.ID, basis)
		if err != nil {
			continue
		}
		return snap, p.End, nil
	}
	return nil, time.Time{}, nil
}

func (s *BalanceService) sumEntries(ctx context.Context, tree *domain.AccountTree, leaves []uuid.UUID, from, to *time.Time) (decimal.Decimal, error) {
	if len(leaves) == 0 {
		return decimal.Zero, nil
	}
	txs, err := s.TransactionRepo.List(ctx, domain.TransactionFilter{AccountIDs: leaves, From: from, To: to})
	if err != nil {
		return decimal.Zero, err
	}
	leafSet := make(map[uuid.UUID]bool, len(leaves))
	for _, l := range leaves {
		leafSet[l] = true
	}
	total := decimal.Zero
	for _, tx := range txs {
		for _, e := range tx.Entries {
			if !leafSet[e.AccountID] {
				continue
			}
			total = total.Add(signed(tree.Get(e.AccountID), e))
		}
	}
	return total, nil
}

func (s *BalanceService) tree(ctx context.Context) (*domain.AccountTree, error) {
	accounts, err := s.AccountRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	return domain.NewAccountTree(accounts), nil
}

// signed converts an entry to the account's normal-side sign: entries on
// the normal side increase the balance, the opposite side decreases it.
func signed(account *domain.Account, e domain.Entry) decimal.Decimal {
	if e.Side == account.NormalSide {
		return e.Amount
	}
	return e.Amount.Neg()
}
