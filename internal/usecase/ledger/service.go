package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/domain"
	"github.com/coopledger/coopledger/internal/logging"
	"github.com/coopledger/coopledger/internal/metrics"
)

// ConsistencyChecker verifies the accounting equation for one basis world.
// The balance service implements it; it is injected here to keep the
// dependency one-directional.
type ConsistencyChecker interface {
	Check(ctx context.Context, basis domain.Basis) error
}

// BalanceReader derives one account's balance. The balance service
// implements it; injected so capital update notifications carry the
// balance after the append.
type BalanceReader interface {
	Balance(ctx context.Context, accountID uuid.UUID, asOf time.Time) (decimal.Decimal, error)
}

// EntryInput is one leg of a posting request.
type EntryInput struct {
	AccountID uuid.UUID
	Side      domain.EntrySide
	Amount    decimal.Decimal
}

// PostInput represents the input for posting a transaction. Accrual marks
// a cutoff adjustment that may still post while its period is closing.
type PostInput struct {
	Date     time.Time
	Type     domain.TransactionType
	MemberID *uuid.UUID
	EventID  string
	Accrual  bool
	Memo     string
	Entries  []EntryInput
}

// CreateAccountInput represents the input for creating an account.
type CreateAccountInput struct {
	Code     string
	Name     string
	Type     domain.AccountType
	ParentID *uuid.UUID
	MemberID *uuid.UUID
	Basis    domain.Basis
}

// LedgerService owns the append-only transaction log and the chart of
// accounts: all postings, reversals, and account maintenance go through it.
type LedgerService struct {
	AccountRepo     domain.AccountRepository
	TransactionRepo domain.TransactionRepository
	PeriodRepo      domain.PeriodRepository
	FaultRepo       domain.FaultRepository
	Checker         ConsistencyChecker // optional
	Balances        BalanceReader      // optional
	Publisher       domain.Publisher   // optional
	Metrics         metrics.Recorder
	Now             func() time.Time
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(
	accountRepo domain.AccountRepository,
	transactionRepo domain.TransactionRepository,
	periodRepo domain.PeriodRepository,
	faultRepo domain.FaultRepository,
) *LedgerService {
	return &LedgerService{
		AccountRepo:     accountRepo,
		TransactionRepo: transactionRepo,
		PeriodRepo:      periodRepo,
		FaultRepo:       faultRepo,
		Metrics:         metrics.Nop{},
		Now:             time.Now,
	}
}

// CreateAccount adds an account to the chart. The parent, when given, must
// exist, share the account type, and must not have received direct postings
// already, since an account with children stops being postable.
func (s *LedgerService) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	account := &domain.Account{
		ID:         uuid.New(),
		Code:       input.Code,
		Name:       input.Name,
		Type:       input.Type,
		NormalSide: domain.NormalSideFor(input.Type),
		ParentID:   input.ParentID,
		MemberID:   input.MemberID,
		Basis:      input.Basis,
		Active:     true,
		CreatedAt:  s.Now(),
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.AccountRepo.GetByCode(ctx, input.Code); err == nil && existing != nil {
		return nil, fmt.Errorf("account code %s already in use", input.Code)
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if input.ParentID != nil {
		parent, err := s.AccountRepo.GetByID(ctx, *input.ParentID)
		if err != nil {
			return nil, fmt.Errorf("parent account: %w", err)
		}
		if parent.Type != input.Type {
			return nil, errors.New("account type must match its parent")
		}
		posted, err := s.TransactionRepo.List(ctx, domain.TransactionFilter{
			AccountIDs: []uuid.UUID{parent.ID},
			Limit:      1,
		})
		if err != nil {
			return nil, err
		}
		if len(posted) > 0 {
			return nil, errors.New("parent account already has direct postings")
		}
	}

	if err := s.AccountRepo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// DeactivateAccount stops an account from receiving further postings. Its
// history and balance remain.
func (s *LedgerService) DeactivateAccount(ctx context.Context, id uuid.UUID) error {
	account, err := s.AccountRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !account.Active {
		return nil
	}
	account.Active = false
	return s.AccountRepo.Update(ctx, account)
}

// Post validates and appends one transaction.
// Logic:
//  1. Structural validation: balanced, positive, within ledger precision
//  2. Account validation: all entries hit active leaf accounts of a single
//     basis world
//  3. The effective date must fall in an open period
//  4. The target basis world must not be halted by an unresolved fault
//  5. Append with the next sequence number, then re-check the accounting
//     equation for the affected world
//
// When the post-commit check fails the transaction stays committed, a fault
// is recorded, and the world refuses further postings. The posted
// transaction is returned together with the consistency error.
func (s *LedgerService) Post(ctx context.Context, input PostInput) (*domain.Transaction, error) {
	tx := &domain.Transaction{
		ID:       uuid.New(),
		Date:     input.Date,
		Type:     input.Type,
		MemberID: input.MemberID,
		EventID:  input.EventID,
		Accrual:  input.Accrual,
		Memo:     input.Memo,
		Entries:  make([]domain.Entry, len(input.Entries)),
	}
	if tx.Type == "" {
		tx.Type = domain.TransactionTypeGeneral
	}
	for i, e := range input.Entries {
		tx.Entries[i] = domain.Entry{AccountID: e.AccountID, Side: e.Side, Amount: e.Amount}
	}
	return s.post(ctx, tx)
}

// Reverse posts the offsetting transaction for a posted transaction. The
// reversal lands in the period containing its own date, so closed-period
// corrections post into the current open period.
func (s *LedgerService) Reverse(ctx context.Context, id uuid.UUID, memo string) (*domain.Transaction, error) {
	original, err := s.TransactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing, err := s.TransactionRepo.List(ctx, domain.TransactionFilter{ReversalOf: &id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("transaction %s already reversed by %s", id, existing[0].ID)
	}

	rev := original.Reversal(uuid.New(), s.Now(), memo)
	return s.post(ctx, rev)
}

// Get retrieves a transaction by its ID.
func (s *LedgerService) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.TransactionRepo.GetByID(ctx, id)
}

// List retrieves transactions matching the filter, in sequence order.
func (s *LedgerService) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	return s.TransactionRepo.List(ctx, filter)
}

// Accounts retrieves the full chart of accounts.
func (s *LedgerService) Accounts(ctx context.Context) ([]*domain.Account, error) {
	return s.AccountRepo.List(ctx)
}

func (s *LedgerService) post(ctx context.Context, tx *domain.Transaction) (posted *domain.Transaction, err error) {
	start := s.Now()
	defer func() { s.Metrics.Observe(ctx, "ledger.post", err == nil, time.Since(start)) }()

	if err := tx.Validate(); err != nil {
		return nil, err
	}

	accounts, err := s.AccountRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	tree := domain.NewAccountTree(accounts)

	basis := domain.Basis("")
	for _, e := range tx.Entries {
		account := tree.Get(e.AccountID)
		if account == nil {
			return nil, fmt.Errorf("account %s: %w", e.AccountID, domain.ErrNotFound)
		}
		if !account.Active {
			return nil, fmt.Errorf("account %s: %w", account.Code, domain.ErrInactiveAccount)
		}
		if tree.HasChildren(account.ID) {
			return nil, fmt.Errorf("account %s: %w", account.Code, domain.ErrNonLeafAccount)
		}
		world := account.BalanceWorld()
		if basis == "" {
			basis = world
		} else if basis != world {
			return nil, domain.ErrBasisMixed
		}
	}
	tx.Basis = basis

	period, err := s.PeriodRepo.GetAt(ctx, tx.Date)
	if err != nil {
		return nil, fmt.Errorf("no period contains %s: %w", tx.Date.Format("2006-01-02"), err)
	}
	switch period.Status {
	case domain.PeriodOpen:
	case domain.PeriodClosing:
		// After cutoff only the close process itself and flagged accrual
		// adjustments may post.
		if tx.Type != domain.TransactionTypeClosing && tx.Type != domain.TransactionTypeAllocation && !tx.Accrual {
			return nil, fmt.Errorf("period %s is past cutoff: %w", period.Name, domain.ErrPeriodClosed)
		}
	case domain.PeriodLocked:
		return nil, fmt.Errorf("period %s: %w", period.Name, domain.ErrPeriodLocked)
	default:
		return nil, fmt.Errorf("period %s: %w", period.Name, domain.ErrPeriodClosed)
	}
	tx.PeriodID = period.ID

	open, err := s.FaultRepo.Open(ctx, basis)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, fmt.Errorf("%w: fault %s", domain.ErrHalted, open[0].ID)
	}

	tx.PostedAt = s.Now()
	if err := s.TransactionRepo.Post(ctx, tx); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.Notification{
		Kind:    domain.EventTransactionPosted,
		At:      tx.PostedAt,
		Subject: tx.ID.String(),
		Fields:  map[string]string{"type": string(tx.Type), "basis": string(tx.Basis), "total": tx.Total().String()},
	})

	if s.Checker != nil {
		checkStart := s.Now()
		checkErr := s.Checker.Check(ctx, basis)
		s.Metrics.Observe(ctx, "ledger.check", checkErr == nil, time.Since(checkStart))
		if checkErr != nil {
			fault := &domain.ConsistencyFault{
				ID:         uuid.New(),
				Basis:      basis,
				Detail:     checkErr.Error(),
				Seq:        tx.Seq,
				DetectedAt: s.Now(),
			}
			if err := s.FaultRepo.Save(ctx, fault); err != nil {
				return tx, fmt.Errorf("recording consistency fault: %w", err)
			}
			s.publish(ctx, domain.Notification{
				Kind:    domain.EventFaultDetected,
				At:      fault.DetectedAt,
				Subject: fault.ID.String(),
				Fields:  map[string]string{"basis": string(basis), "detail": fault.Detail},
			})
			return tx, fmt.Errorf("%w: %s", domain.ErrConsistency, checkErr)
		}
	}

	s.publishCapitalUpdates(ctx, tree, tx)
	return tx, nil
}

// publishCapitalUpdates emits one capital.updated notification per member
// capital account the transaction touched, carrying the balance derived
// after the append. Runs only once the consistency check has passed.
func (s *LedgerService) publishCapitalUpdates(ctx context.Context, tree *domain.AccountTree, tx *domain.Transaction) {
	if s.Publisher == nil || s.Balances == nil {
		return
	}
	seen := make(map[uuid.UUID]bool)
	for _, e := range tx.Entries {
		account := tree.Get(e.AccountID)
		if account == nil || account.MemberID == nil || seen[account.ID] {
			continue
		}
		seen[account.ID] = true
		balance, err := s.Balances.Balance(ctx, account.ID, time.Time{})
		if err != nil {
			logging.FromContext(ctx).Warn("capital update notification skipped",
				"account", account.Code, "error", err)
			continue
		}
		s.publish(ctx, domain.Notification{
			Kind:    domain.EventCapitalUpdated,
			At:      tx.PostedAt,
			Subject: account.MemberID.String(),
			Fields: map[string]string{
				"basis":   string(account.BalanceWorld()),
				"account": account.Code,
				"balance": balance.String(),
			},
		})
	}
}

// ResolveFault clears a consistency fault after the underlying cause has
// been corrected, re-opening the basis world for postings.
func (s *LedgerService) ResolveFault(ctx context.Context, id uuid.UUID, by, note string) error {
	if by == "" {
		return errors.New("fault resolution requires a resolver identity")
	}
	now := s.Now()
	if err := s.FaultRepo.Resolve(ctx, id, by, note, now); err != nil {
		return err
	}
	s.publish(ctx, domain.Notification{
		Kind:    domain.EventFaultResolved,
		At:      now,
		Subject: id.String(),
		Fields:  map[string]string{"by": by},
	})
	return nil
}

func (s *LedgerService) publish(ctx context.Context, n domain.Notification) {
	if s.Publisher == nil {
		return
	}
	_ = s.Publisher.Publish(ctx, n)
}
