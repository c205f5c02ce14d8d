package period

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/config"
	"github.com/coopledger/coopledger/internal/domain"
	"github.com/coopledger/coopledger/internal/metrics"
	"github.com/coopledger/coopledger/internal/usecase/allocation"
	"github.com/coopledger/coopledger/internal/usecase/ledger"
)

// Ledger is the slice of the ledger service the close process posts
// through.
type Ledger interface {
	Post(ctx context.Context, input ledger.PostInput) (*domain.Transaction, error)
}

// Balances is the slice of the balance service the close process derives
// from.
type Balances interface {
	NetIncome(ctx context.Context, periodID uuid.UUID) (decimal.Decimal, error)
	BuildSnapshot(ctx context.Context, period *domain.Period, basis domain.Basis, at time.Time) (*domain.BalanceSnapshot, error)
}

// CloseStatus bundles everything an operator needs to see where a close
// stands.
type CloseStatus struct {
	Period      *domain.Period
	State       *domain.CloseState
	Calculation *domain.AllocationCalculation
}

// PeriodService drives the period lifecycle: opening periods, the
// multi-step close, approval of the allocation it produces, and the
// audited exception paths (reopen, lock, void).
//
// The close runs as a sequence of persisted steps. Each step is idempotent
// for its period, and the last completed step is saved before the next one
// starts, so a crash or cancellation parks the close exactly where it
// stopped and ResumeClose continues from there.
type PeriodService struct {
	PeriodRepo      domain.PeriodRepository
	AccountRepo     domain.AccountRepository
	TransactionRepo domain.TransactionRepository
	SnapshotRepo    domain.SnapshotRepository
	MemberRepo      domain.MemberRepository
	PatronageRepo   domain.PatronageRepository
	CapitalRepo     domain.CapitalRepository
	CalculationRepo domain.CalculationRepository
	AuditRepo       domain.AuditRepository
	Ledger          Ledger
	Balances        Balances
	Policy          *config.Policy
	Publisher       domain.Publisher // optional
	Metrics         metrics.Recorder
	Now             func() time.Time

	// FinalizeHook, when set, runs as part of the finalize step so callers
	// can verify completeness conditions outside the ledger (an external
	// subledger reconciled, an import finished) before the close proceeds.
	FinalizeHook func(ctx context.Context, period *domain.Period) error
}

// NewPeriodService creates a new PeriodService instance.
func NewPeriodService(store domain.Store, ledgerService Ledger, balances Balances, policy *config.Policy) *PeriodService {
	return &PeriodService{
		PeriodRepo:      store.Periods(),
		AccountRepo:     store.Accounts(),
		TransactionRepo: store.Transactions(),
		SnapshotRepo:    store.Snapshots(),
		MemberRepo:      store.Members(),
		PatronageRepo:   store.Patronage(),
		CapitalRepo:     store.Capital(),
		CalculationRepo: store.Calculations(),
		AuditRepo:       store.Audit(),
		Ledger:          ledgerService,
		Balances:        balances,
		Policy:          policy,
		Metrics:         metrics.Nop{},
		Now:             time.Now,
	}
}

// Open creates a new accounting period. Periods may not overlap and names
// must be unique.
func (s *PeriodService) Open(ctx context.Context, name string, start, end time.Time) (*domain.Period, error) {
	period := &domain.Period{
		ID:        uuid.New(),
		Name:      name,
		Start:     start,
		End:       end,
		Status:    domain.PeriodOpen,
		CreatedAt: s.Now(),
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if existing, err := s.PeriodRepo.GetByName(ctx, name); err == nil && existing != nil {
		return nil, fmt.Errorf("period name %s already in use", name)
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	periods, err := s.PeriodRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range periods {
		if start.Before(p.End) && p.Start.Before(end) {
			return nil, fmt.Errorf("period %s overlaps %s", name, p.Name)
		}
	}
	if err := s.PeriodRepo.Create(ctx, period); err != nil {
		return nil, err
	}
	return period, nil
}

// Close starts or resumes the close of a period and runs steps until the
// close completes or parks. It parks with ErrAwaitingApproval once the
// allocation calculation exists and has not been approved yet; Approve
// followed by ResumeClose carries it through.
func (s *PeriodService) Close(ctx context.Context, periodID uuid.UUID) (*domain.CloseState, error) {
	period, err := s.PeriodRepo.GetByID(ctx, periodID)
	if err != nil {
		return nil, err
	}
	switch period.Status {
	case domain.PeriodOpen, domain.PeriodClosing:
	default:
		return nil, fmt.Errorf("period %s is %s and cannot be closed", period.Name, period.Status)
	}

	state, err := s.PeriodRepo.GetCloseState(ctx, periodID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && period.Status == domain.PeriodOpen && state.Step == domain.CloseStepComplete) {
		state = &domain.CloseState{PeriodID: periodID}
	} else if err != nil {
		return nil, err
	}
	return s.run(ctx, period, state)
}

// ResumeClose continues a parked or interrupted close.
func (s *PeriodService) ResumeClose(ctx context.Context, periodID uuid.UUID) (*domain.CloseState, error) {
	return s.Close(ctx, periodID)
}

// Approve marks a pending allocation calculation approved, after
// re-verifying that its stored results still reproduce from its stored
// inputs.
func (s *PeriodService) Approve(ctx context.Context, calculationID uuid.UUID, approver string) (*domain.AllocationCalculation, error) {
	if approver == "" {
		return nil, errors.New("approval requires an approver identity")
	}
	calc, err := s.CalculationRepo.GetByID(ctx, calculationID)
	if err != nil {
		return nil, err
	}
	if calc.Status != domain.CalculationPending {
		return nil, fmt.Errorf("calculation %s is %s, not awaiting approval", calc.ID, calc.Status)
	}
	if err := allocation.Verify(calc); err != nil {
		return nil, err
	}
	now := s.Now()
	calc.Status = domain.CalculationApproved
	calc.ApprovedAt = &now
	calc.ApprovedBy = approver
	if err := s.CalculationRepo.Update(ctx, calc); err != nil {
		return nil, err
	}
	s.audit(ctx, domain.AuditActionApprove, &calc.PeriodID, approver, "calculation "+calc.ID.String())
	return calc, nil
}

// VoidCalculation retires a calculation that must not be applied. When it
// is the one the current close run is parked on, the close rewinds to
// before the allocate step so a resume recomputes from scratch.
func (s *PeriodService) VoidCalculation(ctx context.Context, calculationID uuid.UUID, actor, reason string) error {
	if actor == "" || reason == "" {
		return errors.New("voiding a calculation requires an actor and a reason")
	}
	calc, err := s.CalculationRepo.GetByID(ctx, calculationID)
	if err != nil {
		return err
	}
	if calc.Status == domain.CalculationPosted {
		return fmt.Errorf("calculation %s is already posted; reopen the period instead", calc.ID)
	}
	calc.Status = domain.CalculationVoid
	if err := s.CalculationRepo.Update(ctx, calc); err != nil {
		return err
	}

	state, err := s.PeriodRepo.GetCloseState(ctx, calc.PeriodID)
	if err == nil && state.CalculationID != nil && *state.CalculationID == calc.ID {
		state.Step = domain.CloseStepFinalize
		state.CalculationID = nil
		state.UpdatedAt = s.Now()
		if err := s.PeriodRepo.SaveCloseState(ctx, state); err != nil {
			return err
		}
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	s.audit(ctx, domain.AuditActionVoid, &calc.PeriodID, actor, reason)
	return nil
}

// Reopen returns a closed or locked period to open. The exception path is
// never silent: it requires an actor and a reason, writes an audit record,
// voids the period's snapshots, and resets the close progress so a later
// re-close starts fresh. Posted transactions stay untouched; a re-close
// allocates only what arrived since.
func (s *PeriodService) Reopen(ctx context.Context, periodID uuid.UUID, actor, reason string) (*domain.Period, error) {
	if actor == "" || reason == "" {
		return nil, errors.New("reopening a period requires an actor and a reason")
	}
	period, err := s.PeriodRepo.GetByID(ctx, periodID)
	if err != nil {
		return nil, err
	}
	switch period.Status {
	case domain.PeriodClosed, domain.PeriodLocked:
	default:
		return nil, fmt.Errorf("period %s is %s, not closed", period.Name, period.Status)
	}

	for _, basis := range []domain.Basis{domain.BasisBook, domain.BasisTax} {
		snap, err := s.SnapshotRepo.GetByPeriod(ctx, periodID, basis)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := s.SnapshotRepo.Void(ctx, snap.ID); err != nil {
			return nil, err
		}
	}

	if err := s.PeriodRepo.SaveCloseState(ctx, &domain.CloseState{PeriodID: periodID, UpdatedAt: s.Now()}); err != nil {
		return nil, err
	}

	period.Status = domain.PeriodOpen
	period.ClosedAt = nil
	period.LockedAt = nil
	if err := s.PeriodRepo.Update(ctx, period); err != nil {
		return nil, err
	}

	s.audit(ctx, domain.AuditActionReopen, &periodID, actor, reason)
	s.publish(ctx, domain.Notification{
		Kind:    domain.EventPeriodReopened,
		At:      s.Now(),
		Subject: period.ID.String(),
		Fields:  map[string]string{"period": period.Name, "actor": actor, "reason": reason},
	})
	return period, nil
}

// Lock makes a closed period permanent. Locked periods reject all postings
// and can only be revisited through Reopen.
func (s *PeriodService) Lock(ctx context.Context, periodID uuid.UUID, actor string) (*domain.Period, error) {
	if actor == "" {
		return nil, errors.New("locking a period requires an actor identity")
	}
	period, err := s.PeriodRepo.GetByID(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if period.Status != domain.PeriodClosed {
		return nil, fmt.Errorf("period %s is %s, not closed", period.Name, period.Status)
	}
	now := s.Now()
	period.Status = domain.PeriodLocked
	period.LockedAt = &now
	if err := s.PeriodRepo.Update(ctx, period); err != nil {
		return nil, err
	}
	s.audit(ctx, domain.AuditActionLock, &periodID, actor, "")
	return period, nil
}

// Status reports where a period and its close stand.
func (s *PeriodService) Status(ctx context.Context, periodID uuid.UUID) (*CloseStatus, error) {
	period, err := s.PeriodRepo.GetByID(ctx, periodID)
	if err != nil {
		return nil, err
	}
	status := &CloseStatus{Period: period}
	state, err := s.PeriodRepo.GetCloseState(ctx, periodID)
	if err == nil {
		status.State = state
		if state.CalculationID != nil {
			if calc, err := s.CalculationRepo.GetByID(ctx, *state.CalculationID); err == nil {
				status.Calculation = calc
			}
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return status, nil
}

// run executes close steps in order, persisting the state after each, until
// the sequence completes or a step refuses.
func (s *PeriodService) run(ctx context.Context, period *domain.Period, state *domain.CloseState) (*domain.CloseState, error) {
	for state.Step != domain.CloseStepComplete {
		next := domain.CloseSequence[0]
		if state.Step != "" {
			next = domain.NextCloseStep(state.Step)
		}
		start := s.Now()
		err := s.step(ctx, period, state, next)
		s.Metrics.Observe(ctx, "close."+string(next), err == nil, time.Since(start))
		if err != nil {
			return state, err
		}
		state.Step = next
		state.UpdatedAt = s.Now()
		if err := s.PeriodRepo.SaveCloseState(ctx, state); err != nil {
			return state, err
		}
	}
	return state, nil
}

func (s *PeriodService) step(ctx context.Context, period *domain.Period, state *domain.CloseState, step domain.CloseStep) error {
	switch step {
	case domain.CloseStepCutoff:
		return s.cutoff(ctx, period)
	case domain.CloseStepFinalize:
		return s.finalize(ctx, period)
	case domain.CloseStepNetIncome:
		_, err := s.Balances.NetIncome(ctx, period.ID)
		return err
	case domain.CloseStepAllocate:
		return s.allocate(ctx, period, state)
	case domain.CloseStepPost:
		return s.postAllocations(ctx, period, state)
	case domain.CloseStepSnapshot:
		return s.snapshot(ctx, period)
	case domain.CloseStepComplete:
		return s.complete(ctx, period)
	}
	return fmt.Errorf("unknown close step %s", step)
}

// cutoff moves the period to closing, which stops ordinary postings dated
// inside its window.
func (s *PeriodService) cutoff(ctx context.Context, period *domain.Period) error {
	if period.Status == domain.PeriodClosing {
		return nil
	}
	period.Status = domain.PeriodClosing
	return s.PeriodRepo.Update(ctx, period)
}

// finalize verifies the period is complete enough to close: every account
// the policy declares as a required accrual must carry at least one
// accrual-flagged posting in the period. The optional FinalizeHook runs
// after the accrual gate for completeness checks the engine cannot make
// itself.
func (s *PeriodService) finalize(ctx context.Context, period *domain.Period) error {
	for _, code := range s.Policy.Close.RequiredAccruals {
		account, err := s.AccountRepo.GetByCode(ctx, code)
		if err != nil {
			return fmt.Errorf("required accrual account %s: %w", code, err)
		}
		txs, err := s.TransactionRepo.List(ctx, domain.TransactionFilter{
			PeriodID:   &period.ID,
			AccountIDs: []uuid.UUID{account.ID},
		})
		if err != nil {
			return err
		}
		found := false
		for _, tx := range txs {
			if tx.Accrual {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required accrual %s has no accrual posting in period %s", code, period.Name)
		}
	}
	if s.FinalizeHook != nil {
		if err := s.FinalizeHook(ctx, period); err != nil {
			return fmt.Errorf("finalize check for period %s: %w", period.Name, err)
		}
	}
	return nil
}

// allocate computes the allocation calculation and stores it pending
// approval. Non-positive net income means there is nothing to allocate and
// the step completes without a calculation.
func (s *PeriodService) allocate(ctx context.Context, period *domain.Period, state *domain.CloseState) error {
	if state.CalculationID != nil {
		calc, err := s.CalculationRepo.GetByID(ctx, *state.CalculationID)
		if err != nil {
			return err
		}
		if calc.Status != domain.CalculationVoid {
			return nil
		}
		state.CalculationID = nil
	}

	netIncome, err := s.Balances.NetIncome(ctx, period.ID)
	if err != nil {
		return err
	}
	if netIncome.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	totals, err := s.PatronageRepo.Totals(ctx, period.ID)
	if err != nil {
		return err
	}
	members, err := s.MemberRepo.List(ctx)
	if err != nil {
		return err
	}
	var memberIDs []uuid.UUID
	for _, m := range members {
		if m.Active {
			memberIDs = append(memberIDs, m.ID)
		}
	}

	outcome, err := allocation.Compute(allocation.Input{
		NetIncome:       netIncome,
		Formula:         s.Policy.Allocation.Formula,
		Totals:          totals,
		Members:         memberIDs,
		MinContribution: s.Policy.Allocation.MinContribution,
		MaxShare:        s.Policy.Allocation.MaxSharePct,
	})
	if err != nil {
		return fmt.Errorf("allocating period %s: %w", period.Name, err)
	}

	// A recomputation after a void or a reopen links back to the
	// calculation it replaces.
	var supersedes *uuid.UUID
	prior, err := s.CalculationRepo.ListByPeriod(ctx, period.ID)
	if err != nil {
		return err
	}
	if len(prior) > 0 {
		supersedes = &prior[0].ID
	}

	calc := &domain.AllocationCalculation{
		ID:              uuid.New(),
		PeriodID:        period.ID,
		Formula:         s.Policy.Allocation.Formula,
		NetIncome:       netIncome,
		MinContribution: s.Policy.Allocation.MinContribution,
		MaxShare:        s.Policy.Allocation.MaxSharePct,
		Inputs:          totals,
		Results:         outcome.Results,
		Residual:        outcome.Residual,
		SupersedesID:    supersedes,
		Status:          domain.CalculationPending,
		CreatedAt:       s.Now(),
	}
	if err := s.CalculationRepo.Save(ctx, calc); err != nil {
		return err
	}
	state.CalculationID = &calc.ID

	s.publish(ctx, domain.Notification{
		Kind:    domain.EventAllocationProposed,
		At:      calc.CreatedAt,
		Subject: calc.ID.String(),
		Fields: map[string]string{
			"period":     period.Name,
			"net_income": netIncome.String(),
			"members":    fmt.Sprintf("%d", len(calc.Results)),
		},
	})
	return nil
}

// postAllocations posts the closing entries that zero revenue and expense
// into the net income summary, then applies the approved calculation to the
// members' capital in both basis worlds. The allocation transactions are
// keyed by the calculation id, so a resumed run never posts them twice,
// and closing entries are self-limiting: once swept, the amounts they
// would move are zero.
func (s *PeriodService) postAllocations(ctx context.Context, period *domain.Period, state *domain.CloseState) error {
	var calc *domain.AllocationCalculation
	if state.CalculationID != nil {
		var err error
		calc, err = s.CalculationRepo.GetByID(ctx, *state.CalculationID)
		if err != nil {
			return err
		}
		switch calc.Status {
		case domain.CalculationPending:
			return fmt.Errorf("%w: calculation %s", domain.ErrAwaitingApproval, calc.ID)
		case domain.CalculationApproved, domain.CalculationPosted:
		default:
			return fmt.Errorf("calculation %s is %s and cannot be applied", calc.ID, calc.Status)
		}
	}

	if err := s.postClosingEntries(ctx, period); err != nil {
		return err
	}

	if calc != nil && calc.Status == domain.CalculationApproved {
		if err := s.postCalculation(ctx, period, calc); err != nil {
			return err
		}
		now := s.Now()
		calc.Status = domain.CalculationPosted
		calc.PostedAt = &now
		if err := s.CalculationRepo.Update(ctx, calc); err != nil {
			return err
		}
		s.publish(ctx, domain.Notification{
			Kind:    domain.EventAllocationPosted,
			At:      now,
			Subject: calc.ID.String(),
			Fields:  map[string]string{"period": period.Name, "allocated": calc.Allocated().String()},
		})
	}
	return nil
}

// postClosingEntries sweeps every book revenue and expense leaf with a
// remaining period balance into the net income summary account.
func (s *PeriodService) postClosingEntries(ctx context.Context, period *domain.Period) error {
	accounts, err := s.AccountRepo.List(ctx)
	if err != nil {
		return err
	}
	tree := domain.NewAccountTree(accounts)

	book := domain.BasisBook
	txs, err := s.TransactionRepo.List(ctx, domain.TransactionFilter{PeriodID: &period.ID, Basis: &book})
	if err != nil {
		return err
	}

	remaining := make(map[uuid.UUID]decimal.Decimal)
	for _, tx := range txs {
		for _, e := range tx.Entries {
			account := tree.Get(e.AccountID)
			if account == nil {
				continue
			}
			if account.Type != domain.AccountTypeRevenue && account.Type != domain.AccountTypeExpense {
				continue
			}
			v := e.Amount
			if e.Side != account.NormalSide {
				v = v.Neg()
			}
			remaining[e.AccountID] = remaining[e.AccountID].Add(v)
		}
	}

	summary, err := s.AccountRepo.GetByCode(ctx, domain.CodeNetIncomeSummary)
	if err != nil {
		return fmt.Errorf("net income summary account: %w", err)
	}

	var entries []ledger.EntryInput
	netIncome := decimal.Zero
	for _, account := range tree.All() {
		v, ok := remaining[account.ID]
		if !ok || v.IsZero() {
			continue
		}
		// Zeroing a balance means posting its full amount on the side
		// opposite the one it accumulated on.
		side := domain.SideCredit
		if account.NormalSide == domain.SideCredit {
			side = domain.SideDebit
		}
		if v.IsNegative() {
			v = v.Neg()
			if side == domain.SideDebit {
				side = domain.SideCredit
			} else {
				side = domain.SideDebit
			}
		}
		entries = append(entries, ledger.EntryInput{AccountID: account.ID, Side: side, Amount: v})
		if account.Type == domain.AccountTypeRevenue {
			netIncome = netIncome.Add(remaining[account.ID])
		} else {
			netIncome = netIncome.Sub(remaining[account.ID])
		}
	}
	if len(entries) == 0 {
		return nil
	}
	if !netIncome.IsZero() {
		side := domain.SideCredit
		if netIncome.IsNegative() {
			side = domain.SideDebit
		}
		entries = append(entries, ledger.EntryInput{AccountID: summary.ID, Side: side, Amount: netIncome.Abs()})
	}

	_, err = s.Ledger.Post(ctx, ledger.PostInput{
		Date:    period.End.Add(-time.Nanosecond),
		Type:    domain.TransactionTypeClosing,
		Memo:    "closing entries " + period.Name,
		Entries: entries,
	})
	return err
}

// postCalculation credits each member's capital with its allocation, once
// per basis world. The book side draws the allocated income out of the net
// income summary; the tax side mirrors against the tax basis control.
func (s *PeriodService) postCalculation(ctx context.Context, period *domain.Period, calc *domain.AllocationCalculation) error {
	eventID := "alloc:" + calc.ID.String()

	summary, err := s.AccountRepo.GetByCode(ctx, domain.CodeNetIncomeSummary)
	if err != nil {
		return fmt.Errorf("net income summary account: %w", err)
	}
	control, err := s.AccountRepo.GetByCode(ctx, domain.CodeTaxBasisControl)
	if err != nil {
		return fmt.Errorf("tax basis control account: %w", err)
	}

	bookEntries := []ledger.EntryInput{{AccountID: summary.ID, Side: domain.SideDebit, Amount: calc.Allocated()}}
	taxEntries := []ledger.EntryInput{{AccountID: control.ID, Side: domain.SideDebit, Amount: calc.Allocated()}}
	for _, r := range calc.Results {
		if r.Amount.IsZero() {
			continue
		}
		pair, err := s.CapitalRepo.GetPair(ctx, r.MemberID)
		if err != nil {
			return fmt.Errorf("allocated member %s capital pair: %w", r.MemberID, err)
		}
		bookEntries = append(bookEntries, ledger.EntryInput{AccountID: pair.BookAccountID, Side: domain.SideCredit, Amount: r.Amount})
		taxEntries = append(taxEntries, ledger.EntryInput{AccountID: pair.TaxAccountID, Side: domain.SideCredit, Amount: r.Amount})
	}

	date := period.End.Add(-time.Nanosecond)
	memo := "patronage allocation " + period.Name
	if err := s.postOnce(ctx, eventID, domain.BasisBook, ledger.PostInput{
		Date: date, Type: domain.TransactionTypeAllocation, EventID: eventID, Memo: memo, Entries: bookEntries,
	}); err != nil {
		return err
	}
	return s.postOnce(ctx, eventID, domain.BasisTax, ledger.PostInput{
		Date: date, Type: domain.TransactionTypeAllocation, EventID: eventID, Memo: memo, Entries: taxEntries,
	})
}

// snapshot freezes the closing balances of both basis worlds. An existing
// non-void snapshot for a world is kept, which makes a resumed run skip
// what it already captured.
func (s *PeriodService) snapshot(ctx context.Context, period *domain.Period) error {
	for _, basis := range []domain.Basis{domain.BasisBook, domain.BasisTax} {
		if _, err := s.SnapshotRepo.GetByPeriod(ctx, period.ID, basis); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		snap, err := s.Balances.BuildSnapshot(ctx, period, basis, s.Now())
		if err != nil {
			return err
		}
		if err := s.SnapshotRepo.Save(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// complete marks the period closed and, when the policy asks for it, opens
// the successor period.
func (s *PeriodService) complete(ctx context.Context, period *domain.Period) error {
	if period.Status != domain.PeriodClosed {
		now := s.Now()
		period.Status = domain.PeriodClosed
		period.ClosedAt = &now
		if err := s.PeriodRepo.Update(ctx, period); err != nil {
			return err
		}
		s.publish(ctx, domain.Notification{
			Kind:    domain.EventPeriodClosed,
			At:      now,
			Subject: period.ID.String(),
			Fields:  map[string]string{"period": period.Name},
		})
	}

	if !s.Policy.Close.AutoOpenNext {
		return nil
	}
	if _, err := s.PeriodRepo.GetAt(ctx, period.End); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	start := period.End
	end, name := successorWindow(start, s.Policy.Close.Cadence)
	_, err := s.Open(ctx, name, start, end)
	return err
}

// successorWindow derives the next period's end and name from the cadence.
func successorWindow(start time.Time, cadence string) (time.Time, string) {
	switch cadence {
	case "monthly":
		return start.AddDate(0, 1, 0), start.Format("2006-01")
	case "quarterly":
		quarter := (int(start.Month())-1)/3 + 1
		return start.AddDate(0, 3, 0), fmt.Sprintf("%d-Q%d", start.Year(), quarter)
	default:
		return start.AddDate(1, 0, 0), fmt.Sprintf("FY%d", start.Year())
	}
}

// postOnce posts unless a transaction for the event already exists in the
// target basis world.
func (s *PeriodService) postOnce(ctx context.Context, eventID string, basis domain.Basis, input ledger.PostInput) error {
	existing, err := s.TransactionRepo.GetByEventID(ctx, eventID, basis)
	if err == nil && existing != nil {
		return nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	_, err = s.Ledger.Post(ctx, input)
	return err
}

func (s *PeriodService) audit(ctx context.Context, action string, periodID *uuid.UUID, actor, reason string) {
	_ = s.AuditRepo.Record(ctx, &domain.AuditRecord{
		ID:       uuid.New(),
		Action:   action,
		PeriodID: periodID,
		Actor:    actor,
		Reason:   reason,
		At:       s.Now(),
	})
}

func (s *PeriodService) publish(ctx context.Context, n domain.Notification) {
	if s.Publisher == nil {
		return
	}
	_ = s.Publisher.Publish(ctx, n)
}
