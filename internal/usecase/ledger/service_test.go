package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/adapter/publisher"
	"github.com/coopledger/coopledger/internal/adapter/repository/memory"
	"github.com/coopledger/coopledger/internal/domain"
	"github.com/coopledger/coopledger/internal/usecase/balance"
	"github.com/coopledger/coopledger/internal/usecase/seeder"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixedNow() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

type fixture struct {
	store  *memory.Store
	svc    *LedgerService
	bal    *balance.BalanceService
	period *domain.Period
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, seeder.NewChartSeeder(store.Accounts()).Seed(ctx))

	svc := NewLedgerService(store.Accounts(), store.Transactions(), store.Periods(), store.Faults())
	svc.Now = fixedNow
	bal := balance.NewBalanceService(store.Accounts(), store.Transactions(), store.Periods(), store.Snapshots())
	svc.Checker = bal

	period := &domain.Period{
		ID:        uuid.New(),
		Name:      "FY2025",
		Start:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:    domain.PeriodOpen,
		CreatedAt: fixedNow(),
	}
	require.NoError(t, store.Periods().Create(ctx, period))
	return &fixture{store: store, svc: svc, bal: bal, period: period}
}

func (f *fixture) account(t *testing.T, code string) *domain.Account {
	t.Helper()
	account, err := f.store.Accounts().GetByCode(context.Background(), code)
	require.NoError(t, err)
	return account
}

// revenueInput is a plain cash sale: debit cash, credit member revenue.
func (f *fixture) revenueInput(t *testing.T, amount string) PostInput {
	t.Helper()
	return PostInput{
		Date: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		Memo: "cash sale",
		Entries: []EntryInput{
			{AccountID: f.account(t, domain.CodeCash).ID, Side: domain.SideDebit, Amount: dec(amount)},
			{AccountID: f.account(t, domain.CodeMemberRevenue).ID, Side: domain.SideCredit, Amount: dec(amount)},
		},
	}
}

func (f *fixture) setPeriodStatus(t *testing.T, status domain.PeriodStatus) {
	t.Helper()
	ctx := context.Background()
	period, err := f.store.Periods().GetByID(ctx, f.period.ID)
	require.NoError(t, err)
	period.Status = status
	require.NoError(t, f.store.Periods().Update(ctx, period))
}

func TestPost_AssignsSequenceAndPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx1, err := f.svc.Post(ctx, f.revenueInput(t, "100"))
	require.NoError(t, err)
	tx2, err := f.svc.Post(ctx, f.revenueInput(t, "50"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), tx1.Seq)
	assert.Equal(t, uint64(2), tx2.Seq)
	assert.Equal(t, f.period.ID, tx1.PeriodID)
	assert.Equal(t, domain.BasisBook, tx1.Basis)
	assert.Equal(t, domain.TransactionTypeGeneral, tx1.Type, "untyped postings default to general")
	assert.Equal(t, fixedNow(), tx1.PostedAt)

	cash, err := f.bal.Balance(ctx, f.account(t, domain.CodeCash).ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, cash.Equal(dec("150")), "cash should hold both postings, got %s", cash)
}

func TestPost_UnbalancedRejected(t *testing.T) {
	f := newFixture(t)
	input := f.revenueInput(t, "100")
	input.Entries[1].Amount = dec("90")

	_, err := f.svc.Post(context.Background(), input)
	assert.ErrorIs(t, err, domain.ErrUnbalanced)
}

func TestPost_MixedBasisRejected(t *testing.T) {
	f := newFixture(t)
	input := PostInput{
		Date: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		Entries: []EntryInput{
			{AccountID: f.account(t, domain.CodeCash).ID, Side: domain.SideDebit, Amount: dec("100")},
			{AccountID: f.account(t, domain.CodeTaxCapital).ID, Side: domain.SideCredit, Amount: dec("100")},
		},
	}
	_, err := f.svc.Post(context.Background(), input)
	assert.ErrorIs(t, err, domain.ErrBasisMixed)
}

func TestPost_ParentAccountRejected(t *testing.T) {
	f := newFixture(t)
	input := f.revenueInput(t, "100")
	input.Entries[0].AccountID = f.account(t, domain.CodeAssets).ID

	_, err := f.svc.Post(context.Background(), input)
	assert.ErrorIs(t, err, domain.ErrNonLeafAccount)
}

func TestPost_InactiveAccountRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cash := f.account(t, domain.CodeCash)
	require.NoError(t, f.svc.DeactivateAccount(ctx, cash.ID))

	_, err := f.svc.Post(ctx, f.revenueInput(t, "100"))
	assert.ErrorIs(t, err, domain.ErrInactiveAccount)
}

func TestPost_UnknownAccountRejected(t *testing.T) {
	f := newFixture(t)
	input := f.revenueInput(t, "100")
	input.Entries[0].AccountID = uuid.New()

	_, err := f.svc.Post(context.Background(), input)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPost_DateOutsideAnyPeriodRejected(t *testing.T) {
	f := newFixture(t)
	input := f.revenueInput(t, "100")
	input.Date = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.Post(context.Background(), input)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPost_CutoffAllowsOnlyAccrualAdjustments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setPeriodStatus(t, domain.PeriodClosing)

	_, err := f.svc.Post(ctx, f.revenueInput(t, "100"))
	assert.ErrorIs(t, err, domain.ErrPeriodClosed, "ordinary postings stop at cutoff")

	accrual := f.revenueInput(t, "100")
	accrual.Accrual = true
	tx, err := f.svc.Post(ctx, accrual)
	require.NoError(t, err, "flagged accrual adjustments still post")
	assert.True(t, tx.Accrual)
}

func TestPost_LockedPeriodRejected(t *testing.T) {
	f := newFixture(t)
	f.setPeriodStatus(t, domain.PeriodLocked)

	accrual := f.revenueInput(t, "100")
	accrual.Accrual = true
	_, err := f.svc.Post(context.Background(), accrual)
	assert.ErrorIs(t, err, domain.ErrPeriodLocked, "locked periods reject even accruals")
}

func TestPost_DuplicateEventRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := f.revenueInput(t, "100")
	input.EventID = "evt-001"

	_, err := f.svc.Post(ctx, input)
	require.NoError(t, err)
	_, err = f.svc.Post(ctx, input)
	assert.ErrorIs(t, err, domain.ErrDuplicateEvent)
}

func TestPost_PublishesNotification(t *testing.T) {
	f := newFixture(t)
	events := publisher.NewMemory()
	f.svc.Publisher = events

	_, err := f.svc.Post(context.Background(), f.revenueInput(t, "100"))
	require.NoError(t, err)
	assert.Equal(t, []string{domain.EventTransactionPosted}, events.Kinds())
}

func TestPost_PublishesCapitalUpdateForMemberAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	events := publisher.NewMemory()
	f.svc.Publisher = events
	f.svc.Balances = f.bal

	memberID := uuid.New()
	parent := f.account(t, domain.CodeMembersEquity)
	capital, err := f.svc.CreateAccount(ctx, CreateAccountInput{
		Code:     domain.BookCapitalCode("M001"),
		Name:     "Ada book capital",
		Type:     domain.AccountTypeEquity,
		ParentID: &parent.ID,
		MemberID: &memberID,
		Basis:    domain.BasisBook,
	})
	require.NoError(t, err)

	_, err = f.svc.Post(ctx, PostInput{
		Date: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		Type: domain.TransactionTypeContribution,
		Entries: []EntryInput{
			{AccountID: f.account(t, domain.CodeCash).ID, Side: domain.SideDebit, Amount: dec("250")},
			{AccountID: capital.ID, Side: domain.SideCredit, Amount: dec("250")},
		},
	})
	require.NoError(t, err)

	require.Equal(t, []string{domain.EventTransactionPosted, domain.EventCapitalUpdated}, events.Kinds())
	update := events.Notifications()[1]
	assert.Equal(t, memberID.String(), update.Subject)
	assert.Equal(t, string(domain.BasisBook), update.Fields["basis"])
	assert.Equal(t, capital.Code, update.Fields["account"])
	assert.Equal(t, "250", update.Fields["balance"])

	// A posting that touches no member account emits no capital update.
	_, err = f.svc.Post(ctx, f.revenueInput(t, "100"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		domain.EventTransactionPosted, domain.EventCapitalUpdated, domain.EventTransactionPosted,
	}, events.Kinds())
}

type stubChecker struct{ err error }

func (c *stubChecker) Check(context.Context, domain.Basis) error { return c.err }

func TestPost_ConsistencyFaultHaltsWorld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	events := publisher.NewMemory()
	f.svc.Publisher = events

	chk := &stubChecker{err: domain.ErrConsistency}
	f.svc.Checker = chk

	tx, err := f.svc.Post(ctx, f.revenueInput(t, "100"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConsistency)
	require.NotNil(t, tx, "the transaction stays committed; only the world halts")
	assert.NotZero(t, tx.Seq)

	faults, err := f.store.Faults().Open(ctx, domain.BasisBook)
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, tx.Seq, faults[0].Seq, "the fault pins the sequence that tripped the check")

	// The halt is per world: book refuses, tax still posts.
	chk.err = nil
	_, err = f.svc.Post(ctx, f.revenueInput(t, "50"))
	assert.ErrorIs(t, err, domain.ErrHalted)

	taxInput := PostInput{
		Date: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		Entries: []EntryInput{
			{AccountID: f.account(t, domain.CodeTaxBasisControl).ID, Side: domain.SideDebit, Amount: dec("10")},
			{AccountID: f.account(t, domain.CodeTaxCapital).ID, Side: domain.SideCredit, Amount: dec("10")},
		},
	}
	_, err = f.svc.Post(ctx, taxInput)
	require.NoError(t, err, "the tax world is unaffected by a book fault")

	require.NoError(t, f.svc.ResolveFault(ctx, faults[0].ID, "auditor", "entries replayed clean"))
	_, err = f.svc.Post(ctx, f.revenueInput(t, "50"))
	require.NoError(t, err, "resolving the fault reopens the world")

	assert.Equal(t, []string{
		domain.EventTransactionPosted,
		domain.EventFaultDetected,
		domain.EventTransactionPosted,
		domain.EventFaultResolved,
		domain.EventTransactionPosted,
	}, events.Kinds())
}

func TestResolveFault_RequiresResolver(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ResolveFault(context.Background(), uuid.New(), "", "note")
	assert.Error(t, err)
}

func TestReverse_PostsOffsetExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	original, err := f.svc.Post(ctx, f.revenueInput(t, "100"))
	require.NoError(t, err)

	rev, err := f.svc.Reverse(ctx, original.ID, "entered twice")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeReversal, rev.Type)
	require.NotNil(t, rev.ReversalOf)
	assert.Equal(t, original.ID, *rev.ReversalOf)
	require.Len(t, rev.Entries, 2)
	assert.Equal(t, domain.SideCredit, rev.Entries[0].Side, "sides flip, amounts stay")
	assert.True(t, rev.Entries[0].Amount.Equal(dec("100")))

	cash, err := f.bal.Balance(ctx, f.account(t, domain.CodeCash).ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, cash.IsZero(), "reversal nets the original to zero, got %s", cash)

	_, err = f.svc.Reverse(ctx, original.ID, "again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already reversed")
}

func TestReverse_ClosedPeriodCorrectionLandsInOpenPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prior := &domain.Period{
		ID:        uuid.New(),
		Name:      "FY2024",
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:    domain.PeriodOpen,
		CreatedAt: fixedNow(),
	}
	require.NoError(t, f.store.Periods().Create(ctx, prior))

	input := f.revenueInput(t, "100")
	input.Date = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	original, err := f.svc.Post(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, prior.ID, original.PeriodID)

	prior.Status = domain.PeriodClosed
	require.NoError(t, f.store.Periods().Update(ctx, prior))

	rev, err := f.svc.Reverse(ctx, original.ID, "wrong member")
	require.NoError(t, err)
	assert.Equal(t, f.period.ID, rev.PeriodID, "the correction posts into the current open period")
	assert.Equal(t, fixedNow(), rev.Date)
}

func TestCreateAccount_EnforcesChartRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assets := f.account(t, domain.CodeAssets)

	created, err := f.svc.CreateAccount(ctx, CreateAccountInput{
		Code:     "1030",
		Name:     "Inventory",
		Type:     domain.AccountTypeAsset,
		ParentID: &assets.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SideDebit, created.NormalSide)
	assert.True(t, created.Active)

	_, err = f.svc.CreateAccount(ctx, CreateAccountInput{Code: "1030", Name: "Dup", Type: domain.AccountTypeAsset})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in use")

	_, err = f.svc.CreateAccount(ctx, CreateAccountInput{
		Code:     "1040",
		Name:     "Mismatched",
		Type:     domain.AccountTypeExpense,
		ParentID: &assets.ID,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must match its parent")
}

func TestCreateAccount_PostedParentRejectsChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Post(ctx, f.revenueInput(t, "100"))
	require.NoError(t, err)

	cash := f.account(t, domain.CodeCash)
	_, err = f.svc.CreateAccount(ctx, CreateAccountInput{
		Code:     "1011",
		Name:     "Petty Cash",
		Type:     domain.AccountTypeAsset,
		ParentID: &cash.ID,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direct postings")
}

func TestDeactivateAccount_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cash := f.account(t, domain.CodeCash)

	require.NoError(t, f.svc.DeactivateAccount(ctx, cash.ID))
	require.NoError(t, f.svc.DeactivateAccount(ctx, cash.ID))

	got := f.account(t, domain.CodeCash)
	assert.False(t, got.Active)
}
