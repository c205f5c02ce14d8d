package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixedNow() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

func testTx(date time.Time, periodID uuid.UUID, basis domain.Basis, typ domain.TransactionType, accountID uuid.UUID, amount string) *domain.Transaction {
	return &domain.Transaction{
		ID:       uuid.New(),
		Date:     date,
		PostedAt: fixedNow(),
		PeriodID: periodID,
		Basis:    basis,
		Type:     typ,
		Entries: []domain.Entry{
			{AccountID: accountID, Side: domain.SideDebit, Amount: dec(amount)},
		},
	}
}

func TestTransactions_SequenceIsMonotonic(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	periodID := uuid.New()
	accountID := uuid.New()

	first := testTx(fixedNow(), periodID, domain.BasisBook, domain.TransactionTypeGeneral, accountID, "10")
	second := testTx(fixedNow(), periodID, domain.BasisBook, domain.TransactionTypeGeneral, accountID, "20")
	require.NoError(t, store.Transactions().Post(ctx, first))
	require.NoError(t, store.Transactions().Post(ctx, second))

	assert.Equal(t, uint64(1), first.Seq, "the store assigns the sequence on the caller's value")
	assert.Equal(t, uint64(2), second.Seq)

	maxSeq, err := store.Transactions().MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), maxSeq)

	require.Error(t, store.Transactions().Post(ctx, first), "a transaction id posts once")
}

func TestTransactions_EventKeyIsPerBasisWorld(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	periodID := uuid.New()
	accountID := uuid.New()

	book := testTx(fixedNow(), periodID, domain.BasisBook, domain.TransactionTypeContribution, accountID, "10")
	book.EventID = "evt-1"
	tax := testTx(fixedNow(), periodID, domain.BasisTax, domain.TransactionTypeContribution, accountID, "10")
	tax.EventID = "evt-1"
	require.NoError(t, store.Transactions().Post(ctx, book))
	require.NoError(t, store.Transactions().Post(ctx, tax), "the same event posts once per world")

	dup := testTx(fixedNow(), periodID, domain.BasisBook, domain.TransactionTypeContribution, accountID, "10")
	dup.EventID = "evt-1"
	err := store.Transactions().Post(ctx, dup)
	assert.ErrorIs(t, err, domain.ErrDuplicateEvent)

	got, err := store.Transactions().GetByEventID(ctx, "evt-1", domain.BasisTax)
	require.NoError(t, err)
	assert.Equal(t, tax.ID, got.ID)
	_, err = store.Transactions().GetByEventID(ctx, "evt-2", domain.BasisBook)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactions_ListFilters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	periodA := uuid.New()
	periodB := uuid.New()
	cash := uuid.New()
	other := uuid.New()
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	t1 := testTx(jan, periodA, domain.BasisBook, domain.TransactionTypeGeneral, cash, "10")
	t2 := testTx(feb, periodA, domain.BasisTax, domain.TransactionTypeContribution, other, "20")
	t3 := testTx(mar, periodB, domain.BasisBook, domain.TransactionTypeDistribution, cash, "30")
	for _, tx := range []*domain.Transaction{t1, t2, t3} {
		require.NoError(t, store.Transactions().Post(ctx, tx))
	}

	list := func(f domain.TransactionFilter) []*domain.Transaction {
		out, err := store.Transactions().List(ctx, f)
		require.NoError(t, err)
		return out
	}

	assert.Len(t, list(domain.TransactionFilter{}), 3)
	assert.Len(t, list(domain.TransactionFilter{PeriodID: &periodA}), 2)

	book := domain.BasisBook
	assert.Len(t, list(domain.TransactionFilter{Basis: &book}), 2)

	byAccount := list(domain.TransactionFilter{AccountIDs: []uuid.UUID{cash}})
	require.Len(t, byAccount, 2)
	assert.Equal(t, t1.ID, byAccount[0].ID, "results come in posting order")
	assert.Equal(t, t3.ID, byAccount[1].ID)

	byType := list(domain.TransactionFilter{Types: []domain.TransactionType{domain.TransactionTypeContribution, domain.TransactionTypeDistribution}})
	assert.Len(t, byType, 2)

	// From is inclusive, To exclusive.
	window := list(domain.TransactionFilter{From: &feb, To: &mar})
	require.Len(t, window, 1)
	assert.Equal(t, t2.ID, window[0].ID)

	assert.Len(t, list(domain.TransactionFilter{Limit: 2}), 2)
}

func TestTransactions_CallersNeverAliasStoredState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx := testTx(fixedNow(), uuid.New(), domain.BasisBook, domain.TransactionTypeGeneral, uuid.New(), "10")
	require.NoError(t, store.Transactions().Post(ctx, tx))

	got, err := store.Transactions().GetByID(ctx, tx.ID)
	require.NoError(t, err)
	got.Entries[0].Amount = dec("999999")
	got.Memo = "tampered"

	again, err := store.Transactions().GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, again.Entries[0].Amount.Equal(dec("10")))
	assert.Empty(t, again.Memo)
}

func TestAccounts_CodesStayUnique(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	a := &domain.Account{ID: uuid.New(), Code: "1010", Name: "Cash", Type: domain.AccountTypeAsset, NormalSide: domain.SideDebit, Active: true, CreatedAt: fixedNow()}
	b := &domain.Account{ID: uuid.New(), Code: "1020", Name: "Property", Type: domain.AccountTypeAsset, NormalSide: domain.SideDebit, Active: true, CreatedAt: fixedNow()}
	require.NoError(t, store.Accounts().Create(ctx, a))
	require.NoError(t, store.Accounts().Create(ctx, b))

	clash := &domain.Account{ID: uuid.New(), Code: "1010", Name: "Shadow", Type: domain.AccountTypeAsset, NormalSide: domain.SideDebit}
	require.Error(t, store.Accounts().Create(ctx, clash))

	b.Code = "1010"
	require.Error(t, store.Accounts().Update(ctx, b), "renaming onto a taken code refuses")

	// A rename frees the old code for reuse.
	b.Code = "1030"
	require.NoError(t, store.Accounts().Update(ctx, b))
	freed := &domain.Account{ID: uuid.New(), Code: "1020", Name: "Recycled", Type: domain.AccountTypeAsset, NormalSide: domain.SideDebit}
	require.NoError(t, store.Accounts().Create(ctx, freed))

	_, err := store.Accounts().GetByCode(ctx, "1030")
	require.NoError(t, err)
}

func TestPeriods_GetAtUsesHalfOpenWindow(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	period := &domain.Period{ID: uuid.New(), Name: "2025-01", Start: start, End: end, Status: domain.PeriodOpen, CreatedAt: fixedNow()}
	require.NoError(t, store.Periods().Create(ctx, period))

	got, err := store.Periods().GetAt(ctx, start)
	require.NoError(t, err, "the start instant belongs to the period")
	assert.Equal(t, period.ID, got.ID)

	_, err = store.Periods().GetAt(ctx, end)
	assert.ErrorIs(t, err, domain.ErrNotFound, "the end instant belongs to the successor")

	_, err = store.Periods().GetAt(ctx, end.Add(-time.Nanosecond))
	assert.NoError(t, err)
}

func TestPeriods_CloseStateUpserts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	periodID := uuid.New()

	_, err := store.Periods().GetCloseState(ctx, periodID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Periods().SaveCloseState(ctx, &domain.CloseState{PeriodID: periodID, Step: domain.CloseStepCutoff, UpdatedAt: fixedNow()}))
	require.NoError(t, store.Periods().SaveCloseState(ctx, &domain.CloseState{PeriodID: periodID, Step: domain.CloseStepFinalize, UpdatedAt: fixedNow()}))

	state, err := store.Periods().GetCloseState(ctx, periodID)
	require.NoError(t, err)
	assert.Equal(t, domain.CloseStepFinalize, state.Step, "the second save replaced the first")
}

func TestSnapshots_NewestNonVoidWins(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	periodID := uuid.New()
	accountID := uuid.New()

	older := &domain.BalanceSnapshot{ID: uuid.New(), PeriodID: periodID, Basis: domain.BasisBook, TakenAt: fixedNow(), Balances: map[uuid.UUID]decimal.Decimal{accountID: dec("100")}}
	newer := &domain.BalanceSnapshot{ID: uuid.New(), PeriodID: periodID, Basis: domain.BasisBook, TakenAt: fixedNow(), Balances: map[uuid.UUID]decimal.Decimal{accountID: dec("200")}}
	require.NoError(t, store.Snapshots().Save(ctx, older))
	require.NoError(t, store.Snapshots().Save(ctx, newer))

	got, err := store.Snapshots().GetByPeriod(ctx, periodID, domain.BasisBook)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	require.NoError(t, store.Snapshots().Void(ctx, newer.ID))
	got, err = store.Snapshots().GetByPeriod(ctx, periodID, domain.BasisBook)
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID, "voiding uncovers the previous snapshot")

	require.NoError(t, store.Snapshots().Void(ctx, older.ID))
	_, err = store.Snapshots().GetByPeriod(ctx, periodID, domain.BasisBook)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.Snapshots().GetByPeriod(ctx, periodID, domain.BasisTax)
	assert.ErrorIs(t, err, domain.ErrNotFound, "worlds do not share snapshots")

	assert.ErrorIs(t, store.Snapshots().Void(ctx, uuid.New()), domain.ErrNotFound)
}

func TestPatronage_TotalsGroupAndOrder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	periodID := uuid.New()
	memberA := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	memberB := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	records := []*domain.Patronage{
		{ID: uuid.New(), MemberID: memberB, PeriodID: periodID, Category: "hours", Amount: dec("200"), RecordedAt: fixedNow()},
		{ID: uuid.New(), MemberID: memberA, PeriodID: periodID, Category: "purchases", Amount: dec("100"), RecordedAt: fixedNow()},
		{ID: uuid.New(), MemberID: memberA, PeriodID: periodID, Category: "hours", Amount: dec("300"), RecordedAt: fixedNow()},
		{ID: uuid.New(), MemberID: memberA, PeriodID: periodID, Category: "hours", Amount: dec("300"), RecordedAt: fixedNow()},
		{ID: uuid.New(), MemberID: memberA, PeriodID: uuid.New(), Category: "hours", Amount: dec("999"), RecordedAt: fixedNow()},
	}
	for _, p := range records {
		require.NoError(t, store.Patronage().Record(ctx, p))
	}

	totals, err := store.Patronage().Totals(ctx, periodID)
	require.NoError(t, err)
	require.Len(t, totals, 3, "other periods stay out")

	assert.Equal(t, memberA, totals[0].MemberID)
	assert.Equal(t, "hours", totals[0].Category)
	assert.True(t, totals[0].Amount.Equal(dec("600")), "same member and category sum")
	assert.Equal(t, memberA, totals[1].MemberID)
	assert.Equal(t, "purchases", totals[1].Category)
	assert.Equal(t, memberB, totals[2].MemberID)
}

func TestEvents_MarkProcessedInsertsOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	inserted, err := store.Events().MarkProcessed(ctx, &domain.ProcessedEvent{EventID: "evt-1", ProcessedAt: fixedNow(), Outcome: "posted"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.Events().MarkProcessed(ctx, &domain.ProcessedEvent{EventID: "evt-1", ProcessedAt: fixedNow(), Outcome: "posted again"})
	require.NoError(t, err)
	assert.False(t, inserted, "the second writer loses the race")

	done, err := store.Events().IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, done)
	done, err = store.Events().IsProcessed(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestFaults_OpenFiltersResolved(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first := &domain.ConsistencyFault{ID: uuid.New(), Basis: domain.BasisBook, Detail: "drift", DetectedAt: fixedNow()}
	second := &domain.ConsistencyFault{ID: uuid.New(), Basis: domain.BasisBook, Detail: "more drift", DetectedAt: fixedNow()}
	taxSide := &domain.ConsistencyFault{ID: uuid.New(), Basis: domain.BasisTax, Detail: "tax drift", DetectedAt: fixedNow()}
	for _, f := range []*domain.ConsistencyFault{first, second, taxSide} {
		require.NoError(t, store.Faults().Save(ctx, f))
	}

	open, err := store.Faults().Open(ctx, domain.BasisBook)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	require.NoError(t, store.Faults().Resolve(ctx, first.ID, "auditor", "rebuilt", fixedNow()))
	open, err = store.Faults().Open(ctx, domain.BasisBook)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, second.ID, open[0].ID)

	err = store.Faults().Resolve(ctx, first.ID, "auditor", "again", fixedNow())
	require.Error(t, err, "a fault resolves once")
	assert.ErrorIs(t, store.Faults().Resolve(ctx, uuid.New(), "auditor", "", fixedNow()), domain.ErrNotFound)

	all, err := store.Faults().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCalculations_ListByPeriodNewestFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	periodID := uuid.New()

	older := &domain.AllocationCalculation{ID: uuid.New(), PeriodID: periodID, Status: domain.CalculationVoid, CreatedAt: fixedNow()}
	newer := &domain.AllocationCalculation{ID: uuid.New(), PeriodID: periodID, Status: domain.CalculationPending, CreatedAt: fixedNow()}
	require.NoError(t, store.Calculations().Save(ctx, older))
	require.NoError(t, store.Calculations().Save(ctx, newer))
	require.Error(t, store.Calculations().Save(ctx, newer), "ids are unique")

	calcs, err := store.Calculations().ListByPeriod(ctx, periodID)
	require.NoError(t, err)
	require.Len(t, calcs, 2)
	assert.Equal(t, newer.ID, calcs[0].ID)
	assert.Equal(t, older.ID, calcs[1].ID)
}

func TestAudit_ListFiltersByPeriod(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	periodID := uuid.New()

	require.NoError(t, store.Audit().Record(ctx, &domain.AuditRecord{ID: uuid.New(), Action: domain.AuditActionReopen, PeriodID: &periodID, Actor: "cfo", Reason: "late invoice", At: fixedNow()}))
	require.NoError(t, store.Audit().Record(ctx, &domain.AuditRecord{ID: uuid.New(), Action: domain.AuditActionResolveFault, Actor: "auditor", At: fixedNow()}))

	all, err := store.Audit().List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := store.Audit().List(ctx, &periodID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, domain.AuditActionReopen, scoped[0].Action)
}
