package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/domain"
)

// Store keeps the full ledger in process behind one mutex. Writes are
// serialized, which makes sequence assignment and the append a single
// atomic step, and every value crossing the boundary is cloned so callers
// never alias internal state. It backs tests and throwaway runs; durable
// deployments use the sqlstore adapter.
type Store struct {
	mu sync.RWMutex

	accounts     map[uuid.UUID]*domain.Account
	accountCodes map[string]uuid.UUID

	transactions []*domain.Transaction
	txByID       map[uuid.UUID]*domain.Transaction
	txByEvent    map[string]*domain.Transaction
	seq          uint64

	periods     map[uuid.UUID]*domain.Period
	closeStates map[uuid.UUID]*domain.CloseState
	snapshots   []*domain.BalanceSnapshot

	members     map[uuid.UUID]*domain.Member
	memberCodes map[string]uuid.UUID
	patronage   []*domain.Patronage

	pairs  map[uuid.UUID]*domain.CapitalPair
	layers []*domain.CapitalLayer

	calculations []*domain.AllocationCalculation

	events map[string]*domain.ProcessedEvent
	faults []*domain.ConsistencyFault
	audits []*domain.AuditRecord
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]*domain.Account),
		accountCodes: make(map[string]uuid.UUID),
		txByID:       make(map[uuid.UUID]*domain.Transaction),
		txByEvent:    make(map[string]*domain.Transaction),
		periods:      make(map[uuid.UUID]*domain.Period),
		closeStates:  make(map[uuid.UUID]*domain.CloseState),
		members:      make(map[uuid.UUID]*domain.Member),
		memberCodes:  make(map[string]uuid.UUID),
		pairs:        make(map[uuid.UUID]*domain.CapitalPair),
		events:       make(map[string]*domain.ProcessedEvent),
	}
}

func (s *Store) Accounts() domain.AccountRepository         { return accountRepo{s} }
func (s *Store) Transactions() domain.TransactionRepository { return transactionRepo{s} }
func (s *Store) Periods() domain.PeriodRepository           { return periodRepo{s} }
func (s *Store) Snapshots() domain.SnapshotRepository       { return snapshotRepo{s} }
func (s *Store) Members() domain.MemberRepository           { return memberRepo{s} }
func (s *Store) Patronage() domain.PatronageRepository      { return patronageRepo{s} }
func (s *Store) Capital() domain.CapitalRepository          { return capitalRepo{s} }
func (s *Store) Calculations() domain.CalculationRepository { return calculationRepo{s} }
func (s *Store) Events() domain.EventRepository             { return eventRepo{s} }
func (s *Store) Faults() domain.FaultRepository             { return faultRepo{s} }
func (s *Store) Audit() domain.AuditRepository              { return auditRepo{s} }

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func eventKey(eventID string, basis domain.Basis) string {
	return eventID + "|" + string(basis)
}

// --- accounts ---

type accountRepo struct{ s *Store }

func (r accountRepo) Create(_ context.Context, account *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[account.ID]; ok {
		return fmt.Errorf("account %s already exists", account.ID)
	}
	if _, ok := r.s.accountCodes[account.Code]; ok {
		return fmt.Errorf("account code %s already exists", account.Code)
	}
	r.s.accounts[account.ID] = cloneAccount(account)
	r.s.accountCodes[account.Code] = account.ID
	return nil
}

func (r accountRepo) Update(_ context.Context, account *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.accounts[account.ID]
	if !ok {
		return fmt.Errorf("account %s: %w", account.ID, domain.ErrNotFound)
	}
	if existing.Code != account.Code {
		if _, taken := r.s.accountCodes[account.Code]; taken {
			return fmt.Errorf("account code %s already exists", account.Code)
		}
		delete(r.s.accountCodes, existing.Code)
		r.s.accountCodes[account.Code] = account.ID
	}
	r.s.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (r accountRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	account, ok := r.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return cloneAccount(account), nil
}

func (r accountRepo) GetByCode(_ context.Context, code string) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.accountCodes[code]
	if !ok {
		return nil, fmt.Errorf("account code %s: %w", code, domain.ErrNotFound)
	}
	return cloneAccount(r.s.accounts[id]), nil
}

func (r accountRepo) List(_ context.Context) ([]*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Account, 0, len(r.s.accounts))
	for _, a := range r.s.accounts {
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// --- transactions ---

type transactionRepo struct{ s *Store }

func (r transactionRepo) Post(_ context.Context, tx *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.txByID[tx.ID]; ok {
		return fmt.Errorf("transaction %s already posted", tx.ID)
	}
	if tx.EventID != "" {
		if dup, ok := r.s.txByEvent[eventKey(tx.EventID, tx.Basis)]; ok {
			return fmt.Errorf("%w: event %s already posted as %s", domain.ErrDuplicateEvent, tx.EventID, dup.ID)
		}
	}
	r.s.seq++
	tx.Seq = r.s.seq
	stored := cloneTransaction(tx)
	r.s.transactions = append(r.s.transactions, stored)
	r.s.txByID[stored.ID] = stored
	if stored.EventID != "" {
		r.s.txByEvent[eventKey(stored.EventID, stored.Basis)] = stored
	}
	return nil
}

func (r transactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	tx, ok := r.s.txByID[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return cloneTransaction(tx), nil
}

func (r transactionRepo) GetByEventID(_ context.Context, eventID string, basis domain.Basis) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	tx, ok := r.s.txByEvent[eventKey(eventID, basis)]
	if !ok {
		return nil, fmt.Errorf("event %s in %s world: %w", eventID, basis, domain.ErrNotFound)
	}
	return cloneTransaction(tx), nil
}

func (r transactionRepo) List(_ context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Transaction
	for _, tx := range r.s.transactions {
		if !matches(tx, filter) {
			continue
		}
		out = append(out, cloneTransaction(tx))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (r transactionRepo) MaxSeq(context.Context) (uint64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.seq, nil
}

func matches(tx *domain.Transaction, f domain.TransactionFilter) bool {
	if len(f.AccountIDs) > 0 {
		hit := false
		for _, e := range tx.Entries {
			for _, id := range f.AccountIDs {
				if e.AccountID == id {
					hit = true
					break
				}
			}
			if hit {
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.PeriodID != nil && tx.PeriodID != *f.PeriodID {
		return false
	}
	if f.MemberID != nil && (tx.MemberID == nil || *tx.MemberID != *f.MemberID) {
		return false
	}
	if f.Basis != nil && tx.Basis != *f.Basis {
		return false
	}
	if len(f.Types) > 0 {
		hit := false
		for _, t := range f.Types {
			if tx.Type == t {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.ReversalOf != nil && (tx.ReversalOf == nil || *tx.ReversalOf != *f.ReversalOf) {
		return false
	}
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && !tx.Date.Before(*f.To) {
		return false
	}
	return true
}

// --- periods ---

type periodRepo struct{ s *Store }

func (r periodRepo) Create(_ context.Context, period *domain.Period) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.periods[period.ID]; ok {
		return fmt.Errorf("period %s already exists", period.ID)
	}
	r.s.periods[period.ID] = clonePeriod(period)
	return nil
}

func (r periodRepo) Update(_ context.Context, period *domain.Period) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.periods[period.ID]; !ok {
		return fmt.Errorf("period %s: %w", period.ID, domain.ErrNotFound)
	}
	r.s.periods[period.ID] = clonePeriod(period)
	return nil
}

func (r periodRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Period, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	period, ok := r.s.periods[id]
	if !ok {
		return nil, fmt.Errorf("period %s: %w", id, domain.ErrNotFound)
	}
	return clonePeriod(period), nil
}

func (r periodRepo) GetByName(_ context.Context, name string) (*domain.Period, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.periods {
		if p.Name == name {
			return clonePeriod(p), nil
		}
	}
	return nil, fmt.Errorf("period %s: %w", name, domain.ErrNotFound)
}

func (r periodRepo) GetAt(_ context.Context, date time.Time) (*domain.Period, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.periods {
		if p.Contains(date) {
			return clonePeriod(p), nil
		}
	}
	return nil, fmt.Errorf("no period contains %s: %w", date.Format(time.RFC3339), domain.ErrNotFound)
}

func (r periodRepo) List(context.Context) ([]*domain.Period, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Period, 0, len(r.s.periods))
	for _, p := range r.s.periods {
		out = append(out, clonePeriod(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r periodRepo) SaveCloseState(_ context.Context, state *domain.CloseState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.closeStates[state.PeriodID] = cloneCloseState(state)
	return nil
}

func (r periodRepo) GetCloseState(_ context.Context, periodID uuid.UUID) (*domain.CloseState, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	state, ok := r.s.closeStates[periodID]
	if !ok {
		return nil, fmt.Errorf("close state for period %s: %w", periodID, domain.ErrNotFound)
	}
	return cloneCloseState(state), nil
}

// --- snapshots ---

type snapshotRepo struct{ s *Store }

func (r snapshotRepo) Save(_ context.Context, snapshot *domain.BalanceSnapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.snapshots = append(r.s.snapshots, cloneSnapshot(snapshot))
	return nil
}

func (r snapshotRepo) GetByPeriod(_ context.Context, periodID uuid.UUID, basis domain.Basis) (*domain.BalanceSnapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for i := len(r.s.snapshots) - 1; i >= 0; i-- {
		snap := r.s.snapshots[i]
		if snap.PeriodID == periodID && snap.Basis == basis && !snap.Void {
			return cloneSnapshot(snap), nil
		}
	}
	return nil, fmt.Errorf("snapshot for period %s (%s): %w", periodID, basis, domain.ErrNotFound)
}

func (r snapshotRepo) Void(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, snap := range r.s.snapshots {
		if snap.ID == id {
			snap.Void = true
			return nil
		}
	}
	return fmt.Errorf("snapshot %s: %w", id, domain.ErrNotFound)
}

// --- members ---

type memberRepo struct{ s *Store }

func (r memberRepo) Create(_ context.Context, member *domain.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.members[member.ID]; ok {
		return fmt.Errorf("member %s already exists", member.ID)
	}
	if _, ok := r.s.memberCodes[member.Code]; ok {
		return fmt.Errorf("member code %s already exists", member.Code)
	}
	r.s.members[member.ID] = cloneMember(member)
	r.s.memberCodes[member.Code] = member.ID
	return nil
}

func (r memberRepo) Update(_ context.Context, member *domain.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.members[member.ID]
	if !ok {
		return fmt.Errorf("member %s: %w", member.ID, domain.ErrNotFound)
	}
	if existing.Code != member.Code {
		if _, taken := r.s.memberCodes[member.Code]; taken {
			return fmt.Errorf("member code %s already exists", member.Code)
		}
		delete(r.s.memberCodes, existing.Code)
		r.s.memberCodes[member.Code] = member.ID
	}
	r.s.members[member.ID] = cloneMember(member)
	return nil
}

func (r memberRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Member, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	member, ok := r.s.members[id]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", id, domain.ErrNotFound)
	}
	return cloneMember(member), nil
}

func (r memberRepo) GetByCode(_ context.Context, code string) (*domain.Member, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.memberCodes[code]
	if !ok {
		return nil, fmt.Errorf("member code %s: %w", code, domain.ErrNotFound)
	}
	return cloneMember(r.s.members[id]), nil
}

func (r memberRepo) List(context.Context) ([]*domain.Member, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Member, 0, len(r.s.members))
	for _, m := range r.s.members {
		out = append(out, cloneMember(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// --- patronage ---

type patronageRepo struct{ s *Store }

func (r patronageRepo) Record(_ context.Context, p *domain.Patronage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.patronage = append(r.s.patronage, clonePatronage(p))
	return nil
}

func (r patronageRepo) List(_ context.Context, periodID uuid.UUID) ([]*domain.Patronage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Patronage
	for _, p := range r.s.patronage {
		if p.PeriodID == periodID {
			out = append(out, clonePatronage(p))
		}
	}
	return out, nil
}

func (r patronageRepo) Totals(_ context.Context, periodID uuid.UUID) ([]domain.PatronageTotal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	type key struct {
		member   uuid.UUID
		category string
	}
	sums := make(map[key]decimal.Decimal)
	for _, p := range r.s.patronage {
		if p.PeriodID != periodID {
			continue
		}
		k := key{member: p.MemberID, category: p.Category}
		sums[k] = sums[k].Add(p.Amount)
	}
	out := make([]domain.PatronageTotal, 0, len(sums))
	for k, amount := range sums {
		out = append(out, domain.PatronageTotal{MemberID: k.member, Category: k.category, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].MemberID[:], out[j].MemberID[:]); c != 0 {
			return c < 0
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// --- capital ---

type capitalRepo struct{ s *Store }

func (r capitalRepo) SavePair(_ context.Context, pair *domain.CapitalPair) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.pairs[pair.MemberID]; ok {
		return fmt.Errorf("capital pair for member %s already exists", pair.MemberID)
	}
	r.s.pairs[pair.MemberID] = clonePair(pair)
	return nil
}

func (r capitalRepo) GetPair(_ context.Context, memberID uuid.UUID) (*domain.CapitalPair, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	pair, ok := r.s.pairs[memberID]
	if !ok {
		return nil, fmt.Errorf("capital pair for member %s: %w", memberID, domain.ErrNotFound)
	}
	return clonePair(pair), nil
}

func (r capitalRepo) ListPairs(context.Context) ([]*domain.CapitalPair, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.CapitalPair, 0, len(r.s.pairs))
	for _, pair := range r.s.pairs {
		out = append(out, clonePair(pair))
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].MemberID[:], out[j].MemberID[:]) < 0
	})
	return out, nil
}

func (r capitalRepo) SaveLayer(_ context.Context, layer *domain.CapitalLayer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.layers {
		if l.ID == layer.ID {
			return fmt.Errorf("layer %s already exists", layer.ID)
		}
	}
	r.s.layers = append(r.s.layers, cloneLayer(layer))
	return nil
}

func (r capitalRepo) UpdateLayer(_ context.Context, layer *domain.CapitalLayer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, l := range r.s.layers {
		if l.ID == layer.ID {
			r.s.layers[i] = cloneLayer(layer)
			return nil
		}
	}
	return fmt.Errorf("layer %s: %w", layer.ID, domain.ErrNotFound)
}

func (r capitalRepo) GetLayer(_ context.Context, id uuid.UUID) (*domain.CapitalLayer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, l := range r.s.layers {
		if l.ID == id {
			return cloneLayer(l), nil
		}
	}
	return nil, fmt.Errorf("layer %s: %w", id, domain.ErrNotFound)
}

func (r capitalRepo) ListLayers(_ context.Context, status domain.LayerStatus) ([]*domain.CapitalLayer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.CapitalLayer
	for _, l := range r.s.layers {
		if status != "" && l.Status != status {
			continue
		}
		out = append(out, cloneLayer(l))
	}
	return out, nil
}

// --- calculations ---

type calculationRepo struct{ s *Store }

func (r calculationRepo) Save(_ context.Context, calc *domain.AllocationCalculation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.calculations {
		if c.ID == calc.ID {
			return fmt.Errorf("calculation %s already exists", calc.ID)
		}
	}
	r.s.calculations = append(r.s.calculations, cloneCalculation(calc))
	return nil
}

func (r calculationRepo) Update(_ context.Context, calc *domain.AllocationCalculation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, c := range r.s.calculations {
		if c.ID == calc.ID {
			r.s.calculations[i] = cloneCalculation(calc)
			return nil
		}
	}
	return fmt.Errorf("calculation %s: %w", calc.ID, domain.ErrNotFound)
}

func (r calculationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.AllocationCalculation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.calculations {
		if c.ID == id {
			return cloneCalculation(c), nil
		}
	}
	return nil, fmt.Errorf("calculation %s: %w", id, domain.ErrNotFound)
}

func (r calculationRepo) ListByPeriod(_ context.Context, periodID uuid.UUID) ([]*domain.AllocationCalculation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.AllocationCalculation
	for i := len(r.s.calculations) - 1; i >= 0; i-- {
		if r.s.calculations[i].PeriodID == periodID {
			out = append(out, cloneCalculation(r.s.calculations[i]))
		}
	}
	return out, nil
}

// --- processed events ---

type eventRepo struct{ s *Store }

func (r eventRepo) MarkProcessed(_ context.Context, event *domain.ProcessedEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[event.EventID]; ok {
		return false, nil
	}
	clone := *event
	r.s.events[event.EventID] = &clone
	return true, nil
}

func (r eventRepo) IsProcessed(_ context.Context, eventID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.events[eventID]
	return ok, nil
}

// --- faults ---

type faultRepo struct{ s *Store }

func (r faultRepo) Save(_ context.Context, fault *domain.ConsistencyFault) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.faults = append(r.s.faults, cloneFault(fault))
	return nil
}

func (r faultRepo) Resolve(_ context.Context, id uuid.UUID, by, note string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.faults {
		if f.ID != id {
			continue
		}
		if f.Resolved() {
			return fmt.Errorf("fault %s already resolved", id)
		}
		resolvedAt := at
		f.ResolvedAt = &resolvedAt
		f.ResolvedBy = by
		f.Note = note
		return nil
	}
	return fmt.Errorf("fault %s: %w", id, domain.ErrNotFound)
}

func (r faultRepo) Open(_ context.Context, basis domain.Basis) ([]*domain.ConsistencyFault, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.ConsistencyFault
	for _, f := range r.s.faults {
		if f.Basis == basis && !f.Resolved() {
			out = append(out, cloneFault(f))
		}
	}
	return out, nil
}

func (r faultRepo) List(context.Context) ([]*domain.ConsistencyFault, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.ConsistencyFault, 0, len(r.s.faults))
	for _, f := range r.s.faults {
		out = append(out, cloneFault(f))
	}
	return out, nil
}

// --- audit ---

type auditRepo struct{ s *Store }

func (r auditRepo) Record(_ context.Context, record *domain.AuditRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audits = append(r.s.audits, cloneAudit(record))
	return nil
}

func (r auditRepo) List(_ context.Context, periodID *uuid.UUID) ([]*domain.AuditRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.AuditRecord
	for _, a := range r.s.audits {
		if periodID != nil && (a.PeriodID == nil || *a.PeriodID != *periodID) {
			continue
		}
		out = append(out, cloneAudit(a))
	}
	return out, nil
}

// --- clones ---

func uuidPtr(p *uuid.UUID) *uuid.UUID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func timePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneAccount(a *domain.Account) *domain.Account {
	clone := *a
	clone.ParentID = uuidPtr(a.ParentID)
	clone.MemberID = uuidPtr(a.MemberID)
	return &clone
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	clone := *t
	clone.MemberID = uuidPtr(t.MemberID)
	clone.ReversalOf = uuidPtr(t.ReversalOf)
	clone.Entries = make([]domain.Entry, len(t.Entries))
	copy(clone.Entries, t.Entries)
	return &clone
}

func clonePeriod(p *domain.Period) *domain.Period {
	clone := *p
	clone.ClosedAt = timePtr(p.ClosedAt)
	clone.LockedAt = timePtr(p.LockedAt)
	return &clone
}

func cloneCloseState(c *domain.CloseState) *domain.CloseState {
	clone := *c
	clone.CalculationID = uuidPtr(c.CalculationID)
	return &clone
}

func cloneSnapshot(s *domain.BalanceSnapshot) *domain.BalanceSnapshot {
	clone := *s
	clone.Balances = make(map[uuid.UUID]decimal.Decimal, len(s.Balances))
	for k, v := range s.Balances {
		clone.Balances[k] = v
	}
	return &clone
}

func cloneMember(m *domain.Member) *domain.Member {
	clone := *m
	return &clone
}

func clonePatronage(p *domain.Patronage) *domain.Patronage {
	clone := *p
	return &clone
}

func clonePair(p *domain.CapitalPair) *domain.CapitalPair {
	clone := *p
	return &clone
}

func cloneLayer(l *domain.CapitalLayer) *domain.CapitalLayer {
	clone := *l
	clone.DisposedAt = timePtr(l.DisposedAt)
	clone.Attributions = make([]domain.LayerAttribution, len(l.Attributions))
	copy(clone.Attributions, l.Attributions)
	return &clone
}

func cloneCalculation(c *domain.AllocationCalculation) *domain.AllocationCalculation {
	clone := *c
	clone.SupersedesID = uuidPtr(c.SupersedesID)
	clone.ApprovedAt = timePtr(c.ApprovedAt)
	clone.PostedAt = timePtr(c.PostedAt)
	clone.Inputs = make([]domain.PatronageTotal, len(c.Inputs))
	copy(clone.Inputs, c.Inputs)
	clone.Results = make([]domain.AllocationResult, len(c.Results))
	copy(clone.Results, c.Results)
	clone.Formula.Weights = make(map[string]decimal.Decimal, len(c.Formula.Weights))
	for k, v := range c.Formula.Weights {
		clone.Formula.Weights[k] = v
	}
	return &clone
}

func cloneFault(f *domain.ConsistencyFault) *domain.ConsistencyFault {
	clone := *f
	clone.ResolvedAt = timePtr(f.ResolvedAt)
	return &clone
}

func cloneAudit(a *domain.AuditRecord) *domain.AuditRecord {
	clone := *a
	clone.PeriodID = uuidPtr(a.PeriodID)
	return &clone
}
