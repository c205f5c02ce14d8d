package capital

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/config"
	"github.com/coopledger/coopledger/internal/domain"
	"github.com/coopledger/coopledger/internal/usecase/allocation"
	"github.com/coopledger/coopledger/internal/usecase/ledger"
)

// Ledger is the slice of the ledger service the capital service posts
// through. Going through it keeps every capital movement subject to the
// same period, halt, and validation gates as any other posting.
type Ledger interface {
	Post(ctx context.Context, input ledger.PostInput) (*domain.Transaction, error)
	CreateAccount(ctx context.Context, input ledger.CreateAccountInput) (*domain.Account, error)
}

// Balancer answers current-balance queries.
type Balancer interface {
	Balance(ctx context.Context, accountID uuid.UUID, asOf time.Time) (decimal.Decimal, error)
}

// EnrollInput represents the input for enrolling a member.
type EnrollInput struct {
	Code               string
	Name               string
	JoinedAt           time.Time
	DeficitRestoration bool
}

// ContributionInput represents a capital contribution event. Category names
// the asset class for the tax-value rule; AssetRef identifies the asset for
// layer tracking and stays empty for cash.
type ContributionInput struct {
	MemberID  uuid.UUID
	AssetRef  string
	Category  string
	BookValue decimal.Decimal
	TaxValue  *decimal.Decimal
	Date      time.Time
	EventID   string
	Memo      string
}

// ContributionResult reports what a contribution posted.
type ContributionResult struct {
	BookTx *domain.Transaction
	TaxTx  *domain.Transaction  // nil when the tax movement is zero
	Layer  *domain.CapitalLayer // nil when book and tax values agree
}

// RevaluationInput represents a book-only restatement of an asset.
// PreBookValue overrides the carried value for assets without layer
// history.
type RevaluationInput struct {
	AssetRef     string
	NewBookValue decimal.Decimal
	PreBookValue *decimal.Decimal
	Date         time.Time
	EventID      string
	Memo         string
}

// RevaluationResult reports what a revaluation posted.
type RevaluationResult struct {
	BookTx *domain.Transaction
	Layer  *domain.CapitalLayer
}

// DistributionInput represents a cash payout against a member's capital.
type DistributionInput struct {
	MemberID uuid.UUID
	Amount   decimal.Decimal
	Date     time.Time
	EventID  string
	Memo     string
}

// DistributionResult reports what a distribution posted.
type DistributionResult struct {
	BookTx *domain.Transaction
	TaxTx  *domain.Transaction
}

// DisposalInput represents the disposal of the asset behind a capital
// layer, which makes the layer's built-in gain recognizable for tax.
type DisposalInput struct {
	LayerID uuid.UUID
	Date    time.Time
	EventID string
	Memo    string
}

// DisposalResult reports what a disposal posted.
type DisposalResult struct {
	TaxTx *domain.Transaction // nil when the layer carried no gain
	Layer *domain.CapitalLayer
}

// CapitalService maintains member capital: the paired book and tax
// accounts, the layers tracking disparities between them, and every
// movement against them.
type CapitalService struct {
	MemberRepo      domain.MemberRepository
	CapitalRepo     domain.CapitalRepository
	AccountRepo     domain.AccountRepository
	TransactionRepo domain.TransactionRepository
	Ledger          Ledger
	Balance         Balancer
	Tax             config.TaxConfig
	Now             func() time.Time
}

// NewCapitalService creates a new CapitalService instance.
func NewCapitalService(
	memberRepo domain.MemberRepository,
	capitalRepo domain.CapitalRepository,
	accountRepo domain.AccountRepository,
	transactionRepo domain.TransactionRepository,
	ledgerService Ledger,
	balance Balancer,
	tax config.TaxConfig,
) *CapitalService {
	return &CapitalService{
		MemberRepo:      memberRepo,
		CapitalRepo:     capitalRepo,
		AccountRepo:     accountRepo,
		TransactionRepo: transactionRepo,
		Ledger:          ledgerService,
		Balance:         balance,
		Tax:             tax,
		Now:             time.Now,
	}
}

// Enroll creates a member together with its book and tax capital accounts
// and links them as a pair.
func (s *CapitalService) Enroll(ctx context.Context, input EnrollInput) (*domain.Member, *domain.CapitalPair, error) {
	member := &domain.Member{
		ID:                 uuid.New(),
		Code:               input.Code,
		Name:               input.Name,
		JoinedAt:           input.JoinedAt,
		Active:             true,
		DeficitRestoration: input.DeficitRestoration,
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = s.Now()
	}
	if err := member.Validate(); err != nil {
		return nil, nil, err
	}
	if existing, err := s.MemberRepo.GetByCode(ctx, input.Code); err == nil && existing != nil {
		return nil, nil, fmt.Errorf("member code %s already in use", input.Code)
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}

	bookParent, err := s.system(ctx, domain.CodeMembersEquity)
	if err != nil {
		return nil, nil, err
	}
	taxParent, err := s.system(ctx, domain.CodeTaxCapital)
	if err != nil {
		return nil, nil, err
	}

	if err := s.MemberRepo.Create(ctx, member); err != nil {
		return nil, nil, err
	}

	bookAccount, err := s.Ledger.CreateAccount(ctx, ledger.CreateAccountInput{
		Code:     domain.BookCapitalCode(member.Code),
		Name:     member.Name + " Capital (Book)",
		Type:     domain.AccountTypeEquity,
		ParentID: &bookParent.ID,
		MemberID: &member.ID,
		Basis:    domain.BasisBook,
	})
	if err != nil {
		return nil, nil, err
	}
	taxAccount, err := s.Ledger.CreateAccount(ctx, ledger.CreateAccountInput{
		Code:     domain.TaxCapitalCode(member.Code),
		Name:     member.Name + " Capital (Tax)",
		Type:     domain.AccountTypeEquity,
		ParentID: &taxParent.ID,
		MemberID: &member.ID,
		Basis:    domain.BasisTax,
	})
	if err != nil {
		return nil, nil, err
	}

	pair := &domain.CapitalPair{
		MemberID:      member.ID,
		BookAccountID: bookAccount.ID,
		TaxAccountID:  taxAccount.ID,
		CreatedAt:     s.Now(),
	}
	if err := s.CapitalRepo.SavePair(ctx, pair); err != nil {
		return nil, nil, err
	}
	return member, pair, nil
}

// ApplyContribution posts a capital contribution to both basis worlds and
// opens a layer when the values diverge.
// Logic:
//  1. Resolve the tax value: an explicit value wins, otherwise the
//     per-category policy rule decides (mirror book, zero, or refuse)
//  2. Book: debit cash or contributed property, credit the member's book
//     capital
//  3. Tax: debit the tax basis control mirror, credit the member's tax
//     capital, skipped entirely when the tax value is zero
//  4. When book and tax values differ, open a contribution layer holding
//     the wedge, attributed fully to the contributing member
//
// Each posting is keyed by the event id per basis world, so a replay after
// a partial failure fills in only what is missing.
func (s *CapitalService) ApplyContribution(ctx context.Context, input ContributionInput) (*ContributionResult, error) {
	if input.BookValue.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("contribution book value must be positive")
	}
	pair, err := s.CapitalRepo.GetPair(ctx, input.MemberID)
	if err != nil {
		return nil, fmt.Errorf("member %s capital pair: %w", input.MemberID, err)
	}

	taxValue, err := s.resolveTaxValue(input)
	if err != nil {
		return nil, err
	}
	if input.AssetRef == "" && !taxValue.Equal(input.BookValue) {
		return nil, errors.New("contribution with a book/tax disparity requires an asset reference")
	}

	debitCode := domain.CodeContributedProperty
	if input.AssetRef == "" {
		debitCode = domain.CodeCash
	}
	debitAccount, err := s.system(ctx, debitCode)
	if err != nil {
		return nil, err
	}
	control, err := s.system(ctx, domain.CodeTaxBasisControl)
	if err != nil {
		return nil, err
	}

	result := &ContributionResult{}

	result.BookTx, err = s.postOnce(ctx, input.EventID, domain.BasisBook, ledger.PostInput{
		Date:     input.Date,
		Type:     domain.TransactionTypeContribution,
		MemberID: &input.MemberID,
		EventID:  input.EventID,
		Memo:     input.Memo,
		Entries: []ledger.EntryInput{
			{AccountID: debitAccount.ID, Side: domain.SideDebit, Amount: input.BookValue},
			{AccountID: pair.BookAccountID, Side: domain.SideCredit, Amount: input.BookValue},
		},
	})
	if err != nil {
		return nil, err
	}

	if taxValue.IsPositive() {
		result.TaxTx, err = s.postOnce(ctx, input.EventID, domain.BasisTax, ledger.PostInput{
			Date:     input.Date,
			Type:     domain.TransactionTypeContribution,
			MemberID: &input.MemberID,
			EventID:  input.EventID,
			Memo:     input.Memo,
			Entries: []ledger.EntryInput{
				{AccountID: control.ID, Side: domain.SideDebit, Amount: taxValue},
				{AccountID: pair.TaxAccountID, Side: domain.SideCredit, Amount: taxValue},
			},
		})
		if err != nil {
			return nil, err
		}
	}

	if !taxValue.Equal(input.BookValue) {
		layer, err := s.openLayer(ctx, &domain.CapitalLayer{
			ID:        uuid.New(),
			AssetRef:  input.AssetRef,
			Origin:    domain.LayerOriginContribution,
			BookValue: input.BookValue,
			TaxBasis:  taxValue,
			Attributions: []domain.LayerAttribution{
				{MemberID: input.MemberID, Amount: input.BookValue.Sub(taxValue)},
			},
			Status:    domain.LayerOpen,
			PeriodID:  result.BookTx.PeriodID,
			EventID:   input.EventID,
			CreatedAt: s.Now(),
		})
		if err != nil {
			return nil, err
		}
		result.Layer = layer
	}

	return result, nil
}

// Revalue restates an asset's book value. The step-up (or write-down) is
// spread over the members' book capital pro rata to their balances at the
// event, and a revaluation layer freezes the wedge against the pre-event
// value. Tax stays untouched until the layer is disposed.
func (s *CapitalService) Revalue(ctx context.Context, input RevaluationInput) (*RevaluationResult, error) {
	if input.AssetRef == "" {
		return nil, errors.New("revaluation requires an asset reference")
	}
	if input.NewBookValue.IsNegative() {
		return nil, errors.New("revaluation book value cannot be negative")
	}

	preValue, err := s.carriedBookValue(ctx, input.AssetRef, input.PreBookValue)
	if err != nil {
		return nil, err
	}
	delta := input.NewBookValue.Sub(preValue)
	if delta.IsZero() {
		return nil, errors.New("revaluation changes nothing: book value already " + preValue.String())
	}

	pairs, err := s.CapitalRepo.ListPairs(ctx)
	if err != nil {
		return nil, err
	}
	var shares []allocation.Share
	pairByMember := make(map[uuid.UUID]*domain.CapitalPair, len(pairs))
	for _, pair := range pairs {
		balance, err := s.Balance.Balance(ctx, pair.BookAccountID, time.Time{})
		if err != nil {
			return nil, err
		}
		if balance.IsPositive() {
			shares = append(shares, allocation.Share{Key: pair.MemberID, Weight: balance})
			pairByMember[pair.MemberID] = pair
		}
	}
	if len(shares) == 0 {
		return nil, errors.New("no members hold book capital to attribute the revaluation to")
	}

	pieces, err := allocation.Split(delta, shares)
	if err != nil {
		return nil, err
	}

	property, err := s.system(ctx, domain.CodeContributedProperty)
	if err != nil {
		return nil, err
	}

	memberSide, assetSide := domain.SideCredit, domain.SideDebit
	if delta.IsNegative() {
		memberSide, assetSide = domain.SideDebit, domain.SideCredit
	}
	entries := []ledger.EntryInput{
		{AccountID: property.ID, Side: assetSide, Amount: delta.Abs()},
	}
	var attributions []domain.LayerAttribution
	for _, id := range sortedKeys(pieces) {
		piece := pieces[id]
		attributions = append(attributions, domain.LayerAttribution{MemberID: id, Amount: piece})
		if piece.IsZero() {
			continue
		}
		entries = append(entries, ledger.EntryInput{
			AccountID: pairByMember[id].BookAccountID,
			Side:      memberSide,
			Amount:    piece.Abs(),
		})
	}

	result := &RevaluationResult{}
	result.BookTx, err = s.postOnce(ctx, input.EventID, domain.BasisBook, ledger.PostInput{
		Date:    input.Date,
		Type:    domain.TransactionTypeRevaluation,
		EventID: input.EventID,
		Memo:    input.Memo,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}

	result.Layer, err = s.openLayer(ctx, &domain.CapitalLayer{
		ID:           uuid.New(),
		AssetRef:     input.AssetRef,
		Origin:       domain.LayerOriginRevaluation,
		BookValue:    input.NewBookValue,
		TaxBasis:     preValue,
		Attributions: attributions,
		Status:       domain.LayerOpen,
		PeriodID:     result.BookTx.PeriodID,
		EventID:      input.EventID,
		CreatedAt:    s.Now(),
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Distribute pays cash out against a member's capital, mirrored in both
// worlds. A distribution may never drive the member's book capital
// negative; tax capital is allowed to go negative, since the tax basis can
// legitimately sit below book.
func (s *CapitalService) Distribute(ctx context.Context, input DistributionInput) (*DistributionResult, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("distribution amount must be positive")
	}
	pair, err := s.CapitalRepo.GetPair(ctx, input.MemberID)
	if err != nil {
		return nil, fmt.Errorf("member %s capital pair: %w", input.MemberID, err)
	}

	balance, err := s.Balance.Balance(ctx, pair.BookAccountID, time.Time{})
	if err != nil {
		return nil, err
	}
	if balance.LessThan(input.Amount) {
		return nil, fmt.Errorf("%w: book capital %s, requested %s", domain.ErrInsufficientCapital, balance, input.Amount)
	}

	cash, err := s.system(ctx, domain.CodeCash)
	if err != nil {
		return nil, err
	}
	control, err := s.system(ctx, domain.CodeTaxBasisControl)
	if err != nil {
		return nil, err
	}

	result := &DistributionResult{}
	result.BookTx, err = s.postOnce(ctx, input.EventID, domain.BasisBook, ledger.PostInput{
		Date:     input.Date,
		Type:     domain.TransactionTypeDistribution,
		MemberID: &input.MemberID,
		EventID:  input.EventID,
		Memo:     input.Memo,
		Entries: []ledger.EntryInput{
			{AccountID: pair.BookAccountID, Side: domain.SideDebit, Amount: input.Amount},
			{AccountID: cash.ID, Side: domain.SideCredit, Amount: input.Amount},
		},
	})
	if err != nil {
		return nil, err
	}

	result.TaxTx, err = s.postOnce(ctx, input.EventID, domain.BasisTax, ledger.PostInput{
		Date:     input.Date,
		Type:     domain.TransactionTypeDistribution,
		MemberID: &input.MemberID,
		EventID:  input.EventID,
		Memo:     input.Memo,
		Entries: []ledger.EntryInput{
			{AccountID: pair.TaxAccountID, Side: domain.SideDebit, Amount: input.Amount},
			{AccountID: control.ID, Side: domain.SideCredit, Amount: input.Amount},
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

/// DisposeLayer recognizes a layer's built-in gain for tax: the attributed
// members' tax capital catches up to book by exactly their frozen shares,
// and the layer closes.
func (s *CapitalService) DisposeLayer(ctx context.Context, input DisposalInput) (*DisposalResult, error) {
	layer, err := s.CapitalRepo.GetLayer(ctx, input.LayerID)
	if err != nil {
		return nil, err
	}
	if layer.Status == domain.LayerDisposed {
		return nil, fmt.Errorf("layer %s already disposed", layer.ID)
	}

	result := &DisposalResult{Layer: layer}
	gain := layer.BuiltInGain()

	var entries []ledger.EntryInput
	memberSide, controlSide := domain.SideCredit, domain.SideDebit
	if gain.IsNegative() {
		memberSide, controlSide = domain.SideDebit, domain.SideCredit
	}
	catchUp := decimal.Zero
	for _, attr := range layer.Attributions {
		if attr.Amount.IsZero() {
			continue
		}
		pair, err := s.CapitalRepo.GetPair(ctx, attr.MemberID)
		if err != nil {
			return nil, fmt.Errorf("attributed member %s capital pair: %w", attr.MemberID, err)
		}
		entries = append(entries, ledger.EntryInput{
			AccountID: pair.TaxAccountID,
			Side:      memberSide,
			Amount:    attr.Amount.Abs(),
		})
		catchUp = catchUp.Add(attr.Amount.Abs())
	}

	if len(entries) > 0 {
		control, err := s.system(ctx, domain.CodeTaxBasisControl)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ledger.EntryInput{
			AccountID: control.ID,
			Side:      controlSide,
			Amount:    catchUp,
		})
		result.TaxTx, err = s.postOnce(ctx, input.EventID, domain.BasisTax, ledger.PostInput{
			Date:    input.Date,
			Type:    domain.TransactionTypeDisposal,
			EventID: input.EventID,
			Memo:    input.Memo,
			Entries: entries,
		})
		if err != nil {
			return nil, err
		}
	}

	now := s.Now()
	layer.Status = domain.LayerDisposed
	layer.DisposedAt = &now
	if err := s.CapitalRepo.UpdateLayer(ctx, layer); err != nil {
		return nil, err
	}
	return result, nil
}

// Layers lists capital layers, optionally filtered by status.
func (s *CapitalService) Layers(ctx context.Context, status domain.LayerStatus) ([]*domain.CapitalLayer, error) {
	return s.CapitalRepo.ListLayers(ctx, status)
}

// resolveTaxValue applies the per-category tax rule when the event carries
// no explicit value.
func (s *CapitalService) resolveTaxValue(input ContributionInput) (decimal.Decimal, error) {
	if input.TaxValue != nil {
		if input.TaxValue.IsNegative() {
			return decimal.Zero, errors.New("contribution tax value cannot be negative")
		}
		return *input.TaxValue, nil
	}
	switch s.Tax.Rule(input.Category) {
	case config.TaxValueMirror:
		return input.BookValue, nil
	case config.TaxValueZero:
		return decimal.Zero, nil
	case config.TaxValueProvided:
		return decimal.Zero, fmt.Errorf("category %q requires an explicit tax value", input.Category)
	}
	return input.BookValue, nil
}

// carriedBookValue returns the asset's current book value from its newest
// layer, or the explicit override.
func (s *CapitalService) carriedBookValue(ctx context.Context, assetRef string, override *decimal.Decimal) (decimal.Decimal, error) {
	layers, err := s.CapitalRepo.ListLayers(ctx, "")
	if err != nil {
		return decimal.Zero, err
	}
	var newest *domain.CapitalLayer
	for _, l := range layers {
		if l.AssetRef != assetRef {
			continue
		}
		if newest == nil || l.CreatedAt.After(newest.CreatedAt) {
			newest = l
		}
	}
	if newest != nil {
		return newest.BookValue, nil
	}
	if override != nil {
		return *override, nil
	}
	return decimal.Zero, fmt.Errorf("asset %q has no layer history; supply the carried book value", assetRef)
}

// postOnce posts through the ledger unless a transaction for the event
// already exists in the target basis world.
func (s *CapitalService) postOnce(ctx context.Context, eventID string, basis domain.Basis, input ledger.PostInput) (*domain.Transaction, error) {
	if eventID != "" {
		existing, err := s.TransactionRepo.GetByEventID(ctx, eventID, basis)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return s.Ledger.Post(ctx, input)
}

// openLayer persists a layer unless one for the same event already exists.
func (s *CapitalService) openLayer(ctx context.Context, layer *domain.CapitalLayer) (*domain.CapitalLayer, error) {
	if layer.EventID != "" {
		layers, err := s.CapitalRepo.ListLayers(ctx, "")
		if err != nil {
			return nil, err
		}
		for _, l := range layers {
			if l.EventID == layer.EventID {
				return l, nil
			}
		}
	}
	if err := layer.Validate(); err != nil {
		return nil, err
	}
	if err := s.CapitalRepo.SaveLayer(ctx, layer); err != nil {
		return nil, err
	}
	return layer, nil
}

func (s *CapitalService) system(ctx context.Context, code string) (*domain.Account, error) {
	account, err := s.AccountRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("system account %s: %w", code, err)
	}
	return account, nil
}

func sortedKeys(m map[uuid.UUID]decimal.Decimal) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}
