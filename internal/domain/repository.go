package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccountRepository defines the interface for account persistence operations
type AccountRepository interface {
	// Create creates a new account
	Create(ctx context.Context, account *Account) error

	// Update persists changes to an existing account (rename, deactivate,
	// reparent). Type and basis never change after creation.
	Update(ctx context.Context, account *Account) error

	// GetByID retrieves an account by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// GetByCode retrieves an account by its chart code
	GetByCode(ctx context.Context, code string) (*Account, error)

	// List retrieves all accounts
	List(ctx context.Context) ([]*Account, error)
}

// TransactionFilter narrows transaction listings. Nil or empty fields match
// everything.
type TransactionFilter struct {
	// AccountIDs matches transactions with at least one entry touching any
	// of these accounts.
	AccountIDs []uuid.UUID
	PeriodID   *uuid.UUID
	MemberID   *uuid.UUID
	Basis      *Basis
	Types      []TransactionType
	ReversalOf *uuid.UUID
	// From (inclusive) and To (exclusive) bound the effective date.
	From *time.Time
	To   *time.Time
	// Limit caps the result size; zero means no cap.
	Limit int
}

// TransactionRepository defines the interface for transaction persistence
// operations. The log is append-only: there is no update or delete.
type TransactionRepository interface {
	// Post assigns the next sequence number and inserts the transaction
	// with its entries atomically.
	Post(ctx context.Context, tx *Transaction) error

	// GetByID retrieves a transaction by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetByEventID retrieves the transaction posted for a feed event in
	// the given basis world, or ErrNotFound if none was posted yet.
	GetByEventID(ctx context.Context, eventID string, basis Basis) (*Transaction, error)

	// List retrieves transactions matching the filter, ordered by sequence
	List(ctx context.Context, filter TransactionFilter) ([]*Transaction, error)

	// MaxSeq returns the highest assigned sequence number, zero when the
	// ledger is empty.
	MaxSeq(ctx context.Context) (uint64, error)
}

// PeriodRepository defines the interface for period persistence operations
type PeriodRepository interface {
	// Create creates a new period
	Create(ctx context.Context, period *Period) error

	// Update persists status transitions and timestamps
	Update(ctx context.Context, period *Period) error

	// GetByID retrieves a period by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Period, error)

	// GetByName retrieves a period by its name
	GetByName(ctx context.Context, name string) (*Period, error)

	// GetAt retrieves the period containing the given effective date
	GetAt(ctx context.Context, date time.Time) (*Period, error)

	// List retrieves all periods ordered by start date
	List(ctx context.Context) ([]*Period, error)

	// SaveCloseState upserts the close progress marker for a period
	SaveCloseState(ctx context.Context, state *CloseState) error

	// GetCloseState retrieves the close progress marker, or ErrNotFound
	// when no close has started.
	GetCloseState(ctx context.Context, periodID uuid.UUID) (*CloseState, error)
}

// SnapshotRepository defines the interface for balance snapshot persistence
type SnapshotRepository interface {
	// Save stores a snapshot
	Save(ctx context.Context, snapshot *BalanceSnapshot) error

	// GetByPeriod retrieves the non-void snapshot for a period and basis,
	// or ErrNotFound.
	GetByPeriod(ctx context.Context, periodID uuid.UUID, basis Basis) (*BalanceSnapshot, error)

	// Void marks a snapshot void. Snapshots are never deleted.
	Void(ctx context.Context, id uuid.UUID) error
}

// MemberRepository defines the interface for member persistence operations
type MemberRepository interface {
	// Create creates a new member
	Create(ctx context.Context, member *Member) error

	// Update persists changes to an existing member
	Update(ctx context.Context, member *Member) error

	// GetByID retrieves a member by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Member, error)

	// GetByCode retrieves a member by its code
	GetByCode(ctx context.Context, code string) (*Member, error)

	// List retrieves all members
	List(ctx context.Context) ([]*Member, error)
}

// PatronageRepository defines the interface for patronage activity records
type PatronageRepository interface {
	// Record stores one patronage activity record
	Record(ctx context.Context, p *Patronage) error

	// List retrieves all records for a period
	List(ctx context.Context, periodID uuid.UUID) ([]*Patronage, error)

	// Totals sums records per member and category for a period
	Totals(ctx context.Context, periodID uuid.UUID) ([]PatronageTotal, error)
}

// CapitalRepository defines the interface for capital pairs and layers
type CapitalRepository interface {
	// SavePair stores a member's capital account pair
	SavePair(ctx context.Context, pair *CapitalPair) error

	// GetPair retrieves a member's capital account pair
	GetPair(ctx context.Context, memberID uuid.UUID) (*CapitalPair, error)

	// ListPairs retrieves all capital account pairs
	ListPairs(ctx context.Context) ([]*CapitalPair, error)

	// SaveLayer stores a new capital layer
	SaveLayer(ctx context.Context, layer *CapitalLayer) error

	// UpdateLayer persists layer disposal
	UpdateLayer(ctx context.Context, layer *CapitalLayer) error

	// GetLayer retrieves a layer by its ID
	GetLayer(ctx context.Context, id uuid.UUID) (*CapitalLayer, error)

	// ListLayers retrieves layers, optionally filtered by status.
	// An empty status matches all layers.
	ListLayers(ctx context.Context, status LayerStatus) ([]*CapitalLayer, error)
}

// CalculationRepository defines the interface for stored allocation
// calculations
type CalculationRepository interface {
	// Save stores a new calculation
	Save(ctx context.Context, calc *AllocationCalculation) error

	// Update persists status transitions
	Update(ctx context.Context, calc *AllocationCalculation) error

	// GetByID retrieves a calculation by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*AllocationCalculation, error)

	// ListByPeriod retrieves a period's calculations, newest first
	ListByPeriod(ctx context.Context, periodID uuid.UUID) ([]*AllocationCalculation, error)
}

// EventRepository defines the interface for the processed-event marker set
type EventRepository interface {
	// MarkProcessed inserts the marker if absent. It returns false when
	// the event was already marked, which is how concurrent duplicate
	// deliveries lose the race.
	MarkProcessed(ctx context.Context, event *ProcessedEvent) (bool, error)

	// IsProcessed reports whether the event was already applied
	IsProcessed(ctx context.Context, eventID string) (bool, error)
}

// FaultRepository defines the interface for consistency fault persistence
type FaultRepository interface {
	// Save stores a detected fault
	Save(ctx context.Context, fault *ConsistencyFault) error

	// Resolve marks a fault resolved
	Resolve(ctx context.Context, id uuid.UUID, by, note string, at time.Time) error

	// Open retrieves unresolved faults for a basis world
	Open(ctx context.Context, basis Basis) ([]*ConsistencyFault, error)

	// List retrieves all faults
	List(ctx context.Context) ([]*ConsistencyFault, error)
}

// AuditRepository defines the interface for the append-only audit trail
type AuditRepository interface {
	// Record appends an audit record
	Record(ctx context.Context, record *AuditRecord) error

	// List retrieves audit records, optionally filtered by period
	List(ctx context.Context, periodID *uuid.UUID) ([]*AuditRecord, error)
}

// Store bundles every repository behind one handle so wiring code can pass
// a single value around. Implementations share one underlying database.
type Store interface {
	Accounts() AccountRepository
	Transactions() TransactionRepository
	Periods() PeriodRepository
	Snapshots() SnapshotRepository
	Members() MemberRepository
	Patronage() PatronageRepository
	Capital() CapitalRepository
	Calculations() CalculationRepository
	Events() EventRepository
	Faults() FaultRepository
	Audit() AuditRepository

	// Ping verifies the store is reachable
	Ping(ctx context.Context) error

	// Close releases the store's resources
	Close() error
}
