package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"       // postgres driver
	_ "modernc.org/sqlite"      // pure go sqlite driver

	"github.com/coopledger/coopledger/internal/domain"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// timeLayout is a fixed-width UTC format so that stored timestamps compare
// lexicographically in date-range queries.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements domain.Store over database/sql, against either the
// embedded sqlite driver or postgres. Queries are written with ? markers
// and rebound for postgres.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects, migrates the schema, and returns the store.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if driver == DriverSQLite {
		// The embedded driver is a single-writer engine; one connection
		// keeps posting serialized without busy errors.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for pool tuning.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Accounts() domain.AccountRepository         { return &accountRepo{s} }
func (s *Store) Transactions() domain.TransactionRepository { return &transactionRepo{s} }
func (s *Store) Periods() domain.PeriodRepository           { return &periodRepo{s} }
func (s *Store) Snapshots() domain.SnapshotRepository       { return &snapshotRepo{s} }
func (s *Store) Members() domain.MemberRepository           { return &memberRepo{s} }
func (s *Store) Patronage() domain.PatronageRepository      { return &patronageRepo{s} }
func (s *Store) Capital() domain.CapitalRepository          { return &capitalRepo{s} }
func (s *Store) Calculations() domain.CalculationRepository { return &calculationRepo{s} }
func (s *Store) Events() domain.EventRepository             { return &eventRepo{s} }
func (s *Store) Faults() domain.FaultRepository             { return &faultRepo{s} }
func (s *Store) Audit() domain.AuditRepository              { return &auditRepo{s} }

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id          TEXT PRIMARY KEY,
		code        TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		type        TEXT NOT NULL,
		normal_side TEXT NOT NULL,
		parent_id   TEXT,
		member_id   TEXT,
		basis       TEXT NOT NULL DEFAULT '',
		active      BOOLEAN NOT NULL,
		created_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_seq (
		id    INTEGER PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	`INSERT INTO ledger_seq (id, value) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id          TEXT PRIMARY KEY,
		seq         BIGINT NOT NULL UNIQUE,
		date        TEXT NOT NULL,
		posted_at   TEXT NOT NULL,
		period_id   TEXT NOT NULL,
		basis       TEXT NOT NULL,
		type        TEXT NOT NULL,
		member_id   TEXT,
		event_id    TEXT,
		accrual     BOOLEAN NOT NULL,
		reversal_of TEXT,
		memo        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_event_basis
		ON transactions (event_id, basis) WHERE event_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_period ON transactions (period_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions (date)`,
	`CREATE TABLE IF NOT EXISTS entries (
		transaction_id TEXT NOT NULL REFERENCES transactions (id),
		idx            INTEGER NOT NULL,
		account_id     TEXT NOT NULL,
		side           TEXT NOT NULL,
		amount         TEXT NOT NULL,
		PRIMARY KEY (transaction_id, idx)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_account ON entries (account_id)`,
	`CREATE TABLE IF NOT EXISTS periods (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		start_at   TEXT NOT NULL,
		end_at     TEXT NOT NULL,
		status     TEXT NOT NULL,
		closed_at  TEXT,
		locked_at  TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS close_states (
		period_id      TEXT PRIMARY KEY,
		step           TEXT NOT NULL DEFAULT '',
		calculation_id TEXT,
		updated_at     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id        TEXT PRIMARY KEY,
		period_id TEXT NOT NULL,
		basis     TEXT NOT NULL,
		taken_at  TEXT NOT NULL,
		void      BOOLEAN NOT NULL,
		balances  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_period ON snapshots (period_id, basis)`,
	`CREATE TABLE IF NOT EXISTS members (
		id                  TEXT PRIMARY KEY,
		code                TEXT NOT NULL UNIQUE,
		name                TEXT NOT NULL,
		joined_at           TEXT NOT NULL,
		active              BOOLEAN NOT NULL,
		deficit_restoration BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS patronage (
		id          TEXT PRIMARY KEY,
		member_id   TEXT NOT NULL,
		period_id   TEXT NOT NULL,
		category    TEXT NOT NULL,
		amount      TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		event_id    TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patronage_period ON patronage (period_id)`,
	`CREATE TABLE IF NOT EXISTS capital_pairs (
		member_id       TEXT PRIMARY KEY,
		book_account_id TEXT NOT NULL,
		tax_account_id  TEXT NOT NULL,
		created_at      TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS capital_layers (
		id          TEXT PRIMARY KEY,
		asset_ref   TEXT NOT NULL,
		origin      TEXT NOT NULL,
		book_value  TEXT NOT NULL,
		tax_basis   TEXT NOT NULL,
		status      TEXT NOT NULL,
		period_id   TEXT NOT NULL,
		event_id    TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		disposed_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_capital_layers_asset ON capital_layers (asset_ref)`,
	`CREATE TABLE IF NOT EXISTS layer_attributions (
		layer_id  TEXT NOT NULL REFERENCES capital_layers (id),
		idx       INTEGER NOT NULL,
		member_id TEXT NOT NULL,
		amount    TEXT NOT NULL,
		PRIMARY KEY (layer_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS calculations (
		id               TEXT PRIMARY KEY,
		period_id        TEXT NOT NULL,
		formula          TEXT NOT NULL,
		net_income       TEXT NOT NULL,
		min_contribution TEXT NOT NULL,
		max_share        TEXT NOT NULL,
		inputs           TEXT NOT NULL,
		residual         TEXT NOT NULL,
		supersedes_id    TEXT,
		status           TEXT NOT NULL,
		created_at       TEXT NOT NULL,
		approved_at      TEXT,
		approved_by      TEXT NOT NULL DEFAULT '',
		posted_at        TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calculations_period ON calculations (period_id)`,
	`CREATE TABLE IF NOT EXISTS calculation_lines (
		calculation_id TEXT NOT NULL REFERENCES calculations (id),
		idx            INTEGER NOT NULL,
		member_id      TEXT NOT NULL,
		weighted_total TEXT NOT NULL,
		percentage     TEXT NOT NULL,
		amount         TEXT NOT NULL,
		residual       TEXT NOT NULL,
		PRIMARY KEY (calculation_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
		event_id     TEXT PRIMARY KEY,
		processed_at TEXT NOT NULL,
		outcome      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS faults (
		id          TEXT PRIMARY KEY,
		basis       TEXT NOT NULL,
		detail      TEXT NOT NULL,
		seq         BIGINT NOT NULL,
		detected_at TEXT NOT NULL,
		resolved_at TEXT,
		resolved_by TEXT NOT NULL DEFAULT '',
		note        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS audit_records (
		id        TEXT PRIMARY KEY,
		action    TEXT NOT NULL,
		period_id TEXT,
		actor     TEXT NOT NULL,
		reason    TEXT NOT NULL DEFAULT '',
		at        TEXT NOT NULL
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres. Queries contain no
// literal question marks.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func fmtUUIDPtr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseUUIDPtr(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored uuid %q: %w", ns.String, err)
	}
	return &id, nil
}
