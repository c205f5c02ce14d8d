package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/domain"
)

// snapshotRepo implements domain.SnapshotRepository. Per-account balances
// are stored as one JSON document per snapshot; they are only ever read
// back whole.
type snapshotRepo struct {
	s *Store
}

func (r *snapshotRepo) Save(ctx context.Context, snapshot *domain.BalanceSnapshot) error {
	balances, err := json.Marshal(snapshot.Balances)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot balances: %w", err)
	}
	query := r.s.rebind(`
		INSERT INTO snapshots (id, period_id, basis, taken_at, void, balances)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err = r.s.db.ExecContext(ctx, query,
		snapshot.ID,
		snapshot.PeriodID,
		string(snapshot.Basis),
		fmtTime(snapshot.TakenAt),
		snapshot.Void,
		string(balances),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepo) GetByPeriod(ctx context.Context, periodID uuid.UUID, basis domain.Basis) (*domain.BalanceSnapshot, error) {
	query := r.s.rebind(`
		SELECT id, period_id, basis, taken_at, void, balances FROM snapshots
		WHERE period_id = ? AND basis = ? AND void = FALSE
		ORDER BY taken_at DESC LIMIT 1
	`)
	var (
		snapshot    domain.BalanceSnapshot
		basisStr    string
		takenAt     string
		balancesDoc string
	)
	err := r.s.db.QueryRowContext(ctx, query, periodID, string(basis)).Scan(
		&snapshot.ID,
		&snapshot.PeriodID,
		&basisStr,
		&takenAt,
		&snapshot.Void,
		&balancesDoc,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot for period %s (%s): %w", periodID, basis, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	snapshot.Basis = domain.Basis(basisStr)
	if snapshot.TakenAt, err = parseTime(takenAt); err != nil {
		return nil, err
	}
	snapshot.Balances = make(map[uuid.UUID]decimal.Decimal)
	if err := json.Unmarshal([]byte(balancesDoc), &snapshot.Balances); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot balances: %w", err)
	}
	return &snapshot, nil
}

func (r *snapshotRepo) Void(ctx context.Context, id uuid.UUID) error {
	query := r.s.rebind(`UPDATE snapshots SET void = TRUE WHERE id = ?`)
	res, err := r.s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to void snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to void snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("snapshot %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
