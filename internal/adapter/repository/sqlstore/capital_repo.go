package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/domain"
)

// capitalRepo implements domain.CapitalRepository
type capitalRepo struct {
	s *Store
}

const layerColumns = `id, asset_ref, origin, book_value, tax_basis, status, period_id, event_id, created_at, disposed_at`

func (r *capitalRepo) SavePair(ctx context.Context, pair *domain.CapitalPair) error {
	query := r.s.rebind(`
		INSERT INTO capital_pairs (member_id, book_account_id, tax_account_id, created_at)
		VALUES (?, ?, ?, ?)
	`)
	_, err := r.s.db.ExecContext(ctx, query,
		pair.MemberID,
		pair.BookAccountID,
		pair.TaxAccountID,
		fmtTime(pair.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert capital pair: %w", err)
	}
	return nil
}

func (r *capitalRepo) GetPair(ctx context.Context, memberID uuid.UUID) (*domain.CapitalPair, error) {
	query := r.s.rebind(`
		SELECT member_id, book_account_id, tax_account_id, created_at FROM capital_pairs
		WHERE member_id = ?
	`)
	var (
		pair      domain.CapitalPair
		createdAt string
	)
	err := r.s.db.QueryRowContext(ctx, query, memberID).Scan(
		&pair.MemberID,
		&pair.BookAccountID,
		&pair.TaxAccountID,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("capital pair for member %s: %w", memberID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan capital pair: %w", err)
	}
	if pair.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &pair, nil
}

func (r *capitalRepo) ListPairs(ctx context.Context) ([]*domain.CapitalPair, error) {
	query := `SELECT member_id, book_account_id, tax_account_id, created_at FROM capital_pairs ORDER BY member_id`
	rows, err := r.s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list capital pairs: %w", err)
	}
	defer rows.Close()

	var pairs []*domain.CapitalPair
	for rows.Next() {
		var (
			pair      domain.CapitalPair
			createdAt string
		)
		if err := rows.Scan(&pair.MemberID, &pair.BookAccountID, &pair.TaxAccountID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan capital pair: %w", err)
		}
		if pair.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		pairs = append(pairs, &pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list capital pairs: %w", err)
	}
	return pairs, nil
}

func (r *capitalRepo) SaveLayer(ctx context.Context, layer *domain.CapitalLayer) error {
	dbTx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	insertLayer := r.s.rebind(`
		INSERT INTO capital_layers (` + layerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = dbTx.ExecContext(ctx, insertLayer,
		layer.ID,
		layer.AssetRef,
		string(layer.Origin),
		layer.BookValue.String(),
		layer.TaxBasis.String(),
		string(layer.Status),
		layer.PeriodID,
		layer.EventID,
		fmtTime(layer.CreatedAt),
		fmtTimePtr(layer.DisposedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert capital layer: %w", err)
	}

	insertAttribution := r.s.rebind(`
		INSERT INTO layer_attributions (layer_id, idx, member_id, amount)
		VALUES (?, ?, ?, ?)
	`)
	for i, attribution := range layer.Attributions {
		_, err = dbTx.ExecContext(ctx, insertAttribution,
			layer.ID,
			i,
			attribution.MemberID,
			attribution.Amount.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert layer attribution: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateLayer persists status and disposal time. Attributions are frozen at
// creation and never change.
func (r *capitalRepo) UpdateLayer(ctx context.Context, layer *domain.CapitalLayer) error {
	query := r.s.rebind(`
		UPDATE capital_layers
		SET status = ?, disposed_at = ?
		WHERE id = ?
	`)
	res, err := r.s.db.ExecContext(ctx, query,
		string(layer.Status),
		fmtTimePtr(layer.DisposedAt),
		layer.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update capital layer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update capital layer: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("layer %s: %w", layer.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *capitalRepo) GetLayer(ctx context.Context, id uuid.UUID) (*domain.CapitalLayer, error) {
	query := r.s.rebind(`SELECT ` + layerColumns + ` FROM capital_layers WHERE id = ?`)
	layer, err := scanLayer(r.s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("layer %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if layer.Attributions, err = r.loadAttributions(ctx, id); err != nil {
		return nil, err
	}
	return layer, nil
}

func (r *capitalRepo) ListLayers(ctx context.Context, status domain.LayerStatus) ([]*domain.CapitalLayer, error) {
	query := `SELECT ` + layerColumns + ` FROM capital_layers`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list capital layers: %w", err)
	}
	defer rows.Close()

	var layers []*domain.CapitalLayer
	for rows.Next() {
		layer, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list capital layers: %w", err)
	}
	for _, layer := range layers {
		if layer.Attributions, err = r.loadAttributions(ctx, layer.ID); err != nil {
			return nil, err
		}
	}
	return layers, nil
}

func (r *capitalRepo) loadAttributions(ctx context.Context, layerID uuid.UUID) ([]domain.LayerAttribution, error) {
	query := r.s.rebind(`
		SELECT member_id, amount FROM layer_attributions
		WHERE layer_id = ? ORDER BY idx
	`)
	rows, err := r.s.db.QueryContext(ctx, query, layerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load layer attributions: %w", err)
	}
	defer rows.Close()

	var attributions []domain.LayerAttribution
	for rows.Next() {
		var (
			attribution domain.LayerAttribution
			amountStr   string
		)
		if err := rows.Scan(&attribution.MemberID, &amountStr); err != nil {
			return nil, fmt.Errorf("failed to scan layer attribution: %w", err)
		}
		if attribution.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse attribution amount %q: %w", amountStr, err)
		}
		attributions = append(attributions, attribution)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load layer attributions: %w", err)
	}
	return attributions, nil
}

func scanLayer(row rowScanner) (*domain.CapitalLayer, error) {
	var (
		layer      domain.CapitalLayer
		origin     string
		bookValue  string
		taxBasis   string
		status     string
		createdAt  string
		disposedAt sql.NullString
	)
	err := row.Scan(
		&layer.ID,
		&layer.AssetRef,
		&origin,
		&bookValue,
		&taxBasis,
		&status,
		&layer.PeriodID,
		&layer.EventID,
		&createdAt,
		&disposedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan capital layer: %w", err)
	}
	layer.Origin = domain.LayerOrigin(origin)
	layer.Status = domain.LayerStatus(status)
	if layer.BookValue, err = decimal.NewFromString(bookValue); err != nil {
		return nil, fmt.Errorf("failed to parse layer book value %q: %w", bookValue, err)
	}
	if layer.TaxBasis, err = decimal.NewFromString(taxBasis); err != nil {
		return nil, fmt.Errorf("failed to parse layer tax basis %q: %w", taxBasis, err)
	}
	if layer.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if layer.DisposedAt, err = parseTimePtr(disposedAt); err != nil {
		return nil, err
	}
	return &layer, nil
}
