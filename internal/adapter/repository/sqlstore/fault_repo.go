package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coopledger/coopledger/internal/domain"
)

// faultRepo implements domain.FaultRepository
type faultRepo struct {
	s *Store
}

const faultColumns = `id, basis, detail, seq, detected_at, resolved_at, resolved_by, note`

func (r *faultRepo) Save(ctx context.Context, fault *domain.ConsistencyFault) error {
	query := r.s.rebind(`
		INSERT INTO faults (` + faultColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.s.db.ExecContext(ctx, query,
		fault.ID,
		string(fault.Basis),
		fault.Detail,
		int64(fault.Seq),
		fmtTime(fault.DetectedAt),
		fmtTimePtr(fault.ResolvedAt),
		fault.ResolvedBy,
		fault.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fault: %w", err)
	}
	return nil
}

func (r *faultRepo) Resolve(ctx context.Context, id uuid.UUID, by, note string, at time.Time) error {
	query := r.s.rebind(`
		UPDATE faults
		SET resolved_at = ?, resolved_by = ?, note = ?
		WHERE id = ? AND resolved_at IS NULL
	`)
	res, err := r.s.db.ExecContext(ctx, query, fmtTime(at), by, note, id)
	if err != nil {
		return fmt.Errorf("failed to resolve fault: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve fault: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Zero rows: either the fault does not exist or it was already resolved.
	var one int
	err = r.s.db.QueryRowContext(ctx, r.s.rebind(`SELECT 1 FROM faults WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("fault %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve fault: %w", err)
	}
	return fmt.Errorf("fault %s already resolved", id)
}

func (r *faultRepo) Open(ctx context.Context, basis domain.Basis) ([]*domain.ConsistencyFault, error) {
	query := r.s.rebind(`
		SELECT ` + faultColumns + ` FROM faults
		WHERE basis = ? AND resolved_at IS NULL
		ORDER BY detected_at, id
	`)
	rows, err := r.s.db.QueryContext(ctx, query, string(basis))
	if err != nil {
		return nil, fmt.Errorf("failed to list open faults: %w", err)
	}
	return collectFaults(rows)
}

func (r *faultRepo) List(ctx context.Context) ([]*domain.ConsistencyFault, error) {
	query := `SELECT ` + faultColumns + ` FROM faults ORDER BY detected_at, id`
	rows, err := r.s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list faults: %w", err)
	}
	return collectFaults(rows)
}

func collectFaults(rows *sql.Rows) ([]*domain.ConsistencyFault, error) {
	defer rows.Close()

	var faults []*domain.ConsistencyFault
	for rows.Next() {
		var (
			fault      domain.ConsistencyFault
			basis      string
			seq        int64
			detectedAt string
			resolvedAt sql.NullString
		)
		err := rows.Scan(
			&fault.ID,
			&basis,
			&fault.Detail,
			&seq,
			&detectedAt,
			&resolvedAt,
			&fault.ResolvedBy,
			&fault.Note,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fault: %w", err)
		}
		fault.Basis = domain.Basis(basis)
		fault.Seq = uint64(seq)
		if fault.DetectedAt, err = parseTime(detectedAt); err != nil {
			return nil, err
		}
		if fault.ResolvedAt, err = parseTimePtr(resolvedAt); err != nil {
			return nil, err
		}
		faults = append(faults, &fault)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list faults: %w", err)
	}
	return faults, nil
}
