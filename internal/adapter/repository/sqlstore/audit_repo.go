package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/coopledger/coopledger/internal/domain"
)

// auditRepo implements domain.AuditRepository
type auditRepo struct {
	s *Store
}

func (r *auditRepo) Record(ctx context.Context, record *domain.AuditRecord) error {
	query := r.s.rebind(`
		INSERT INTO audit_records (id, action, period_id, actor, reason, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := r.s.db.ExecContext(ctx, query,
		record.ID,
		record.Action,
		fmtUUIDPtr(record.PeriodID),
		record.Actor,
		record.Reason,
		fmtTime(record.At),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

func (r *auditRepo) List(ctx context.Context, periodID *uuid.UUID) ([]*domain.AuditRecord, error) {
	query := `SELECT id, action, period_id, actor, reason, at FROM audit_records`
	var args []any
	if periodID != nil {
		query += ` WHERE period_id = ?`
		args = append(args, *periodID)
	}
	query += ` ORDER BY at, id`

	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var (
			record   domain.AuditRecord
			periodID sql.NullString
			at       string
		)
		err := rows.Scan(&record.ID, &record.Action, &periodID, &record.Actor, &record.Reason, &at)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if record.PeriodID, err = parseUUIDPtr(periodID); err != nil {
			return nil, err
		}
		if record.At, err = parseTime(at); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, nil
}
