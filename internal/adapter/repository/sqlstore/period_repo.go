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

// periodRepo implements domain.PeriodRepository
type periodRepo struct {
	s *Store
}

const periodColumns = `id, name, start_at, end_at, status, closed_at, locked_at, created_at`

func (r *periodRepo) Create(ctx context.Context, period *domain.Period) error {
	query := r.s.rebind(`
		INSERT INTO periods (` + periodColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.s.db.ExecContext(ctx, query,
		period.ID,
		period.Name,
		fmtTime(period.Start),
		fmtTime(period.End),
		string(period.Status),
		fmtTimePtr(period.ClosedAt),
		fmtTimePtr(period.LockedAt),
		fmtTime(period.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert period: %w", err)
	}
	return nil
}

func (r *periodRepo) Update(ctx context.Context, period *domain.Period) error {
	query := r.s.rebind(`
		UPDATE periods
		SET status = ?, closed_at = ?, locked_at = ?
		WHERE id = ?
	`)
	res, err := r.s.db.ExecContext(ctx, query,
		string(period.Status),
		fmtTimePtr(period.ClosedAt),
		fmtTimePtr(period.LockedAt),
		period.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update period: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update period: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("period %s: %w", period.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *periodRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Period, error) {
	query := r.s.rebind(`SELECT ` + periodColumns + ` FROM periods WHERE id = ?`)
	period, err := scanPeriod(r.s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("period %s: %w", id, domain.ErrNotFound)
	}
	return period, err
}

func (r *periodRepo) GetByName(ctx context.Context, name string) (*domain.Period, error) {
	query := r.s.rebind(`SELECT ` + periodColumns + ` FROM periods WHERE name = ?`)
	period, err := scanPeriod(r.s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("period %s: %w", name, domain.ErrNotFound)
	}
	return period, err
}

func (r *periodRepo) GetAt(ctx context.Context, date time.Time) (*domain.Period, error) {
	// Start inclusive, end exclusive. The fixed-width time format makes the
	// string comparison chronological.
	query := r.s.rebind(`SELECT ` + periodColumns + ` FROM periods WHERE start_at <= ? AND end_at > ?`)
	d := fmtTime(date)
	period, err := scanPeriod(r.s.db.QueryRowContext(ctx, query, d, d))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no period contains %s: %w", date.Format(time.RFC3339), domain.ErrNotFound)
	}
	return period, err
}

func (r *periodRepo) List(ctx context.Context) ([]*domain.Period, error) {
	query := `SELECT ` + periodColumns + ` FROM periods ORDER BY start_at`
	rows, err := r.s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	defer rows.Close()

	var periods []*domain.Period
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	return periods, nil
}

func (r *periodRepo) SaveCloseState(ctx context.Context, state *domain.CloseState) error {
	query := r.s.rebind(`
		INSERT INTO close_states (period_id, step, calculation_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (period_id) DO UPDATE
		SET step = excluded.step, calculation_id = excluded.calculation_id, updated_at = excluded.updated_at
	`)
	_, err := r.s.db.ExecContext(ctx, query,
		state.PeriodID,
		string(state.Step),
		fmtUUIDPtr(state.CalculationID),
		fmtTime(state.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save close state: %w", err)
	}
	return nil
}

func (r *periodRepo) GetCloseState(ctx context.Context, periodID uuid.UUID) (*domain.CloseState, error) {
	query := r.s.rebind(`SELECT period_id, step, calculation_id, updated_at FROM close_states WHERE period_id = ?`)
	var (
		state         domain.CloseState
		step          string
		calculationID sql.NullString
		updatedAt     string
	)
	err := r.s.db.QueryRowContext(ctx, query, periodID).Scan(&state.PeriodID, &step, &calculationID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("close state for period %s: %w", periodID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan close state: %w", err)
	}
	state.Step = domain.CloseStep(step)
	if state.CalculationID, err = parseUUIDPtr(calculationID); err != nil {
		return nil, err
	}
	if state.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &state, nil
}

func scanPeriod(row rowScanner) (*domain.Period, error) {
	var (
		period   domain.Period
		start    string
		end      string
		status   string
		closedAt sql.NullString
		lockedAt sql.NullString
		created  string
	)
	err := row.Scan(
		&period.ID,
		&period.Name,
		&start,
		&end,
		&status,
		&closedAt,
		&lockedAt,
		&created,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan period: %w", err)
	}
	period.Status = domain.PeriodStatus(status)
	if period.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if period.End, err = parseTime(end); err != nil {
		return nil, err
	}
	if period.ClosedAt, err = parseTimePtr(closedAt); err != nil {
		return nil, err
	}
	if period.LockedAt, err = parseTimePtr(lockedAt); err != nil {
		return nil, err
	}
	if period.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &period, nil
}
