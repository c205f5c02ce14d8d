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

// calculationRepo implements domain.CalculationRepository. The formula and
// patronage inputs are stored as JSON documents; per-member results get
// their own rows so they stay queryable.
type calculationRepo struct {
	s *Store
}

const calculationColumns = `id, period_id, formula, net_income, min_contribution, max_share, inputs, residual, supersedes_id, status, created_at, approved_at, approved_by, posted_at`

func (r *calculationRepo) Save(ctx context.Context, calc *domain.AllocationCalculation) error {
	formula, err := json.Marshal(calc.Formula)
	if err != nil {
		return fmt.Errorf("failed to encode calculation formula: %w", err)
	}
	inputs, err := json.Marshal(calc.Inputs)
	if err != nil {
		return fmt.Errorf("failed to encode calculation inputs: %w", err)
	}

	dbTx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	insertCalc := r.s.rebind(`
		INSERT INTO calculations (` + calculationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = dbTx.ExecContext(ctx, insertCalc,
		calc.ID,
		calc.PeriodID,
		string(formula),
		calc.NetIncome.String(),
		calc.MinContribution.String(),
		calc.MaxShare.String(),
		string(inputs),
		calc.Residual.String(),
		fmtUUIDPtr(calc.SupersedesID),
		string(calc.Status),
		fmtTime(calc.CreatedAt),
		fmtTimePtr(calc.ApprovedAt),
		calc.ApprovedBy,
		fmtTimePtr(calc.PostedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert calculation: %w", err)
	}

	insertLine := r.s.rebind(`
		INSERT INTO calculation_lines (calculation_id, idx, member_id, weighted_total, percentage, amount, residual)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	for i, result := range calc.Results {
		_, err = dbTx.ExecContext(ctx, insertLine,
			calc.ID,
			i,
			result.MemberID,
			result.WeightedTotal.String(),
			result.Percentage.String(),
			result.Amount.String(),
			result.Residual.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert calculation line: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update persists status transitions only. Inputs and results are frozen at
// computation time.
func (r *calculationRepo) Update(ctx context.Context, calc *domain.AllocationCalculation) error {
	query := r.s.rebind(`
		UPDATE calculations
		SET status = ?, approved_at = ?, approved_by = ?, posted_at = ?
		WHERE id = ?
	`)
	res, err := r.s.db.ExecContext(ctx, query,
		string(calc.Status),
		fmtTimePtr(calc.ApprovedAt),
		calc.ApprovedBy,
		fmtTimePtr(calc.PostedAt),
		calc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update calculation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update calculation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("calculation %s: %w", calc.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *calculationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.AllocationCalculation, error) {
	query := r.s.rebind(`SELECT ` + calculationColumns + ` FROM calculations WHERE id = ?`)
	calc, err := scanCalculation(r.s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calculation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if calc.Results, err = r.loadResults(ctx, id); err != nil {
		return nil, err
	}
	return calc, nil
}

func (r *calculationRepo) ListByPeriod(ctx context.Context, periodID uuid.UUID) ([]*domain.AllocationCalculation, error) {
	query := r.s.rebind(`
		SELECT ` + calculationColumns + ` FROM calculations
		WHERE period_id = ? ORDER BY created_at DESC, id
	`)
	rows, err := r.s.db.QueryContext(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", err)
	}
	defer rows.Close()

	var calcs []*domain.AllocationCalculation
	for rows.Next() {
		calc, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		calcs = append(calcs, calc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", err)
	}
	for _, calc := range calcs {
		if calc.Results, err = r.loadResults(ctx, calc.ID); err != nil {
			return nil, err
		}
	}
	return calcs, nil
}

func (r *calculationRepo) loadResults(ctx context.Context, calcID uuid.UUID) ([]domain.AllocationResult, error) {
	query := r.s.rebind(`
		SELECT member_id, weighted_total, percentage, amount, residual FROM calculation_lines
		WHERE calculation_id = ? ORDER BY idx
	`)
	rows, err := r.s.db.QueryContext(ctx, query, calcID)
	if err != nil {
		return nil, fmt.Errorf("failed to load calculation lines: %w", err)
	}
	defer rows.Close()

	var results []domain.AllocationResult
	for rows.Next() {
		var (
			result   domain.AllocationResult
			weighted string
			pct      string
			amount   string
			residual string
		)
		if err := rows.Scan(&result.MemberID, &weighted, &pct, &amount, &residual); err != nil {
			return nil, fmt.Errorf("failed to scan calculation line: %w", err)
		}
		if result.WeightedTotal, err = decimal.NewFromString(weighted); err != nil {
			return nil, fmt.Errorf("failed to parse weighted total %q: %w", weighted, err)
		}
		if result.Percentage, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("failed to parse percentage %q: %w", pct, err)
		}
		if result.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
		}
		if result.Residual, err = decimal.NewFromString(residual); err != nil {
			return nil, fmt.Errorf("failed to parse residual %q: %w", residual, err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load calculation lines: %w", err)
	}
	return results, nil
}

func scanCalculation(row rowScanner) (*domain.AllocationCalculation, error) {
	var (
		calc       domain.AllocationCalculation
		formula    string
		netIncome  string
		minContrib string
		maxShare   string
		inputs     string
		residual   string
		supersedes sql.NullString
		status     string
		createdAt  string
		approvedAt sql.NullString
		postedAt   sql.NullString
	)
	err := row.Scan(
		&calc.ID,
		&calc.PeriodID,
		&formula,
		&netIncome,
		&minContrib,
		&maxShare,
		&inputs,
		&residual,
		&supersedes,
		&status,
		&createdAt,
		&approvedAt,
		&calc.ApprovedBy,
		&postedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan calculation: %w", err)
	}
	calc.Status = domain.CalculationStatus(status)
	if calc.SupersedesID, err = parseUUIDPtr(supersedes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(formula), &calc.Formula); err != nil {
		return nil, fmt.Errorf("failed to decode calculation formula: %w", err)
	}
	if err := json.Unmarshal([]byte(inputs), &calc.Inputs); err != nil {
		return nil, fmt.Errorf("failed to decode calculation inputs: %w", err)
	}
	if calc.NetIncome, err = decimal.NewFromString(netIncome); err != nil {
		return nil, fmt.Errorf("failed to parse net income %q: %w", netIncome, err)
	}
	if calc.MinContribution, err = decimal.NewFromString(minContrib); err != nil {
		return nil, fmt.Errorf("failed to parse min contribution %q: %w", minContrib, err)
	}
	if calc.MaxShare, err = decimal.NewFromString(maxShare); err != nil {
		return nil, fmt.Errorf("failed to parse max share %q: %w", maxShare, err)
	}
	if calc.Residual, err = decimal.NewFromString(residual); err != nil {
		return nil, fmt.Errorf("failed to parse residual %q: %w", residual, err)
	}
	if calc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if calc.ApprovedAt, err = parseTimePtr(approvedAt); err != nil {
		return nil, err
	}
	if calc.PostedAt, err = parseTimePtr(postedAt); err != nil {
		return nil, err
	}
	return &calc, nil
}
