package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/domain"
)

// patronageRepo implements domain.PatronageRepository
type patronageRepo struct {
	s *Store
}

const patronageColumns = `id, member_id, period_id, category, amount, recorded_at, event_id`

func (r *patronageRepo) Record(ctx context.Context, p *domain.Patronage) error {
	query := r.s.rebind(`
		INSERT INTO patronage (` + patronageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.s.db.ExecContext(ctx, query,
		p.ID,
		p.MemberID,
		p.PeriodID,
		p.Category,
		p.Amount.String(),
		fmtTime(p.RecordedAt),
		p.EventID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert patronage record: %w", err)
	}
	return nil
}

func (r *patronageRepo) List(ctx context.Context, periodID uuid.UUID) ([]*domain.Patronage, error) {
	query := r.s.rebind(`
		SELECT ` + patronageColumns + ` FROM patronage
		WHERE period_id = ? ORDER BY recorded_at, id
	`)
	rows, err := r.s.db.QueryContext(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list patronage records: %w", err)
	}
	defer rows.Close()

	var records []*domain.Patronage
	for rows.Next() {
		record, err := scanPatronage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list patronage records: %w", err)
	}
	return records, nil
}

// Totals sums in Go so amounts never pass through database floats.
func (r *patronageRepo) Totals(ctx context.Context, periodID uuid.UUID) ([]domain.PatronageTotal, error) {
	records, err := r.List(ctx, periodID)
	if err != nil {
		return nil, err
	}

	type key struct {
		member   uuid.UUID
		category string
	}
	sums := make(map[key]decimal.Decimal)
	for _, record := range records {
		k := key{record.MemberID, record.Category}
		sums[k] = sums[k].Add(record.Amount)
	}

	totals := make([]domain.PatronageTotal, 0, len(sums))
	for k, amount := range sums {
		totals = append(totals, domain.PatronageTotal{
			MemberID: k.member,
			Category: k.category,
			Amount:   amount,
		})
	}
	sort.Slice(totals, func(i, j int) bool {
		if c := bytes.Compare(totals[i].MemberID[:], totals[j].MemberID[:]); c != 0 {
			return c < 0
		}
		return totals[i].Category < totals[j].Category
	})
	return totals, nil
}

func scanPatronage(row rowScanner) (*domain.Patronage, error) {
	var (
		record     domain.Patronage
		amountStr  string
		recordedAt string
	)
	err := row.Scan(
		&record.ID,
		&record.MemberID,
		&record.PeriodID,
		&record.Category,
		&amountStr,
		&recordedAt,
		&record.EventID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan patronage record: %w", err)
	}
	if record.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse patronage amount %q: %w", amountStr, err)
	}
	if record.RecordedAt, err = parseTime(recordedAt); err != nil {
		return nil, err
	}
	return &record, nil
}
