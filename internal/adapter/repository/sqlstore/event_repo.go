package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coopledger/coopledger/internal/domain"
)

// eventRepo implements domain.EventRepository
type eventRepo struct {
	s *Store
}

// MarkProcessed relies on the primary key: of two concurrent deliveries
// exactly one insert lands, and the loser sees zero rows affected.
func (r *eventRepo) MarkProcessed(ctx context.Context, event *domain.ProcessedEvent) (bool, error) {
	query := r.s.rebind(`
		INSERT INTO processed_events (event_id, processed_at, outcome)
		VALUES (?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`)
	res, err := r.s.db.ExecContext(ctx, query,
		event.EventID,
		fmtTime(event.ProcessedAt),
		event.Outcome,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	return n > 0, nil
}

func (r *eventRepo) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	query := r.s.rebind(`SELECT 1 FROM processed_events WHERE event_id = ?`)
	var one int
	err := r.s.db.QueryRowContext(ctx, query, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check event marker: %w", err)
	}
	return true, nil
}
