package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/domain"
)

// transactionRepo implements domain.TransactionRepository
type transactionRepo struct {
	s *Store
}

const transactionColumns = `id, seq, date, posted_at, period_id, basis, type, member_id, event_id, accrual, reversal_of, memo`

// entryChunk bounds the IN clause when loading entries for many transactions.
const entryChunk = 500

func (r *transactionRepo) Post(ctx context.Context, tx *domain.Transaction) error {
	dbTx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	// The counter row serializes sequence assignment; the returned value is
	// this posting's position in the ledger.
	var seq int64
	err = dbTx.QueryRowContext(ctx, r.s.rebind(
		`UPDATE ledger_seq SET value = value + 1 WHERE id = 1 RETURNING value`,
	)).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to advance ledger sequence: %w", err)
	}

	var eventID any
	if tx.EventID != "" {
		eventID = tx.EventID
		var dup string
		err := dbTx.QueryRowContext(ctx, r.s.rebind(
			`SELECT id FROM transactions WHERE event_id = ? AND basis = ?`,
		), tx.EventID, string(tx.Basis)).Scan(&dup)
		switch {
		case err == nil:
			return fmt.Errorf("%w: event %s already posted as %s", domain.ErrDuplicateEvent, tx.EventID, dup)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check event uniqueness: %w", err)
		}
	}

	insertTx := r.s.rebind(`
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = dbTx.ExecContext(ctx, insertTx,
		tx.ID,
		seq,
		fmtTime(tx.Date),
		fmtTime(tx.PostedAt),
		tx.PeriodID,
		string(tx.Basis),
		string(tx.Type),
		fmtUUIDPtr(tx.MemberID),
		eventID,
		tx.Accrual,
		fmtUUIDPtr(tx.ReversalOf),
		tx.Memo,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	insertEntry := r.s.rebind(`
		INSERT INTO entries (transaction_id, idx, account_id, side, amount)
		VALUES (?, ?, ?, ?, ?)
	`)
	for i, entry := range tx.Entries {
		_, err = dbTx.ExecContext(ctx, insertEntry,
			tx.ID,
			i,
			entry.AccountID,
			string(entry.Side),
			entry.Amount.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction entry: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx.Seq = uint64(seq)
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := r.s.rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`)
	tx, err := scanTransaction(r.s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadEntries(ctx, []*domain.Transaction{tx}); err != nil {
		return nil, err
	}
	return tx, nil
}

func (r *transactionRepo) GetByEventID(ctx context.Context, eventID string, basis domain.Basis) (*domain.Transaction, error) {
	query := r.s.rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE event_id = ? AND basis = ?`)
	tx, err := scanTransaction(r.s.db.QueryRowContext(ctx, query, eventID, string(basis)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s in %s world: %w", eventID, basis, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadEntries(ctx, []*domain.Transaction{tx}); err != nil {
		return nil, err
	}
	return tx, nil
}

func (r *transactionRepo) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	var (
		where []string
		args  []any
	)
	if len(filter.AccountIDs) > 0 {
		where = append(where,
			`EXISTS (SELECT 1 FROM entries e WHERE e.transaction_id = transactions.id AND e.account_id IN (`+placeholders(len(filter.AccountIDs))+`))`)
		for _, id := range filter.AccountIDs {
			args = append(args, id)
		}
	}
	if filter.PeriodID != nil {
		where = append(where, `period_id = ?`)
		args = append(args, *filter.PeriodID)
	}
	if filter.MemberID != nil {
		where = append(where, `member_id = ?`)
		args = append(args, *filter.MemberID)
	}
	if filter.Basis != nil {
		where = append(where, `basis = ?`)
		args = append(args, string(*filter.Basis))
	}
	if len(filter.Types) > 0 {
		where = append(where, `type IN (`+placeholders(len(filter.Types))+`)`)
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if filter.ReversalOf != nil {
		where = append(where, `reversal_of = ?`)
		args = append(args, *filter.ReversalOf)
	}
	if filter.From != nil {
		where = append(where, `date >= ?`)
		args = append(args, fmtTime(*filter.From))
	}
	if filter.To != nil {
		where = append(where, `date < ?`)
		args = append(args, fmtTime(*filter.To))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY seq`
	if filter.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}

	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	if err := r.loadEntries(ctx, txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *transactionRepo) MaxSeq(ctx context.Context) (uint64, error) {
	var seq int64
	err := r.s.db.QueryRowContext(ctx, `SELECT value FROM ledger_seq WHERE id = 1`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger sequence: %w", err)
	}
	return uint64(seq), nil
}

// loadEntries fills Entries for each transaction, preserving posting order.
func (r *transactionRepo) loadEntries(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*domain.Transaction, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
	}

	ids := make([]uuid.UUID, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	for start := 0; start < len(ids); start += entryChunk {
		end := start + entryChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		query := r.s.rebind(`
			SELECT transaction_id, account_id, side, amount FROM entries
			WHERE transaction_id IN (` + placeholders(len(chunk)) + `)
			ORDER BY transaction_id, idx
		`)
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := r.s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to load transaction entries: %w", err)
		}
		for rows.Next() {
			var (
				txID      uuid.UUID
				entry     domain.Entry
				side      string
				amountStr string
			)
			if err := rows.Scan(&txID, &entry.AccountID, &side, &amountStr); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan transaction entry: %w", err)
			}
			entry.Side = domain.EntrySide(side)
			if entry.Amount, err = decimal.NewFromString(amountStr); err != nil {
				rows.Close()
				return fmt.Errorf("failed to parse entry amount %q: %w", amountStr, err)
			}
			byID[txID].Entries = append(byID[txID].Entries, entry)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("failed to load transaction entries: %w", err)
		}
		rows.Close()
	}
	return nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx         domain.Transaction
		seq        int64
		date       string
		postedAt   string
		basis      string
		txType     string
		memberID   sql.NullString
		eventID    sql.NullString
		reversalOf sql.NullString
	)
	err := row.Scan(
		&tx.ID,
		&seq,
		&date,
		&postedAt,
		&tx.PeriodID,
		&basis,
		&txType,
		&memberID,
		&eventID,
		&tx.Accrual,
		&reversalOf,
		&tx.Memo,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	tx.Seq = uint64(seq)
	tx.Basis = domain.Basis(basis)
	tx.Type = domain.TransactionType(txType)
	tx.EventID = eventID.String
	if tx.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if tx.PostedAt, err = parseTime(postedAt); err != nil {
		return nil, err
	}
	if tx.MemberID, err = parseUUIDPtr(memberID); err != nil {
		return nil, err
	}
	if tx.ReversalOf, err = parseUUIDPtr(reversalOf); err != nil {
		return nil, err
	}
	return &tx, nil
}

// placeholders returns n comma-separated ? markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
