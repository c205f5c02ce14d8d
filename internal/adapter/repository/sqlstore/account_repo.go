package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/coopledger/coopledger/internal/domain"
)

// accountRepo implements domain.AccountRepository
type accountRepo struct {
	s *Store
}

const accountColumns = `id, code, name, type, normal_side, parent_id, member_id, basis, active, created_at`

func (r *accountRepo) Create(ctx context.Context, account *domain.Account) error {
	query := r.s.rebind(`
		INSERT INTO accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.s.db.ExecContext(ctx, query,
		account.ID,
		account.Code,
		account.Name,
		string(account.Type),
		string(account.NormalSide),
		fmtUUIDPtr(account.ParentID),
		fmtUUIDPtr(account.MemberID),
		string(account.Basis),
		account.Active,
		fmtTime(account.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (r *accountRepo) Update(ctx context.Context, account *domain.Account) error {
	query := r.s.rebind(`
		UPDATE accounts
		SET code = ?, name = ?, parent_id = ?, active = ?
		WHERE id = ?
	`)
	res, err := r.s.db.ExecContext(ctx, query,
		account.Code,
		account.Name,
		fmtUUIDPtr(account.ParentID),
		account.Active,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", account.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := r.s.rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`)
	account, err := scanAccount(r.s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return account, err
}

func (r *accountRepo) GetByCode(ctx context.Context, code string) (*domain.Account, error) {
	query := r.s.rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE code = ?`)
	account, err := scanAccount(r.s.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account code %s: %w", code, domain.ErrNotFound)
	}
	return account, err
}

func (r *accountRepo) List(ctx context.Context) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY code`
	rows, err := r.s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		account    domain.Account
		accType    string
		normalSide string
		parentID   sql.NullString
		memberID   sql.NullString
		basis      string
		createdAt  string
	)
	err := row.Scan(
		&account.ID,
		&account.Code,
		&account.Name,
		&accType,
		&normalSide,
		&parentID,
		&memberID,
		&basis,
		&account.Active,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	account.Type = domain.AccountType(accType)
	account.NormalSide = domain.EntrySide(normalSide)
	account.Basis = domain.Basis(basis)
	if account.ParentID, err = parseUUIDPtr(parentID); err != nil {
		return nil, err
	}
	if account.MemberID, err = parseUUIDPtr(memberID); err != nil {
		return nil, err
	}
	if account.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &account, nil
}
