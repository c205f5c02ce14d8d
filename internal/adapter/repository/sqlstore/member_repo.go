package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/coopledger/coopledger/internal/domain"
)

// memberRepo implements domain.MemberRepository
type memberRepo struct {
	s *Store
}

const memberColumns = `id, code, name, joined_at, active, deficit_restoration`

func (r *memberRepo) Create(ctx context.Context, member *domain.Member) error {
	query := r.s.rebind(`
		INSERT INTO members (` + memberColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := r.s.db.ExecContext(ctx, query,
		member.ID,
		member.Code,
		member.Name,
		fmtTime(member.JoinedAt),
		member.Active,
		member.DeficitRestoration,
	)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (r *memberRepo) Update(ctx context.Context, member *domain.Member) error {
	query := r.s.rebind(`
		UPDATE members
		SET code = ?, name = ?, active = ?, deficit_restoration = ?
		WHERE id = ?
	`)
	res, err := r.s.db.ExecContext(ctx, query,
		member.Code,
		member.Name,
		member.Active,
		member.DeficitRestoration,
		member.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("member %s: %w", member.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *memberRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	query := r.s.rebind(`SELECT ` + memberColumns + ` FROM members WHERE id = ?`)
	member, err := scanMember(r.s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %s: %w", id, domain.ErrNotFound)
	}
	return member, err
}

func (r *memberRepo) GetByCode(ctx context.Context, code string) (*domain.Member, error) {
	query := r.s.rebind(`SELECT ` + memberColumns + ` FROM members WHERE code = ?`)
	member, err := scanMember(r.s.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member code %s: %w", code, domain.ErrNotFound)
	}
	return member, err
}

func (r *memberRepo) List(ctx context.Context) ([]*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members ORDER BY code`
	rows, err := r.s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

func scanMember(row rowScanner) (*domain.Member, error) {
	var (
		member   domain.Member
		joinedAt string
	)
	err := row.Scan(
		&member.ID,
		&member.Code,
		&member.Name,
		&joinedAt,
		&member.Active,
		&member.DeficitRestoration,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}
	if member.JoinedAt, err = parseTime(joinedAt); err != nil {
		return nil, err
	}
	return &member, nil
}
