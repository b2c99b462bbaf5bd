package pg

import (
	"context"
	"database/sql"
	"time"

	"taskhive.org/internal/auth"
	"taskhive.org/internal/ids"
)

type principalStore struct{ db *sql.DB }

const principalColumns = `id, handle, email, password_hash, role, active,
	coalesce(totp_secret, ''), totp_enabled, authenticated_at, created_at, updated_at`

func (s *principalStore) Create(ctx context.Context, p *auth.Principal) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into principals (id, handle, email, password_hash, role, active, totp_enabled)
		values ($1, $2, $3, $4, $5, $6, false)
	`, p.ID, p.Handle, p.Email, p.PasswordHash, p.Role, p.Active)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *principalStore) Find(ctx context.Context, id string) (*auth.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where id = $1`, id)
	return scanPrincipal(row)
}

func (s *principalStore) FindByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where email = $1`, email)
	return scanPrincipal(row)
}

func (s *principalStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set password_hash = $2, updated_at = now() where id = $1`,
		id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *principalStore) SetSecondFactor(ctx context.Context, id, secret string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set totp_secret = nullif($2, ''), totp_enabled = $3, updated_at = now() where id = $1`,
		id, secret, enabled)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *principalStore) StampAuthenticated(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set authenticated_at = $2, updated_at = now() where id = $1`,
		id, at.UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *principalStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set active = $2, updated_at = now() where id = $1`,
		id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanPrincipal(row *sql.Row) (*auth.Principal, error) {
	var (
		p        auth.Principal
		authedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Handle, &p.Email, &p.PasswordHash, &p.Role, &p.Active,
		&p.TOTPSecret, &p.TOTPEnabled, &authedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	if authedAt.Valid {
		p.AuthenticatedAt = authedAt.Time
	}
	return &p, nil
}

func requireRow(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
