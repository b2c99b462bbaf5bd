package pg

import (
	"context"
	"database/sql"
	"time"

	"taskhive.org/internal/auth"
)

// credentialStore is the token ledger. Revocation flips a flag; natural
// expiry is never written back, only compared by callers.
type credentialStore struct{ db *sql.DB }

const credentialColumns = `id, principal_id, class, token_hash, issued_at, expires_at, revoked`

func (s *credentialStore) Create(ctx context.Context, creds ...*auth.Credential) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range creds {
		if err := insertCredential(ctx, tx, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *credentialStore) Find(ctx context.Context, id string) (*auth.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+credentialColumns+` from credentials where id = $1`, id)
	var c auth.Credential
	err := row.Scan(&c.ID, &c.PrincipalID, &c.Class, &c.TokenHash, &c.IssuedAt, &c.ExpiresAt, &c.Revoked)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *credentialStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update credentials set revoked = true where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *credentialStore) RevokeAllForPrincipal(ctx context.Context, principalID string) error {
	_, err := s.db.ExecContext(ctx,
		`update credentials set revoked = true where principal_id = $1 and not revoked`, principalID)
	return err
}

// Rotate revokes the consumed credential and inserts its replacements in a
// single transaction. A crash in between leaves the old token live and the
// new ones absent, which the caller retries; both-live never happens.
func (s *credentialStore) Rotate(ctx context.Context, consumedID string, replacements ...*auth.Credential) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update credentials set revoked = true where id = $1 and not revoked`, consumedID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		// Lost the race against a concurrent rotation of the same token.
		return auth.ErrInvalidOrExpiredToken
	}
	for _, c := range replacements {
		if err := insertCredential(ctx, tx, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *credentialStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from credentials where expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func insertCredential(ctx context.Context, tx *sql.Tx, c *auth.Credential) error {
	_, err := tx.ExecContext(ctx, `
		insert into credentials (id, principal_id, class, token_hash, issued_at, expires_at, revoked)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.PrincipalID, string(c.Class), c.TokenHash, c.IssuedAt.UTC(), c.ExpiresAt.UTC(), c.Revoked)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}
