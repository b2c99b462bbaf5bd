package pg

import (
	"context"
	"database/sql"

	"taskhive.org/internal/auth"
)

// projectStore reads the slice of project state the access resolver needs:
// the owner column and membership rows. Project CRUD lives outside the
// auth core.
type projectStore struct{ db *sql.DB }

func (s *projectStore) Find(ctx context.Context, id string) (*auth.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, owner_id from projects where id = $1`, id)
	var p auth.Project
	if err := row.Scan(&p.ID, &p.OwnerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *projectStore) Membership(ctx context.Context, projectID, principalID string) (*auth.Membership, error) {
	row := s.db.QueryRowContext(ctx, `
		select project_id, principal_id, role, created_at
		from project_memberships
		where project_id = $1 and principal_id = $2
	`, projectID, principalID)
	var m auth.Membership
	if err := row.Scan(&m.ProjectID, &m.PrincipalID, &m.Role, &m.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *projectStore) SetMembership(ctx context.Context, m *auth.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into project_memberships (project_id, principal_id, role)
		values ($1, $2, $3)
		on conflict (project_id, principal_id) do update set role = excluded.role
	`, m.ProjectID, m.PrincipalID, string(m.Role))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *projectStore) RemoveMembership(ctx context.Context, projectID, principalID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from project_memberships where project_id = $1 and principal_id = $2`,
		projectID, principalID)
	return err
}
