package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"taskhive.org/internal/auth"
	"taskhive.org/internal/ids"
)

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into roles (id, name, description, is_system, permissions)
		values ($1, $2, $3, $4, $5)
	`, role.ID, role.Name, role.Description, role.System, perms)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, description, is_system, permissions, created_at, updated_at
		from roles where id = $1
	`, id)
	return scanRole(row.Scan)
}

func (s *roleStore) Update(ctx context.Context, role *auth.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update roles set name = $2, description = $3, permissions = $4, updated_at = now()
		where id = $1 and not is_system
	`, role.ID, role.Name, role.Description, perms)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return requireRow(res)
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from roles where id = $1 and not is_system`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *roleStore) Assign(ctx context.Context, principalID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_assignments (principal_id, role_id) values ($1, $2)
	`, principalID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrAlreadyAssigned
			case pgErrForeignKeyViolation:
				return auth.ErrRoleNotFound
			}
		}
		return err
	}
	return nil
}

func (s *roleStore) Unassign(ctx context.Context, principalID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from role_assignments where principal_id = $1 and role_id = $2`,
		principalID, roleID)
	return err
}

func (s *roleStore) RolesFor(ctx context.Context, principalID string) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.is_system, r.permissions, r.created_at, r.updated_at
		from roles r
		join role_assignments a on a.role_id = r.id
		where a.principal_id = $1
		order by r.name
	`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Role
	for rows.Next() {
		role, err := scanRole(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

func scanRole(scan func(dest ...any) error) (*auth.Role, error) {
	var (
		role  auth.Role
		perms []byte
	)
	err := scan(&role.ID, &role.Name, &role.Description, &role.System, &perms, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &role, nil
}
