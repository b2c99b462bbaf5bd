package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"taskhive.org/internal/audit"
)

// Access resolves a caller's effective role for a project and answers
// global RBAC queries. Every decision is computed fresh against the store;
// nothing is cached across requests, so there is no stale-permission window
// beyond a single call.
type Access struct {
	store Store
}

// NewAccess constructs the resolver.
func NewAccess(store Store) (*Access, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	return &Access{store: store}, nil
}

// RoleFor resolves the principal's membership role for a project. Ownership
// takes precedence: the project owner holds RoleOwner without a membership
// row. RoleNone means no access of any tier.
func (a *Access) RoleFor(ctx context.Context, projectID, principalID string) (MembershipRole, error) {
	projectID = strings.TrimSpace(projectID)
	principalID = strings.TrimSpace(principalID)
	if projectID == "" || principalID == "" {
		return RoleNone, fmt.Errorf("%w: project id and principal id are required", ErrInvalidInput)
	}

	projects := a.store.Projects(ctx)
	project, err := projects.Find(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RoleNone, nil
		}
		return RoleNone, err
	}
	if project.OwnerID == principalID {
		return RoleOwner, nil
	}

	m, err := projects.Membership(ctx, projectID, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RoleNone, nil
		}
		return RoleNone, err
	}
	return m.Role, nil
}

// CanAccess reports whether the principal's resolved role is admitted at
// the required tier.
func (a *Access) CanAccess(ctx context.Context, projectID, principalID string, required AccessTier) (bool, error) {
	admitted, ok := admittedRoles[required]
	if !ok {
		return false, fmt.Errorf("%w: unknown access tier %q", ErrInvalidInput, required)
	}
	role, err := a.RoleFor(ctx, projectID, principalID)
	if err != nil {
		return false, err
	}
	if role == RoleNone {
		return false, nil
	}
	return admitted[role], nil
}

// GlobalPermissions returns the deduplicated union of permission strings
// across every role assigned to the principal, sorted for stable output.
func (a *Access) GlobalPermissions(ctx context.Context, principalID string) ([]string, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}
	roles, err := a.store.Roles(ctx).RolesFor(ctx, principalID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, role := range roles {
		for _, perm := range role.Permissions {
			perm = strings.TrimSpace(perm)
			if perm != "" {
				set[perm] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out, nil
}

// HasPermission is a membership test on GlobalPermissions.
func (a *Access) HasPermission(ctx context.Context, principalID, permission string) (bool, error) {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return false, nil
	}
	perms, err := a.GlobalPermissions(ctx, principalID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

// RoleUpdate mutates role fields selectively; nil pointers leave the field
// untouched.
type RoleUpdate struct {
	Name        *string
	Description *string
	Permissions []string
}

// CreateRole registers a custom role with a deduplicated permission set.
func (a *Access) CreateRole(ctx context.Context, name, description string, permissions []string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: dedupeStrings(permissions),
	}
	if err := a.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	audit.LogEvent(ctx, "auth.role.created", map[string]any{"role_id": role.ID, "name": role.Name})
	return role, nil
}

// AssignRole binds a role to a principal. A missing role fails with
// ErrRoleNotFound; an existing pairing fails with ErrAlreadyAssigned so
// callers can surface the conflict instead of silently succeeding.
func (a *Access) AssignRole(ctx context.Context, principalID, roleID string) error {
	principalID = strings.TrimSpace(principalID)
	roleID = strings.TrimSpace(roleID)
	if principalID == "" || roleID == "" {
		return fmt.Errorf("%w: principal id and role id are required", ErrInvalidInput)
	}
	roles := a.store.Roles(ctx)
	if _, err := roles.Find(ctx, roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrRoleNotFound
		}
		return err
	}
	if err := roles.Assign(ctx, principalID, roleID); err != nil {
		return err
	}
	audit.LogEvent(ctx, "auth.role.assigned", map[string]any{"principal_id": principalID, "role_id": roleID})
	return nil
}

// RemoveRole unbinds a role from a principal. A missing role fails with
// ErrRoleNotFound; removing an absent pairing is a no-op.
func (a *Access) RemoveRole(ctx context.Context, principalID, roleID string) error {
	principalID = strings.TrimSpace(principalID)
	roleID = strings.TrimSpace(roleID)
	if principalID == "" || roleID == "" {
		return fmt.Errorf("%w: principal id and role id are required", ErrInvalidInput)
	}
	roles := a.store.Roles(ctx)
	if _, err := roles.Find(ctx, roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrRoleNotFound
		}
		return err
	}
	if err := roles.Unassign(ctx, principalID, roleID); err != nil {
		return err
	}
	audit.LogEvent(ctx, "auth.role.removed", map[string]any{"principal_id": principalID, "role_id": roleID})
	return nil
}

// UpdateRole edits a custom role. System roles are immutable; the guard
// lives here, not in a transport layer, so every caller gets it.
func (a *Access) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (*Role, error) {
	role, err := a.mutableRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		role.Name = name
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Permissions != nil {
		role.Permissions = dedupeStrings(upd.Permissions)
	}
	if err := a.store.Roles(ctx).Update(ctx, role); err != nil {
		return nil, err
	}
	audit.LogEvent(ctx, "auth.role.updated", map[string]any{"role_id": role.ID})
	return role, nil
}

// DeleteRole removes a custom role. System roles are immutable.
func (a *Access) DeleteRole(ctx context.Context, roleID string) error {
	role, err := a.mutableRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := a.store.Roles(ctx).Delete(ctx, role.ID); err != nil {
		return err
	}
	audit.LogEvent(ctx, "auth.role.deleted", map[string]any{"role_id": role.ID})
	return nil
}

// SetMembership adds or updates a project membership row.
func (a *Access) SetMembership(ctx context.Context, projectID, principalID string, role MembershipRole) error {
	projectID = strings.TrimSpace(projectID)
	principalID = strings.TrimSpace(principalID)
	if projectID == "" || principalID == "" {
		return fmt.Errorf("%w: project id and principal id are required", ErrInvalidInput)
	}
	switch role {
	case RoleOwner, RoleMember, RoleViewer:
	default:
		return fmt.Errorf("%w: unknown membership role %q", ErrInvalidInput, role)
	}
	return a.store.Projects(ctx).SetMembership(ctx, &Membership{
		ProjectID:   projectID,
		PrincipalID: principalID,
		Role:        role,
	})
}

// RemoveMembership deletes a project membership row. Removing an absent row
// is a no-op.
func (a *Access) RemoveMembership(ctx context.Context, projectID, principalID string) error {
	projectID = strings.TrimSpace(projectID)
	principalID = strings.TrimSpace(principalID)
	if projectID == "" || principalID == "" {
		return fmt.Errorf("%w: project id and principal id are required", ErrInvalidInput)
	}
	return a.store.Projects(ctx).RemoveMembership(ctx, projectID, principalID)
}

func (a *Access) mutableRole(ctx context.Context, roleID string) (*Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	role, err := a.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	if role.System {
		return nil, ErrImmutableRole
	}
	return role, nil
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
