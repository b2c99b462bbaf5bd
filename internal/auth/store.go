package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth core. The
// backing store is the sole point of mutual exclusion; the core keeps no
// cross-request state of its own.
type Store interface {
	Principals(ctx context.Context) PrincipalStore
	Credentials(ctx context.Context) CredentialStore
	Roles(ctx context.Context) RoleStore
	Projects(ctx context.Context) ProjectStore
}

// PrincipalStore manages accounts.
type PrincipalStore interface {
	Create(ctx context.Context, p *Principal) error
	Find(ctx context.Context, id string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetSecondFactor(ctx context.Context, id, secret string, enabled bool) error
	StampAuthenticated(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
}

// CredentialStore is the token ledger. Rotate must execute as a single
// transaction: a crash between revoking the consumed credential and
// inserting its successors must never leave both live.
type CredentialStore interface {
	Create(ctx context.Context, creds ...*Credential) error
	Find(ctx context.Context, id string) (*Credential, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForPrincipal(ctx context.Context, principalID string) error
	Rotate(ctx context.Context, consumedID string, replacements ...*Credential) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// RoleStore manages roles and role assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error
	Assign(ctx context.Context, principalID, roleID string) error
	Unassign(ctx context.Context, principalID, roleID string) error
	RolesFor(ctx context.Context, principalID string) ([]*Role, error)
}

// ProjectStore exposes the ownership and membership rows the access
// resolver reads. Membership mutation is included because project admins
// manage members through the same contract.
type ProjectStore interface {
	Find(ctx context.Context, id string) (*Project, error)
	Membership(ctx context.Context, projectID, principalID string) (*Membership, error)
	SetMembership(ctx context.Context, m *Membership) error
	RemoveMembership(ctx context.Context, projectID, principalID string) error
}
