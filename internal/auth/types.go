package auth

import "time"

// Principal represents an account able to authenticate. The struct carries
// secret material (password digest, TOTP secret) and must never cross the
// package boundary directly; hand out the Public projection instead.
type Principal struct {
	ID              string
	Handle          string
	Email           string
	PasswordHash    string
	Role            string
	Active          bool
	TOTPSecret      string
	TOTPEnabled     bool
	AuthenticatedAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PublicPrincipal is the redacted projection of a Principal that is safe to
// return to callers. New Principal fields stay private unless explicitly
// added here and in Public.
type PublicPrincipal struct {
	ID              string    `json:"id"`
	Handle          string    `json:"handle"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	Active          bool      `json:"active"`
	TOTPEnabled     bool      `json:"totp_enabled"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// Public is the single place a Principal is turned into its redacted form.
func (p *Principal) Public() PublicPrincipal {
	return PublicPrincipal{
		ID:              p.ID,
		Handle:          p.Handle,
		Email:           p.Email,
		Role:            p.Role,
		Active:          p.Active,
		TOTPEnabled:     p.TOTPEnabled,
		AuthenticatedAt: p.AuthenticatedAt,
		CreatedAt:       p.CreatedAt,
	}
}

// CredentialClass distinguishes short-lived access credentials from
// long-lived refresh credentials. Each class signs with its own key.
type CredentialClass string

const (
	ClassAccess  CredentialClass = "access"
	ClassRefresh CredentialClass = "refresh"
)

// Credential is a ledger record for an issued bearer token. The bearer
// string itself never persists; TokenHash holds its SHA-256 digest. A
// credential is usable iff !Revoked && now < ExpiresAt. Expiry is always
// derived by comparison, never stored as a flag.
type Credential struct {
	ID          string
	PrincipalID string
	Class       CredentialClass
	TokenHash   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Revoked     bool
}

// Usable reports whether the credential may still be presented at now.
func (c *Credential) Usable(now time.Time) bool {
	return !c.Revoked && now.Before(c.ExpiresAt)
}

// Role is a named bundle of permission strings. System roles are installed
// by seeds and cannot be renamed, edited or deleted.
type Role struct {
	ID          string
	Name        string
	Description string
	System      bool
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleAssignment binds a principal to a role.
type RoleAssignment struct {
	PrincipalID string
	RoleID      string
	CreatedAt   time.Time
}

// Project carries the single piece of project state this core reads: the
// owning principal. Everything else about projects lives outside the core.
type Project struct {
	ID      string
	OwnerID string
}

// MembershipRole is a project-scoped role, distinct from global Role
// assignment. The project owner holds RoleOwner implicitly, without a
// membership row.
type MembershipRole string

const (
	RoleNone   MembershipRole = ""
	RoleOwner  MembershipRole = "owner"
	RoleMember MembershipRole = "member"
	RoleViewer MembershipRole = "viewer"
)

// Membership binds a principal to a project with a membership role.
type Membership struct {
	ProjectID   string
	PrincipalID string
	Role        MembershipRole
	CreatedAt   time.Time
}

// AccessTier is the capability level a caller must hold for an operation.
type AccessTier string

const (
	TierRead  AccessTier = "read"
	TierWrite AccessTier = "write"
	TierAdmin AccessTier = "admin"
)

// admittedRoles maps each tier to the membership roles it admits. The sets
// nest strictly: every role admitted at admin is admitted at write, and
// every role admitted at write is admitted at read.
var admittedRoles = map[AccessTier]map[MembershipRole]bool{
	TierRead:  {RoleOwner: true, RoleMember: true, RoleViewer: true},
	TierWrite: {RoleOwner: true, RoleMember: true},
	TierAdmin: {RoleOwner: true},
}
