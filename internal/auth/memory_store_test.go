package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memStore is an in-memory Store used to exercise the orchestrator and
// resolver without a database. Behavior mirrors the pg adapters: not-found
// maps to ErrNotFound, duplicate assignments to ErrAlreadyAssigned, and
// Rotate fails when the consumed credential is already revoked.
type memStore struct {
	mu          sync.Mutex
	principals  map[string]*Principal
	credentials map[string]*Credential
	roles       map[string]*Role
	assignments map[string]map[string]bool
	projects    map[string]*Project
	memberships map[string]*Membership
	nextID      int
}

func newMemStore() *memStore {
	return &memStore{
		principals:  make(map[string]*Principal),
		credentials: make(map[string]*Credential),
		roles:       make(map[string]*Role),
		assignments: make(map[string]map[string]bool),
		projects:    make(map[string]*Project),
		memberships: make(map[string]*Membership),
	}
}

func (m *memStore) Principals(ctx context.Context) PrincipalStore   { return &memPrincipals{m} }
func (m *memStore) Credentials(ctx context.Context) CredentialStore { return &memCredentials{m} }
func (m *memStore) Roles(ctx context.Context) RoleStore             { return &memRoles{m} }
func (m *memStore) Projects(ctx context.Context) ProjectStore       { return &memProjects{m} }

func (m *memStore) genID() string {
	m.nextID++
	return fmt.Sprintf("id-%04d", m.nextID)
}

func (m *memStore) addPrincipal(p *Principal) *Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = m.genID()
	}
	cp := *p
	m.principals[p.ID] = &cp
	return p
}

func (m *memStore) addProject(id, ownerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[id] = &Project{ID: id, OwnerID: ownerID}
}

func (m *memStore) addRole(role *Role) *Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role.ID == "" {
		role.ID = m.genID()
	}
	cp := *role
	m.roles[role.ID] = &cp
	return role
}

func (m *memStore) credentialCount(principalID string, onlyLive bool, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.credentials {
		if c.PrincipalID != principalID {
			continue
		}
		if onlyLive && !c.Usable(now) {
			continue
		}
		count++
	}
	return count
}

type memPrincipals struct{ *memStore }

func (m *memPrincipals) Create(ctx context.Context, p *Principal) error {
	m.addPrincipal(p)
	return nil
}

func (m *memPrincipals) Find(ctx context.Context, id string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPrincipals) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.principals {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memPrincipals) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.PasswordHash = passwordHash
	return nil
}

func (m *memPrincipals) SetSecondFactor(ctx context.Context, id, secret string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.TOTPSecret = secret
	p.TOTPEnabled = enabled
	return nil
}

func (m *memPrincipals) StampAuthenticated(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.AuthenticatedAt = at
	return nil
}

func (m *memPrincipals) SetActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.Active = active
	return nil
}

type memCredentials struct{ *memStore }

func (m *memCredentials) Create(ctx context.Context, creds ...*Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range creds {
		cp := *c
		m.credentials[c.ID] = &cp
	}
	return nil
}

func (m *memCredentials) Find(ctx context.Context, id string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCredentials) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[id]
	if !ok {
		return ErrNotFound
	}
	c.Revoked = true
	return nil
}

func (m *memCredentials) RevokeAllForPrincipal(ctx context.Context, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.credentials {
		if c.PrincipalID == principalID {
			c.Revoked = true
		}
	}
	return nil
}

func (m *memCredentials) Rotate(ctx context.Context, consumedID string, replacements ...*Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[consumedID]
	if !ok || c.Revoked {
		return ErrInvalidOrExpiredToken
	}
	c.Revoked = true
	for _, r := range replacements {
		cp := *r
		m.credentials[r.ID] = &cp
	}
	return nil
}

func (m *memCredentials) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.credentials {
		if c.ExpiresAt.Before(before) {
			delete(m.credentials, id)
			n++
		}
	}
	return n, nil
}

type memRoles struct{ *memStore }

func (m *memRoles) Create(ctx context.Context, role *Role) error {
	m.addRole(role)
	return nil
}

func (m *memRoles) Find(ctx context.Context, id string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRoles) Update(ctx context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.ID]; !ok {
		return ErrNotFound
	}
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *memRoles) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

func (m *memRoles) Assign(ctx context.Context, principalID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrRoleNotFound
	}
	set := m.assignments[principalID]
	if set == nil {
		set = make(map[string]bool)
		m.assignments[principalID] = set
	}
	if set[roleID] {
		return ErrAlreadyAssigned
	}
	set[roleID] = true
	return nil
}

func (m *memRoles) Unassign(ctx context.Context, principalID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments[principalID], roleID)
	return nil
}

func (m *memRoles) RolesFor(ctx context.Context, principalID string) ([]*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Role
	for roleID := range m.assignments[principalID] {
		if r, ok := m.roles[roleID]; ok {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

type memProjects struct{ *memStore }

func (m *memProjects) Find(ctx context.Context, id string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProjects) Membership(ctx context.Context, projectID, principalID string) (*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.memberships[projectID+"|"+principalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *memProjects) SetMembership(ctx context.Context, mem *Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mem
	m.memberships[mem.ProjectID+"|"+mem.PrincipalID] = &cp
	return nil
}

func (m *memProjects) RemoveMembership(ctx context.Context, projectID, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.memberships, projectID+"|"+principalID)
	return nil
}

var _ Store = (*memStore)(nil)
