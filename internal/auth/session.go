package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskhive.org/internal/audit"
	"taskhive.org/internal/obs"
)

// TokenPair is a freshly minted access/refresh credential pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginResult is the outcome of a successful first authentication step.
// SecondFactorRequired=true is a valid intermediate protocol state, not an
// error: the principal is returned redacted and no credentials exist yet.
type LoginResult struct {
	Principal            PublicPrincipal `json:"principal"`
	SecondFactorRequired bool            `json:"second_factor_required"`
	Tokens               *TokenPair      `json:"tokens,omitempty"`
}

// Session orchestrates login, refresh, logout and access-token validation
// over the credential verifier, TOTP engine, token issuer and token ledger.
// It holds no cross-request state; the store is the only point of mutual
// exclusion.
type Session struct {
	store    Store
	issuer   *Issuer
	throttle *Throttle
	now      func() time.Time
}

// SessionOption configures the orchestrator.
type SessionOption func(*Session)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithThrottle installs a per-email login throttle. Best-effort and
// per-process; the ledger stays the durable source of truth.
func WithThrottle(t *Throttle) SessionOption {
	return func(s *Session) { s.throttle = t }
}

// NewSession constructs the orchestrator.
func NewSession(store Store, issuer *Issuer, opts ...SessionOption) (*Session, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if issuer == nil {
		return nil, fmt.Errorf("%w: issuer is required", ErrInvalidInput)
	}
	s := &Session{store: store, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login authenticates email+password and, when the account has a second
// factor enabled, the TOTP code. With the second factor enabled and no code
// supplied it returns SecondFactorRequired without minting anything. Wrong
// password and wrong code both collapse to ErrInvalidCredentials so the
// response is not an oracle for which check failed.
func (s *Session) Login(ctx context.Context, email, password, totpCode string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if s.throttle != nil && !s.throttle.Allow(email) {
		obs.RecordLogin("throttled")
		return nil, ErrTooManyAttempts
	}

	p, err := s.store.Principals(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.RecordLogin("failure")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !p.Active {
		obs.RecordLogin("failure")
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(p.PasswordHash, password); err != nil {
		obs.RecordLogin("failure")
		audit.LogEvent(ctx, "auth.login.failure", map[string]any{"principal_id": p.ID})
		return nil, ErrInvalidCredentials
	}

	if p.TOTPEnabled {
		if strings.TrimSpace(totpCode) == "" {
			obs.RecordLogin("second_factor_required")
			return &LoginResult{Principal: p.Public(), SecondFactorRequired: true}, nil
		}
		if !verifyCode(p.TOTPSecret, totpCode, s.now()) {
			obs.RecordLogin("failure")
			audit.LogEvent(ctx, "auth.login.failure", map[string]any{"principal_id": p.ID, "second_factor": true})
			return nil, ErrInvalidCredentials
		}
	}

	now := s.now()
	if err := s.store.Principals(ctx).StampAuthenticated(ctx, p.ID, now); err != nil {
		return nil, err
	}
	p.AuthenticatedAt = now

	pair, err := s.mint(ctx, p.ID, now)
	if err != nil {
		return nil, err
	}
	obs.RecordLogin("success")
	audit.LogEvent(ctx, "auth.login.success", map[string]any{"principal_id": p.ID})
	return &LoginResult{Principal: p.Public(), Tokens: pair}, nil
}

// Refresh rotates a refresh credential: the presented credential is revoked
// and its successors minted inside one store transaction. Every use rotates;
// a second use of the same token is indistinguishable from a stolen token
// and fails.
func (s *Session) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	now := s.now()
	claims, err := s.issuer.Verify(ClassRefresh, refreshToken, now)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}

	ledger := s.store.Credentials(ctx)
	record, err := ledger.Find(ctx, claims.ID)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}
	if record.Class != ClassRefresh || !record.Usable(now) {
		return nil, ErrInvalidOrExpiredToken
	}
	if !matchesHash(record.TokenHash, refreshToken) {
		// A valid signature with the wrong body for this jti means the
		// lineage is compromised; kill the record.
		_ = ledger.Revoke(ctx, record.ID)
		return nil, ErrInvalidOrExpiredToken
	}

	p, err := s.store.Principals(ctx).Find(ctx, record.PrincipalID)
	if err != nil || !p.Active {
		return nil, ErrInvalidOrExpiredToken
	}

	accessToken, accessCred, err := s.issuer.Sign(ClassAccess, p.ID, now)
	if err != nil {
		return nil, err
	}
	newRefreshToken, refreshCred, err := s.issuer.Sign(ClassRefresh, p.ID, now)
	if err != nil {
		return nil, err
	}
	if err := ledger.Rotate(ctx, record.ID, accessCred, refreshCred); err != nil {
		return nil, err
	}

	obs.RecordRotation()
	obs.RecordCredentialIssued(string(ClassAccess))
	obs.RecordCredentialIssued(string(ClassRefresh))
	audit.LogEvent(ctx, "auth.token.rotated", map[string]any{"principal_id": p.ID, "consumed": record.ID})
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     newRefreshToken,
		AccessExpiresAt:  accessCred.ExpiresAt,
		RefreshExpiresAt: refreshCred.ExpiresAt,
	}, nil
}

// Authenticate validates an access credential and resolves its principal.
// The ledger lookup is mandatory: revocation is enforced server-side and a
// signature-only check would make it unenforceable.
func (s *Session) Authenticate(ctx context.Context, accessToken string) (PublicPrincipal, error) {
	now := s.now()
	claims, err := s.issuer.Verify(ClassAccess, accessToken, now)
	if err != nil {
		return PublicPrincipal{}, ErrInvalidOrExpiredToken
	}
	record, err := s.store.Credentials(ctx).Find(ctx, claims.ID)
	if err != nil {
		return PublicPrincipal{}, ErrInvalidOrExpiredToken
	}
	if record.Class != ClassAccess || !record.Usable(now) {
		return PublicPrincipal{}, ErrInvalidOrExpiredToken
	}
	if !matchesHash(record.TokenHash, accessToken) {
		return PublicPrincipal{}, ErrInvalidOrExpiredToken
	}
	p, err := s.store.Principals(ctx).Find(ctx, record.PrincipalID)
	if err != nil || !p.Active {
		return PublicPrincipal{}, ErrInvalidOrExpiredToken
	}
	return p.Public(), nil
}

// Logout revokes exactly the presented access credential. Idempotent:
// unknown, unparseable and already-revoked tokens are silent no-ops.
func (s *Session) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.issuer.Verify(ClassAccess, accessToken, s.now())
	if err != nil {
		return nil
	}
	err = s.store.Credentials(ctx).Revoke(ctx, claims.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	obs.RecordCredentialRevoked("logout")
	audit.LogEvent(ctx, "auth.logout", map[string]any{"principal_id": claims.Subject})
	return nil
}

// LogoutAll revokes every live credential owned by the principal. Used on
// password change and compromise response.
func (s *Session) LogoutAll(ctx context.Context, principalID string) error {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}
	if err := s.store.Credentials(ctx).RevokeAllForPrincipal(ctx, principalID); err != nil {
		return err
	}
	obs.RecordCredentialRevoked("logout_all")
	audit.LogEvent(ctx, "auth.logout_all", map[string]any{"principal_id": principalID})
	return nil
}

// SweepExpired deletes ledger records past their expiry. Intended for a
// periodic out-of-band job, never the request path.
func (s *Session) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.Credentials(ctx).DeleteExpired(ctx, s.now())
}

func (s *Session) mint(ctx context.Context, principalID string, now time.Time) (*TokenPair, error) {
	accessToken, accessCred, err := s.issuer.Sign(ClassAccess, principalID, now)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshCred, err := s.issuer.Sign(ClassRefresh, principalID, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Credentials(ctx).Create(ctx, accessCred, refreshCred); err != nil {
		return nil, err
	}
	obs.RecordCredentialIssued(string(ClassAccess))
	obs.RecordCredentialIssued(string(ClassRefresh))
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessCred.ExpiresAt,
		RefreshExpiresAt: refreshCred.ExpiresAt,
	}, nil
}
