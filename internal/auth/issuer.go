package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTTL bounds how long a stolen access credential stays
	// usable without a ledger hit.
	DefaultAccessTTL = 15 * time.Minute

	// DefaultRefreshTTL bounds the lifetime of a login before the user must
	// re-authenticate.
	DefaultRefreshTTL = 7 * 24 * time.Hour

	defaultIssuerName = "taskhive"
)

// IssuerConfig carries the signing material and lifetimes for both
// credential classes. It is injected at construction; the issuer never
// reads process environment itself.
type IssuerConfig struct {
	// AccessSigningKey and RefreshSigningKey are HS256 secrets, one per
	// credential class so an access key leak cannot forge refresh tokens.
	AccessSigningKey  string
	RefreshSigningKey string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Issuer is the iss claim. Defaults to "taskhive".
	Issuer string
}

// Claims are the JWT claims carried by both credential classes. Class is
// kept as a claim so a refresh token can never be replayed as an access
// token against a verifier that forgot the ledger.
type Claims struct {
	Class string `json:"token_type"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies bearer credentials. The jti of every signed
// token doubles as the primary key of its ledger record.
type Issuer struct {
	cfg IssuerConfig
}

// NewIssuer validates the configuration and constructs an Issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	cfg.AccessSigningKey = strings.TrimSpace(cfg.AccessSigningKey)
	cfg.RefreshSigningKey = strings.TrimSpace(cfg.RefreshSigningKey)
	if cfg.AccessSigningKey == "" || cfg.RefreshSigningKey == "" {
		return nil, errors.New("auth: signing keys for both credential classes are required")
	}
	if cfg.AccessSigningKey == cfg.RefreshSigningKey {
		return nil, errors.New("auth: access and refresh signing keys must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = defaultIssuerName
	}
	return &Issuer{cfg: cfg}, nil
}

// TTL returns the configured lifetime for a credential class.
func (i *Issuer) TTL(class CredentialClass) time.Duration {
	if class == ClassRefresh {
		return i.cfg.RefreshTTL
	}
	return i.cfg.AccessTTL
}

func (i *Issuer) key(class CredentialClass) ([]byte, error) {
	switch class {
	case ClassAccess:
		return []byte(i.cfg.AccessSigningKey), nil
	case ClassRefresh:
		return []byte(i.cfg.RefreshSigningKey), nil
	default:
		return nil, fmt.Errorf("auth: unknown credential class %q", class)
	}
}

// Sign mints a credential of the given class for a principal and returns
// the bearer string together with its ledger record. The record holds only
// the token's SHA-256 digest.
func (i *Issuer) Sign(class CredentialClass, principalID string, now time.Time) (string, *Credential, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return "", nil, fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}
	key, err := i.key(class)
	if err != nil {
		return "", nil, err
	}

	now = now.UTC()
	expires := now.Add(i.TTL(class))
	jti := uuid.NewString()
	claims := Claims{
		Class: string(class),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s credential: %w", class, err)
	}

	record := &Credential{
		ID:          jti,
		PrincipalID: principalID,
		Class:       class,
		TokenHash:   hashToken(signed),
		IssuedAt:    now,
		ExpiresAt:   expires,
	}
	return signed, record, nil
}

// Verify checks signature, class, issuer and expiry of a bearer string and
// returns its claims. Every failure collapses to ErrInvalidOrExpiredToken.
func (i *Issuer) Verify(class CredentialClass, token string, now time.Time) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	key, err := i.key(class)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidOrExpiredToken
		}
		return key, nil
	},
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidOrExpiredToken
	}
	if claims.Class != string(class) {
		return nil, ErrInvalidOrExpiredToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.ID) == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	return claims, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// matchesHash compares a stored digest against a presented bearer string
// without leaking timing.
func matchesHash(storedHash, token string) bool {
	actual := hashToken(token)
	if len(storedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(actual)) == 1
}
