package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"taskhive.org/internal/obs"
)

const (
	totpSecretSize uint = 20 // 160 bits, RFC 4226 minimum
	totpPeriod     uint = 30
	totpSkew       uint = 2 // accepted window is +/- 2 steps for clock drift
)

// SecondFactorSetup is returned by SetupTOTP. The secret is handed to the
// caller exactly once for manual entry; the provisioning URI is rendered as
// a QR code by a collaborator.
type SecondFactorSetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// TOTP implements the time-based second factor: enrollment, verification
// and teardown. A generated secret stays pending until the principal proves
// possession of a live code via EnableTOTP.
type TOTP struct {
	store  Store
	issuer string
	now    func() time.Time
}

// TOTPOption configures the engine.
type TOTPOption func(*TOTP)

// WithTOTPClock overrides the time source, for tests.
func WithTOTPClock(fn func() time.Time) TOTPOption {
	return func(t *TOTP) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTOTP constructs the second-factor engine. The issuer name is embedded
// into provisioning URIs so authenticator apps label the account.
func NewTOTP(store Store, issuer string, opts ...TOTPOption) (*TOTP, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = defaultIssuerName
	}
	t := &TOTP{store: store, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// SetupTOTP generates a fresh secret, stores it against the principal as
// pending and returns it with the otpauth provisioning URI. An active
// enrollment must be disabled with a live code before a new secret can be
// issued.
func (t *TOTP) SetupTOTP(ctx context.Context, principalID string) (*SecondFactorSetup, error) {
	p, err := t.principal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p.TOTPEnabled {
		return nil, ErrSecondFactorEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: accountLabel(p),
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	if err := t.store.Principals(ctx).SetSecondFactor(ctx, p.ID, key.Secret(), false); err != nil {
		return nil, err
	}
	return &SecondFactorSetup{Secret: key.Secret(), ProvisioningURI: key.URL()}, nil
}

// VerifyTOTP reports whether the code matches the principal's secret at any
// step inside the skew window.
func (t *TOTP) VerifyTOTP(ctx context.Context, principalID, code string) (bool, error) {
	p, err := t.principal(ctx, principalID)
	if err != nil {
		return false, err
	}
	if p.TOTPSecret == "" {
		return false, ErrSecondFactorNotConfigured
	}
	ok := verifyCode(p.TOTPSecret, code, t.now())
	obs.RecordSecondFactorCheck(ok)
	return ok, nil
}

// EnableTOTP flips the pending enrollment to active. The code must verify:
// enrollment never completes on an unverified secret, so a typo'd secret
// cannot lock the principal out.
func (t *TOTP) EnableTOTP(ctx context.Context, principalID, code string) error {
	p, err := t.principal(ctx, principalID)
	if err != nil {
		return err
	}
	if p.TOTPSecret == "" {
		return ErrSecondFactorNotConfigured
	}
	if !verifyCode(p.TOTPSecret, code, t.now()) {
		obs.RecordSecondFactorCheck(false)
		return ErrInvalidSecondFactor
	}
	obs.RecordSecondFactorCheck(true)
	return t.store.Principals(ctx).SetSecondFactor(ctx, p.ID, p.TOTPSecret, true)
}

// DisableTOTP clears the secret and the enabled flag. Proof of a live code
// is required so knowledge of the setup response alone cannot strip a
// victim's second factor.
func (t *TOTP) DisableTOTP(ctx context.Context, principalID, code string) error {
	p, err := t.principal(ctx, principalID)
	if err != nil {
		return err
	}
	if p.TOTPSecret == "" {
		return ErrSecondFactorNotConfigured
	}
	if !verifyCode(p.TOTPSecret, code, t.now()) {
		obs.RecordSecondFactorCheck(false)
		return ErrInvalidSecondFactor
	}
	obs.RecordSecondFactorCheck(true)
	return t.store.Principals(ctx).SetSecondFactor(ctx, p.ID, "", false)
}

func (t *TOTP) principal(ctx context.Context, principalID string) (*Principal, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}
	return t.store.Principals(ctx).Find(ctx, principalID)
}

// verifyCode validates a 6-digit code against a base32 secret at the given
// instant, tolerating totpSkew steps of drift either way.
func verifyCode(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func accountLabel(p *Principal) string {
	if p.Email != "" {
		return p.Email
	}
	return p.Handle
}
