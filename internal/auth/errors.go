package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, inactive account, wrong
	// password and wrong TOTP code at login. Deliberately undifferentiated.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidOrExpiredToken covers absent, revoked, expired and
	// signature-invalid credentials. Collapsed to one category so callers
	// cannot learn which check failed.
	ErrInvalidOrExpiredToken = errors.New("auth: invalid or expired token")

	// ErrInvalidSecondFactor is returned by TOTP enrollment changes when the
	// supplied code does not verify.
	ErrInvalidSecondFactor = errors.New("auth: invalid second factor")

	// ErrSecondFactorEnabled is returned by SetupTOTP when an enrollment is
	// already active; it must be disabled with a live code first.
	ErrSecondFactorEnabled = errors.New("auth: second factor already enabled")

	// ErrSecondFactorNotConfigured is returned when enabling or verifying a
	// second factor for a principal without a pending secret.
	ErrSecondFactorNotConfigured = errors.New("auth: second factor not configured")

	ErrRoleNotFound    = errors.New("auth: role not found")
	ErrAlreadyAssigned = errors.New("auth: role already assigned")
	ErrImmutableRole   = errors.New("auth: system role is immutable")

	// ErrTooManyAttempts is returned when the login throttle trips. The
	// transport layer maps it to 429.
	ErrTooManyAttempts = errors.New("auth: too many attempts")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
)
