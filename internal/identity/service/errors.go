package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error taxonomy. Login failures are deliberately flattened to
// ErrInvalidCredentials so callers can never learn which field was wrong.
var (
	// ErrInvalidCredentials covers bad email/password and bad MFA codes.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrAccountDisabled covers suspended and blocked accounts.
	ErrAccountDisabled = errors.New("account_disabled")

	// ErrVerificationRequired is a hard stop: the account exists and the
	// password matched, but email verification gates login. It is distinct
	// from ErrInvalidCredentials so the client can trigger a resend flow.
	ErrVerificationRequired = errors.New("verification_required")

	// ErrEmailTaken is the duplicate-registration conflict.
	ErrEmailTaken = errors.New("email_already_registered")

	// ErrInvalidToken covers revoked, malformed, mistyped and mismatched
	// tokens.
	ErrInvalidToken = errors.New("invalid_token")

	// ErrTokenExpired reports an expired one-time token.
	ErrTokenExpired = errors.New("token_expired")

	// ErrNoToken reports a verification attempt against a user with no
	// stored token.
	ErrNoToken = errors.New("no_verification_token")

	// ErrAlreadyVerified rejects verification resends for verified accounts.
	ErrAlreadyVerified = errors.New("already_verified")

	// ErrTooManyAttempts reports a brute-force cap (login lockout, MFA
	// attempts, resend throttle).
	ErrTooManyAttempts = errors.New("too_many_attempts")

	// ErrNotFound is for lookups where enumeration is not a risk
	// (authenticated self-lookups).
	ErrNotFound = errors.New("not_found")
)

// ValidationError carries every failing field of a client input, not just the
// first.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StrategyValidationError reports a persona strategy rejecting its input.
type StrategyValidationError struct {
	PersonaType string
	Err         error
}

func (e *StrategyValidationError) Error() string {
	return fmt.Sprintf("persona validation failed for %s: %v", e.PersonaType, e.Err)
}

func (e *StrategyValidationError) Unwrap() error { return e.Err }
