package cryptox

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Password hashing cost bounds. bcrypt is adaptive: the cost parameter doubles
// the work factor per increment, so operators can tune it as hardware improves.
const (
	// MinPasswordCost is the lowest cost we accept for production hashing.
	MinPasswordCost = bcrypt.MinCost
	// DefaultPasswordCost balances login latency against brute-force resistance.
	DefaultPasswordCost = 12
	// MaxPasswordCost caps the cost so a misconfiguration can't hang logins.
	MaxPasswordCost = bcrypt.MaxCost
)

// ErrPasswordMismatch is returned when a password does not match its hash.
var ErrPasswordMismatch = errors.New("cryptox: password does not match")

// HashPassword generates a bcrypt hash of the password at the given cost.
// Costs outside the supported range are clamped to the default.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("cryptox: empty password")
	}
	if cost < MinPasswordCost || cost > MaxPasswordCost {
		cost = DefaultPasswordCost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword compares a plaintext password against a bcrypt hash.
// Returns ErrPasswordMismatch on mismatch so callers can distinguish a wrong
// password from a corrupt hash.
func VerifyPassword(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return err
	}
	return nil
}
