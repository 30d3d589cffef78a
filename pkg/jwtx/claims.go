package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates the credential kinds the platform issues. Every
// token carries its type so a refresh token can never be replayed as an
// access token (and vice versa).
type TokenType string

const (
	// TokenAccess is the short-lived bearer credential.
	TokenAccess TokenType = "access"
	// TokenRefresh is the long-lived rotation credential.
	TokenRefresh TokenType = "refresh"
	// TokenTemp is the short-lived MFA-challenge credential. It proves the
	// password step succeeded but grants no resource access.
	TokenTemp TokenType = "temp"
	// TokenVerify backs email-verification links.
	TokenVerify TokenType = "verify"
	// TokenReset backs password-reset links.
	TokenReset TokenType = "reset"
)

// Default token lifetimes. Services may override per deployment.
const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
	DefaultTempTTL    = 5 * time.Minute
	DefaultVerifyTTL  = 24 * time.Hour
	DefaultResetTTL   = time.Hour
)

// Claims are the signed token claims used across the platform. Access tokens
// additionally embed permissions, roles and the persona reference so
// downstream services can authorize without a user lookup.
type Claims struct {
	jwt.RegisteredClaims

	// TenantID scopes the subject to an organization.
	TenantID string `json:"tid,omitempty"`

	// Type is the token kind discriminator.
	Type TokenType `json:"typ"`

	// Permissions are flattened "resource:action" grants (access tokens only).
	Permissions []string `json:"perms,omitempty"`

	// Roles are the subject's role labels (access tokens only).
	Roles []string `json:"roles,omitempty"`

	// PersonaID references the subject's business record, when linked.
	PersonaID string `json:"persona_id,omitempty"`

	// ChallengeID binds a temp token to a pending MFA challenge.
	ChallengeID string `json:"chid,omitempty"`
}

// NewClaims builds minimally-correct claims for the given token type.
func NewClaims(typ TokenType, subject, tenantID, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		TenantID: tenantID,
		Type:     typ,
	}
}

// RequireType enforces the type discriminator.
func (c *Claims) RequireType(t TokenType) error {
	if c.Type != t {
		return ErrWrongType
	}
	return nil
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
