package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrInvalidSig = errors.New("jwtx: invalid signature")
	ErrExpired    = errors.New("jwtx: token expired")
	ErrIssuer     = errors.New("jwtx: issuer mismatch")
	ErrWrongType  = errors.New("jwtx: wrong token type")
	ErrWeakSecret = errors.New("jwtx: signing secret too short")
)

// minSecretLen guards against trivially brute-forceable HMAC keys.
const minSecretLen = 32

// Signer signs and verifies HS256 tokens with a shared secret.
type Signer struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewSigner returns a Signer for the given secret and issuer. The secret must
// be at least 32 bytes.
func NewSigner(secret []byte, issuer string) (*Signer, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	return &Signer{
		secret: secret,
		issuer: issuer,
		leeway: 30 * time.Second,
	}, nil
}

// Sign produces a compact HS256 token for the claims.
func (s *Signer) Sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Parse verifies signature, expiry and issuer and returns the claims.
func (s *Signer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSig
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		return nil, mapParseError(err)
	}
	return claims, nil
}

// ParseType is Parse plus a type-discriminator check.
func (s *Signer) ParseType(raw string, typ TokenType) (*Claims, error) {
	claims, err := s.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := claims.RequireType(typ); err != nil {
		return nil, err
	}
	return claims, nil
}

// ExtractExpiry pulls the "exp" claim out of a token without verifying the
// signature. The revocation ledger uses it to bound entry lifetimes even for
// tokens we can no longer (or never could) verify. The second return reports
// whether an expiry was present.
func ExtractExpiry(raw string) (time.Time, bool) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	default:
		return err
	}
}
