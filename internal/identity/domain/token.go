package domain

import "time"

// TokenPair is the credential pair an authenticated caller receives.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`
}

// RevocationReason enumerates why a token landed on the ledger.
type RevocationReason string

const (
	ReasonLogout             RevocationReason = "logout"
	ReasonPasswordChange     RevocationReason = "password_change"
	ReasonPasswordReset      RevocationReason = "password_reset"
	ReasonTokenRefresh       RevocationReason = "token_refresh"
	ReasonTokenRefreshAccess RevocationReason = "token_refresh_access"
	ReasonLogoutAll          RevocationReason = "logout_all"
	ReasonExpired            RevocationReason = "expired"
)

// RevocationKind distinguishes single-token entries from user-wide markers.
type RevocationKind string

const (
	// RevocationToken denylists one token by fingerprint.
	RevocationToken RevocationKind = "token"
	// RevocationMarker denylists every token of a user issued before
	// IssuedBefore, regardless of fingerprint.
	RevocationMarker RevocationKind = "marker"
)

// RevocationEntry is one row of the revocation ledger. TokenHash is a one-way
// fingerprint; the raw token is never persisted. ExpiresAt mirrors the
// token's own expiry so the entry can be garbage-collected once the token
// would have died naturally.
type RevocationEntry struct {
	ID        string
	Kind      RevocationKind
	TokenHash string // empty for markers
	UserID    string
	TenantID  string
	Reason    RevocationReason

	// IssuedBefore is set on markers: tokens with iat <= IssuedBefore are
	// revoked.
	IssuedBefore *time.Time

	// Request context captured at revocation time.
	IP        string
	UserAgent string
	DeviceID  string

	ExpiresAt time.Time
	CreatedAt time.Time
}

// RequestContext carries per-request client details into security-relevant
// writes (ledger entries, login activity).
type RequestContext struct {
	IP        string
	UserAgent string
	DeviceID  string
}
