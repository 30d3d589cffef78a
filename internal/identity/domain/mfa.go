package domain

import "time"

// MFAChallenge is a pending second-factor challenge created after a correct
// password when MFA is enabled. Attempts caps brute force; the challenge is
// deleted on success or expiry.
type MFAChallenge struct {
	ID        string // challenge id, also embedded in the temp token
	UserID    string
	TenantID  string
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// MFAChallengeResponse is returned by login when a second factor is required.
// No access or refresh token is issued alongside it.
type MFAChallengeResponse struct {
	MFARequired bool     `json:"mfa_required"` // always true
	TempToken   string   `json:"temp_token"`
	ChallengeID string   `json:"challenge_id"`
	Methods     []string `json:"methods"`
}
