package domain

// RegisterInput is the inbound registration payload. Persona strategies read
// the persona-specific fields; the orchestrator owns the identity fields.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username,omitempty"`
	Phone     string `json:"phone,omitempty"`

	PersonaType PersonaType `json:"persona_type"`
	TenantID    string      `json:"tenant_id,omitempty"`

	// Persona-specific fields.
	CompanyName string `json:"company_name,omitempty"` // client, partner
	Headline    string `json:"headline,omitempty"`     // consultant, candidate

	// Provenance.
	Source   string `json:"source,omitempty"`
	Referral string `json:"referral,omitempty"`
	Campaign string `json:"campaign,omitempty"`
}

// RegistrationResult is what a successful registration returns. Tokens is nil
// when email verification gates the account.
type RegistrationResult struct {
	User    *User
	Persona *Persona
	Tokens  *TokenPair

	// VerificationRequired tells the caller to expect the verify-email flow
	// instead of credentials.
	VerificationRequired bool
}

// LoginResult is the outcome of a successful (or MFA-gated) login.
type LoginResult struct {
	User   *User
	Tokens *TokenPair

	// MFA is non-nil when the caller must complete a second factor; Tokens is
	// nil in that case.
	MFA *MFAChallengeResponse
}
