package domain

import "time"

// AccountStatus is the user account lifecycle state.
type AccountStatus string

const (
	StatusPending   AccountStatus = "pending"
	StatusActive    AccountStatus = "active"
	StatusSuspended AccountStatus = "suspended"
	StatusBlocked   AccountStatus = "blocked"
)

// CanTransition reports whether a status change is allowed. The lattice is
// pending→active, active⇄suspended, any→blocked; blocked is terminal.
func (s AccountStatus) CanTransition(to AccountStatus) bool {
	if s == to {
		return false
	}
	if to == StatusBlocked {
		return s != StatusBlocked
	}
	switch s {
	case StatusPending:
		return to == StatusActive
	case StatusActive:
		return to == StatusSuspended
	case StatusSuspended:
		return to == StatusActive
	default:
		return false
	}
}

// Grant is a single permission grant: a resource, the actions allowed on it,
// and who granted it.
type Grant struct {
	Resource  string    `json:"resource"`
	Actions   []string  `json:"actions"`
	GrantedBy string    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// OrgMembership records a user's membership in an organization.
type OrgMembership struct {
	TenantID    string    `json:"tenant_id"`
	Permissions []string  `json:"permissions,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	Active      bool      `json:"active"`
	Primary     bool      `json:"primary"`
}

// VerificationState is a one-time-token sub-record (email verification).
type VerificationState struct {
	Verified       bool
	Token          string
	TokenExpiresAt *time.Time
	Attempts       int
}

// ResetState is the password-reset sub-record.
type ResetState struct {
	Token     string
	ExpiresAt *time.Time
	Attempts  int
}

// TrustedDevice is a device allowed to skip the MFA challenge.
type TrustedDevice struct {
	Fingerprint string    `json:"fingerprint"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// MFASettings is the user's multi-factor configuration.
type MFASettings struct {
	Enabled        bool
	Methods        []string // e.g. ["totp"]
	TOTPSecret     string   // base32 encoded, empty unless enrolled
	TrustedDevices []TrustedDevice
}

// TrustsDevice reports whether the fingerprint matches an unexpired trusted
// device.
func (m MFASettings) TrustsDevice(fingerprint string, now time.Time) bool {
	if fingerprint == "" {
		return false
	}
	for _, d := range m.TrustedDevices {
		if d.Fingerprint == fingerprint && now.Before(d.ExpiresAt) {
			return true
		}
	}
	return false
}

// User is the identity record. Email is the immutable lookup key, stored
// lowercase and unique per tenant. Users are never hard-deleted; DeletedAt
// implements soft delete for audit continuity.
type User struct {
	ID       string
	TenantID string
	Email    string
	Username string

	FirstName   string
	LastName    string
	DisplayName string
	Phone       string

	PasswordHash string

	Permissions []Grant
	Roles       []string
	Memberships []OrgMembership

	Status       AccountStatus
	StatusReason string
	ActivatedAt  *time.Time

	EmailVerification VerificationState
	PasswordReset     ResetState
	MFA               MFASettings

	// PersonaType and PersonaID link to at most one business record.
	PersonaType PersonaType
	PersonaID   string

	FailedLogins int
	LastLoginAt  *time.Time
	LastLoginIP  string
	LastLoginUA  string

	// Metadata carries registration provenance (source, referral, campaign)
	// and feature flags.
	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// FlatPermissions flattens grants into "resource:action" strings for token
// claims.
func (u User) FlatPermissions() []string {
	var out []string
	for _, g := range u.Permissions {
		for _, a := range g.Actions {
			out = append(out, g.Resource+":"+a)
		}
	}
	return out
}

// FullName returns the display name, falling back to "First Last".
func (u User) FullName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.FirstName + " " + u.LastName
}
