package store

import (
	"context"
	"errors"
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement it. It
// exposes sub-repositories to keep concerns tidy and testable, and a
// transaction primitive for multi-document writes that must be atomic
// (user + persona creation, refresh rotation).
type Store interface {
	Users() Users
	Personas() Personas
	Revocations() Revocations
	MFAChallenges() MFAChallenges

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. This is the
	// recommended way to handle transactions.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a non-deleted user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks a user up by lowercase email within a tenant.
	GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, error)

	// GetUserByVerificationToken finds the user holding this email
	// verification token (verification links may omit the email).
	GetUserByVerificationToken(ctx context.Context, token string) (domain.User, error)

	// GetUserByResetToken finds the user holding this password reset token.
	GetUserByResetToken(ctx context.Context, token string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	// Returns ErrAlreadyExists when the tenant+email pair is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash replaces the password hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// SetPersonaLink patches the user's persona foreign key (fallback path).
	SetPersonaLink(ctx context.Context, userID string, personaType domain.PersonaType, personaID string) error

	// UpdateEmailVerification persists the verification sub-record and, when
	// status is non-empty, the account status transition.
	UpdateEmailVerification(ctx context.Context, userID string, v domain.VerificationState, status domain.AccountStatus, activatedAt *time.Time) error

	// UpdatePasswordReset persists the reset sub-record.
	UpdatePasswordReset(ctx context.Context, userID string, r domain.ResetState) error

	// RecordLoginSuccess stamps login activity and resets the failed counter.
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time, reqCtx domain.RequestContext) error

	// IncrementFailedLogins bumps the failed-attempt counter and returns the
	// new value.
	IncrementFailedLogins(ctx context.Context, userID string) (int, error)

	// UpdateStatus transitions the account status with a reason.
	UpdateStatus(ctx context.Context, userID string, status domain.AccountStatus, reason string) error

	// SoftDeleteUser marks the user deleted without removing the row.
	SoftDeleteUser(ctx context.Context, userID string) error

	// ListOrphanedUsers returns users of the given persona type whose persona
	// foreign key is still empty and who were created before the cutoff. The
	// out-of-scope reconciliation job reads this to repair the
	// non-transactional fallback path.
	ListOrphanedUsers(ctx context.Context, personaType domain.PersonaType, createdBefore time.Time) ([]domain.User, error)
}

type Personas interface {
	// CreatePersona inserts a new persona record. Returns ErrAlreadyExists on
	// a duplicate code or duplicate user link.
	CreatePersona(ctx context.Context, p domain.Persona) error

	// GetPersonaByID fetches a persona by id.
	GetPersonaByID(ctx context.Context, id string) (domain.Persona, error)

	// GetPersonaByUserID fetches the persona linked to a user.
	GetPersonaByUserID(ctx context.Context, userID string) (domain.Persona, error)

	// GetPersonaByCode fetches a persona by its human-friendly code.
	GetPersonaByCode(ctx context.Context, code string) (domain.Persona, error)
}

type Revocations interface {
	// CreateRevocation inserts a ledger entry. Duplicate token fingerprints
	// return ErrAlreadyExists so callers can treat re-revocation as a no-op.
	CreateRevocation(ctx context.Context, e domain.RevocationEntry) error

	// GetByTokenHash returns the entry denylisting this fingerprint.
	GetByTokenHash(ctx context.Context, tokenHash string) (domain.RevocationEntry, error)

	// GetLatestUserMarker returns the newest user-wide marker for a user.
	GetLatestUserMarker(ctx context.Context, userID string) (domain.RevocationEntry, error)

	// CountActiveForUser counts unexpired entries for a user.
	CountActiveForUser(ctx context.Context, userID string) (int, error)

	// DeleteExpired removes entries whose expiry has passed. Safe because an
	// expired entry denylists a token that can no longer authenticate anyway.
	DeleteExpired(ctx context.Context) error
}

type MFAChallenges interface {
	// CreateChallenge stores a new MFA challenge.
	CreateChallenge(ctx context.Context, c domain.MFAChallenge) error

	// GetChallenge retrieves a challenge by id (only if not expired).
	GetChallenge(ctx context.Context, id string) (domain.MFAChallenge, error)

	// IncrementChallengeAttempts bumps the failed counter and returns the
	// updated challenge.
	IncrementChallengeAttempts(ctx context.Context, id string) (domain.MFAChallenge, error)

	// DeleteChallenge removes a challenge by id.
	DeleteChallenge(ctx context.Context, id string) error

	// DeleteExpired removes all expired challenges (housekeeping).
	DeleteExpired(ctx context.Context) error
}
