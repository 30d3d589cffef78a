package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/internal/identity/persona"
	"github.com/nexstaff/identity/internal/identity/store"
)

func newRegistrationService(t *testing.T, st store.Store) *RegistrationService {
	t.Helper()

	return &RegistrationService{
		Store:           st,
		Tokens:          newTokenService(t, st),
		Strategies:      persona.DefaultRegistry(),
		DefaultTenantID: testTenant,
		BcryptCost:      testBcryptCost,
		PlatformURL:     "https://app.example.com",
	}
}

func clientInput() domain.RegisterInput {
	return domain.RegisterInput{
		Email:       "alice@example.com",
		Password:    testPassword,
		FirstName:   "Alice",
		LastName:    "Nguyen",
		Phone:       "+61400000000",
		PersonaType: domain.PersonaClient,
		CompanyName: "Acme Pty Ltd",
		Source:      "organic",
	}
}

func TestRegisterClientCreatesUserAndPersonaAtomically(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newRegistrationService(t, st)

	result, err := svc.Register(ctx, clientInput())
	require.NoError(t, err)
	require.False(t, result.VerificationRequired)
	require.NotNil(t, result.Tokens)
	require.NotNil(t, result.Persona)

	user := result.User
	require.Equal(t, "alice@example.com", user.Email)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, domain.StatusActive, user.Status)
	require.True(t, user.EmailVerification.Verified)
	require.Equal(t, persona.DefaultRoles(domain.PersonaClient), user.Roles)

	// Bidirectional link: the user carries the persona key.
	require.Equal(t, result.Persona.ID, user.PersonaID)
	require.True(t, strings.HasPrefix(result.Persona.Code, "CLI-"))
	require.Equal(t, "Acme Pty Ltd", result.Persona.CompanyName)
	require.Equal(t, user.ID, result.Persona.UserID)

	stored, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, result.Persona.ID, stored.PersonaID)

	rec, err := st.Personas().GetPersonaByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, result.Persona.Code, rec.Code)
	require.Equal(t, user.Email, rec.ContactEmail)
}

func TestRegisterCandidateLinksForwardOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newRegistrationService(t, st)

	in := clientInput()
	in.Email = "bob@example.com"
	in.PersonaType = domain.PersonaCandidate
	in.CompanyName = ""

	result, err := svc.Register(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, result.Persona)
	require.True(t, strings.HasPrefix(result.Persona.Code, "CND-"))

	// Forward-only: the persona points at the user, not the other way.
	require.Empty(t, result.User.PersonaID)
	require.Equal(t, result.User.ID, result.Persona.UserID)
}

func TestRegisterWithVerificationGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newRegistrationService(t, st)
	svc.RequireVerification = true

	result, err := svc.Register(ctx, clientInput())
	require.NoError(t, err)
	require.True(t, result.VerificationRequired)
	require.Nil(t, result.Tokens)

	user := result.User
	require.Equal(t, domain.StatusPending, user.Status)
	require.False(t, user.EmailVerification.Verified)
	require.NotEmpty(t, user.EmailVerification.Token)
	require.NotNil(t, user.EmailVerification.TokenExpiresAt)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newRegistrationService(t, st)

	_, err := svc.Register(ctx, clientInput())
	require.NoError(t, err)

	// The duplicate check is case-insensitive.
	in := clientInput()
	in.Email = "ALICE@example.com"
	_, err = svc.Register(ctx, in)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterCollectsEveryValidationFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newRegistrationService(t, st)

	in := domain.RegisterInput{
		Email:       "not-an-email",
		Password:    "short",
		PersonaType: domain.PersonaType("alien"),
	}

	_, err := svc.Register(ctx, in)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "email")
	require.Contains(t, verr.Fields, "password")
	require.Contains(t, verr.Fields, "first_name")
	require.Contains(t, verr.Fields, "last_name")
	require.Contains(t, verr.Fields, "persona_type")
}

func TestRegisterSurfacesStrategyErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newRegistrationService(t, st)

	in := clientInput()
	in.CompanyName = ""

	_, err := svc.Register(ctx, in)

	var serr *StrategyValidationError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, string(domain.PersonaClient), serr.PersonaType)

	// Nothing was written.
	_, err = st.Users().GetUserByEmail(ctx, testTenant, "alice@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

// brokenPersonaStore forces every transactional persona write to fail so the
// surrounding transaction must roll back.
type brokenPersonaStore struct {
	store.Store
	err error
}

func (s *brokenPersonaStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&brokenPersonaTx{storeTx: tx, err: s.err})
	})
}

// storeTx aliases store.Tx so the embedded field is not named "Tx", which
// would shadow the Tx method required by the store.Tx interface.
type storeTx = store.Tx

type brokenPersonaTx struct {
	storeTx
	err error
}

func (t *brokenPersonaTx) Personas() store.Personas {
	return brokenPersonas{err: t.err}
}

type brokenPersonas struct {
	err error
}

func (p brokenPersonas) CreatePersona(context.Context, domain.Persona) error { return p.err }
func (p brokenPersonas) GetPersonaByID(context.Context, string) (domain.Persona, error) {
	return domain.Persona{}, p.err
}
func (p brokenPersonas) GetPersonaByUserID(context.Context, string) (domain.Persona, error) {
	return domain.Persona{}, p.err
}
func (p brokenPersonas) GetPersonaByCode(context.Context, string) (domain.Persona, error) {
	return domain.Persona{}, p.err
}

func TestRegisterRollsBackUserWhenPersonaWriteFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	boom := errors.New("persona write rejected")
	svc := newRegistrationService(t, &brokenPersonaStore{Store: st, err: boom})

	_, err := svc.Register(ctx, clientInput())
	require.ErrorIs(t, err, boom)

	// The user insert ran inside the same transaction and must not survive
	// the abort.
	_, err = st.Users().GetUserByEmail(ctx, testTenant, "alice@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegisterFallbackWithoutStrategy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newRegistrationService(t, st)

	// A registry with no candidate strategy forces the non-atomic fallback.
	registry := persona.NewRegistry()
	registry.Register(domain.PersonaClient, &persona.ClientStrategy{})
	svc.Strategies = registry

	in := clientInput()
	in.Email = "carol@example.com"
	in.PersonaType = domain.PersonaCandidate
	in.CompanyName = ""

	result, err := svc.Register(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, result.Persona)
	require.True(t, strings.HasPrefix(result.Persona.Code, "CND-"))

	// The fallback patched the user-side link after the second write.
	stored, err := st.Users().GetUserByID(ctx, result.User.ID)
	require.NoError(t, err)
	require.Equal(t, result.Persona.ID, stored.PersonaID)
}

func TestRegisterAdminCreatesNoPersona(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newRegistrationService(t, st)

	in := clientInput()
	in.Email = "root@example.com"
	in.PersonaType = domain.PersonaAdmin
	in.CompanyName = ""

	result, err := svc.Register(ctx, in)
	require.NoError(t, err)
	require.Nil(t, result.Persona)
	require.Empty(t, result.User.PersonaID)
}

func TestFindOrphanedUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newRegistrationService(t, st)

	// A user whose persona write never landed.
	orphan := seedUser(t, st, func(u *domain.User) {
		u.Email = "orphan@example.com"
		u.PersonaType = domain.PersonaClient
		u.PersonaID = ""
		u.CreatedAt = time.Now().UTC().Add(-time.Hour)
	})
	// A healthy linked user of the same type.
	seedUser(t, st, func(u *domain.User) {
		u.Email = "linked@example.com"
		u.PersonaType = domain.PersonaClient
		u.PersonaID = "persona-ok"
	})

	orphans, err := svc.FindOrphanedUsers(ctx, domain.PersonaClient, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.Equal(t, orphan.ID, orphans[0].ID)
}
