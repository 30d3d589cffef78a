package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/internal/identity/store"
	"github.com/nexstaff/identity/internal/identity/store/drivers/sqlite"
	"github.com/nexstaff/identity/pkg/cryptox"
	"github.com/nexstaff/identity/pkg/idx"
	"github.com/nexstaff/identity/pkg/jwtx"
)

const (
	testTenant   = "tenant-acme"
	testIssuer   = "test-issuer"
	testPassword = "Sup3r$ecret1"

	// Minimum bcrypt cost keeps the suite fast.
	testBcryptCost = 4
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestSigner(t *testing.T) *jwtx.Signer {
	t.Helper()

	signer, err := jwtx.NewSigner(testSecret, testIssuer)
	require.NoError(t, err)
	return signer
}

func newTokenService(t *testing.T, st store.Store) *TokenService {
	t.Helper()

	return &TokenService{
		Signer:     newTestSigner(t),
		Store:      st,
		Issuer:     testIssuer,
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}
}

// seedUser inserts an active, verified user with the test password. Mutators
// run before the insert.
func seedUser(t *testing.T, st store.Store, mutate ...func(*domain.User)) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword, testBcryptCost)
	require.NoError(t, err)

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		TenantID:     testTenant,
		Email:        "alice@example.com",
		Username:     "alice",
		FirstName:    "Alice",
		LastName:     "Nguyen",
		PasswordHash: hash,
		Roles:        []string{"client"},
		Permissions: []domain.Grant{
			{Resource: "profile", Actions: []string{"read", "write"}, GrantedAt: now},
		},
		Status:            domain.StatusActive,
		ActivatedAt:       &now,
		EmailVerification: domain.VerificationState{Verified: true},
		PersonaType:       domain.PersonaClient,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, m := range mutate {
		m(&u)
	}

	require.NoError(t, st.Users().CreateUser(context.Background(), u))
	return u
}
