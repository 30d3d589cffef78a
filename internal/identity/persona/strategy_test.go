package persona

import (
	"strings"
	"testing"
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/stretchr/testify/require"
)

func TestRegistryGet(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()

	t.Run("registered types resolve", func(t *testing.T) {
		for _, typ := range []domain.PersonaType{
			domain.PersonaClient, domain.PersonaConsultant,
			domain.PersonaCandidate, domain.PersonaPartner,
		} {
			s, ok := r.Get(typ)
			require.True(t, ok, "expected strategy for %s", typ)
			require.NotNil(t, s)
		}
	})

	t.Run("admin has no strategy", func(t *testing.T) {
		require.False(t, r.Has(domain.PersonaAdmin))
	})
}

// incompleteStrategy declares neither a linking field nor forward-only mode.
type incompleteStrategy struct{}

func (incompleteStrategy) Validate(domain.RegisterInput) ([]string, error) { return nil, nil }
func (incompleteStrategy) Prepare(*domain.User, domain.RegisterInput) (*domain.Persona, error) {
	return nil, nil
}
func (incompleteStrategy) Config() Config { return Config{} }

func TestRegistryTreatsIncompleteConfigAsAbsent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(domain.PersonaClient, incompleteStrategy{})

	require.False(t, r.Has(domain.PersonaClient))
	_, ok := r.Get(domain.PersonaClient)
	require.False(t, ok)
}

func TestClientStrategy(t *testing.T) {
	t.Parallel()

	s := &ClientStrategy{}
	user := &domain.User{
		ID:        "user-1",
		TenantID:  "tenant-1",
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Smith",
		Phone:     "+15550100",
	}
	in := domain.RegisterInput{CompanyName: "Acme Ltd", Source: "organic"}

	t.Run("validate requires company", func(t *testing.T) {
		_, err := s.Validate(domain.RegisterInput{})
		require.Error(t, err)
	})

	t.Run("validate warns on missing phone", func(t *testing.T) {
		warnings, err := s.Validate(domain.RegisterInput{CompanyName: "Acme Ltd"})
		require.NoError(t, err)
		require.Len(t, warnings, 1)
	})

	t.Run("prepare mirrors contact block", func(t *testing.T) {
		p, err := s.Prepare(user, in)
		require.NoError(t, err)
		require.Equal(t, domain.PersonaClient, p.Type)
		require.Equal(t, "user-1", p.UserID)
		require.Equal(t, "tenant-1", p.TenantID)
		require.Equal(t, "Alice Smith", p.ContactName)
		require.Equal(t, "alice@example.com", p.ContactEmail)
		require.Equal(t, "Acme Ltd", p.CompanyName)
		require.Equal(t, "organic", p.AcquisitionSource)
		require.True(t, strings.HasPrefix(p.Code, "CLI-"))
		require.Len(t, p.Code, 10)
	})

	t.Run("codes are unique across preparations", func(t *testing.T) {
		p1, err := s.Prepare(user, in)
		require.NoError(t, err)
		p2, err := s.Prepare(user, in)
		require.NoError(t, err)
		require.NotEqual(t, p1.Code, p2.Code)
	})

	require.True(t, s.Config().Bidirectional())
	require.Equal(t, "persona_id", s.Config().LinkingField)
}

func TestForwardOnlyStrategies(t *testing.T) {
	t.Parallel()

	require.Equal(t, LinkForwardOnly, (&CandidateStrategy{}).Config().Mode)
	require.Equal(t, LinkForwardOnly, (&PartnerStrategy{}).Config().Mode)
	require.False(t, (&CandidateStrategy{}).Config().Bidirectional())
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	now := time.Now()

	roles := DefaultRoles(domain.PersonaClient)
	require.Equal(t, []string{"client"}, roles)

	grants := DefaultGrants(domain.PersonaConsultant, now)
	require.NotEmpty(t, grants)
	for _, g := range grants {
		require.Equal(t, "system:registration", g.GrantedBy)
		require.Equal(t, now, g.GrantedAt)
	}

	// Mutating the returned slices must not leak into the tables.
	roles[0] = "mutated"
	require.Equal(t, []string{"client"}, DefaultRoles(domain.PersonaClient))
}
