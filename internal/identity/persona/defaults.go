package persona

import (
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
)

// Static default role and permission tables per persona type, applied at
// registration. Grant mutations after that point belong to the back-office,
// not this subsystem.

var defaultRoles = map[domain.PersonaType][]string{
	domain.PersonaClient:     {"client"},
	domain.PersonaConsultant: {"consultant"},
	domain.PersonaCandidate:  {"candidate"},
	domain.PersonaPartner:    {"partner"},
	domain.PersonaAdmin:      {"admin"},
}

var defaultGrants = map[domain.PersonaType][]domain.Grant{
	domain.PersonaClient: {
		{Resource: "projects", Actions: []string{"read", "create"}},
		{Resource: "invoices", Actions: []string{"read"}},
		{Resource: "profile", Actions: []string{"read", "update"}},
	},
	domain.PersonaConsultant: {
		{Resource: "engagements", Actions: []string{"read"}},
		{Resource: "timesheets", Actions: []string{"read", "create", "update"}},
		{Resource: "profile", Actions: []string{"read", "update"}},
	},
	domain.PersonaCandidate: {
		{Resource: "applications", Actions: []string{"read", "create"}},
		{Resource: "profile", Actions: []string{"read", "update"}},
	},
	domain.PersonaPartner: {
		{Resource: "referrals", Actions: []string{"read", "create"}},
		{Resource: "profile", Actions: []string{"read", "update"}},
	},
	domain.PersonaAdmin: {
		{Resource: "*", Actions: []string{"read", "create", "update", "delete"}},
	},
}

// DefaultRoles returns the role labels assigned to a fresh registration.
func DefaultRoles(t domain.PersonaType) []string {
	roles := defaultRoles[t]
	out := make([]string, len(roles))
	copy(out, roles)
	return out
}

// DefaultGrants returns the permission grants assigned to a fresh
// registration, stamped with the system grantor and the given time.
func DefaultGrants(t domain.PersonaType, at time.Time) []domain.Grant {
	src := defaultGrants[t]
	out := make([]domain.Grant, len(src))
	for i, g := range src {
		actions := make([]string, len(g.Actions))
		copy(actions, g.Actions)
		out[i] = domain.Grant{
			Resource:  g.Resource,
			Actions:   actions,
			GrantedBy: "system:registration",
			GrantedAt: at,
		}
	}
	return out
}
