// Package persona implements the pluggable strategy layer that creates
// persona business records (client, consultant, candidate, partner) during
// registration. Persona lines evolve independently, so the registration
// orchestrator depends only on the Strategy interface, never on a concrete
// persona type.
package persona

import (
	"sync"

	"github.com/nexstaff/identity/internal/identity/domain"
)

// LinkMode declares how a persona record links back to its user.
type LinkMode string

const (
	// LinkBidirectional stores the user id on the persona AND the persona id
	// on the user, in the same transaction.
	LinkBidirectional LinkMode = "bidirectional"
	// LinkForwardOnly stores the user id on the persona; the user carries no
	// reciprocal field.
	LinkForwardOnly LinkMode = "forward-only"
)

// Config declares a strategy's linking behavior. A strategy is complete only
// if it names a linking field (bidirectional) or declares forward-only mode;
// anything else is treated as an unregistered strategy.
type Config struct {
	// LinkingField is the user-side foreign key field populated for
	// bidirectional links.
	LinkingField string
	Mode         LinkMode
}

func (c Config) complete() bool {
	switch c.Mode {
	case LinkBidirectional:
		return c.LinkingField != ""
	case LinkForwardOnly:
		return true
	}
	return false
}

// Bidirectional reports whether the user record carries a reciprocal key.
func (c Config) Bidirectional() bool { return c.Mode == LinkBidirectional }

// Strategy validates persona-specific input, prepares the persona record from
// the not-yet-persisted user shape, and declares its link configuration.
type Strategy interface {
	// Validate returns non-fatal warnings (logged by the orchestrator) and a
	// hard error that aborts registration before any write.
	Validate(in domain.RegisterInput) (warnings []string, err error)

	// Prepare builds the persona record from the user as it will be
	// persisted. The user has an ID but no database row yet.
	Prepare(u *domain.User, in domain.RegisterInput) (*domain.Persona, error)

	// Config declares the linking behavior.
	Config() Config
}

// Registry maps persona types to strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[domain.PersonaType]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[domain.PersonaType]Strategy)}
}

// Register installs a strategy for a persona type. It replaces any previous
// registration.
func (r *Registry) Register(t domain.PersonaType, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[t] = s
}

// Has reports whether a usable strategy exists for the persona type. A
// registered strategy with an incomplete link config counts as absent, which
// sends the orchestrator down its fallback path.
func (r *Registry) Has(t domain.PersonaType) bool {
	_, ok := r.Get(t)
	return ok
}

// Get returns the strategy for a persona type, if one is registered and
// completely configured.
func (r *Registry) Get(t domain.PersonaType) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[t]
	if !ok || s == nil {
		return nil, false
	}
	if !s.Config().complete() {
		return nil, false
	}
	return s, true
}

// DefaultRegistry returns a registry with the standard platform strategies
// installed. Admin users have no persona record and no strategy.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(domain.PersonaClient, &ClientStrategy{})
	r.Register(domain.PersonaConsultant, &ConsultantStrategy{})
	r.Register(domain.PersonaCandidate, &CandidateStrategy{})
	r.Register(domain.PersonaPartner, &PartnerStrategy{})
	return r
}
