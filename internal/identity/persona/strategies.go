package persona

import (
	"errors"
	"fmt"
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/pkg/cryptox"
	"github.com/nexstaff/identity/pkg/idx"
)

// Code prefixes per persona type, kept short so codes stay readable on
// invoices and in support tickets.
const (
	clientCodePrefix     = "CLI"
	consultantCodePrefix = "CON"
	candidateCodePrefix  = "CND"
	partnerCodePrefix    = "PTR"
)

var errMissingCompany = errors.New("persona: company name is required")

func newCode(prefix string) (string, error) {
	return cryptox.GenerateCode(prefix, 6)
}

func basePersona(t domain.PersonaType, u *domain.User, in domain.RegisterInput, prefix string) (*domain.Persona, error) {
	code, err := newCode(prefix)
	if err != nil {
		return nil, fmt.Errorf("persona: generate code: %w", err)
	}

	now := time.Now().UTC()
	return &domain.Persona{
		ID:                idx.New().String(),
		Code:              code,
		Type:              t,
		TenantID:          u.TenantID,
		UserID:            u.ID,
		ContactName:       u.FullName(),
		ContactEmail:      u.Email,
		ContactPhone:      u.Phone,
		Relationship:      "prospect",
		Status:            "new",
		AcquisitionSource: in.Source,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ClientStrategy creates client business records. Clients purchase staffing
// engagements, so the record carries the company block and links
// bidirectionally: downstream billing reads the user's persona key directly
// from access tokens.
type ClientStrategy struct{}

func (s *ClientStrategy) Validate(in domain.RegisterInput) ([]string, error) {
	if in.CompanyName == "" {
		return nil, errMissingCompany
	}

	var warnings []string
	if in.Phone == "" {
		warnings = append(warnings, "client registered without phone number")
	}
	return warnings, nil
}

func (s *ClientStrategy) Prepare(u *domain.User, in domain.RegisterInput) (*domain.Persona, error) {
	p, err := basePersona(domain.PersonaClient, u, in, clientCodePrefix)
	if err != nil {
		return nil, err
	}
	p.CompanyName = in.CompanyName
	return p, nil
}

func (s *ClientStrategy) Config() Config {
	return Config{LinkingField: "persona_id", Mode: LinkBidirectional}
}

// ConsultantStrategy creates consultant records (the professionals staffed on
// engagements). Bidirectional link for the same token-embedding reason as
// clients.
type ConsultantStrategy struct{}

func (s *ConsultantStrategy) Validate(in domain.RegisterInput) ([]string, error) {
	var warnings []string
	if in.Headline == "" {
		warnings = append(warnings, "consultant registered without a headline")
	}
	return warnings, nil
}

func (s *ConsultantStrategy) Prepare(u *domain.User, in domain.RegisterInput) (*domain.Persona, error) {
	p, err := basePersona(domain.PersonaConsultant, u, in, consultantCodePrefix)
	if err != nil {
		return nil, err
	}
	p.Relationship = "bench"
	return p, nil
}

func (s *ConsultantStrategy) Config() Config {
	return Config{LinkingField: "persona_id", Mode: LinkBidirectional}
}

// CandidateStrategy creates candidate records for the recruiting pipeline.
// Candidates churn quickly and nothing downstream reads a candidate key off
// the user, so the link is forward-only.
type CandidateStrategy struct{}

func (s *CandidateStrategy) Validate(in domain.RegisterInput) ([]string, error) {
	return nil, nil
}

func (s *CandidateStrategy) Prepare(u *domain.User, in domain.RegisterInput) (*domain.Persona, error) {
	p, err := basePersona(domain.PersonaCandidate, u, in, candidateCodePrefix)
	if err != nil {
		return nil, err
	}
	p.Relationship = "applicant"
	return p, nil
}

func (s *CandidateStrategy) Config() Config {
	return Config{Mode: LinkForwardOnly}
}

// PartnerStrategy creates partner-organization records. Forward-only link.
type PartnerStrategy struct{}

func (s *PartnerStrategy) Validate(in domain.RegisterInput) ([]string, error) {
	if in.CompanyName == "" {
		return nil, errMissingCompany
	}
	return nil, nil
}

func (s *PartnerStrategy) Prepare(u *domain.User, in domain.RegisterInput) (*domain.Persona, error) {
	p, err := basePersona(domain.PersonaPartner, u, in, partnerCodePrefix)
	if err != nil {
		return nil, err
	}
	p.CompanyName = in.CompanyName
	return p, nil
}

func (s *PartnerStrategy) Config() Config {
	return Config{Mode: LinkForwardOnly}
}

var codePrefixes = map[domain.PersonaType]string{
	domain.PersonaClient:     clientCodePrefix,
	domain.PersonaConsultant: consultantCodePrefix,
	domain.PersonaCandidate:  candidateCodePrefix,
	domain.PersonaPartner:    partnerCodePrefix,
}

// Fallback builds a bare persona record for a type with no registered
// strategy. It skips strategy validation and carries a bidirectional link, so
// the caller is expected to patch the user-side key after the (separate,
// non-atomic) persona write lands.
func Fallback(t domain.PersonaType, u *domain.User, in domain.RegisterInput) (*domain.Persona, error) {
	prefix, ok := codePrefixes[t]
	if !ok {
		return nil, fmt.Errorf("persona: no fallback for type %q", t)
	}

	p, err := basePersona(t, u, in, prefix)
	if err != nil {
		return nil, err
	}
	p.CompanyName = in.CompanyName
	return p, nil
}
