package domain

import "time"

// PersonaType is the business role a registered user plays.
type PersonaType string

const (
	PersonaClient     PersonaType = "client"
	PersonaConsultant PersonaType = "consultant"
	PersonaCandidate  PersonaType = "candidate"
	PersonaPartner    PersonaType = "partner"
	PersonaAdmin      PersonaType = "admin"
)

// Valid reports whether t is one of the known persona types.
func (t PersonaType) Valid() bool {
	switch t {
	case PersonaClient, PersonaConsultant, PersonaCandidate, PersonaPartner, PersonaAdmin:
		return true
	}
	return false
}

// Persona is a persona business record (client, consultant, candidate or
// partner). Created once during registration and owned by the tenant; updated
// thereafter only by business-domain services.
type Persona struct {
	ID       string
	Code     string // human-friendly unique reference, e.g. "CLI-7KQ2MX"
	Type     PersonaType
	TenantID string

	// UserID references the owning user. Always set on the persona record;
	// the user carries the reciprocal key only for bidirectionally linked
	// persona types.
	UserID string

	// Contact block mirrored from the user at creation time.
	ContactName  string
	ContactEmail string
	ContactPhone string

	CompanyName  string // clients and partners
	Relationship string // e.g. "prospect", "engaged"
	Status       string

	// AcquisitionSource records registration provenance.
	AcquisitionSource string

	CreatedAt time.Time
	UpdatedAt time.Time
}
