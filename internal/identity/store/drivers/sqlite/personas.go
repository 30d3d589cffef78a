package sqlite

import (
	"context"
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
)

type personasRepo struct {
	db querier
}

const personaColumns = `id, code, type, tenant_id, user_id, contact_name, contact_email,
	contact_phone, company_name, relationship, status, acquisition_source, created_at, updated_at`

func scanPersona(row interface{ Scan(...any) error }) (domain.Persona, error) {
	var (
		p   domain.Persona
		typ string
	)
	err := row.Scan(
		&p.ID, &p.Code, &typ, &p.TenantID, &p.UserID, &p.ContactName, &p.ContactEmail,
		&p.ContactPhone, &p.CompanyName, &p.Relationship, &p.Status, &p.AcquisitionSource,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Persona{}, err
	}
	p.Type = domain.PersonaType(typ)
	return p, nil
}

func (r *personasRepo) CreatePersona(ctx context.Context, p domain.Persona) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO personas (
			id, code, type, tenant_id, user_id, contact_name, contact_email,
			contact_phone, company_name, relationship, status, acquisition_source,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Code, string(p.Type), p.TenantID, p.UserID, p.ContactName, p.ContactEmail,
		p.ContactPhone, p.CompanyName, p.Relationship, p.Status, p.AcquisitionSource,
		p.CreatedAt, p.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *personasRepo) GetPersonaByID(ctx context.Context, id string) (domain.Persona, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+personaColumns+` FROM personas WHERE id = ?`, id)
	p, err := scanPersona(row)
	if err != nil {
		return domain.Persona{}, mapNotFound(err)
	}
	return p, nil
}

func (r *personasRepo) GetPersonaByUserID(ctx context.Context, userID string) (domain.Persona, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+personaColumns+` FROM personas WHERE user_id = ?`, userID)
	p, err := scanPersona(row)
	if err != nil {
		return domain.Persona{}, mapNotFound(err)
	}
	return p, nil
}

func (r *personasRepo) GetPersonaByCode(ctx context.Context, code string) (domain.Persona, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+personaColumns+` FROM personas WHERE code = ?`, code)
	p, err := scanPersona(row)
	if err != nil {
		return domain.Persona{}, mapNotFound(err)
	}
	return p, nil
}
