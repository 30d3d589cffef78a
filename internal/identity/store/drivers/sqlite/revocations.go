package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
)

type revocationsRepo struct {
	db querier
}

const revocationColumns = `id, kind, token_hash, user_id, tenant_id, reason, issued_before,
	ip, user_agent, device_id, expires_at, created_at`

func scanRevocation(row interface{ Scan(...any) error }) (domain.RevocationEntry, error) {
	var (
		e            domain.RevocationEntry
		kind, reason string
		tokenHash    sql.NullString
		issuedBefore sql.NullTime
	)
	err := row.Scan(
		&e.ID, &kind, &tokenHash, &e.UserID, &e.TenantID, &reason, &issuedBefore,
		&e.IP, &e.UserAgent, &e.DeviceID, &e.ExpiresAt, &e.CreatedAt,
	)
	if err != nil {
		return domain.RevocationEntry{}, err
	}
	e.Kind = domain.RevocationKind(kind)
	e.Reason = domain.RevocationReason(reason)
	e.TokenHash = mapNullString(tokenHash)
	e.IssuedBefore = mapNullTimePtr(issuedBefore)
	return e, nil
}

func (r *revocationsRepo) CreateRevocation(ctx context.Context, e domain.RevocationEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revocations (
			id, kind, token_hash, user_id, tenant_id, reason, issued_before,
			ip, user_agent, device_id, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), mapStringNull(e.TokenHash), e.UserID, e.TenantID, string(e.Reason),
		mapOptionalTime(e.IssuedBefore), e.IP, e.UserAgent, e.DeviceID, e.ExpiresAt.UTC(), e.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *revocationsRepo) GetByTokenHash(ctx context.Context, tokenHash string) (domain.RevocationEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+revocationColumns+` FROM revocations WHERE token_hash = ?`, tokenHash)
	e, err := scanRevocation(row)
	if err != nil {
		return domain.RevocationEntry{}, mapNotFound(err)
	}
	return e, nil
}

func (r *revocationsRepo) GetLatestUserMarker(ctx context.Context, userID string) (domain.RevocationEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+revocationColumns+` FROM revocations
		 WHERE user_id = ? AND kind = ?
		 ORDER BY issued_before DESC LIMIT 1`,
		userID, string(domain.RevocationMarker))
	e, err := scanRevocation(row)
	if err != nil {
		return domain.RevocationEntry{}, mapNotFound(err)
	}
	return e, nil
}

func (r *revocationsRepo) CountActiveForUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revocations WHERE user_id = ? AND expires_at > ?`,
		userID, time.Now().UTC()).Scan(&n)
	return n, err
}

func (r *revocationsRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM revocations WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
