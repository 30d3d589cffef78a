package sqlite

import (
	"context"
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
)

type mfaChallengesRepo struct {
	db querier
}

func (r *mfaChallengesRepo) CreateChallenge(ctx context.Context, c domain.MFAChallenge) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mfa_challenges (id, user_id, tenant_id, attempts, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.TenantID, c.Attempts, c.ExpiresAt.UTC(), c.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *mfaChallengesRepo) GetChallenge(ctx context.Context, id string) (domain.MFAChallenge, error) {
	var c domain.MFAChallenge
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, tenant_id, attempts, expires_at, created_at
		FROM mfa_challenges WHERE id = ? AND expires_at > ?`,
		id, time.Now().UTC(),
	).Scan(&c.ID, &c.UserID, &c.TenantID, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.MFAChallenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *mfaChallengesRepo) IncrementChallengeAttempts(ctx context.Context, id string) (domain.MFAChallenge, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE mfa_challenges SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return domain.MFAChallenge{}, err
	}
	return r.GetChallenge(ctx, id)
}

func (r *mfaChallengesRepo) DeleteChallenge(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_challenges WHERE id = ?`, id)
	return err
}

func (r *mfaChallengesRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM mfa_challenges WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
