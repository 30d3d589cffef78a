package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/internal/identity/store"
)

type usersRepo struct {
	db querier
}

const userColumns = `id, tenant_id, email, username, first_name, last_name, display_name, phone,
	password_hash, permissions, roles, memberships, status, status_reason, activated_at,
	email_verified, email_verify_token, email_verify_expires_at, email_verify_attempts,
	reset_token, reset_expires_at, reset_attempts,
	mfa_enabled, mfa_methods, mfa_totp_secret, trusted_devices,
	persona_type, persona_id, failed_logins, last_login_at, last_login_ip, last_login_ua,
	metadata, created_at, updated_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u                   domain.User
		permissions         string
		roles               string
		memberships         string
		activatedAt         sql.NullTime
		verifyToken         sql.NullString
		verifyExpires       sql.NullTime
		resetToken          sql.NullString
		resetExpires        sql.NullTime
		mfaEnabled          int
		mfaMethods          string
		trustedDevices      string
		lastLoginAt         sql.NullTime
		metadata            string
		deletedAt           sql.NullTime
		status, personaType string
	)

	err := row.Scan(
		&u.ID, &u.TenantID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.DisplayName, &u.Phone,
		&u.PasswordHash, &permissions, &roles, &memberships, &status, &u.StatusReason, &activatedAt,
		&u.EmailVerification.Verified, &verifyToken, &verifyExpires, &u.EmailVerification.Attempts,
		&resetToken, &resetExpires, &u.PasswordReset.Attempts,
		&mfaEnabled, &mfaMethods, &u.MFA.TOTPSecret, &trustedDevices,
		&personaType, &u.PersonaID, &u.FailedLogins, &lastLoginAt, &u.LastLoginIP, &u.LastLoginUA,
		&metadata, &u.CreatedAt, &u.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.Status = domain.AccountStatus(status)
	u.PersonaType = domain.PersonaType(personaType)
	u.ActivatedAt = mapNullTimePtr(activatedAt)
	u.EmailVerification.Token = mapNullString(verifyToken)
	u.EmailVerification.TokenExpiresAt = mapNullTimePtr(verifyExpires)
	u.PasswordReset.Token = mapNullString(resetToken)
	u.PasswordReset.ExpiresAt = mapNullTimePtr(resetExpires)
	u.MFA.Enabled = mfaEnabled != 0
	u.MFA.Methods = splitList(mfaMethods)
	u.Roles = splitList(roles)
	u.LastLoginAt = mapNullTimePtr(lastLoginAt)
	u.DeletedAt = mapNullTimePtr(deletedAt)

	if err := unmarshalJSON(permissions, &u.Permissions); err != nil {
		return domain.User{}, err
	}
	if err := unmarshalJSON(memberships, &u.Memberships); err != nil {
		return domain.User{}, err
	}
	if err := unmarshalJSON(trustedDevices, &u.MFA.TrustedDevices); err != nil {
		return domain.User{}, err
	}
	if err := unmarshalJSON(metadata, &u.Metadata); err != nil {
		return domain.User{}, err
	}

	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE tenant_id = ? AND lower(email) = lower(?) AND deleted_at IS NULL`,
		tenantID, strings.TrimSpace(email))
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByVerificationToken(ctx context.Context, token string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email_verify_token = ? AND deleted_at IS NULL`, token)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByResetToken(ctx context.Context, token string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE reset_token = ? AND deleted_at IS NULL`, token)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	permissions, err := marshalJSON(u.Permissions, "[]")
	if err != nil {
		return err
	}
	memberships, err := marshalJSON(u.Memberships, "[]")
	if err != nil {
		return err
	}
	trustedDevices, err := marshalJSON(u.MFA.TrustedDevices, "[]")
	if err != nil {
		return err
	}
	metadata, err := marshalJSON(u.Metadata, "{}")
	if err != nil {
		return err
	}

	mfaEnabled := 0
	if u.MFA.Enabled {
		mfaEnabled = 1
	}

	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, tenant_id, email, username, first_name, last_name, display_name, phone,
			password_hash, permissions, roles, memberships, status, status_reason, activated_at,
			email_verified, email_verify_token, email_verify_expires_at, email_verify_attempts,
			reset_token, reset_expires_at, reset_attempts,
			mfa_enabled, mfa_methods, mfa_totp_secret, trusted_devices,
			persona_type, persona_id, failed_logins, last_login_at, last_login_ip, last_login_ua,
			metadata, created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Email, u.Username, u.FirstName, u.LastName, u.DisplayName, u.Phone,
		u.PasswordHash, permissions, joinList(u.Roles), memberships, string(u.Status), u.StatusReason, mapOptionalTime(u.ActivatedAt),
		u.EmailVerification.Verified, mapStringNull(u.EmailVerification.Token), mapOptionalTime(u.EmailVerification.TokenExpiresAt), u.EmailVerification.Attempts,
		mapStringNull(u.PasswordReset.Token), mapOptionalTime(u.PasswordReset.ExpiresAt), u.PasswordReset.Attempts,
		mfaEnabled, joinList(u.MFA.Methods), u.MFA.TOTPSecret, trustedDevices,
		string(u.PersonaType), u.PersonaID, u.FailedLogins, mapOptionalTime(u.LastLoginAt), u.LastLoginIP, u.LastLoginUA,
		metadata, u.CreatedAt, u.UpdatedAt, mapOptionalTime(u.DeletedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		newHash, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) SetPersonaLink(ctx context.Context, userID string, personaType domain.PersonaType, personaID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET persona_type = ?, persona_id = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		string(personaType), personaID, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) UpdateEmailVerification(ctx context.Context, userID string, v domain.VerificationState, status domain.AccountStatus, activatedAt *time.Time) error {
	now := time.Now().UTC()

	if status == "" {
		res, err := r.db.ExecContext(ctx,
			`UPDATE users SET email_verified = ?, email_verify_token = ?, email_verify_expires_at = ?,
				email_verify_attempts = ?, updated_at = ?
			 WHERE id = ? AND deleted_at IS NULL`,
			v.Verified, mapStringNull(v.Token), mapOptionalTime(v.TokenExpiresAt), v.Attempts, now, userID)
		if err != nil {
			return err
		}
		return requireRow(res)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_verified = ?, email_verify_token = ?, email_verify_expires_at = ?,
			email_verify_attempts = ?, status = ?, activated_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		v.Verified, mapStringNull(v.Token), mapOptionalTime(v.TokenExpiresAt), v.Attempts,
		string(status), mapOptionalTime(activatedAt), now, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) UpdatePasswordReset(ctx context.Context, userID string, reset domain.ResetState) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET reset_token = ?, reset_expires_at = ?, reset_attempts = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		mapStringNull(reset.Token), mapOptionalTime(reset.ExpiresAt), reset.Attempts, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) RecordLoginSuccess(ctx context.Context, userID string, at time.Time, reqCtx domain.RequestContext) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ?, last_login_ip = ?, last_login_ua = ?,
			failed_logins = 0, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		at.UTC(), reqCtx.IP, reqCtx.UserAgent, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) IncrementFailedLogins(ctx context.Context, userID string) (int, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET failed_logins = failed_logins + 1, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), userID)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.db.QueryRowContext(ctx,
		`SELECT failed_logins FROM users WHERE id = ? AND deleted_at IS NULL`, userID).Scan(&count)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return count, nil
}

func (r *usersRepo) UpdateStatus(ctx context.Context, userID string, status domain.AccountStatus, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET status = ?, status_reason = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		string(status), reason, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) SoftDeleteUser(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) ListOrphanedUsers(ctx context.Context, personaType domain.PersonaType, createdBefore time.Time) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE persona_type = ? AND persona_id = '' AND created_at < ? AND deleted_at IS NULL
		 ORDER BY created_at`,
		string(personaType), createdBefore.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
