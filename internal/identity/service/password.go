package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/internal/identity/store"
	"github.com/nexstaff/identity/pkg/cryptox"
	"github.com/nexstaff/identity/pkg/jwtx"
	"github.com/nexstaff/identity/pkg/slogx"
)

// resetTokenSize is the random-byte length of password reset tokens.
const resetTokenSize = 32

// PasswordService owns password changes and the forgot-password flow. Every
// successful password write cascades a full token revocation: a credential
// that survived a password change is a stolen credential.
type PasswordService struct {
	Store    store.Store
	Tokens   *TokenService
	Notifier Notifier

	// BcryptCost is passed to the hasher; out-of-range values fall back to
	// the hasher's default.
	BcryptCost int

	// PasswordMinLength is the policy floor. Zero means the default.
	PasswordMinLength int

	// ResetTTL is the reset token lifetime. Zero means the default.
	ResetTTL time.Duration

	// TenantID scopes the email lookup on InitiateReset.
	TenantID string

	// PlatformURL is the base URL embedded in reset links.
	PlatformURL string
}

func (s *PasswordService) minLength() int {
	if s.PasswordMinLength > 0 {
		return s.PasswordMinLength
	}
	return DefaultPasswordMinLength
}

func (s *PasswordService) resetTTL() time.Duration {
	if s.ResetTTL > 0 {
		return s.ResetTTL
	}
	return jwtx.DefaultResetTTL
}

// ChangePassword verifies the current password, writes the new hash and
// revokes every outstanding token. The hash write is the commit point: a
// revocation failure after it is logged as a security anomaly but does not
// undo the change.
func (s *PasswordService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, currentToken string, reqCtx domain.RequestContext) error {
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := cryptox.VerifyPassword(currentPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	if err := validatePassword(newPassword, s.minLength()); err != nil {
		return err
	}

	hash, err := cryptox.HashPassword(newPassword, s.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}

	s.revokeAllAfterPasswordWrite(ctx, user, currentToken, domain.ReasonPasswordChange, reqCtx)

	notifier := normalizeNotifier(s.Notifier)
	msg := passwordChangedEmail(user)
	detach(ctx, "password_changed_email", func(ctx context.Context) error {
		return notifier.SendEmail(ctx, msg)
	})

	l.Info("password changed", slog.String("user_id", user.ID))
	return nil
}

// InitiateReset starts the forgot-password flow. It always returns nil for
// lookup misses so callers cannot enumerate registered addresses.
func (s *PasswordService) InitiateReset(ctx context.Context, email string) error {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	user, err := s.Store.Users().GetUserByEmail(ctx, s.TenantID, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	token, err := cryptox.GenerateToken(resetTokenSize)
	if err != nil {
		return err
	}

	exp := now.Add(s.resetTTL())
	r := user.PasswordReset
	r.Token = token
	r.ExpiresAt = &exp
	r.Attempts++

	if err := s.Store.Users().UpdatePasswordReset(ctx, user.ID, r); err != nil {
		return err
	}

	notifier := normalizeNotifier(s.Notifier)
	msg := passwordResetEmail(s.PlatformURL, user, token)
	detach(ctx, "password_reset_email", func(ctx context.Context) error {
		return notifier.SendEmail(ctx, msg)
	})

	l.Info("password reset initiated", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword consumes a reset token and sets a new password. The hash
// write and the reset-state clear commit atomically, then every outstanding
// token is revoked.
func (s *PasswordService) ResetPassword(ctx context.Context, token, newPassword string, reqCtx domain.RequestContext) error {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}

	user, err := s.Store.Users().GetUserByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	r := user.PasswordReset
	if r.ExpiresAt == nil || r.ExpiresAt.Before(now) {
		return ErrTokenExpired
	}
	if err := validatePassword(newPassword, s.minLength()); err != nil {
		return err
	}

	hash, err := cryptox.HashPassword(newPassword, s.BcryptCost)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			return err
		}
		return tx.Users().UpdatePasswordReset(ctx, user.ID, domain.ResetState{})
	})
	if err != nil {
		return err
	}

	s.revokeAllAfterPasswordWrite(ctx, user, "", domain.ReasonPasswordReset, reqCtx)

	notifier := normalizeNotifier(s.Notifier)
	msg := passwordChangedEmail(user)
	detach(ctx, "password_changed_email", func(ctx context.Context) error {
		return notifier.SendEmail(ctx, msg)
	})

	l.Info("password reset completed", slog.String("user_id", user.ID))
	return nil
}

// revokeAllAfterPasswordWrite drops the caller's presented token plus a
// user-wide marker. The password hash is already committed at this point, so
// a ledger failure is logged loudly instead of failing the request.
func (s *PasswordService) revokeAllAfterPasswordWrite(ctx context.Context, user domain.User, currentToken string, reason domain.RevocationReason, reqCtx domain.RequestContext) {
	l := slogx.FromContext(ctx)

	if currentToken != "" {
		if err := s.Tokens.Revoke(ctx, user.ID, currentToken, reason, reqCtx); err != nil {
			l.Error("security anomaly: presented token not revoked after password write",
				slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	if _, err := s.Tokens.RevokeAll(ctx, user.ID, user.TenantID, reason); err != nil {
		l.Error("security anomaly: outstanding tokens not revoked after password write",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}
}

func passwordChangedEmail(user domain.User) EmailMessage {
	return EmailMessage{
		To:       user.Email,
		Template: "password_changed",
		Data: map[string]any{
			"first_name": user.FirstName,
		},
	}
}

func passwordResetEmail(platformURL string, user domain.User, token string) EmailMessage {
	return EmailMessage{
		To:       user.Email,
		Template: "password_reset",
		Data: map[string]any{
			"first_name": user.FirstName,
			"reset_url":  strings.TrimRight(platformURL, "/") + "/reset-password?token=" + token,
		},
	}
}
