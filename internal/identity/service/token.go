package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/internal/identity/store"
	"github.com/nexstaff/identity/pkg/cryptox"
	"github.com/nexstaff/identity/pkg/idx"
	"github.com/nexstaff/identity/pkg/jwtx"
	"github.com/nexstaff/identity/pkg/slogx"
)

// fallbackRevocationTTL bounds a ledger entry for a token whose expiry we
// cannot read. Matches the access-token lifetime so the entry outlives any
// plausible token.
const fallbackRevocationTTL = 24 * time.Hour

// oldAccessRevokeTimeout bounds the best-effort revocation of the prior
// access token during rotation. It must never block the new-token response.
const oldAccessRevokeTimeout = 2 * time.Second

// TokenService owns the credential lifecycle: issuing pairs, rotation, and
// the revocation ledger. Ledger reads are fail-secure: if the store cannot
// answer, the token is treated as revoked.
type TokenService struct {
	Signer     *jwtx.Signer
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// IssuePair signs an access/refresh pair from the user's state at issuance
// time. It performs no revocation checks of its own.
func (s *TokenService) IssuePair(u domain.User) (*domain.TokenPair, error) {
	now := time.Now().UTC()

	access := jwtx.NewClaims(jwtx.TokenAccess, u.ID, u.TenantID, s.Issuer, s.AccessTTL, now)
	access.Permissions = u.FlatPermissions()
	access.Roles = u.Roles
	access.PersonaID = u.PersonaID

	accessToken, err := s.Signer.Sign(access)
	if err != nil {
		return nil, err
	}

	refresh := jwtx.NewClaims(jwtx.TokenRefresh, u.ID, u.TenantID, s.Issuer, s.RefreshTTL, now)
	refreshToken, err := s.Signer.Sign(refresh)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// IsRevoked reports whether the token's fingerprint is on the ledger.
// Fail-secure: a ledger read failure denies rather than allows.
func (s *TokenService) IsRevoked(ctx context.Context, raw string) bool {
	hash := cryptox.FingerprintToken(raw)

	_, err := s.Store.Revocations().GetByTokenHash(ctx, hash)
	if err == nil {
		return true
	}
	if errors.Is(err, store.ErrNotFound) {
		return false
	}

	slogx.FromContext(ctx).Warn("revocation ledger unreachable, denying token",
		slog.Any("error", err))
	return true
}

// VerifyAccess validates an access token end to end: signature, expiry, type
// discriminator, ledger fingerprint, and any user-wide revocation marker.
func (s *TokenService) VerifyAccess(ctx context.Context, raw string) (*jwtx.Claims, error) {
	claims, err := s.Signer.ParseType(raw, jwtx.TokenAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if s.IsRevoked(ctx, raw) {
		return nil, ErrInvalidToken
	}
	if s.coveredByMarker(ctx, claims) {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// coveredByMarker checks the user-wide revoke-issued-before marker.
// Fail-secure like IsRevoked.
func (s *TokenService) coveredByMarker(ctx context.Context, claims *jwtx.Claims) bool {
	marker, err := s.Store.Revocations().GetLatestUserMarker(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false
		}
		slogx.FromContext(ctx).Warn("revocation ledger unreachable, denying token",
			slog.Any("error", err))
		return true
	}

	if marker.IssuedBefore == nil || claims.IssuedAt == nil {
		return false
	}
	// iat has second granularity while the marker keeps full precision, so a
	// token minted in the same wall-clock second as the marker counts as
	// covered. That errs toward denial for logins racing a revoke-all; the
	// next login issues a strictly newer pair.
	return !claims.IssuedAt.Time.After(*marker.IssuedBefore)
}

// Revoke denylists a single token. The ledger entry's expiry is copied from
// the token's own claims (or defaults to now+24h when unparseable) so
// housekeeping can drop it once the token would have died naturally.
// Idempotent: revoking an already-revoked token is a no-op success.
func (s *TokenService) Revoke(ctx context.Context, userID, raw string, reason domain.RevocationReason, reqCtx domain.RequestContext) error {
	now := time.Now().UTC()

	expiresAt, ok := jwtx.ExtractExpiry(raw)
	if !ok || expiresAt.Before(now) {
		expiresAt = now.Add(fallbackRevocationTTL)
	}

	tenantID := ""
	if claims, err := s.Signer.Parse(raw); err == nil {
		tenantID = claims.TenantID
	}

	entry := domain.RevocationEntry{
		ID:        idx.New().String(),
		Kind:      domain.RevocationToken,
		TokenHash: cryptox.FingerprintToken(raw),
		UserID:    userID,
		TenantID:  tenantID,
		Reason:    reason,
		IP:        reqCtx.IP,
		UserAgent: reqCtx.UserAgent,
		DeviceID:  reqCtx.DeviceID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}

	err := s.Store.Revocations().CreateRevocation(ctx, entry)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	return err
}

// RevokeAll denylists every token of the user issued up to now by inserting a
// user-wide marker. The marker lives as long as the longest-lived token it
// covers. Returns the number of ledger entries now active for the user.
func (s *TokenService) RevokeAll(ctx context.Context, userID, tenantID string, reason domain.RevocationReason) (int, error) {
	now := time.Now().UTC()

	entry := domain.RevocationEntry{
		ID:           idx.New().String(),
		Kind:         domain.RevocationMarker,
		UserID:       userID,
		TenantID:     tenantID,
		Reason:       reason,
		IssuedBefore: &now,
		ExpiresAt:    now.Add(s.RefreshTTL),
		CreatedAt:    now,
	}

	if err := s.Store.Revocations().CreateRevocation(ctx, entry); err != nil {
		return 0, err
	}

	count, err := s.Store.Revocations().CountActiveForUser(ctx, userID)
	if err != nil {
		// The marker landed; the count is informational only.
		slogx.FromContext(ctx).Warn("failed to count active revocations",
			slog.String("user_id", userID), slog.Any("error", err))
		return 1, nil
	}
	return count, nil
}

// Rotate exchanges a refresh token for a fresh pair. The consumed refresh
// token is revoked; the caller's old access token is revoked best-effort
// under a short timeout and its failure never fails the rotation.
func (s *TokenService) Rotate(ctx context.Context, refreshRaw, oldAccessRaw string, reqCtx domain.RequestContext) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	claims, err := s.Signer.ParseType(refreshRaw, jwtx.TokenRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if s.IsRevoked(ctx, refreshRaw) || s.coveredByMarker(ctx, claims) {
		return nil, ErrInvalidToken
	}

	user, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	pair, err := s.IssuePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.Revoke(ctx, user.ID, refreshRaw, domain.ReasonTokenRefresh, reqCtx); err != nil {
		return nil, err
	}

	if oldAccessRaw != "" {
		revokeCtx, cancel := context.WithTimeout(ctx, oldAccessRevokeTimeout)
		defer cancel()

		if err := s.Revoke(revokeCtx, user.ID, oldAccessRaw, domain.ReasonTokenRefreshAccess, reqCtx); err != nil {
			l.Warn("failed to revoke prior access token during rotation",
				slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	return pair, nil
}

// Logout revokes the presented token.
func (s *TokenService) Logout(ctx context.Context, userID, raw string, reqCtx domain.RequestContext) error {
	return s.Revoke(ctx, userID, raw, domain.ReasonLogout, reqCtx)
}

// LogoutAll revokes every credential the user holds.
func (s *TokenService) LogoutAll(ctx context.Context, userID, tenantID string) (int, error) {
	return s.RevokeAll(ctx, userID, tenantID, domain.ReasonLogoutAll)
}
