package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/pkg/jwtx"
)

func TestIssuePairEmbedsAuthorizationClaims(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := newTokenService(t, st)

	user := seedUser(t, st, func(u *domain.User) {
		u.PersonaID = "persona-123"
	})

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)

	claims, err := svc.Signer.ParseType(pair.AccessToken, jwtx.TokenAccess)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, testTenant, claims.TenantID)
	require.Equal(t, []string{"profile:read", "profile:write"}, claims.Permissions)
	require.Equal(t, []string{"client"}, claims.Roles)
	require.Equal(t, "persona-123", claims.PersonaID)

	refresh, err := svc.Signer.ParseType(pair.RefreshToken, jwtx.TokenRefresh)
	require.NoError(t, err)
	require.Equal(t, user.ID, refresh.Subject)
	require.Empty(t, refresh.Permissions)

	// Type discriminators are enforced both ways.
	_, err = svc.Signer.ParseType(pair.RefreshToken, jwtx.TokenAccess)
	require.Error(t, err)
	_, err = svc.Signer.ParseType(pair.AccessToken, jwtx.TokenRefresh)
	require.Error(t, err)
}

func TestRevokeDeniesTokenIdempotently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st)

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	require.False(t, svc.IsRevoked(ctx, pair.AccessToken))

	claims, err := svc.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)

	reqCtx := domain.RequestContext{IP: "203.0.113.9", UserAgent: "cli/1.0"}
	require.NoError(t, svc.Revoke(ctx, user.ID, pair.AccessToken, domain.ReasonLogout, reqCtx))

	require.True(t, svc.IsRevoked(ctx, pair.AccessToken))
	_, err = svc.VerifyAccess(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Re-revoking the same token is a no-op success.
	require.NoError(t, svc.Revoke(ctx, user.ID, pair.AccessToken, domain.ReasonLogout, reqCtx))
}

func TestRevokeAllCoversEarlierTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st)

	// Sign a token issued a minute in the past so the marker clearly covers
	// it.
	old := jwtx.NewClaims(jwtx.TokenAccess, user.ID, user.TenantID, testIssuer, time.Hour, time.Now().UTC().Add(-time.Minute))
	oldToken, err := svc.Signer.Sign(old)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(ctx, oldToken)
	require.NoError(t, err)

	count, err := svc.RevokeAll(ctx, user.ID, user.TenantID, domain.ReasonLogoutAll)
	require.NoError(t, err)
	require.GreaterOrEqual(t, count, 1)

	_, err = svc.VerifyAccess(ctx, oldToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	// A token issued after the marker is unaffected.
	fresh := jwtx.NewClaims(jwtx.TokenAccess, user.ID, user.TenantID, testIssuer, time.Hour, time.Now().UTC().Add(2*time.Second))
	freshToken, err := svc.Signer.Sign(fresh)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(ctx, freshToken)
	require.NoError(t, err)
}

func TestRevokeAllCoversSameSecondTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st)

	_, err := svc.RevokeAll(ctx, user.ID, user.TenantID, domain.ReasonLogoutAll)
	require.NoError(t, err)

	marker, err := st.Revocations().GetLatestUserMarker(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, marker.IssuedBefore)

	// iat carries second granularity, so a token minted in the marker's
	// wall-clock second sits at or before it and stays denied.
	sameSecond := jwtx.NewClaims(jwtx.TokenAccess, user.ID, user.TenantID, testIssuer, time.Hour,
		marker.IssuedBefore.Truncate(time.Second))
	raw, err := svc.Signer.Sign(sameSecond)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(ctx, raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIsRevokedFailsSecure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st)

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	// A ledger that cannot answer denies the token.
	require.NoError(t, st.Close())
	require.True(t, svc.IsRevoked(ctx, pair.AccessToken))

	_, err = svc.VerifyAccess(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRotateConsumesRefreshToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st)

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	reqCtx := domain.RequestContext{IP: "203.0.113.9"}
	next, err := svc.Rotate(ctx, pair.RefreshToken, pair.AccessToken, reqCtx)
	require.NoError(t, err)
	require.NotEmpty(t, next.AccessToken)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The consumed refresh token cannot be replayed.
	_, err = svc.Rotate(ctx, pair.RefreshToken, "", reqCtx)
	require.ErrorIs(t, err, ErrInvalidToken)

	// The prior access token was revoked best-effort.
	require.True(t, svc.IsRevoked(ctx, pair.AccessToken))
}

func TestRotateRejectsNonRefreshTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st)

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	_, err = svc.Rotate(ctx, pair.AccessToken, "", domain.RequestContext{})
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Rotate(ctx, "not-a-token", "", domain.RequestContext{})
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogoutAllReportsLedgerEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st)

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, user.ID, pair.AccessToken, domain.RequestContext{}))

	count, err := svc.LogoutAll(ctx, user.ID, user.TenantID)
	require.NoError(t, err)
	require.Equal(t, 2, count) // the logout entry plus the marker
}
