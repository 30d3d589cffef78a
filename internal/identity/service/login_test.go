package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/internal/identity/store"
)

func newAuthService(t *testing.T, st store.Store) *AuthService {
	t.Helper()

	return &AuthService{
		Store:       st,
		Tokens:      newTokenService(t, st),
		TempTTL:     5 * time.Minute,
		PlatformURL: "https://app.example.com",
	}
}

func TestLoginHappyPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newAuthService(t, st)
	user := seedUser(t, st)

	reqCtx := domain.RequestContext{IP: "198.51.100.7", UserAgent: "web/2.1"}
	result, err := svc.Login(ctx, testTenant, "Alice@Example.com", testPassword, reqCtx)
	require.NoError(t, err)
	require.Nil(t, result.MFA)
	require.NotNil(t, result.Tokens)
	require.NotEmpty(t, result.Tokens.AccessToken)
	require.NotEmpty(t, result.Tokens.RefreshToken)
	require.Equal(t, user.ID, result.User.ID)

	stored, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	require.Equal(t, "198.51.100.7", stored.LastLoginIP)
	require.Zero(t, stored.FailedLogins)
}

func TestLoginRejectsBadCredentialsGenerically(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newAuthService(t, st)
	user := seedUser(t, st)

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login(ctx, testTenant, "nobody@example.com", testPassword, domain.RequestContext{})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password increments the counter", func(t *testing.T) {
		_, err := svc.Login(ctx, testTenant, user.Email, "Wr0ng$Password", domain.RequestContext{})
		require.ErrorIs(t, err, ErrInvalidCredentials)

		stored, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stored.FailedLogins)
	})

	t.Run("success resets the counter", func(t *testing.T) {
		_, err := svc.Login(ctx, testTenant, user.Email, testPassword, domain.RequestContext{})
		require.NoError(t, err)

		stored, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.Zero(t, stored.FailedLogins)
	})
}

func TestLoginBlocksDisabledAndLockedAccounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newAuthService(t, st)

	suspended := seedUser(t, st, func(u *domain.User) {
		u.Email = "suspended@example.com"
		u.Status = domain.StatusSuspended
	})
	blocked := seedUser(t, st, func(u *domain.User) {
		u.Email = "blocked@example.com"
		u.Status = domain.StatusBlocked
	})
	locked := seedUser(t, st, func(u *domain.User) {
		u.Email = "locked@example.com"
		u.FailedLogins = DefaultMaxLoginAttempts
	})

	_, err := svc.Login(ctx, testTenant, suspended.Email, testPassword, domain.RequestContext{})
	require.ErrorIs(t, err, ErrAccountDisabled)

	_, err = svc.Login(ctx, testTenant, blocked.Email, testPassword, domain.RequestContext{})
	require.ErrorIs(t, err, ErrAccountDisabled)

	_, err = svc.Login(ctx, testTenant, locked.Email, testPassword, domain.RequestContext{})
	require.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestLoginVerificationGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newAuthService(t, st)
	svc.RequireVerification = true

	user := seedUser(t, st, func(u *domain.User) {
		u.Status = domain.StatusPending
		u.EmailVerification = domain.VerificationState{} // no token at all
	})

	_, err := svc.Login(ctx, testTenant, user.Email, testPassword, domain.RequestContext{})
	require.ErrorIs(t, err, ErrVerificationRequired)

	// A missing token was regenerated so the resent link works.
	stored, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.EmailVerification.Token)
	require.NotNil(t, stored.EmailVerification.TokenExpiresAt)

	// A still-valid token is left alone on the next attempt.
	_, err = svc.Login(ctx, testTenant, user.Email, testPassword, domain.RequestContext{})
	require.ErrorIs(t, err, ErrVerificationRequired)

	again, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, stored.EmailVerification.Token, again.EmailVerification.Token)
}

func TestLoginMFAGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newAuthService(t, st)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "nexstaff", AccountName: "alice@example.com"})
	require.NoError(t, err)

	user := seedUser(t, st, func(u *domain.User) {
		u.MFA = domain.MFASettings{
			Enabled:    true,
			Methods:    []string{"totp"},
			TOTPSecret: key.Secret(),
		}
	})

	result, err := svc.Login(ctx, testTenant, user.Email, testPassword, domain.RequestContext{})
	require.NoError(t, err)

	// No long-lived credential accompanies the challenge.
	require.Nil(t, result.Tokens)
	require.NotNil(t, result.MFA)
	require.True(t, result.MFA.MFARequired)
	require.NotEmpty(t, result.MFA.TempToken)
	require.NotEmpty(t, result.MFA.ChallengeID)
	require.Equal(t, []string{"totp"}, result.MFA.Methods)

	t.Run("wrong code burns an attempt", func(t *testing.T) {
		_, err := svc.CompleteMFAChallenge(ctx, result.MFA.TempToken, "totp", "000000", domain.RequestContext{})
		require.ErrorIs(t, err, ErrInvalidCredentials)

		challenge, err := st.MFAChallenges().GetChallenge(ctx, result.MFA.ChallengeID)
		require.NoError(t, err)
		require.Equal(t, 1, challenge.Attempts)
	})

	t.Run("valid code issues the pair and burns the challenge", func(t *testing.T) {
		code, err := totp.GenerateCode(key.Secret(), time.Now())
		require.NoError(t, err)

		completed, err := svc.CompleteMFAChallenge(ctx, result.MFA.TempToken, "totp", code, domain.RequestContext{})
		require.NoError(t, err)
		require.NotNil(t, completed.Tokens)
		require.Equal(t, user.ID, completed.User.ID)

		_, err = st.MFAChallenges().GetChallenge(ctx, result.MFA.ChallengeID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestMFAChallengeAttemptCap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newAuthService(t, st)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "nexstaff", AccountName: "alice@example.com"})
	require.NoError(t, err)

	user := seedUser(t, st, func(u *domain.User) {
		u.MFA = domain.MFASettings{Enabled: true, Methods: []string{"totp"}, TOTPSecret: key.Secret()}
	})

	result, err := svc.Login(ctx, testTenant, user.Email, testPassword, domain.RequestContext{})
	require.NoError(t, err)

	for i := 0; i < maxMFAAttempts; i++ {
		_, err := svc.CompleteMFAChallenge(ctx, result.MFA.TempToken, "totp", "000000", domain.RequestContext{})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// The exhausted challenge is burned, even with the right code.
	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	_, err = svc.CompleteMFAChallenge(ctx, result.MFA.TempToken, "totp", code, domain.RequestContext{})
	require.ErrorIs(t, err, ErrTooManyAttempts)

	_, err = st.MFAChallenges().GetChallenge(ctx, result.MFA.ChallengeID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoginTrustedDeviceSkipsMFA(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newAuthService(t, st)

	user := seedUser(t, st, func(u *domain.User) {
		u.MFA = domain.MFASettings{
			Enabled:    true,
			Methods:    []string{"totp"},
			TOTPSecret: "JBSWY3DPEHPK3PXP",
			TrustedDevices: []domain.TrustedDevice{
				{Fingerprint: "device-abc", ExpiresAt: time.Now().Add(time.Hour)},
			},
		}
	})

	result, err := svc.Login(ctx, testTenant, user.Email, testPassword, domain.RequestContext{DeviceID: "device-abc"})
	require.NoError(t, err)
	require.Nil(t, result.MFA)
	require.NotNil(t, result.Tokens)

	// An unknown device still hits the gate.
	result, err = svc.Login(ctx, testTenant, user.Email, testPassword, domain.RequestContext{DeviceID: "device-xyz"})
	require.NoError(t, err)
	require.NotNil(t, result.MFA)
	require.Nil(t, result.Tokens)
}

func TestCompleteMFAChallengeRejectsBadTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newAuthService(t, st)
	user := seedUser(t, st)

	// An access token is not a temp token.
	pair, err := svc.Tokens.IssuePair(user)
	require.NoError(t, err)

	_, err = svc.CompleteMFAChallenge(ctx, pair.AccessToken, "totp", "000000", domain.RequestContext{})
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.CompleteMFAChallenge(ctx, "garbage", "totp", "000000", domain.RequestContext{})
	require.ErrorIs(t, err, ErrInvalidToken)
}
