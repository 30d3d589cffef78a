package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/internal/identity/store"
	"github.com/nexstaff/identity/pkg/cryptox"
	"github.com/nexstaff/identity/pkg/jwtx"
	"github.com/nexstaff/identity/pkg/slogx"
)

// maxMFAAttempts caps code guesses per challenge. Hitting the cap burns the
// challenge and forces a fresh password login.
const maxMFAAttempts = 5

// DefaultMaxLoginAttempts is the failed-password lockout threshold.
const DefaultMaxLoginAttempts = 10

// dummyPasswordHash is compared against when the account does not exist, so
// the miss takes as long as a real password check.
const dummyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// AuthService runs the login state machine: credential check, account status
// gate, verification gate, MFA gate, then token issuance.
type AuthService struct {
	Store  store.Store
	Tokens *TokenService

	Notifier Notifier

	// RequireVerification gates login on a verified email address.
	RequireVerification bool

	// MaxLoginAttempts locks the account (suspends it) after this many
	// consecutive failed passwords. Zero means DefaultMaxLoginAttempts.
	MaxLoginAttempts int

	// TempTTL bounds both the MFA temp token and its durable challenge row.
	TempTTL time.Duration

	// VerifyTTL is the lifetime of regenerated verification tokens.
	VerifyTTL time.Duration

	// PlatformURL is the base URL embedded in verification links.
	PlatformURL string
}

func (s *AuthService) maxAttempts() int {
	if s.MaxLoginAttempts > 0 {
		return s.MaxLoginAttempts
	}
	return DefaultMaxLoginAttempts
}

func (s *AuthService) tempTTL() time.Duration {
	if s.TempTTL > 0 {
		return s.TempTTL
	}
	return jwtx.DefaultTempTTL
}

// Login authenticates an email/password pair within a tenant. On success it
// returns a token pair, or an MFA challenge when a second factor is required.
// All credential failures collapse to ErrInvalidCredentials so the caller
// cannot probe which part was wrong.
func (s *AuthService) Login(ctx context.Context, tenantID, email, password string, reqCtx domain.RequestContext) (*domain.LoginResult, error) {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	user, err := s.Store.Users().GetUserByEmail(ctx, tenantID, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn comparable time so a missing account is not
			// distinguishable from a wrong password.
			_ = cryptox.VerifyPassword(password, dummyPasswordHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	switch user.Status {
	case domain.StatusSuspended, domain.StatusBlocked:
		return nil, ErrAccountDisabled
	}

	if user.FailedLogins >= s.maxAttempts() {
		l.Warn("login rejected, account locked out",
			slog.String("user_id", user.ID), slog.Int("failed_logins", user.FailedLogins))
		return nil, ErrTooManyAttempts
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		failures, incErr := s.Store.Users().IncrementFailedLogins(ctx, user.ID)
		if incErr != nil {
			l.Error("failed to record login failure",
				slog.String("user_id", user.ID), slog.Any("error", incErr))
		} else if failures >= s.maxAttempts() {
			l.Warn("login failure threshold reached",
				slog.String("user_id", user.ID), slog.Int("failed_logins", failures))
		}
		return nil, ErrInvalidCredentials
	}

	if s.RequireVerification && !user.EmailVerification.Verified {
		s.refreshVerificationToken(ctx, user, now)
		return nil, ErrVerificationRequired
	}

	if user.MFA.Enabled && !user.MFA.TrustsDevice(reqCtx.DeviceID, now) {
		challenge, err := s.issueMFAChallenge(ctx, user, now)
		if err != nil {
			return nil, err
		}
		return &domain.LoginResult{User: &user, MFA: challenge}, nil
	}

	if err := s.Store.Users().RecordLoginSuccess(ctx, user.ID, now, reqCtx); err != nil {
		l.Warn("failed to record login success",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	pair, err := s.Tokens.IssuePair(user)
	if err != nil {
		return nil, err
	}

	l.Info("login succeeded",
		slog.String("user_id", user.ID), slog.String("tenant_id", user.TenantID))
	return &domain.LoginResult{User: &user, Tokens: pair}, nil
}

// refreshVerificationToken makes sure an unverified user holds a usable
// verification token and resends the link. Best effort: login already failed
// with ErrVerificationRequired either way.
func (s *AuthService) refreshVerificationToken(ctx context.Context, user domain.User, now time.Time) {
	l := slogx.FromContext(ctx)

	v := user.EmailVerification
	if v.Token == "" || v.TokenExpiresAt == nil || v.TokenExpiresAt.Before(now) {
		token, err := cryptox.GenerateToken(verificationTokenSize)
		if err != nil {
			l.Error("failed to regenerate verification token",
				slog.String("user_id", user.ID), slog.Any("error", err))
			return
		}

		exp := now.Add(s.verifyTTL())
		v.Token = token
		v.TokenExpiresAt = &exp

		if err := s.Store.Users().UpdateEmailVerification(ctx, user.ID, v, "", nil); err != nil {
			l.Error("failed to store regenerated verification token",
				slog.String("user_id", user.ID), slog.Any("error", err))
			return
		}
	}

	notifier := normalizeNotifier(s.Notifier)
	msg := verificationEmail(s.PlatformURL, user, v.Token)
	detach(ctx, "resend_verification_email", func(ctx context.Context) error {
		return notifier.SendEmail(ctx, msg)
	})
}

func (s *AuthService) verifyTTL() time.Duration {
	if s.VerifyTTL > 0 {
		return s.VerifyTTL
	}
	return jwtx.DefaultVerifyTTL
}

// issueMFAChallenge creates a durable challenge row plus the temp token that
// references it. The temp token grants nothing but the right to answer the
// challenge.
func (s *AuthService) issueMFAChallenge(ctx context.Context, user domain.User, now time.Time) (*domain.MFAChallengeResponse, error) {
	challenge := domain.MFAChallenge{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TenantID:  user.TenantID,
		ExpiresAt: now.Add(s.tempTTL()),
		CreatedAt: now,
	}

	if err := s.Store.MFAChallenges().CreateChallenge(ctx, challenge); err != nil {
		return nil, err
	}

	claims := jwtx.NewClaims(jwtx.TokenTemp, user.ID, user.TenantID, s.Tokens.Issuer, s.tempTTL(), now)
	claims.ChallengeID = challenge.ID

	temp, err := s.Tokens.Signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("mfa challenge issued",
		slog.String("user_id", user.ID), slog.String("challenge_id", challenge.ID))

	return &domain.MFAChallengeResponse{
		MFARequired: true,
		TempToken:   temp,
		ChallengeID: challenge.ID,
		Methods:     user.MFA.Methods,
	}, nil
}

// CompleteMFAChallenge exchanges a temp token and a second-factor code for a
// full token pair. Only the "totp" method is verifiable today; a method the
// user has not enrolled fails like a wrong code. Each wrong code burns one
// attempt; maxMFAAttempts burns the challenge.
func (s *AuthService) CompleteMFAChallenge(ctx context.Context, tempToken, method, code string, reqCtx domain.RequestContext) (*domain.LoginResult, error) {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	claims, err := s.Tokens.Signer.ParseType(tempToken, jwtx.TokenTemp)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.ChallengeID == "" {
		return nil, ErrInvalidToken
	}

	challenge, err := s.Store.MFAChallenges().GetChallenge(ctx, claims.ChallengeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if challenge.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}

	if challenge.Attempts >= maxMFAAttempts {
		_ = s.Store.MFAChallenges().DeleteChallenge(ctx, challenge.ID)
		return nil, ErrTooManyAttempts
	}

	user, err := s.Store.Users().GetUserByID(ctx, challenge.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if method != "totp" || !enrolledMethod(user.MFA.Methods, method) ||
		user.MFA.TOTPSecret == "" || !totp.Validate(code, user.MFA.TOTPSecret) {
		updated, incErr := s.Store.MFAChallenges().IncrementChallengeAttempts(ctx, challenge.ID)
		if incErr != nil {
			l.Error("failed to record mfa failure",
				slog.String("challenge_id", challenge.ID), slog.Any("error", incErr))
		} else if updated.Attempts >= maxMFAAttempts {
			l.Warn("mfa challenge exhausted",
				slog.String("user_id", user.ID), slog.String("challenge_id", challenge.ID))
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.Store.MFAChallenges().DeleteChallenge(ctx, challenge.ID); err != nil {
		l.Warn("failed to delete completed mfa challenge",
			slog.String("challenge_id", challenge.ID), slog.Any("error", err))
	}

	if err := s.Store.Users().RecordLoginSuccess(ctx, user.ID, now, reqCtx); err != nil {
		l.Warn("failed to record login success",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	pair, err := s.Tokens.IssuePair(user)
	if err != nil {
		return nil, err
	}

	l.Info("mfa login succeeded", slog.String("user_id", user.ID))
	return &domain.LoginResult{User: &user, Tokens: pair}, nil
}

func enrolledMethod(methods []string, method string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}
