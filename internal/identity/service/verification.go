package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/internal/identity/store"
	"github.com/nexstaff/identity/pkg/cryptox"
	"github.com/nexstaff/identity/pkg/jwtx"
	"github.com/nexstaff/identity/pkg/slogx"
)

// verificationTokenSize is the random-byte length of one-time email tokens.
const verificationTokenSize = 32

// resendInterval throttles verification resends per address.
const resendInterval = time.Minute

// maxTrackedLimiters caps the per-address limiter map. Past it, refilled
// limiters are swept; a refilled limiter throttles exactly like a fresh one,
// so dropping it loses nothing.
const maxTrackedLimiters = 1024

// VerificationService owns the email verification flow: issuing one-time
// tokens, consuming them, and resending links.
type VerificationService struct {
	Store    store.Store
	Notifier Notifier

	// VerifyTTL is the verification token lifetime. Zero means the default.
	VerifyTTL time.Duration

	// TenantID scopes email lookups when the caller verifies by address.
	TenantID string

	// PlatformURL is the base URL embedded in emailed links.
	PlatformURL string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func (s *VerificationService) verifyTTL() time.Duration {
	if s.VerifyTTL > 0 {
		return s.VerifyTTL
	}
	return jwtx.DefaultVerifyTTL
}

// VerifyEmail consumes a verification token and activates the account. The
// email parameter is optional: when present the user is resolved by address
// and the token compared against the stored one, otherwise the token itself
// is the lookup key. Verifying an already-verified account is an idempotent
// success.
func (s *VerificationService) VerifyEmail(ctx context.Context, token, email string) (*domain.User, error) {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	var (
		user domain.User
		err  error
	)
	if email != "" {
		user, err = s.Store.Users().GetUserByEmail(ctx, s.TenantID, normalizeEmail(email))
	} else {
		user, err = s.Store.Users().GetUserByVerificationToken(ctx, token)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if user.EmailVerification.Verified {
		return &user, nil
	}

	v := user.EmailVerification
	switch {
	case v.Token == "":
		return nil, ErrNoToken
	case v.Token != token:
		return nil, ErrInvalidToken
	case v.TokenExpiresAt == nil || v.TokenExpiresAt.Before(now):
		return nil, ErrTokenExpired
	}

	v.Verified = true
	v.Token = ""
	v.TokenExpiresAt = nil

	status := domain.AccountStatus("")
	var activatedAt *time.Time
	if user.Status == domain.StatusPending {
		status = domain.StatusActive
		activatedAt = &now
	}

	if err := s.Store.Users().UpdateEmailVerification(ctx, user.ID, v, status, activatedAt); err != nil {
		return nil, err
	}

	user.EmailVerification = v
	if status != "" {
		user.Status = status
		user.ActivatedAt = activatedAt
	}

	l.Info("email verified",
		slog.String("user_id", user.ID), slog.String("tenant_id", user.TenantID))
	return &user, nil
}

// ResendVerification regenerates the verification token and re-sends the
// link. Resends are rate limited per address; exceeding the limit returns
// ErrTooManyAttempts.
func (s *VerificationService) ResendVerification(ctx context.Context, email string) error {
	now := time.Now().UTC()
	email = normalizeEmail(email)

	if !s.limiter(email).Allow() {
		return ErrTooManyAttempts
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, s.TenantID, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Anti-enumeration: pretend the send happened.
			return nil
		}
		return err
	}

	if user.EmailVerification.Verified {
		return ErrAlreadyVerified
	}

	token, err := cryptox.GenerateToken(verificationTokenSize)
	if err != nil {
		return err
	}

	exp := now.Add(s.verifyTTL())
	v := user.EmailVerification
	v.Token = token
	v.TokenExpiresAt = &exp
	v.Attempts++

	if err := s.Store.Users().UpdateEmailVerification(ctx, user.ID, v, "", nil); err != nil {
		return err
	}

	notifier := normalizeNotifier(s.Notifier)
	msg := verificationEmail(s.PlatformURL, user, token)
	detach(ctx, "resend_verification_email", func(ctx context.Context) error {
		return notifier.SendEmail(ctx, msg)
	})

	return nil
}

func (s *VerificationService) limiter(email string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limiters == nil {
		s.limiters = make(map[string]*rate.Limiter)
	}
	if len(s.limiters) >= maxTrackedLimiters {
		for k, lim := range s.limiters {
			if k != email && lim.Tokens() >= 1 {
				delete(s.limiters, k)
			}
		}
	}
	lim, ok := s.limiters[email]
	if !ok {
		lim = rate.NewLimiter(rate.Every(resendInterval), 1)
		s.limiters[email] = lim
	}
	return lim
}

// verificationEmail builds the templated verify-your-email message.
func verificationEmail(platformURL string, user domain.User, token string) EmailMessage {
	return EmailMessage{
		To:       user.Email,
		Template: "verify_email",
		Data: map[string]any{
			"first_name": user.FirstName,
			"verify_url": strings.TrimRight(platformURL, "/") + "/verify-email?token=" + token,
		},
	}
}
