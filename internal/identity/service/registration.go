package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/internal/identity/persona"
	"github.com/nexstaff/identity/internal/identity/store"
	"github.com/nexstaff/identity/pkg/cryptox"
	"github.com/nexstaff/identity/pkg/idx"
	"github.com/nexstaff/identity/pkg/jwtx"
	"github.com/nexstaff/identity/pkg/slogx"
)

// RegistrationService orchestrates the registration transaction: input
// validation, duplicate check, user + persona creation, and the detached
// side-effect fanout (welcome email, analytics, onboarding).
type RegistrationService struct {
	Store      store.Store
	Tokens     *TokenService
	Strategies *persona.Registry

	Notifier   Notifier
	Analytics  Analytics
	Onboarding Onboarding

	// RequireVerification issues a verification token instead of credentials
	// on success.
	RequireVerification bool

	// DefaultTenantID is applied when the input carries no tenant.
	DefaultTenantID string

	// BcryptCost is passed to the hasher.
	BcryptCost int

	// PasswordMinLength is the policy floor. Zero means the default.
	PasswordMinLength int

	// VerifyTTL is the verification token lifetime. Zero means the default.
	VerifyTTL time.Duration

	// PlatformURL is the base URL embedded in emailed links.
	PlatformURL string
}

func (s *RegistrationService) minLength() int {
	if s.PasswordMinLength > 0 {
		return s.PasswordMinLength
	}
	return DefaultPasswordMinLength
}

func (s *RegistrationService) verifyTTL() time.Duration {
	if s.VerifyTTL > 0 {
		return s.VerifyTTL
	}
	return jwtx.DefaultVerifyTTL
}

// Register runs the full registration flow for one persona type. Persona
// types with a registered strategy get their business record created in the
// same transaction as the user (bidirectional links pre-wire the user-side
// foreign key). Types without a strategy create the identity record alone.
func (s *RegistrationService) Register(ctx context.Context, in domain.RegisterInput) (*domain.RegistrationResult, error) {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	in.Email = normalizeEmail(in.Email)
	if in.TenantID == "" {
		in.TenantID = s.DefaultTenantID
	}

	if err := validateRegisterInput(in, s.minLength()); err != nil {
		return nil, err
	}

	strategy, hasStrategy := s.Strategies.Get(in.PersonaType)
	if hasStrategy {
		warnings, err := strategy.Validate(in)
		if err != nil {
			return nil, &StrategyValidationError{PersonaType: string(in.PersonaType), Err: err}
		}
		for _, w := range warnings {
			l.Warn("registration input warning",
				slog.String("persona_type", string(in.PersonaType)), slog.String("warning", w))
		}
	}

	// Fast duplicate check; the unique index backstops the race.
	_, err := s.Store.Users().GetUserByEmail(ctx, in.TenantID, in.Email)
	switch {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	user, err := s.buildUser(in, now)
	if err != nil {
		return nil, err
	}

	var personaRec *domain.Persona
	if hasStrategy {
		personaRec, err = strategy.Prepare(user, in)
		if err != nil {
			return nil, &StrategyValidationError{PersonaType: string(in.PersonaType), Err: err}
		}
		if strategy.Config().Bidirectional() {
			user.PersonaID = personaRec.ID
		}
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, *user); err != nil {
			return err
		}
		if personaRec != nil {
			return tx.Personas().CreatePersona(ctx, *personaRec)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if !hasStrategy && in.PersonaType != domain.PersonaAdmin {
		personaRec = s.fallbackPersona(ctx, user, in)
	}

	result := &domain.RegistrationResult{
		User:                 user,
		Persona:              personaRec,
		VerificationRequired: s.RequireVerification,
	}

	if !s.RequireVerification {
		pair, err := s.Tokens.IssuePair(*user)
		if err != nil {
			return nil, err
		}
		result.Tokens = pair
	}

	s.fanout(ctx, *user, personaRec, in)

	l.Info("registration completed",
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.TenantID),
		slog.String("persona_type", string(in.PersonaType)),
		slog.Bool("verification_required", s.RequireVerification))
	return result, nil
}

// buildUser assembles the identity record: hashed password, default roles and
// grants for the persona type, provenance metadata, and (when verification
// gates activation) a pending status plus one-time token.
func (s *RegistrationService) buildUser(in domain.RegisterInput, now time.Time) (*domain.User, error) {
	hash, err := cryptox.HashPassword(in.Password, s.BcryptCost)
	if err != nil {
		return nil, err
	}

	username := in.Username
	if username == "" {
		username = usernameFromEmail(in.Email)
	}

	user := &domain.User{
		ID:           idx.New().String(),
		TenantID:     in.TenantID,
		Email:        in.Email,
		Username:     username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		PasswordHash: hash,
		Permissions:  persona.DefaultGrants(in.PersonaType, now),
		Roles:        persona.DefaultRoles(in.PersonaType),
		PersonaType:  in.PersonaType,
		Metadata:     provenanceMetadata(in),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if s.RequireVerification {
		token, err := cryptox.GenerateToken(verificationTokenSize)
		if err != nil {
			return nil, err
		}
		exp := now.Add(s.verifyTTL())
		user.Status = domain.StatusPending
		user.EmailVerification = domain.VerificationState{
			Token:          token,
			TokenExpiresAt: &exp,
		}
	} else {
		user.Status = domain.StatusActive
		user.ActivatedAt = &now
		user.EmailVerification = domain.VerificationState{Verified: true}
	}

	return user, nil
}

// fanout dispatches the post-commit side effects. Each one is detached and
// best-effort: the registration already succeeded.
func (s *RegistrationService) fanout(ctx context.Context, user domain.User, p *domain.Persona, in domain.RegisterInput) {
	notifier := normalizeNotifier(s.Notifier)
	analytics := normalizeAnalytics(s.Analytics)
	onboarding := normalizeOnboarding(s.Onboarding)

	if s.RequireVerification {
		msg := verificationEmail(s.PlatformURL, user, user.EmailVerification.Token)
		detach(ctx, "verification_email", func(ctx context.Context) error {
			return notifier.SendEmail(ctx, msg)
		})
	} else {
		msg := welcomeEmail(user)
		detach(ctx, "welcome_email", func(ctx context.Context) error {
			return notifier.SendEmail(ctx, msg)
		})
	}

	event := AnalyticsEvent{
		Event:  "user_registered",
		UserID: user.ID,
		Properties: map[string]any{
			"persona_type": string(user.PersonaType),
			"tenant_id":    user.TenantID,
			"source":       in.Source,
			"campaign":     in.Campaign,
		},
	}
	if in.Referral != "" {
		event.Properties["referral"] = in.Referral
	}
	if p != nil {
		event.Properties["persona_code"] = p.Code
	}
	detach(ctx, "registration_analytics", func(ctx context.Context) error {
		return analytics.Track(ctx, event)
	})

	req := OnboardingRequest{UserID: user.ID, TenantID: user.TenantID, Type: user.PersonaType}
	detach(ctx, "registration_onboarding", func(ctx context.Context) error {
		return onboarding.CreateOnboarding(ctx, req)
	})
}

// fallbackPersona runs the non-atomic persona path for types without a
// strategy: the user row is already committed, so the persona write and the
// link patch happen as two separate best-effort writes. A crash or failure in
// between leaves the user orphaned; FindOrphanedUsers surfaces those for the
// reconciliation job.
func (s *RegistrationService) fallbackPersona(ctx context.Context, user *domain.User, in domain.RegisterInput) *domain.Persona {
	l := slogx.FromContext(ctx)

	p, err := persona.Fallback(in.PersonaType, user, in)
	if err != nil {
		l.Error("fallback persona build failed",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil
	}

	if err := s.Store.Personas().CreatePersona(ctx, *p); err != nil {
		l.Error("fallback persona write failed, user left orphaned",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil
	}

	if err := s.Store.Users().SetPersonaLink(ctx, user.ID, in.PersonaType, p.ID); err != nil {
		l.Error("fallback persona link patch failed, user left orphaned",
			slog.String("user_id", user.ID),
			slog.String("persona_id", p.ID),
			slog.Any("error", err))
		return p
	}

	user.PersonaID = p.ID
	return p
}

// FindOrphanedUsers lists users of a persona type whose persona link never
// landed, created before the cutoff. Feed for the reconciliation job.
func (s *RegistrationService) FindOrphanedUsers(ctx context.Context, t domain.PersonaType, createdBefore time.Time) ([]domain.User, error) {
	return s.Store.Users().ListOrphanedUsers(ctx, t, createdBefore)
}

func usernameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

func provenanceMetadata(in domain.RegisterInput) map[string]string {
	md := make(map[string]string)
	if in.Source != "" {
		md["source"] = in.Source
	}
	if in.Referral != "" {
		md["referral"] = in.Referral
	}
	if in.Campaign != "" {
		md["campaign"] = in.Campaign
	}
	if in.CompanyName != "" {
		md["company_name"] = in.CompanyName
	}
	if in.Headline != "" {
		md["headline"] = in.Headline
	}
	return md
}

func welcomeEmail(user domain.User) EmailMessage {
	return EmailMessage{
		To:       user.Email,
		Template: "welcome",
		Data: map[string]any{
			"first_name": user.FirstName,
		},
	}
}
