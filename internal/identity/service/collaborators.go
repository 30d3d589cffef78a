package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexstaff/identity/internal/identity/domain"
	"github.com/nexstaff/identity/pkg/slogx"
)

// Collaborator interfaces for outbound side effects. All of them are optional:
// their absence or failure must never break registration or login, so callers
// dispatch them through detach and nil collaborators normalize to no-ops.

// EmailMessage is a templated notification.
type EmailMessage struct {
	To       string
	Template string
	Data     map[string]any
}

// Notifier delivers transactional email.
type Notifier interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// AnalyticsEvent is a product analytics event.
type AnalyticsEvent struct {
	Event      string
	UserID     string
	Properties map[string]any
}

// Analytics ships product analytics events.
type Analytics interface {
	Track(ctx context.Context, event AnalyticsEvent) error
}

// OnboardingRequest asks the onboarding system to open a flow for a new user.
type OnboardingRequest struct {
	UserID   string
	TenantID string
	Type     domain.PersonaType
}

// Onboarding initializes persona-specific onboarding flows.
type Onboarding interface {
	CreateOnboarding(ctx context.Context, req OnboardingRequest) error
}

type noopNotifier struct{}

func (noopNotifier) SendEmail(context.Context, EmailMessage) error { return nil }

type noopAnalytics struct{}

func (noopAnalytics) Track(context.Context, AnalyticsEvent) error { return nil }

type noopOnboarding struct{}

func (noopOnboarding) CreateOnboarding(context.Context, OnboardingRequest) error { return nil }

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

func normalizeAnalytics(a Analytics) Analytics {
	if a == nil {
		return noopAnalytics{}
	}
	return a
}

func normalizeOnboarding(o Onboarding) Onboarding {
	if o == nil {
		return noopOnboarding{}
	}
	return o
}

// detachTimeout bounds every detached side effect so a hung collaborator
// can't leak goroutines forever.
const detachTimeout = 10 * time.Second

// detach runs fn on its own goroutine, decoupled from the caller's context
// and response. Errors and panics are captured into structured logs and never
// propagated.
func detach(ctx context.Context, name string, fn func(ctx context.Context) error) {
	l := slogx.FromContext(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				l.Error("detached task panicked", slog.String("task", name), slog.Any("panic", r))
			}
		}()

		taskCtx, cancel := context.WithTimeout(slogx.WithContext(context.Background(), l), detachTimeout)
		defer cancel()

		if err := fn(taskCtx); err != nil {
			l.Warn("detached task failed", slog.String("task", name), slog.Any("error", err))
		}
	}()
}
