package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexstaff/identity/internal/identity/store"
)

// HousekeepingService periodically removes expired database records so the
// revocation ledger and mfa_challenges tables don't grow without bound.
// Dropping an expired ledger entry is safe: the token it denylisted can no
// longer authenticate anyway.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() to shut it
// down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress cleanup
// finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup deletes expired records. Each deletion is independent; a failure in
// one never stops the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()

	if err := s.Store.Revocations().DeleteExpired(ctx); err != nil {
		s.Logger.Error("failed to delete expired revocation entries", "error", err)
	} else {
		s.Logger.Debug("deleted expired revocation entries")
	}

	if err := s.Store.MFAChallenges().DeleteExpired(ctx); err != nil {
		s.Logger.Error("failed to delete expired mfa challenges", "error", err)
	} else {
		s.Logger.Debug("deleted expired mfa challenges")
	}
}
