package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/siloamhealth/siloam-auth/internal/auth/store"
)

// HousekeepingService periodically resets lockout state on accounts whose
// lock window has passed. Login handles expired locks lazily, so this is
// hygiene rather than correctness: it keeps counters and lock timestamps
// from lingering on rows nobody logs into.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time

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
		Now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker. Blocks until any
// in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run a sweep immediately on startup
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) sweep() {
	ctx := context.Background()

	cleared, err := s.Store.Accounts().ClearExpiredLocks(ctx, s.Now().UTC())
	if err != nil {
		s.Logger.Error("failed to clear expired locks", "error", err)
		return
	}
	if cleared > 0 {
		s.Logger.Info("cleared expired account locks", "accounts", cleared)
	}
}
