package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/store"
)

const (
	defaultHousekeepingInterval = 1 * time.Hour
	defaultChallengeRetention   = 24 * time.Hour
)

// HousekeepingService periodically deletes rows nothing can use any more:
// expired sessions, challenges and step-ups, and pending factors whose
// enrollment window has closed.
type HousekeepingService struct {
	Store    store.Store
	Sessions *SessionService
	Logger   *slog.Logger
	Interval time.Duration

	// ChallengeRetention keeps expired challenges around for inspection
	// before they are deleted.
	ChallengeRetention time.Duration

	// KeyRotation, when set, rotates the signing keys on every run.
	KeyRotation *KeyRotationService

	Now func() time.Time

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, sessions *SessionService, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = defaultHousekeepingInterval
	}

	return &HousekeepingService{
		Store:              st,
		Sessions:           sessions,
		Logger:             logger,
		Interval:           interval,
		ChallengeRetention: defaultChallengeRetention,
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// This is non-blocking and should be called after the database is ready.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
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
	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs one cleanup pass. Each deletion is independent; a
// failure is logged and the rest still run. It returns how many steps
// succeeded.
func (s *HousekeepingService) RunOnce(ctx context.Context) int {
	s.Logger.Info("starting housekeeping cleanup")

	ts := now(s.Now)
	succeeded := 0
	step := func(name string, fn func() (int64, error)) {
		n, err := fn()
		if err != nil {
			s.Logger.Error("housekeeping step failed", "step", name, "error", err)
			return
		}
		s.Logger.Debug("housekeeping step done", "step", name, "deleted", n)
		succeeded++
	}

	step("sessions", func() (int64, error) {
		if s.Sessions != nil {
			return s.Sessions.CleanupExpired(ctx)
		}
		return s.Store.Sessions().DeleteExpiredSessions(ctx, ts)
	})
	step("challenges", func() (int64, error) {
		return s.Store.Challenges().DeleteExpiredChallenges(ctx, ts.Add(-s.retention()))
	})
	step("step_ups", func() (int64, error) {
		return s.Store.StepUps().DeleteExpiredStepUps(ctx, ts)
	})
	step("pending_factors", func() (int64, error) {
		return s.Store.Factors().DeleteStalePendingFactors(ctx, ts.Add(-DefaultTOTPEnrollmentTTL))
	})

	if s.KeyRotation != nil {
		if _, err := s.KeyRotation.RotateKey(); err != nil {
			s.Logger.Error("housekeeping key rotation failed", "error", err)
		} else {
			succeeded++
		}
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", succeeded)
	return succeeded
}

func (s *HousekeepingService) retention() time.Duration {
	if s.ChallengeRetention < 0 {
		return 0
	}
	return s.ChallengeRetention
}
