package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingRunOnce(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	old, err := e.sessions.CreateSession(ctx, "subject-1", SessionMeta{})
	require.NoError(t, err)
	_, err = e.otp.RequestOTP(ctx, OTPRequest{Identifier: "alice@example.com", Method: "email"})
	require.NoError(t, err)
	pending, err := e.totp.Enroll(ctx, "subject-1", "", "", TOTPOptions{})
	require.NoError(t, err)

	e.clock.Advance(2 * defaultChallengeRetention)
	fresh, err := e.sessions.CreateSession(ctx, "subject-1", SessionMeta{})
	require.NoError(t, err)

	hk := NewHousekeepingService(e.store, e.sessions, slogx.Discard(), time.Minute)
	hk.Now = e.clock.Now
	require.Equal(t, 4, hk.RunOnce(ctx))

	_, err = e.sessions.GetSession(ctx, old.SessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = e.sessions.GetSession(ctx, fresh.SessionID)
	require.NoError(t, err)

	_, err = e.challenges.Get(ctx, pending.ChallengeID)
	require.ErrorIs(t, err, ErrChallengeNotFound)

	factors, err := e.totp.ListFactors(ctx, "subject-1")
	require.NoError(t, err)
	require.Empty(t, factors)
}

func TestHousekeepingKeepsRecentChallenges(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	c, _, err := e.challenges.Create(ctx, CreateChallengeParams{
		Type:        domain.ChallengeOTPVerification,
		Identifier:  "alice@example.com",
		TTL:         time.Minute,
		MaxAttempts: 1,
	})
	require.NoError(t, err)

	// expired, but inside the retention window
	e.clock.Advance(time.Hour)
	hk := NewHousekeepingService(e.store, nil, slogx.Discard(), 0)
	hk.Now = e.clock.Now
	require.Equal(t, defaultHousekeepingInterval, hk.Interval)
	require.Equal(t, 4, hk.RunOnce(ctx))

	_, err = e.challenges.Get(ctx, c.ID)
	require.NoError(t, err)
}

func TestHousekeepingRotatesKeys(t *testing.T) {
	e := newTestEnv(t)

	hk := NewHousekeepingService(e.store, e.sessions, slogx.Discard(), time.Minute)
	hk.Now = e.clock.Now
	hk.KeyRotation = &KeyRotationService{KeyManager: e.keys, Logger: slogx.Discard()}

	before := e.keys.GetSigner()
	require.Equal(t, 5, hk.RunOnce(context.Background()))
	require.NotEqual(t, before.KID(), e.keys.GetSigner().KID())
}

func TestHousekeepingStartStop(t *testing.T) {
	e := newTestEnv(t)

	hk := NewHousekeepingService(e.store, e.sessions, slogx.Discard(), time.Hour)
	hk.Start()
	hk.Stop()
}
