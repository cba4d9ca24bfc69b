package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/store"
	"github.com/aussiebroadwan/vouch/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/vouch/pkg/idx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a throwaway postgres container. Docker tests only run
// when VOUCH_DOCKER_TESTS=1.
func setupPostgres(t *testing.T) *postgres.Store {
	t.Helper()
	if os.Getenv("VOUCH_DOCKER_TESTS") != "1" {
		t.Skip("set VOUCH_DOCKER_TESTS=1 to run postgres tests")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "vouch",
			"POSTGRES_PASSWORD": "vouch",
			"POSTGRES_DB":       "vouch",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://vouch:vouch@%s:%s/vouch?sslmode=disable", host, port.Port())
	s, err := postgres.NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestPostgresChallengeLifecycle(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	c := domain.Challenge{
		ID:          idx.New().String(),
		Type:        domain.ChallengeOTPVerification,
		Identifier:  "alice@example.com",
		SecretHash:  "hash",
		ExpiresAt:   now.Add(5 * time.Minute),
		MaxAttempts: 1,
		CreatedAt:   now,
	}
	require.NoError(t, s.Challenges().CreateChallenge(ctx, c))
	require.ErrorIs(t, s.Challenges().CreateChallenge(ctx, c), store.ErrAlreadyExists)

	got, err := s.Challenges().RecordAttempt(ctx, c.ID, c.Type, now)
	require.NoError(t, err)
	require.Equal(t, 1, got.Attempts)

	_, err = s.Challenges().RecordAttempt(ctx, c.ID, c.Type, now)
	require.ErrorIs(t, err, store.ErrNotFound)

	done, err := s.Challenges().CompleteChallenge(ctx, c.ID, now)
	require.NoError(t, err)
	require.Equal(t, now, *done.VerifiedAt)
}

func TestPostgresSessionsAndStepUps(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	sess := domain.Session{
		ID:           idx.New().String(),
		SubjectID:    "subject-1",
		TokenHash:    "token-hash",
		ExpiresAt:    now.Add(time.Hour),
		LastActiveAt: now,
		CreatedAt:    now,
	}
	require.NoError(t, s.Sessions().CreateSession(ctx, sess))

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.StepUps().CreateStepUp(ctx, domain.StepUpSession{
			ID:            idx.New().String(),
			SubjectID:     "subject-1",
			BaseSessionID: sess.ID,
			Method:        domain.StepUpPassword,
			CreatedAt:     now,
			ExpiresAt:     now.Add(15 * time.Minute),
		})
	})
	require.NoError(t, err)

	_, err = s.StepUps().LatestStepUp(ctx, "subject-1", sess.ID, now)
	require.NoError(t, err)

	revoked, err := s.Sessions().RevokeSession(ctx, sess.ID, domain.RevokeReasonLogout, now)
	require.NoError(t, err)
	require.True(t, revoked)

	list, err := s.Sessions().ListActiveSessions(ctx, "subject-1", now)
	require.NoError(t, err)
	require.Empty(t, list)
}
