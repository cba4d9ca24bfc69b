package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/store"
	"github.com/aussiebroadwan/vouch/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/vouch/pkg/idx"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func newChallenge(maxAttempts int) domain.Challenge {
	return domain.Challenge{
		ID:          idx.New().String(),
		Type:        domain.ChallengeOTPVerification,
		Identifier:  "alice@example.com",
		SecretHash:  "hash",
		ExpiresAt:   t0.Add(5 * time.Minute),
		MaxAttempts: maxAttempts,
		CreatedAt:   t0,
	}
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestChallengeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	c := newChallenge(5)
	require.NoError(t, s.Challenges().CreateChallenge(ctx, c))
	require.ErrorIs(t, s.Challenges().CreateChallenge(ctx, c), store.ErrAlreadyExists)

	got, err := s.Challenges().GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.Identifier, got.Identifier)
	require.Equal(t, c.ExpiresAt, got.ExpiresAt)
	require.Empty(t, got.SubjectID)
	require.Nil(t, got.VerifiedAt)

	_, err = s.Challenges().GetChallenge(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordAttemptFilters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	repo := s.Challenges()

	t.Run("spends budget then stops", func(t *testing.T) {
		c := newChallenge(2)
		require.NoError(t, repo.CreateChallenge(ctx, c))

		got, err := repo.RecordAttempt(ctx, c.ID, c.Type, t0)
		require.NoError(t, err)
		require.Equal(t, 1, got.Attempts)

		got, err = repo.RecordAttempt(ctx, c.ID, c.Type, t0)
		require.NoError(t, err)
		require.Equal(t, 2, got.Attempts)

		_, err = repo.RecordAttempt(ctx, c.ID, c.Type, t0)
		require.ErrorIs(t, err, store.ErrNotFound)

		stored, err := repo.GetChallenge(ctx, c.ID)
		require.NoError(t, err)
		require.Equal(t, 2, stored.Attempts)
	})

	t.Run("wrong type", func(t *testing.T) {
		c := newChallenge(5)
		require.NoError(t, repo.CreateChallenge(ctx, c))

		_, err := repo.RecordAttempt(ctx, c.ID, domain.ChallengePasswordReset, t0)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired", func(t *testing.T) {
		c := newChallenge(5)
		require.NoError(t, repo.CreateChallenge(ctx, c))

		_, err := repo.RecordAttempt(ctx, c.ID, c.Type, c.ExpiresAt)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("verified", func(t *testing.T) {
		c := newChallenge(5)
		require.NoError(t, repo.CreateChallenge(ctx, c))

		done, err := repo.CompleteChallenge(ctx, c.ID, t0)
		require.NoError(t, err)
		require.NotNil(t, done.VerifiedAt)

		_, err = repo.RecordAttempt(ctx, c.ID, c.Type, t0)
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = repo.CompleteChallenge(ctx, c.ID, t0)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestRecordAttemptConcurrentNeverOverspends(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	c := newChallenge(3)
	require.NoError(t, s.Challenges().CreateChallenge(ctx, c))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Challenges().RecordAttempt(ctx, c.ID, c.Type, t0)
			if err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, granted)
}

func TestInvalidatePendingAndLinkSubject(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	repo := s.Challenges()

	a := newChallenge(5)
	b := newChallenge(5)
	verified := newChallenge(5)
	other := newChallenge(5)
	other.Identifier = "bob@example.com"
	for _, c := range []domain.Challenge{a, b, verified, other} {
		require.NoError(t, repo.CreateChallenge(ctx, c))
	}
	_, err := repo.CompleteChallenge(ctx, verified.ID, t0)
	require.NoError(t, err)

	n, err := repo.InvalidatePending(ctx, "alice@example.com", domain.ChallengeOTPVerification, t0)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	got, err := repo.GetChallenge(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ChallengeExpired, got.State(t0))

	got, err = repo.GetChallenge(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ChallengePending, got.State(t0))

	require.NoError(t, repo.LinkSubject(ctx, other.ID, "subject-1"))
	require.ErrorIs(t, repo.LinkSubject(ctx, other.ID, "subject-2"), store.ErrNotFound)

	got, err = repo.GetChallenge(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, "subject-1", got.SubjectID)

	n, err = repo.DeleteExpiredChallenges(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func newSession(subjectID string, createdAt time.Time) domain.Session {
	id := idx.NewAt(createdAt).String()
	return domain.Session{
		ID:           id,
		SubjectID:    subjectID,
		TokenHash:    "hash-" + id,
		IPAddress:    "127.0.0.1",
		UserAgent:    "test",
		ExpiresAt:    createdAt.Add(time.Hour),
		LastActiveAt: createdAt,
		CreatedAt:    createdAt,
	}
}

func TestSessionsLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	repo := s.Sessions()

	first := newSession("subject-1", t0)
	second := newSession("subject-1", t0.Add(time.Minute))
	third := newSession("subject-1", t0.Add(2*time.Minute))
	for _, sess := range []domain.Session{first, second, third} {
		require.NoError(t, repo.CreateSession(ctx, sess))
	}

	byHash, err := repo.GetSessionByTokenHash(ctx, second.TokenHash)
	require.NoError(t, err)
	require.Equal(t, second.ID, byHash.ID)

	list, err := repo.ListActiveSessions(ctx, "subject-1", t0.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, third.ID, list[0].ID)

	changed, err := repo.RevokeSession(ctx, first.ID, domain.RevokeReasonLogout, t0)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.RevokeSession(ctx, first.ID, domain.RevokeReasonLogout, t0)
	require.NoError(t, err)
	require.False(t, changed)

	n, err := repo.RevokeSubjectSessions(ctx, "subject-1", third.ID, domain.RevokeReasonSignOutOthers, t0)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	list, err = repo.ListActiveSessions(ctx, "subject-1", t0.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, third.ID, list[0].ID)

	got, err := repo.GetSession(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	require.Equal(t, domain.RevokeReasonLogout, got.RevokeReason)
}

func TestTouchSessionOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	sess := newSession("subject-1", t0)
	require.NoError(t, s.Sessions().CreateSession(ctx, sess))

	require.NoError(t, s.Sessions().TouchSession(ctx, sess.ID, t0.Add(time.Minute)))
	require.NoError(t, s.Sessions().TouchSession(ctx, sess.ID, t0.Add(30*time.Second)))

	got, err := s.Sessions().GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, t0.Add(time.Minute), got.LastActiveAt)
}

func TestDeleteExpiredSessionsCascadesStepUps(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	sess := newSession("subject-1", t0)
	require.NoError(t, s.Sessions().CreateSession(ctx, sess))
	require.NoError(t, s.StepUps().CreateStepUp(ctx, domain.StepUpSession{
		ID:            idx.New().String(),
		SubjectID:     "subject-1",
		BaseSessionID: sess.ID,
		Method:        domain.StepUpPassword,
		CreatedAt:     t0,
		ExpiresAt:     t0.Add(2 * time.Hour),
	}))

	n, err := s.Sessions().DeleteExpiredSessions(ctx, sess.ExpiresAt)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.StepUps().LatestStepUp(ctx, "subject-1", sess.ID, t0)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStepUpsLatest(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	sess := newSession("subject-1", t0)
	require.NoError(t, s.Sessions().CreateSession(ctx, sess))

	older := domain.StepUpSession{
		ID: idx.NewAt(t0).String(), SubjectID: "subject-1", BaseSessionID: sess.ID,
		Method: domain.StepUpPassword, CreatedAt: t0, ExpiresAt: t0.Add(15 * time.Minute),
	}
	newer := domain.StepUpSession{
		ID: idx.NewAt(t0.Add(time.Minute)).String(), SubjectID: "subject-1", BaseSessionID: sess.ID,
		Method: domain.StepUpTOTP, CreatedAt: t0.Add(time.Minute), ExpiresAt: t0.Add(16 * time.Minute),
	}
	require.NoError(t, s.StepUps().CreateStepUp(ctx, older))
	require.NoError(t, s.StepUps().CreateStepUp(ctx, newer))

	got, err := s.StepUps().LatestStepUp(ctx, "subject-1", sess.ID, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, newer.ID, got.ID)
	require.Equal(t, domain.StepUpTOTP, got.Method)

	_, err = s.StepUps().LatestStepUp(ctx, "subject-1", sess.ID, t0.Add(16*time.Minute))
	require.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.StepUps().DeleteExpiredStepUps(ctx, t0.Add(15*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = s.StepUps().DeleteStepUpsForSession(ctx, sess.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestFactorsLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	repo := s.Factors()

	f := domain.Factor{
		ID:                    idx.New().String(),
		SubjectID:             "subject-1",
		Name:                  "phone",
		SecretSealed:          []byte{1, 2, 3},
		Algorithm:             "SHA1",
		Digits:                6,
		Period:                30,
		Status:                domain.FactorPending,
		EnrollmentChallengeID: "challenge-1",
		CreatedAt:             t0,
	}
	require.NoError(t, repo.CreateFactor(ctx, f))

	got, err := repo.GetFactorByEnrollmentChallenge(ctx, "challenge-1")
	require.NoError(t, err)
	require.Equal(t, f.SecretSealed, got.SecretSealed)

	count, err := repo.CountActiveFactors(ctx, "subject-1")
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, repo.ActivateFactor(ctx, f.ID, t0))
	require.ErrorIs(t, repo.ActivateFactor(ctx, f.ID, t0), store.ErrNotFound)

	active, err := repo.ListActiveFactors(ctx, "subject-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.NotNil(t, active[0].VerifiedAt)

	require.ErrorIs(t, repo.DisableFactor(ctx, f.ID, "subject-2", t0), store.ErrNotFound)
	require.NoError(t, repo.DisableFactor(ctx, f.ID, "subject-1", t0))
	require.ErrorIs(t, repo.DisableFactor(ctx, f.ID, "subject-1", t0), store.ErrNotFound)

	all, err := repo.ListFactors(ctx, "subject-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, domain.FactorDisabled, all[0].Status)
	require.NotNil(t, all[0].DisabledAt)
}

func TestBackupCodesConsumeOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	repo := s.BackupCodes()

	codes := []domain.BackupCode{
		{ID: idx.New().String(), SubjectID: "subject-1", CodeHash: "a", CreatedAt: t0},
		{ID: idx.New().String(), SubjectID: "subject-1", CodeHash: "b", CreatedAt: t0},
	}
	require.NoError(t, repo.CreateBackupCodes(ctx, codes))

	require.NoError(t, repo.ConsumeBackupCode(ctx, "subject-1", "a", t0))
	require.ErrorIs(t, repo.ConsumeBackupCode(ctx, "subject-1", "a", t0), store.ErrNotFound)
	require.ErrorIs(t, repo.ConsumeBackupCode(ctx, "subject-2", "b", t0), store.ErrNotFound)

	n, err := repo.CountUnusedBackupCodes(ctx, "subject-1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	deleted, err := repo.DeleteUnusedBackupCodes(ctx, "subject-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}

func TestUsersEmailIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	repo := s.Users()

	u := domain.User{
		ID:           idx.New().String(),
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	require.NoError(t, repo.CreateUser(ctx, u))

	dup := u
	dup.ID = idx.New().String()
	dup.Email = "alice@example.COM"
	require.ErrorIs(t, repo.CreateUser(ctx, dup), store.ErrAlreadyExists)

	got, err := repo.GetUserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, domain.UserActive, got.Status)

	require.NoError(t, repo.MarkEmailVerified(ctx, u.ID, t0.Add(time.Minute)))
	require.NoError(t, repo.MarkEmailVerified(ctx, u.ID, t0.Add(2*time.Minute)))
	got, err = repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, t0.Add(time.Minute), *got.EmailVerifiedAt)

	require.ErrorIs(t, repo.UpdatePasswordHash(ctx, "missing", "x", t0), store.ErrNotFound)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	boom := errors.New("boom")
	c := newChallenge(5)
	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Challenges().CreateChallenge(ctx, c))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Challenges().GetChallenge(ctx, c.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Challenges().CreateChallenge(ctx, c)
	})
	require.NoError(t, err)

	_, err = s.Challenges().GetChallenge(ctx, c.ID)
	require.NoError(t, err)
}
