package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement it. Sub-repositories hang off it so a Tx exposes the
// exact same surface. A Tx cannot open a second transaction; its WithTx
// joins the one already open.
type Store interface {
	Challenges() Challenges
	Sessions() Sessions
	Factors() Factors
	BackupCodes() BackupCodes
	StepUps() StepUps
	Users() Users

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when it returns nil and
	// rolling back otherwise. Called on a Tx it runs fn in that Tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Challenges persists challenge rows. Every state change is a single
// filtered UPDATE so two concurrent verifies cannot both win.
type Challenges interface {
	CreateChallenge(ctx context.Context, c domain.Challenge) error

	GetChallenge(ctx context.Context, id string) (domain.Challenge, error)

	// RecordAttempt spends one attempt if the challenge has the given type,
	// is unverified, unexpired at now and has budget left. It returns the
	// updated row, or ErrNotFound when the filter matched nothing.
	RecordAttempt(ctx context.Context, id string, typ domain.ChallengeType, now time.Time) (domain.Challenge, error)

	// CompleteChallenge sets verified_at=now on an unverified, unexpired row.
	// ErrNotFound when the filter matched nothing.
	CompleteChallenge(ctx context.Context, id string, now time.Time) (domain.Challenge, error)

	// InvalidatePending force-expires every unverified, unexpired challenge
	// of typ for identifier and returns how many were hit.
	InvalidatePending(ctx context.Context, identifier string, typ domain.ChallengeType, now time.Time) (int64, error)

	// ExpireChallenge force-expires a single pending challenge.
	ExpireChallenge(ctx context.Context, id string, now time.Time) error

	// LinkSubject sets subject_id on a challenge that has none.
	LinkSubject(ctx context.Context, id, subjectID string) error

	DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error)

	// ListActiveSessions returns unrevoked, unexpired sessions, newest first.
	ListActiveSessions(ctx context.Context, subjectID string, now time.Time) ([]domain.Session, error)

	TouchSession(ctx context.Context, id string, at time.Time) error

	// RevokeSession marks an unrevoked session revoked. It reports whether
	// a row changed.
	RevokeSession(ctx context.Context, id, reason string, at time.Time) (bool, error)

	// RevokeSubjectSessions revokes every live session of subjectID except
	// exceptID (which may be empty).
	RevokeSubjectSessions(ctx context.Context, subjectID, exceptID, reason string, at time.Time) (int64, error)

	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type Factors interface {
	CreateFactor(ctx context.Context, f domain.Factor) error
	GetFactor(ctx context.Context, id string) (domain.Factor, error)
	GetFactorByEnrollmentChallenge(ctx context.Context, challengeID string) (domain.Factor, error)
	ListFactors(ctx context.Context, subjectID string) ([]domain.Factor, error)
	ListActiveFactors(ctx context.Context, subjectID string) ([]domain.Factor, error)

	// ActivateFactor moves a pending factor to active. ErrNotFound otherwise.
	ActivateFactor(ctx context.Context, id string, at time.Time) error

	// DisableFactor moves a non-disabled factor of subjectID to disabled.
	// ErrNotFound otherwise.
	DisableFactor(ctx context.Context, id, subjectID string, at time.Time) error

	TouchFactor(ctx context.Context, id string, at time.Time) error
	CountActiveFactors(ctx context.Context, subjectID string) (int, error)

	// DeleteStalePendingFactors removes pending factors created before cutoff.
	DeleteStalePendingFactors(ctx context.Context, cutoff time.Time) (int64, error)
}

type BackupCodes interface {
	CreateBackupCodes(ctx context.Context, codes []domain.BackupCode) error

	// DeleteUnusedBackupCodes removes every unused code of subjectID. Used
	// codes are kept.
	DeleteUnusedBackupCodes(ctx context.Context, subjectID string) (int64, error)

	// ConsumeBackupCode sets used_at on an unused code. ErrNotFound when no
	// unused code matched.
	ConsumeBackupCode(ctx context.Context, subjectID, codeHash string, at time.Time) error

	CountUnusedBackupCodes(ctx context.Context, subjectID string) (int, error)
}

type StepUps interface {
	CreateStepUp(ctx context.Context, s domain.StepUpSession) error

	// LatestStepUp returns the newest unexpired step-up for the pair.
	LatestStepUp(ctx context.Context, subjectID, baseSessionID string, now time.Time) (domain.StepUpSession, error)

	DeleteStepUps(ctx context.Context, subjectID, baseSessionID string) (int64, error)
	DeleteStepUpsForSession(ctx context.Context, baseSessionID string) (int64, error)
	DeleteStepUpsForSubject(ctx context.Context, subjectID string) (int64, error)
	DeleteExpiredStepUps(ctx context.Context, now time.Time) (int64, error)
}

type Users interface {
	// CreateUser inserts a user. ErrAlreadyExists on a duplicate email.
	CreateUser(ctx context.Context, u domain.User) error

	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	UpdatePasswordHash(ctx context.Context, userID, hash string, at time.Time) error
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error
	SetUserStatus(ctx context.Context, userID string, status domain.UserStatus, at time.Time) error
}
