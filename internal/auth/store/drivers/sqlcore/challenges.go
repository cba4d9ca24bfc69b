package sqlcore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
)

type challengesRepo struct {
	q *Queries
}

const challengeColumns = `id, type, identifier, secret_hash, subject_id, expires_at, attempts, max_attempts, verified_at, created_at`

func scanChallenge(row scanner) (domain.Challenge, error) {
	var (
		c          domain.Challenge
		typ        string
		subjectID  sql.NullString
		expiresAt  int64
		verifiedAt sql.NullInt64
		createdAt  int64
	)
	err := row.Scan(&c.ID, &typ, &c.Identifier, &c.SecretHash, &subjectID,
		&expiresAt, &c.Attempts, &c.MaxAttempts, &verifiedAt, &createdAt)
	if err != nil {
		return domain.Challenge{}, mapNotFound(err)
	}

	c.Type = domain.ChallengeType(typ)
	c.SubjectID = mapNullString(subjectID)
	c.ExpiresAt = fromMillis(expiresAt)
	c.VerifiedAt = mapNullMillis(verifiedAt)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func (r *challengesRepo) CreateChallenge(ctx context.Context, c domain.Challenge) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO challenges (`+challengeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Type), c.Identifier, c.SecretHash, mapStringNull(c.SubjectID),
		millis(c.ExpiresAt), c.Attempts, c.MaxAttempts, mapOptionalMillis(c.VerifiedAt), millis(c.CreatedAt),
	)
	return r.q.mapInsertErr(err)
}

func (r *challengesRepo) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	return scanChallenge(r.q.queryRow(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id))
}

func (r *challengesRepo) RecordAttempt(ctx context.Context, id string, typ domain.ChallengeType, now time.Time) (domain.Challenge, error) {
	return scanChallenge(r.q.queryRow(ctx, `
		UPDATE challenges
		SET attempts = attempts + 1
		WHERE id = ?
		  AND type = ?
		  AND verified_at IS NULL
		  AND expires_at > ?
		  AND attempts < max_attempts
		RETURNING `+challengeColumns,
		id, string(typ), millis(now),
	))
}

func (r *challengesRepo) CompleteChallenge(ctx context.Context, id string, now time.Time) (domain.Challenge, error) {
	return scanChallenge(r.q.queryRow(ctx, `
		UPDATE challenges
		SET verified_at = ?
		WHERE id = ?
		  AND verified_at IS NULL
		  AND expires_at > ?
		RETURNING `+challengeColumns,
		millis(now), id, millis(now),
	))
}

func (r *challengesRepo) InvalidatePending(ctx context.Context, identifier string, typ domain.ChallengeType, now time.Time) (int64, error) {
	return r.q.execCount(ctx, `
		UPDATE challenges
		SET expires_at = ?
		WHERE identifier = ?
		  AND type = ?
		  AND verified_at IS NULL
		  AND expires_at > ?`,
		millis(now), identifier, string(typ), millis(now),
	)
}

func (r *challengesRepo) ExpireChallenge(ctx context.Context, id string, now time.Time) error {
	return r.q.execOne(ctx, `
		UPDATE challenges
		SET expires_at = ?
		WHERE id = ?
		  AND verified_at IS NULL
		  AND expires_at > ?`,
		millis(now), id, millis(now),
	)
}

func (r *challengesRepo) LinkSubject(ctx context.Context, id, subjectID string) error {
	return r.q.execOne(ctx,
		`UPDATE challenges SET subject_id = ? WHERE id = ? AND subject_id IS NULL`,
		subjectID, id,
	)
}

func (r *challengesRepo) DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	return r.q.execCount(ctx, `DELETE FROM challenges WHERE expires_at < ?`, millis(before))
}
