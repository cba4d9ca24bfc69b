package sqlcore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
)

type factorsRepo struct {
	q *Queries
}

const factorColumns = `id, subject_id, name, secret_sealed, algorithm, digits, period, status, enrollment_challenge_id, created_at, verified_at, last_used_at, disabled_at`

func scanFactor(row scanner) (domain.Factor, error) {
	var (
		f                                  domain.Factor
		status                             string
		challengeID                        sql.NullString
		createdAt                          int64
		verifiedAt, lastUsedAt, disabledAt sql.NullInt64
	)
	err := row.Scan(&f.ID, &f.SubjectID, &f.Name, &f.SecretSealed, &f.Algorithm, &f.Digits, &f.Period,
		&status, &challengeID, &createdAt, &verifiedAt, &lastUsedAt, &disabledAt)
	if err != nil {
		return domain.Factor{}, mapNotFound(err)
	}

	f.Status = domain.FactorStatus(status)
	f.EnrollmentChallengeID = mapNullString(challengeID)
	f.CreatedAt = fromMillis(createdAt)
	f.VerifiedAt = mapNullMillis(verifiedAt)
	f.LastUsedAt = mapNullMillis(lastUsedAt)
	f.DisabledAt = mapNullMillis(disabledAt)
	return f, nil
}

func (r *factorsRepo) listFactors(ctx context.Context, query string, args ...any) ([]domain.Factor, error) {
	rows, err := r.q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Factor
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *factorsRepo) CreateFactor(ctx context.Context, f domain.Factor) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO mfa_factors (`+factorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.SubjectID, f.Name, f.SecretSealed, f.Algorithm, f.Digits, f.Period,
		string(f.Status), mapStringNull(f.EnrollmentChallengeID), millis(f.CreatedAt),
		mapOptionalMillis(f.VerifiedAt), mapOptionalMillis(f.LastUsedAt), mapOptionalMillis(f.DisabledAt),
	)
	return r.q.mapInsertErr(err)
}

func (r *factorsRepo) GetFactor(ctx context.Context, id string) (domain.Factor, error) {
	return scanFactor(r.q.queryRow(ctx, `SELECT `+factorColumns+` FROM mfa_factors WHERE id = ?`, id))
}

func (r *factorsRepo) GetFactorByEnrollmentChallenge(ctx context.Context, challengeID string) (domain.Factor, error) {
	return scanFactor(r.q.queryRow(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE enrollment_challenge_id = ?`, challengeID))
}

func (r *factorsRepo) ListFactors(ctx context.Context, subjectID string) ([]domain.Factor, error) {
	return r.listFactors(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE subject_id = ? ORDER BY created_at, id`, subjectID)
}

func (r *factorsRepo) ListActiveFactors(ctx context.Context, subjectID string) ([]domain.Factor, error) {
	return r.listFactors(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE subject_id = ? AND status = 'active' ORDER BY created_at, id`,
		subjectID)
}

func (r *factorsRepo) ActivateFactor(ctx context.Context, id string, at time.Time) error {
	return r.q.execOne(ctx,
		`UPDATE mfa_factors SET status = 'active', verified_at = ? WHERE id = ? AND status = 'pending'`,
		millis(at), id,
	)
}

func (r *factorsRepo) DisableFactor(ctx context.Context, id, subjectID string, at time.Time) error {
	return r.q.execOne(ctx, `
		UPDATE mfa_factors
		SET status = 'disabled', disabled_at = ?
		WHERE id = ?
		  AND subject_id = ?
		  AND status <> 'disabled'`,
		millis(at), id, subjectID,
	)
}

func (r *factorsRepo) TouchFactor(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.exec(ctx, `UPDATE mfa_factors SET last_used_at = ? WHERE id = ?`, millis(at), id)
	return err
}

func (r *factorsRepo) CountActiveFactors(ctx context.Context, subjectID string) (int, error) {
	var n int
	err := r.q.queryRow(ctx,
		`SELECT COUNT(*) FROM mfa_factors WHERE subject_id = ? AND status = 'active'`, subjectID,
	).Scan(&n)
	return n, err
}

func (r *factorsRepo) DeleteStalePendingFactors(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.q.execCount(ctx,
		`DELETE FROM mfa_factors WHERE status = 'pending' AND created_at < ?`, millis(cutoff))
}
