package sqlcore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
)

type stepUpsRepo struct {
	q *Queries
}

const stepUpColumns = `id, subject_id, base_session_id, method, created_at, expires_at`

func scanStepUp(row scanner) (domain.StepUpSession, error) {
	var (
		s                    domain.StepUpSession
		method               string
		createdAt, expiresAt int64
	)
	if err := row.Scan(&s.ID, &s.SubjectID, &s.BaseSessionID, &method, &createdAt, &expiresAt); err != nil {
		return domain.StepUpSession{}, mapNotFound(err)
	}

	s.Method = domain.StepUpMethod(method)
	s.CreatedAt = fromMillis(createdAt)
	s.ExpiresAt = fromMillis(expiresAt)
	return s, nil
}

func (r *stepUpsRepo) CreateStepUp(ctx context.Context, s domain.StepUpSession) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO step_up_sessions (`+stepUpColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.SubjectID, s.BaseSessionID, string(s.Method), millis(s.CreatedAt), millis(s.ExpiresAt),
	)
	return r.q.mapInsertErr(err)
}

func (r *stepUpsRepo) LatestStepUp(ctx context.Context, subjectID, baseSessionID string, now time.Time) (domain.StepUpSession, error) {
	return scanStepUp(r.q.queryRow(ctx, `
		SELECT `+stepUpColumns+`
		FROM step_up_sessions
		WHERE subject_id = ?
		  AND base_session_id = ?
		  AND expires_at > ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		subjectID, baseSessionID, millis(now),
	))
}

func (r *stepUpsRepo) DeleteStepUps(ctx context.Context, subjectID, baseSessionID string) (int64, error) {
	return r.q.execCount(ctx,
		`DELETE FROM step_up_sessions WHERE subject_id = ? AND base_session_id = ?`, subjectID, baseSessionID)
}

func (r *stepUpsRepo) DeleteStepUpsForSession(ctx context.Context, baseSessionID string) (int64, error) {
	return r.q.execCount(ctx, `DELETE FROM step_up_sessions WHERE base_session_id = ?`, baseSessionID)
}

func (r *stepUpsRepo) DeleteStepUpsForSubject(ctx context.Context, subjectID string) (int64, error) {
	return r.q.execCount(ctx, `DELETE FROM step_up_sessions WHERE subject_id = ?`, subjectID)
}

func (r *stepUpsRepo) DeleteExpiredStepUps(ctx context.Context, now time.Time) (int64, error) {
	return r.q.execCount(ctx, `DELETE FROM step_up_sessions WHERE expires_at <= ?`, millis(now))
}
