package sqlcore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
)

type sessionsRepo struct {
	q *Queries
}

const sessionColumns = `id, subject_id, token_hash, ip_address, user_agent, expires_at, last_active_at, created_at, revoked_at, revoke_reason`

func scanSession(row scanner) (domain.Session, error) {
	var (
		s                               domain.Session
		expiresAt, lastActive, createdAt int64
		revokedAt                       sql.NullInt64
		reason                          sql.NullString
	)
	err := row.Scan(&s.ID, &s.SubjectID, &s.TokenHash, &s.IPAddress, &s.UserAgent,
		&expiresAt, &lastActive, &createdAt, &revokedAt, &reason)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}

	s.ExpiresAt = fromMillis(expiresAt)
	s.LastActiveAt = fromMillis(lastActive)
	s.CreatedAt = fromMillis(createdAt)
	s.RevokedAt = mapNullMillis(revokedAt)
	s.RevokeReason = mapNullString(reason)
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.SubjectID, s.TokenHash, s.IPAddress, s.UserAgent,
		millis(s.ExpiresAt), millis(s.LastActiveAt), millis(s.CreatedAt),
		mapOptionalMillis(s.RevokedAt), mapStringNull(s.RevokeReason),
	)
	return r.q.mapInsertErr(err)
}

func (r *sessionsRepo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return scanSession(r.q.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
}

func (r *sessionsRepo) GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error) {
	return scanSession(r.q.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_hash = ?`, hash))
}

func (r *sessionsRepo) ListActiveSessions(ctx context.Context, subjectID string, now time.Time) ([]domain.Session, error) {
	rows, err := r.q.query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE subject_id = ?
		  AND revoked_at IS NULL
		  AND expires_at > ?
		ORDER BY created_at DESC, id DESC`,
		subjectID, millis(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TouchSession only moves last_active_at forward, so a late write from a
// slow goroutine cannot rewind it.
func (r *sessionsRepo) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.exec(ctx,
		`UPDATE sessions SET last_active_at = ? WHERE id = ? AND last_active_at < ?`,
		millis(at), id, millis(at),
	)
	return err
}

func (r *sessionsRepo) RevokeSession(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	n, err := r.q.execCount(ctx,
		`UPDATE sessions SET revoked_at = ?, revoke_reason = ? WHERE id = ? AND revoked_at IS NULL`,
		millis(at), mapStringNull(reason), id,
	)
	return n > 0, err
}

func (r *sessionsRepo) RevokeSubjectSessions(ctx context.Context, subjectID, exceptID, reason string, at time.Time) (int64, error) {
	return r.q.execCount(ctx, `
		UPDATE sessions
		SET revoked_at = ?, revoke_reason = ?
		WHERE subject_id = ?
		  AND revoked_at IS NULL
		  AND id <> ?`,
		millis(at), mapStringNull(reason), subjectID, exceptID,
	)
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return r.q.execCount(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, millis(now))
}
