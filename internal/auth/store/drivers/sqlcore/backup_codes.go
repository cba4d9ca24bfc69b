package sqlcore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
)

type backupCodesRepo struct {
	q *Queries
}

func (r *backupCodesRepo) CreateBackupCodes(ctx context.Context, codes []domain.BackupCode) error {
	for _, c := range codes {
		_, err := r.q.exec(ctx, `
			INSERT INTO backup_codes (id, subject_id, code_hash, created_at, used_at)
			VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.SubjectID, c.CodeHash, millis(c.CreatedAt), mapOptionalMillis(c.UsedAt),
		)
		if err != nil {
			return r.q.mapInsertErr(err)
		}
	}
	return nil
}

func (r *backupCodesRepo) DeleteUnusedBackupCodes(ctx context.Context, subjectID string) (int64, error) {
	return r.q.execCount(ctx,
		`DELETE FROM backup_codes WHERE subject_id = ? AND used_at IS NULL`, subjectID)
}

func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, subjectID, codeHash string, at time.Time) error {
	return r.q.execOne(ctx, `
		UPDATE backup_codes
		SET used_at = ?
		WHERE subject_id = ?
		  AND code_hash = ?
		  AND used_at IS NULL`,
		millis(at), subjectID, codeHash,
	)
}

func (r *backupCodesRepo) CountUnusedBackupCodes(ctx context.Context, subjectID string) (int, error) {
	var n int
	err := r.q.queryRow(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE subject_id = ? AND used_at IS NULL`, subjectID,
	).Scan(&n)
	return n, err
}
