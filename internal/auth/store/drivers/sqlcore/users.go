package sqlcore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
)

type usersRepo struct {
	q *Queries
}

const userColumns = `id, email, password_hash, status, email_verified_at, created_at, updated_at`

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u                    domain.User
		status               string
		verifiedAt           sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &status, &verifiedAt, &createdAt, &updatedAt); err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.Status = domain.UserStatus(status)
	u.EmailVerifiedAt = mapNullMillis(verifiedAt)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	status := u.Status
	if status == "" {
		status = domain.UserActive
	}

	_, err := r.q.exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, normalizeEmail(u.Email), u.PasswordHash, string(status),
		mapOptionalMillis(u.EmailVerifiedAt), millis(u.CreatedAt), millis(u.UpdatedAt),
	)
	return r.q.mapInsertErr(err)
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email)))
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string, at time.Time) error {
	return r.q.execOne(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, millis(at), userID,
	)
}

func (r *usersRepo) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	return r.q.execOne(ctx, `
		UPDATE users
		SET email_verified_at = COALESCE(email_verified_at, ?), updated_at = ?
		WHERE id = ?`,
		millis(at), millis(at), userID,
	)
}

func (r *usersRepo) SetUserStatus(ctx context.Context, userID string, status domain.UserStatus, at time.Time) error {
	return r.q.execOne(ctx,
		`UPDATE users SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), millis(at), userID,
	)
}
