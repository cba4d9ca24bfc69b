package domain

import "time"

// Session is the revocable half of a login: the signed token proves who
// minted it, this row (keyed by the token fingerprint) proves it is still
// wanted.
type Session struct {
	ID           string
	SubjectID    string
	TokenHash    string
	IPAddress    string
	UserAgent    string
	ExpiresAt    time.Time
	LastActiveAt time.Time
	CreatedAt    time.Time
	RevokedAt    *time.Time
	RevokeReason string
}

// Live reports whether the row still authorizes requests at now.
func (s Session) Live(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Common revoke reasons.
const (
	RevokeReasonLogout        = "logout"
	RevokeReasonUser          = "user_revoked"
	RevokeReasonPasswordReset = "password_reset"
	RevokeReasonSignOutOthers = "sign_out_others"
)
