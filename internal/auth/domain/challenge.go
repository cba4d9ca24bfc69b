package domain

import "time"

// ChallengeType discriminates the flows sharing the challenge lifecycle.
type ChallengeType string

const (
	ChallengeEmailVerification ChallengeType = "email_verification"
	ChallengePasswordReset     ChallengeType = "password_reset"
	ChallengeOTPVerification   ChallengeType = "otp_verification"
	ChallengeTOTPEnrollment    ChallengeType = "totp_enrollment"
)

func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengeEmailVerification, ChallengePasswordReset, ChallengeOTPVerification, ChallengeTOTPEnrollment:
		return true
	}
	return false
}

// Challenge is a single-use, time-bounded, attempt-limited secret. Only the
// fingerprint of the secret is stored.
//
// VerifiedAt is set at most once and Attempts only grows.
type Challenge struct {
	ID          string
	Type        ChallengeType
	Identifier  string // email, phone or subject id the challenge is scoped to
	SecretHash  string
	SubjectID   string // empty until linked
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
	VerifiedAt  *time.Time
	CreatedAt   time.Time
}

// ChallengeState is the derived position in CREATED -> VERIFIED|EXPIRED|EXCEEDED.
type ChallengeState string

const (
	ChallengePending  ChallengeState = "pending"
	ChallengeVerified ChallengeState = "verified"
	ChallengeExpired  ChallengeState = "expired"
	ChallengeExceeded ChallengeState = "exceeded"
)

// State derives the lifecycle state at now. Verified wins over expired and
// exceeded because it is the only state written explicitly.
func (c Challenge) State(now time.Time) ChallengeState {
	switch {
	case c.VerifiedAt != nil:
		return ChallengeVerified
	case !now.Before(c.ExpiresAt):
		return ChallengeExpired
	case c.Attempts >= c.MaxAttempts:
		return ChallengeExceeded
	default:
		return ChallengePending
	}
}

// AttemptsRemaining never goes negative.
func (c Challenge) AttemptsRemaining() int {
	return max(c.MaxAttempts-c.Attempts, 0)
}
