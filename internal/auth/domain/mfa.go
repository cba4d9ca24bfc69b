package domain

import "time"

type FactorStatus string

const (
	FactorPending  FactorStatus = "pending"
	FactorActive   FactorStatus = "active"
	FactorDisabled FactorStatus = "disabled"
)

// Factor is an authenticator-app (TOTP) registration.
// Status moves pending -> active -> disabled; disabled rows are kept.
type Factor struct {
	ID                    string
	SubjectID             string
	Name                  string
	SecretSealed          []byte // AES-GCM sealed base32 secret
	Algorithm             string // SHA1, SHA256, SHA512
	Digits                int
	Period                int // seconds
	Status                FactorStatus
	EnrollmentChallengeID string
	CreatedAt             time.Time
	VerifiedAt            *time.Time
	LastUsedAt            *time.Time
	DisabledAt            *time.Time
}

// BackupCode is a single-use recovery code. Used rows are kept for audit.
type BackupCode struct {
	ID        string
	SubjectID string
	CodeHash  string
	CreatedAt time.Time
	UsedAt    *time.Time
}

// StepUpMethod is how a subject re-proved their identity.
type StepUpMethod string

const (
	StepUpPassword   StepUpMethod = "password"
	StepUpTOTP       StepUpMethod = "totp"
	StepUpBackupCode StepUpMethod = "backup_code"
)

// StepUpSession is a short-lived elevation bound to one base session.
type StepUpSession struct {
	ID            string
	SubjectID     string
	BaseSessionID string
	Method        StepUpMethod
	CreatedAt     time.Time
	ExpiresAt     time.Time
}
