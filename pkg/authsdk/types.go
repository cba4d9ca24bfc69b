package authsdk

import "time"

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`

	// Set on step_up_required only.
	Methods []string `json:"methods,omitempty"`
	MaxAge  int      `json:"max_age,omitempty"`
}

// ============================================================================
// Health
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the dependencies /readyz looked at.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}

// ============================================================================
// Users and sessions
// ============================================================================

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// LoginRequest needs TOTPCode or BackupCode once the account has an active
// authenticator.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	TOTPCode   string `json:"totp_code,omitempty"`
	BackupCode string `json:"backup_code,omitempty"`
}

// SessionResponse carries a freshly issued session token. The token is also
// set as a cookie.
type SessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionInfo describes one live session. Tokens are never listed.
type SessionInfo struct {
	ID           string    `json:"id"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Current      bool      `json:"current"`
}

type SessionListResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type RevokeSessionsResponse struct {
	Revoked int64 `json:"revoked"`
}

// ============================================================================
// One-time codes and links
// ============================================================================

// OTPRequest asks for a code sent to Identifier over Method ("email" or
// "sms").
type OTPRequest struct {
	Identifier string `json:"identifier"`
	Method     string `json:"method"`
}

type OTPChallengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	MaxAttempts int       `json:"max_attempts"`
}

type OTPVerifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

// ChallengeResponse is returned when a challenge has been verified.
type ChallengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	Identifier  string    `json:"identifier"`
	VerifiedAt  time.Time `json:"verified_at"`
}

// LinkConfirmRequest carries the two query parameters of an emailed link.
type LinkConfirmRequest struct {
	ChallengeID string `json:"challenge_id"`
	Token       string `json:"token"`
}

type EmailVerificationResponse struct {
	ChallengeID string    `json:"challenge_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	ChallengeID string `json:"challenge_id"`
	Token       string `json:"token"`
	Password    string `json:"password"`
}

// ============================================================================
// MFA
// ============================================================================

// TOTPEnrollRequest tunes the new factor. Zero values take SHA1, 6 digits
// and a 30 second period.
type TOTPEnrollRequest struct {
	Name      string `json:"name,omitempty"`
	Algorithm string `json:"algorithm,omitempty"`
	Digits    int    `json:"digits,omitempty"`
	Period    int    `json:"period,omitempty"`
}

// TOTPEnrollResponse is shown once. URI is the otpauth:// URI for QR codes.
type TOTPEnrollResponse struct {
	FactorID    string    `json:"factor_id"`
	ChallengeID string    `json:"challenge_id"`
	Secret      string    `json:"secret"`
	URI         string    `json:"uri"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type TOTPVerifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type FactorInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	Algorithm  string     `json:"algorithm"`
	Digits     int        `json:"digits"`
	Period     int        `json:"period"`
	CreatedAt  time.Time  `json:"created_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

type FactorListResponse struct {
	Factors []FactorInfo `json:"factors"`
}

// BackupCodesResponse lists a fresh batch. The codes are not shown again.
type BackupCodesResponse struct {
	Codes []string `json:"codes"`
}

type BackupCodesStatusResponse struct {
	Remaining int `json:"remaining"`
}

// ============================================================================
// Step-up
// ============================================================================

// StepUpRequest re-proves identity with Method: "password", "totp" or
// "backup_code".
type StepUpRequest struct {
	Method     string `json:"method"`
	Credential string `json:"credential"`
}

type StepUpResponse struct {
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}
