package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/vouch/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeServerError        = "server_error"
	ErrorCodeUnavailable        = "temporarily_unavailable"
	ErrorCodeUnauthenticated    = "unauthenticated"
	ErrorCodeInvalidSession     = "invalid_session"
	ErrorCodeSessionRevoked     = "session_revoked"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeInvalidSecret      = "invalid_secret"
	ErrorCodeChallengeNotFound  = "challenge_not_found"
	ErrorCodeChallengeExpired   = "challenge_expired"
	ErrorCodeAttemptsExceeded   = "attempts_exceeded"
	ErrorCodeAlreadyVerified    = "already_verified"
	ErrorCodeStepUpRequired     = "step_up_required"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeInvalidPassword    = "invalid_password"
	ErrorCodeInvalidEmail       = "invalid_email"
	ErrorCodeEmailTaken         = "email_taken"
	ErrorCodeUnsupportedMethod  = "unsupported_method"
	ErrorCodeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorCodeMFANotEnabled      = "mfa_not_enabled"
	ErrorCodeMFARequired        = "mfa_required"
)

// ============================================================================
// APIError
// ============================================================================

// APIError is an error response. The server writes it, the client returns
// it.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches another *APIError with the same Code, so callers can write
// errors.Is(err, authsdk.ErrChallengeExpired).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes e to w.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Description)
}

// WithDescription returns a copy of e with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	return &APIError{StatusCode: e.StatusCode, Code: e.Code, Description: desc}
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	// ErrUnavailable is transient. Retry-After is set alongside it.
	ErrUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeUnavailable,
		Description: "the request timed out, try again",
	}

	ErrUnauthenticated = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthenticated,
		Description: "authentication required",
	}

	ErrInvalidSession = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidSession,
		Description: "the session token is invalid or expired",
	}

	ErrSessionRevoked = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeSessionRevoked,
		Description: "the session has been revoked",
	}

	// ErrInvalidCredentials covers unknown email, wrong password and
	// suspended accounts alike.
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid email or password",
	}

	ErrInvalidSecret = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidSecret,
		Description: "the code or token is incorrect",
	}

	ErrChallengeNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeChallengeNotFound,
		Description: "challenge not found or already used",
	}

	ErrChallengeExpired = &APIError{
		StatusCode:  http.StatusGone,
		Code:        ErrorCodeChallengeExpired,
		Description: "challenge expired, request a new one",
	}

	ErrAttemptsExceeded = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeAttemptsExceeded,
		Description: "too many attempts, request a new challenge",
	}

	ErrAlreadyVerified = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAlreadyVerified,
		Description: "already verified",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "not found",
	}

	ErrInvalidPassword = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidPassword,
		Description: "password does not meet policy",
	}

	ErrInvalidEmail = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidEmail,
		Description: "invalid email address",
	}

	ErrEmailTaken = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeEmailTaken,
		Description: "email already registered",
	}

	ErrUnsupportedMethod = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnsupportedMethod,
		Description: "delivery or step-up method not supported",
	}

	// ErrMFARequired is returned by login when the account has an active
	// authenticator and no second factor was sent.
	ErrMFARequired = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeMFARequired,
		Description: "send a totp_code or backup_code with the password",
	}

	ErrMFANotEnabled = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeMFANotEnabled,
		Description: "no active authenticator factor",
	}
)

// ============================================================================
// Step-up
// ============================================================================

// StepUpRequiredError is returned (403) when an operation needs a recent
// step-up on the current session.
type StepUpRequiredError struct {
	Methods []string
	MaxAge  int // seconds, 0 when any unexpired step-up will do
}

func (e *StepUpRequiredError) Error() string {
	return fmt.Sprintf("step-up required: methods=%s", strings.Join(e.Methods, ","))
}

// WriteError writes the 403 step_up_required response.
func (e *StepUpRequiredError) WriteError(w http.ResponseWriter) {
	methods := e.Methods
	if methods == nil {
		methods = []string{}
	}
	httpx.WriteJSON(w, http.StatusForbidden, ErrorResponse{
		Error:            ErrorCodeStepUpRequired,
		ErrorDescription: "re-authenticate to continue",
		Methods:          methods,
		MaxAge:           e.MaxAge,
	})
}

// ============================================================================
// Error Parsing
// ============================================================================

// parseErrorResponse turns a non-2xx response into *StepUpRequiredError or
// *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		if errResp.Error == ErrorCodeStepUpRequired {
			return &StepUpRequiredError{Methods: errResp.Methods, MaxAge: errResp.MaxAge}
		}
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
