package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the vouch authentication service.
// It provides access to unauthenticated operations and creates Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register creates an account.
func (c *SDKClient) Register(ctx context.Context, email, password string) (*UserResponse, error) {
	var out UserResponse
	err := c.call(ctx, http.MethodPost, "/v1/users", "",
		RegisterRequest{Email: email, Password: password}, &out, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates with email and password and returns a Session.
// Accounts with an authenticator get ErrMFARequired; use LoginWith.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.LoginWith(ctx, LoginRequest{Email: email, Password: password})
}

// LoginWith authenticates with a full LoginRequest, second factor included.
func (c *SDKClient) LoginWith(ctx context.Context, req LoginRequest) (*Session, error) {
	var out SessionResponse
	if err := c.call(ctx, http.MethodPost, "/v1/sessions", "", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &Session{client: c, token: out.Token, sessionID: out.SessionID, expiresAt: out.ExpiresAt}, nil
}

// NewSessionFromToken wraps a session token obtained elsewhere, such as a
// cookie.
func (c *SDKClient) NewSessionFromToken(token string) *Session {
	return &Session{client: c, token: token}
}

// RequestOTP sends a one-time code to req.Identifier.
func (c *SDKClient) RequestOTP(ctx context.Context, req OTPRequest) (*OTPChallengeResponse, error) {
	var out OTPChallengeResponse
	if err := c.call(ctx, http.MethodPost, "/v1/otp", "", req, &out, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResendOTP invalidates pending codes for req.Identifier and sends a new one.
func (c *SDKClient) ResendOTP(ctx context.Context, req OTPRequest) (*OTPChallengeResponse, error) {
	var out OTPChallengeResponse
	if err := c.call(ctx, http.MethodPost, "/v1/otp/resend", "", req, &out, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyOTP submits a code. A wrong code spends one attempt.
func (c *SDKClient) VerifyOTP(ctx context.Context, challengeID, code string) (*ChallengeResponse, error) {
	var out ChallengeResponse
	err := c.call(ctx, http.MethodPost, "/v1/otp/verify", "",
		OTPVerifyRequest{ChallengeID: challengeID, Code: code}, &out, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmEmail submits the challenge and token of an email verification link.
func (c *SDKClient) ConfirmEmail(ctx context.Context, challengeID, token string) (*ChallengeResponse, error) {
	var out ChallengeResponse
	err := c.call(ctx, http.MethodPost, "/v1/email/verification/confirm", "",
		LinkConfirmRequest{ChallengeID: challengeID, Token: token}, &out, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgotPassword asks for a reset link. It succeeds whether or not email has
// an account.
func (c *SDKClient) ForgotPassword(ctx context.Context, email string) error {
	return c.call(ctx, http.MethodPost, "/v1/password/forgot", "",
		ForgotPasswordRequest{Email: email}, nil, http.StatusAccepted)
}

// ResetPassword sets a new password using a reset link. Every session of the
// account is revoked.
func (c *SDKClient) ResetPassword(ctx context.Context, challengeID, token, password string) error {
	return c.call(ctx, http.MethodPost, "/v1/password/reset", "",
		ResetPasswordRequest{ChallengeID: challengeID, Token: token, Password: password}, nil, http.StatusNoContent)
}
