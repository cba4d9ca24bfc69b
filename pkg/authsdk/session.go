package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Session is an authenticated client. It is safe for concurrent use.
type Session struct {
	client *SDKClient

	mu        sync.RWMutex
	token     string
	sessionID string
	expiresAt time.Time
}

// Token returns the raw session token.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ID returns the session id, empty for sessions built from a bare token.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// ExpiresAt is when the server stops accepting the token.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

func (s *Session) call(ctx context.Context, method, path string, in, out any, expectedStatus int) error {
	return s.client.call(ctx, method, path, s.Token(), in, out, expectedStatus)
}

// Logout revokes this session.
func (s *Session) Logout(ctx context.Context) error {
	return s.call(ctx, http.MethodDelete, "/v1/sessions/current", nil, nil, http.StatusNoContent)
}

// ListSessions lists the live sessions of the account.
func (s *Session) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	var out SessionListResponse
	if err := s.call(ctx, http.MethodGet, "/v1/sessions", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// RevokeSession revokes another session of the same account.
func (s *Session) RevokeSession(ctx context.Context, sessionID string) error {
	return s.call(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(sessionID), nil, nil, http.StatusNoContent)
}

// RevokeOtherSessions signs out every session except this one. It needs a
// recent step-up.
func (s *Session) RevokeOtherSessions(ctx context.Context) (int64, error) {
	var out RevokeSessionsResponse
	if err := s.call(ctx, http.MethodPost, "/v1/sessions/revoke-others", nil, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

// SendEmailVerification mails a verification link to the account's address.
func (s *Session) SendEmailVerification(ctx context.Context) (*EmailVerificationResponse, error) {
	var out EmailVerificationResponse
	if err := s.call(ctx, http.MethodPost, "/v1/email/verification", nil, &out, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &out, nil
}

// StepUp re-proves identity and elevates this session for a short while.
func (s *Session) StepUp(ctx context.Context, method, credential string) (*StepUpResponse, error) {
	var out StepUpResponse
	err := s.call(ctx, http.MethodPost, "/v1/step-up",
		StepUpRequest{Method: method, Credential: credential}, &out, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
