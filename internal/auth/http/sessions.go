package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/service"
	"github.com/aussiebroadwan/vouch/pkg/authsdk"
	"github.com/aussiebroadwan/vouch/pkg/httpx"
	"github.com/aussiebroadwan/vouch/pkg/slogx"
)

// SessionsHandler handles login, logout and session management.
type SessionsHandler struct {
	Sessions      *service.SessionService
	Passwords     *service.PasswordAuthenticator
	TOTP          *service.TOTPService
	BackupCodes   *service.BackupCodeService
	SecureCookies bool
}

// authenticate adapts SessionService to httpx.Authenticator.
func (r *Router) authenticate(ctx context.Context, token string) (httpx.Principal, error) {
	sess, err := r.Sessions.VerifySession(ctx, token)
	if err != nil {
		return httpx.Principal{}, err
	}
	return httpx.Principal{SubjectID: sess.SubjectID, SessionID: sess.ID}, nil
}

// HandleLogin handles POST /v1/sessions
func (h *SessionsHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.Passwords.Authenticate(ctx, req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidSecret) {
		log.Warn("login failed")
		authsdk.ErrInvalidCredentials.WriteError(w)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	passed, err := h.secondFactor(ctx, u.ID, req)
	switch {
	case errors.Is(err, service.ErrInvalidSecret):
		log.Warn("login second factor failed", "user_id", u.ID)
		authsdk.ErrInvalidCredentials.WriteError(w)
		return
	case err != nil:
		writeError(w, r, err)
		return
	case !passed:
		authsdk.ErrMFARequired.WriteError(w)
		return
	}

	issued, err := h.Sessions.CreateSession(ctx, u.ID, service.SessionMeta{
		IPAddress: httpx.IPKeyExtractor(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.Sessions.CookieName(),
		Value:    issued.Token,
		Path:     "/",
		Expires:  issued.ExpiresAt,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	log.Info("session created", "user_id", u.ID, "session_id", issued.SessionID)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.SessionResponse{
		Token:     issued.Token,
		SessionID: issued.SessionID,
		ExpiresAt: issued.ExpiresAt,
	})
}

// secondFactor checks the TOTP or backup code of a login. Accounts without
// an active factor pass. A wrong code comes back as ErrInvalidSecret.
func (h *SessionsHandler) secondFactor(ctx context.Context, subjectID string, req authsdk.LoginRequest) (bool, error) {
	if h.TOTP == nil {
		return true, nil
	}
	enabled, err := h.TOTP.HasActiveFactor(ctx, subjectID)
	if err != nil || !enabled {
		return true, err
	}

	switch {
	case req.TOTPCode != "":
		_, err := h.TOTP.Verify(ctx, subjectID, req.TOTPCode, "")
		return err == nil, err
	case req.BackupCode != "" && h.BackupCodes != nil:
		_, err := h.BackupCodes.Verify(ctx, subjectID, req.BackupCode)
		return err == nil, err
	}
	return false, nil
}

// HandleList handles GET /v1/sessions
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	rows, err := h.Sessions.ListSessions(r.Context(), p.SubjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := authsdk.SessionListResponse{Sessions: make([]authsdk.SessionInfo, len(rows))}
	for i, s := range rows {
		out.Sessions[i] = authsdk.SessionInfo{
			ID:           s.ID,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			CreatedAt:    s.CreatedAt,
			LastActiveAt: s.LastActiveAt,
			ExpiresAt:    s.ExpiresAt,
			Current:      s.ID == p.SessionID,
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleLogout handles DELETE /v1/sessions/current
func (h *SessionsHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.Sessions.Revoke(r.Context(), p.SessionID, domain.RevokeReasonLogout); err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.Sessions.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevoke handles DELETE /v1/sessions/{id}
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	// Someone else's session looks the same as a missing one
	target, err := h.Sessions.GetSession(ctx, r.PathValue("id"))
	if err == nil && target.SubjectID != p.SubjectID {
		err = service.ErrSessionNotFound
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Sessions.Revoke(ctx, target.ID, domain.RevokeReasonUser); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevokeOthers handles POST /v1/sessions/revoke-others
func (h *SessionsHandler) HandleRevokeOthers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	n, err := h.Sessions.RevokeAll(r.Context(), p.SubjectID, p.SessionID, domain.RevokeReasonSignOutOthers)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("signed out other sessions", "user_id", p.SubjectID, "revoked", n)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokeSessionsResponse{Revoked: n})
}
