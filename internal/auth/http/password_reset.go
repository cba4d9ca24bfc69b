package http

import (
	"net/http"

	"github.com/aussiebroadwan/vouch/internal/auth/service"
	"github.com/aussiebroadwan/vouch/pkg/authsdk"
	"github.com/aussiebroadwan/vouch/pkg/httpx"
)

// PasswordResetHandler handles forgotten passwords.
type PasswordResetHandler struct {
	PasswordReset *service.PasswordResetService
}

// HandleForgot handles POST /v1/password/forgot. It answers 202 for every
// well-formed request.
func (h *PasswordResetHandler) HandleForgot(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ForgotPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		authsdk.ErrInvalidRequest.WithDescription("email is required").WriteError(w)
		return
	}

	if err := h.PasswordReset.Request(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, nil)
}

// HandleReset handles POST /v1/password/reset
func (h *PasswordResetHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ChallengeID == "" || req.Token == "" {
		authsdk.ErrInvalidRequest.WithDescription("challenge_id and token are required").WriteError(w)
		return
	}

	if err := h.PasswordReset.Reset(r.Context(), req.ChallengeID, req.Token, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
