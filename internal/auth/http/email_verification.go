package http

import (
	"net/http"

	"github.com/aussiebroadwan/vouch/internal/auth/service"
	"github.com/aussiebroadwan/vouch/pkg/authsdk"
	"github.com/aussiebroadwan/vouch/pkg/httpx"
)

// EmailVerificationHandler sends and confirms email verification links.
type EmailVerificationHandler struct {
	EmailVerification *service.EmailVerificationService
}

// HandleSend handles POST /v1/email/verification
func (h *EmailVerificationHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	c, err := h.EmailVerification.SendForSubject(r.Context(), p.SubjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, authsdk.EmailVerificationResponse{
		ChallengeID: c.ID,
		ExpiresAt:   c.ExpiresAt,
	})
}

// HandleConfirm handles POST /v1/email/verification/confirm
func (h *EmailVerificationHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LinkConfirmRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ChallengeID == "" || req.Token == "" {
		authsdk.ErrInvalidRequest.WithDescription("challenge_id and token are required").WriteError(w)
		return
	}

	c, err := h.EmailVerification.Verify(r.Context(), req.ChallengeID, req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeVerifiedChallenge(w, c)
}
