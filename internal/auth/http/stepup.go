package http

import (
	"net/http"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/service"
	"github.com/aussiebroadwan/vouch/pkg/authsdk"
	"github.com/aussiebroadwan/vouch/pkg/httpx"
	"github.com/aussiebroadwan/vouch/pkg/slogx"
)

// StepUpHandler elevates the current session.
type StepUpHandler struct {
	StepUps *service.StepUpService
}

// HandleStepUp handles POST /v1/step-up
func (h *StepUpHandler) HandleStepUp(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req authsdk.StepUpRequest
	if !decode(w, r, &req) {
		return
	}

	method := domain.StepUpMethod(req.Method)
	switch method {
	case domain.StepUpPassword, domain.StepUpTOTP, domain.StepUpBackupCode:
	default:
		authsdk.ErrUnsupportedMethod.WriteError(w)
		return
	}
	if req.Credential == "" {
		authsdk.ErrInvalidRequest.WithDescription("credential is required").WriteError(w)
		return
	}

	su, err := h.StepUps.VerifyStepUp(r.Context(), p.SubjectID, p.SessionID, method, req.Credential)
	if err != nil {
		slogx.FromContext(r.Context()).Warn("step-up failed", "user_id", p.SubjectID, "method", method, "err", err)
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.StepUpResponse{
		Method:    string(su.Method),
		ExpiresAt: su.ExpiresAt,
	})
}
