package http

import (
	"net/http"

	"github.com/aussiebroadwan/vouch/internal/auth/service"
	"github.com/aussiebroadwan/vouch/pkg/authsdk"
	"github.com/aussiebroadwan/vouch/pkg/httpx"
	"github.com/aussiebroadwan/vouch/pkg/slogx"
)

// MFAHandler handles authenticator factors and backup codes.
type MFAHandler struct {
	TOTP        *service.TOTPService
	BackupCodes *service.BackupCodeService
}

// HandleEnroll handles POST /v1/mfa/totp/enroll
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req authsdk.TOTPEnrollRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	enr, err := h.TOTP.Enroll(r.Context(), p.SubjectID, "", req.Name, service.TOTPOptions{
		Algorithm: req.Algorithm,
		Digits:    req.Digits,
		Period:    req.Period,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.TOTPEnrollResponse{
		FactorID:    enr.FactorID,
		ChallengeID: enr.ChallengeID,
		Secret:      enr.Secret,
		URI:         enr.URI,
		ExpiresAt:   enr.ExpiresAt,
	})
}

// HandleVerify handles POST /v1/mfa/totp/verify
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req authsdk.TOTPVerifyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ChallengeID == "" || req.Code == "" {
		authsdk.ErrInvalidRequest.WithDescription("challenge_id and code are required").WriteError(w)
		return
	}

	codes, err := h.TOTP.VerifyEnrollment(r.Context(), p.SubjectID, req.ChallengeID, req.Code)
	if err != nil {
		slogx.FromContext(r.Context()).Warn("totp enrollment verification failed", "user_id", p.SubjectID, "err", err)
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{Codes: codes})
}

// HandleList handles GET /v1/mfa/totp
func (h *MFAHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	factors, err := h.TOTP.ListFactors(r.Context(), p.SubjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := authsdk.FactorListResponse{Factors: make([]authsdk.FactorInfo, len(factors))}
	for i, f := range factors {
		out.Factors[i] = authsdk.FactorInfo{
			ID:         f.ID,
			Name:       f.Name,
			Status:     string(f.Status),
			Algorithm:  f.Algorithm,
			Digits:     f.Digits,
			Period:     f.Period,
			CreatedAt:  f.CreatedAt,
			VerifiedAt: f.VerifiedAt,
			LastUsedAt: f.LastUsedAt,
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleDisable handles DELETE /v1/mfa/totp/{id}
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.TOTP.Disable(r.Context(), p.SubjectID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("totp factor disabled", "user_id", p.SubjectID, "factor_id", r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// HandleRegenerateBackupCodes handles POST /v1/mfa/backup-codes
func (h *MFAHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	enabled, err := h.TOTP.HasActiveFactor(ctx, p.SubjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !enabled {
		authsdk.ErrMFANotEnabled.WriteError(w)
		return
	}

	codes, err := h.BackupCodes.Generate(ctx, p.SubjectID, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{Codes: codes})
}

// HandleBackupCodesStatus handles GET /v1/mfa/backup-codes
func (h *MFAHandler) HandleBackupCodesStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	n, err := h.BackupCodes.Remaining(r.Context(), p.SubjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesStatusResponse{Remaining: n})
}
