package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/vouch/internal/auth/delivery"
	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/service"
	"github.com/aussiebroadwan/vouch/pkg/authsdk"
	"github.com/aussiebroadwan/vouch/pkg/httpx"
)

// OTPHandler handles one-time code delivery and verification.
type OTPHandler struct {
	OTP *service.OTPService
}

// HandleRequest handles POST /v1/otp
func (h *OTPHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	c, err := h.OTP.RequestOTP(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOTPChallenge(w, c)
}

// HandleResend handles POST /v1/otp/resend
func (h *OTPHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	c, err := h.OTP.ResendOTP(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOTPChallenge(w, c)
}

// HandleVerify handles POST /v1/otp/verify
func (h *OTPHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.OTPVerifyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ChallengeID == "" || req.Code == "" {
		authsdk.ErrInvalidRequest.WithDescription("challenge_id and code are required").WriteError(w)
		return
	}

	c, err := h.OTP.VerifyOTP(r.Context(), req.ChallengeID, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeVerifiedChallenge(w, c)
}

func (h *OTPHandler) parseRequest(w http.ResponseWriter, r *http.Request) (service.OTPRequest, bool) {
	var req authsdk.OTPRequest
	if !decode(w, r, &req) {
		return service.OTPRequest{}, false
	}
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		authsdk.ErrInvalidRequest.WithDescription("identifier is required").WriteError(w)
		return service.OTPRequest{}, false
	}

	method := delivery.Channel(req.Method)
	switch method {
	case "":
		method = delivery.ChannelEmail
	case delivery.ChannelEmail, delivery.ChannelSMS:
	default:
		authsdk.ErrUnsupportedMethod.WriteError(w)
		return service.OTPRequest{}, false
	}

	if method == delivery.ChannelEmail {
		identifier = strings.ToLower(identifier)
	}
	return service.OTPRequest{Identifier: identifier, Method: method}, true
}

func writeOTPChallenge(w http.ResponseWriter, c service.OTPChallenge) {
	httpx.WriteJSON(w, http.StatusAccepted, authsdk.OTPChallengeResponse{
		ChallengeID: c.ChallengeID,
		ExpiresAt:   c.ExpiresAt,
		MaxAttempts: c.MaxAttempts,
	})
}

func writeVerifiedChallenge(w http.ResponseWriter, c domain.Challenge) {
	resp := authsdk.ChallengeResponse{ChallengeID: c.ID, Identifier: c.Identifier}
	if c.VerifiedAt != nil {
		resp.VerifiedAt = *c.VerifiedAt
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
