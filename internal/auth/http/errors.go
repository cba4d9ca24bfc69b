package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/vouch/internal/auth/delivery"
	"github.com/aussiebroadwan/vouch/internal/auth/service"
	"github.com/aussiebroadwan/vouch/pkg/authsdk"
	"github.com/aussiebroadwan/vouch/pkg/httpx"
	"github.com/aussiebroadwan/vouch/pkg/slogx"
)

// writeError maps a service error to its JSON response. Anything unexpected
// is logged and answered with server_error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	var stepUp *service.StepUpRequiredError
	if errors.As(err, &stepUp) {
		methods := make([]string, len(stepUp.Methods))
		for i, m := range stepUp.Methods {
			methods[i] = string(m)
		}
		(&authsdk.StepUpRequiredError{
			Methods: methods,
			MaxAge:  int(stepUp.MaxAge.Seconds()),
		}).WriteError(w)
		return
	}

	switch {
	case errors.Is(err, service.ErrTimeout):
		log.Warn("request timed out", "err", err)
		w.Header().Set("Retry-After", "1")
		authsdk.ErrUnavailable.WriteError(w)
	case errors.Is(err, delivery.ErrChannelNotConfigured):
		authsdk.ErrUnsupportedMethod.WriteError(w)
	case errors.Is(err, service.ErrChallengeNotFound):
		authsdk.ErrChallengeNotFound.WriteError(w)
	case errors.Is(err, service.ErrChallengeExpired):
		authsdk.ErrChallengeExpired.WriteError(w)
	case errors.Is(err, service.ErrAttemptsExceeded):
		authsdk.ErrAttemptsExceeded.WriteError(w)
	case errors.Is(err, service.ErrInvalidSecret):
		authsdk.ErrInvalidSecret.WriteError(w)
	case errors.Is(err, service.ErrAlreadyVerified):
		authsdk.ErrAlreadyVerified.WriteError(w)
	case errors.Is(err, service.ErrSessionRevoked):
		authsdk.ErrSessionRevoked.WriteError(w)
	case errors.Is(err, service.ErrInvalidSession):
		authsdk.ErrInvalidSession.WriteError(w)
	case errors.Is(err, service.ErrUnauthenticated):
		authsdk.ErrUnauthenticated.WriteError(w)
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrFactorNotFound):
		authsdk.ErrNotFound.WriteError(w)
	case errors.Is(err, service.ErrInvalidPassword):
		authsdk.ErrInvalidPassword.WithDescription(err.Error()).WriteError(w)
	case errors.Is(err, service.ErrInvalidEmail):
		authsdk.ErrInvalidEmail.WriteError(w)
	case errors.Is(err, service.ErrEmailTaken):
		authsdk.ErrEmailTaken.WriteError(w)
	case errors.Is(err, service.ErrInvalidTOTPOption):
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
	default:
		log.Error("request failed", "err", err)
		if id := slogx.RequestID(r.Context()); id != "" {
			authsdk.ErrServerError.WithDescription("internal server error (request " + id + ")").WriteError(w)
			return
		}
		authsdk.ErrServerError.WriteError(w)
	}
}

// decode reads the JSON body into dst, answering invalid_request on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		slogx.FromContext(r.Context()).Warn("failed to parse request", "err", err)
		authsdk.ErrInvalidRequest.WithDescription("Invalid JSON body").WriteError(w)
		return false
	}
	return true
}

// principal returns the caller set by the authn middleware.
func principal(w http.ResponseWriter, r *http.Request) (httpx.Principal, bool) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok || p.SubjectID == "" {
		authsdk.ErrUnauthenticated.WriteError(w)
		return httpx.Principal{}, false
	}
	return p, true
}
