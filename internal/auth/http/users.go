package http

import (
	"net/http"

	"github.com/aussiebroadwan/vouch/internal/auth/service"
	"github.com/aussiebroadwan/vouch/pkg/authsdk"
	"github.com/aussiebroadwan/vouch/pkg/httpx"
	"github.com/aussiebroadwan/vouch/pkg/slogx"
)

// UsersHandler handles account registration.
type UsersHandler struct {
	Passwords *service.PasswordAuthenticator
}

// HandleRegister handles POST /v1/users
func (h *UsersHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.Passwords.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("user registered", "user_id", u.ID)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerifiedAt != nil,
	})
}
