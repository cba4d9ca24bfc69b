package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/service"
	"github.com/aussiebroadwan/vouch/internal/auth/store"
	"github.com/aussiebroadwan/vouch/pkg/httpx"
	"github.com/aussiebroadwan/vouch/pkg/jwtx"
	"github.com/aussiebroadwan/vouch/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	Sessions          *service.SessionService
	Passwords         *service.PasswordAuthenticator
	OTP               *service.OTPService
	EmailVerification *service.EmailVerificationService
	PasswordReset     *service.PasswordResetService
	TOTP              *service.TOTPService
	BackupCodes       *service.BackupCodeService
	StepUps           *service.StepUpService

	// StepUpMaxAge tightens how recent a step-up must be on guarded routes.
	// Zero accepts any unexpired step-up.
	StepUpMaxAge time.Duration

	// SecureCookies sets the Secure attribute on the session cookie.
	SecureCookies bool
}

func NewRouter(
	keys *jwtx.KeyManager,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerUsers()
	r.registerSessions()
	r.registerOTP()
	r.registerEmailVerification()
	r.registerPasswordReset()
	r.registerMFA()
	r.registerStepUp()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authn verifies the session token and puts the Principal in the context.
func (r *Router) authn() httpx.Middleware {
	return httpx.AuthnMiddleware(r.Sessions.CookieName(), r.authenticate, writeError)
}

// stepUp rejects requests whose session has no recent step-up.
func (r *Router) stepUp() httpx.Middleware {
	return httpx.Guard(func(req *http.Request) error {
		p, ok := httpx.PrincipalFromContext(req.Context())
		if !ok {
			return service.ErrUnauthenticated
		}
		return r.StepUps.RequireStepUp(req.Context(), p.SubjectID, p.SessionID, r.StepUpMaxAge)
	}, writeError)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Passwords: r.Passwords}

	// POST /v1/users - strict rate limit by IP (public signup)
	r.Mux.Handle("POST /v1/users",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{
		Sessions:      r.Sessions,
		Passwords:     r.Passwords,
		TOTP:          r.TOTP,
		BackupCodes:   r.BackupCodes,
		SecureCookies: r.SecureCookies,
	}

	// POST /v1/sessions - strict rate limit by IP + email (password guessing)
	r.Mux.Handle("POST /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndBodyField(httpx.StrictLimit, "email"),
		),
	)

	r.Mux.Handle("GET /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			r.authn(),
			httpx.RateLimitBySubject(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/sessions/current",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.authn(),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/sessions/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			r.authn(),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)

	// Signing out everywhere else is sensitive: step-up required
	r.Mux.Handle("POST /v1/sessions/revoke-others",
		httpx.Chain(http.HandlerFunc(h.HandleRevokeOthers),
			r.authn(),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
			r.stepUp(),
		),
	)
}

func (r *Router) registerOTP() {
	h := &OTPHandler{OTP: r.OTP}

	// Sending codes - moderate rate limit by IP + destination
	r.Mux.Handle("POST /v1/otp",
		httpx.Chain(http.HandlerFunc(h.HandleRequest),
			httpx.RateLimitByIPAndBodyField(httpx.ModerateLimit, "identifier"),
		),
	)
	r.Mux.Handle("POST /v1/otp/resend",
		httpx.Chain(http.HandlerFunc(h.HandleResend),
			httpx.RateLimitByIPAndBodyField(httpx.ModerateLimit, "identifier"),
		),
	)

	// POST /v1/otp/verify - strict rate limit by IP (code guessing)
	r.Mux.Handle("POST /v1/otp/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerEmailVerification() {
	h := &EmailVerificationHandler{EmailVerification: r.EmailVerification}

	r.Mux.Handle("POST /v1/email/verification",
		httpx.Chain(http.HandlerFunc(h.HandleSend),
			r.authn(),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/email/verification/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirm),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerPasswordReset() {
	h := &PasswordResetHandler{PasswordReset: r.PasswordReset}

	r.Mux.Handle("POST /v1/password/forgot",
		httpx.Chain(http.HandlerFunc(h.HandleForgot),
			httpx.RateLimitByIPAndBodyField(httpx.ModerateLimit, "email"),
		),
	)
	r.Mux.Handle("POST /v1/password/reset",
		httpx.Chain(http.HandlerFunc(h.HandleReset),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{TOTP: r.TOTP, BackupCodes: r.BackupCodes}

	// Changing factors needs a step-up
	r.Mux.Handle("POST /v1/mfa/totp/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll),
			r.authn(),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
			r.stepUp(),
		),
	)
	r.Mux.Handle("DELETE /v1/mfa/totp/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			r.authn(),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
			r.stepUp(),
		),
	)
	r.Mux.Handle("POST /v1/mfa/backup-codes",
		httpx.Chain(http.HandlerFunc(h.HandleRegenerateBackupCodes),
			r.authn(),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
			r.stepUp(),
		),
	)

	// POST /v1/mfa/totp/verify - strict rate limit by user (prevent brute force of TOTP codes)
	r.Mux.Handle("POST /v1/mfa/totp/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			r.authn(),
			httpx.RateLimitBySubject(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("GET /v1/mfa/totp",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			r.authn(),
			httpx.RateLimitBySubject(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /v1/mfa/backup-codes",
		httpx.Chain(http.HandlerFunc(h.HandleBackupCodesStatus),
			r.authn(),
			httpx.RateLimitBySubject(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerStepUp() {
	h := &StepUpHandler{StepUps: r.StepUps}

	// POST /v1/step-up - strict: accepts passwords, TOTP and backup codes
	r.Mux.Handle("POST /v1/step-up",
		httpx.Chain(http.HandlerFunc(h.HandleStepUp),
			r.authn(),
			httpx.RateLimitBySubject(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
