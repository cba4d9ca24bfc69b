package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/vouch/pkg/slogx"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first one listed runs first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Principal is the authenticated caller of a request.
type Principal struct {
	SubjectID string
	SessionID string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authenticator resolves a raw session token into a Principal.
type Authenticator func(ctx context.Context, token string) (Principal, error)

// SessionToken reads the session token from the named cookie, falling back
// to an "Authorization: Bearer" header.
func SessionToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}

	authz := r.Header.Get("Authorization")
	if raw, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return strings.TrimSpace(raw)
	}
	return ""
}

// AuthnMiddleware rejects requests without a live session. onErr renders
// the failure so callers can tell revoked sessions from invalid ones. The
// principal is added to the request log.
func AuthnMiddleware(cookieName string, authn Authenticator, onErr func(http.ResponseWriter, *http.Request, error)) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r, cookieName)
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="missing session token"`)
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing session token")
				return
			}

			p, err := authn(r.Context(), token)
			if err != nil {
				onErr(w, r, err)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = slogx.With(ctx, "subject_id", p.SubjectID, "session_id", p.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Guard runs check before next and hands any error to deny.
func Guard(check func(*http.Request) error, deny func(http.ResponseWriter, *http.Request, error)) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := check(r); err != nil {
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
