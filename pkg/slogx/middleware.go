package slogx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/vouch/pkg/idx"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

const maxRequestIDLen = 64

// HTTPMiddleware puts a request logger in the context and writes one
// http_request line per request once the handler returns. Attributes added
// with With along the way, such as the authenticated subject, are included.
//
// 5xx responses log at error; 401, 403 and 429 at warn.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			scope := &requestScope{id: requestID(r.Header.Get(RequestIDHeader))}
			rec.Header().Set(RequestIDHeader, scope.id)

			logger := base.With(
				"req_id", scope.id,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx := context.WithValue(r.Context(), scopeKey{}, scope)
			ctx = WithContext(ctx, logger)

			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.Status()
			attrs := append(scope.snapshot(),
				"status", status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
			logger.Log(ctx, levelFor(status), "http_request", attrs...)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// requestID keeps a caller supplied id made of [A-Za-z0-9._-] and at most
// 64 bytes long. Anything else is replaced with a fresh ULID.
func requestID(h string) string {
	if h == "" || len(h) > maxRequestIDLen {
		return idx.New().String()
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return idx.New().String()
		}
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter

	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Status is 200 when the handler wrote nothing.
func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
