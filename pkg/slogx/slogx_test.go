package slogx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/vouch/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, slogx.ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, slogx.ParseLevel("warning"))
	require.Equal(t, slog.LevelError, slogx.ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, slogx.ParseLevel("nonsense"))
}

func TestFromContext(t *testing.T) {
	require.Equal(t, slog.Default(), slogx.FromContext(context.Background()))

	l := slogx.Discard()
	ctx := slogx.WithContext(context.Background(), l)
	require.Equal(t, l, slogx.FromContext(ctx))
}

func TestHTTPMiddleware(t *testing.T) {
	keepDefault(t)

	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "vouch", Env: "test", Format: "json", Output: &buf})

	var (
		seen  *slog.Logger
		reqID string
	)
	h := slogx.HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = slogx.FromContext(r.Context())
		reqID = slogx.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, seen)
	require.Equal(t, "req-123", reqID)
	require.Equal(t, "req-123", rec.Header().Get(slogx.RequestIDHeader))

	entry := lastEntry(t, &buf)
	require.Equal(t, "http_request", entry["msg"])
	require.Equal(t, "INFO", entry["level"])
	require.Equal(t, "req-123", entry["req_id"])
	require.Equal(t, float64(http.StatusTeapot), entry["status"])
	require.Equal(t, float64(len("short and stout")), entry["bytes"])
	require.Equal(t, "vouch", entry["service"])
}

func TestHTTPMiddlewareScopedAttrs(t *testing.T) {
	keepDefault(t)

	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "vouch", Env: "test", Format: "json", Output: &buf})

	h := slogx.HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := slogx.With(r.Context(), "subject_id", "user-1")
		slogx.FromContext(ctx).Info("inside")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inside map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inside))
	require.Equal(t, "inside", inside["msg"])
	require.Equal(t, "user-1", inside["subject_id"])

	entry := lastEntry(t, &buf)
	require.Equal(t, "user-1", entry["subject_id"])
	require.Equal(t, "WARN", entry["level"])
}

func TestHTTPMiddlewareRequestID(t *testing.T) {
	h := slogx.HTTPMiddleware(slogx.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for name, header := range map[string]string{
		"missing":  "",
		"newline":  "abc\nforged=1",
		"spaces":   "a b",
		"too long": strings.Repeat("a", 65),
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set(slogx.RequestIDHeader, header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(slogx.RequestIDHeader)
			require.NotEqual(t, header, got)
			require.Len(t, got, 26) // ULID
		})
	}
}

func TestRequestIDOutsideMiddleware(t *testing.T) {
	require.Empty(t, slogx.RequestID(context.Background()))

	// With still works without a request scope
	ctx := slogx.With(context.Background(), "k", "v")
	require.NotNil(t, slogx.FromContext(ctx))
}

// keepDefault restores the default logger New replaces.
func keepDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}
