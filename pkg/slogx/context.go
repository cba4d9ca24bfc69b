package slogx

import (
	"context"
	"log/slog"
	"sync"
)

type (
	loggerKey struct{}
	scopeKey  struct{}
)

// requestScope collects the attributes added with With while a request is
// served, for the access log line written after the handler returns.
type requestScope struct {
	mu    sync.Mutex
	id    string
	attrs []any
}

func (s *requestScope) add(args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, args...)
}

func (s *requestScope) snapshot() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.attrs...)
}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request-scoped logger, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// With adds attributes to the contextual logger. Inside HTTPMiddleware they
// are also written on the request's http_request line.
func With(ctx context.Context, args ...any) context.Context {
	if s, ok := ctx.Value(scopeKey{}).(*requestScope); ok {
		s.add(args)
	}
	return WithContext(ctx, FromContext(ctx).With(args...))
}

// RequestID returns the id HTTPMiddleware assigned to the request, or "".
func RequestID(ctx context.Context) string {
	if s, ok := ctx.Value(scopeKey{}).(*requestScope); ok {
		return s.id
	}
	return ""
}
