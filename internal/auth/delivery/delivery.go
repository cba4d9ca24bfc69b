// Package delivery hands plaintext codes and links to whatever actually
// reaches the user. Rendering and carrier integration live elsewhere.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Channel names a delivery route.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

var ErrChannelNotConfigured = errors.New("delivery: channel not configured")

// Sender delivers a secret to a destination (email address, phone number).
type Sender interface {
	SendCode(ctx context.Context, destination, code string, ttl time.Duration) error
	SendLink(ctx context.Context, destination, url string, ttl time.Duration) error
}

// Router picks a Sender per channel.
type Router struct {
	mu      sync.RWMutex
	senders map[Channel]Sender
}

func NewRouter() *Router {
	return &Router{senders: make(map[Channel]Sender)}
}

// Register sets the sender for ch, replacing any previous one.
func (r *Router) Register(ch Channel, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[ch] = s
}

// Sender returns the sender for ch or ErrChannelNotConfigured.
func (r *Router) Sender(ch Channel) (Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.senders[ch]
	if !ok || s == nil {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotConfigured, ch)
	}
	return s, nil
}

// LogSender writes deliveries to a logger. It is meant for development and
// tests; it logs the secret.
type LogSender struct {
	Logger  *slog.Logger
	Channel Channel
}

func (s *LogSender) SendCode(ctx context.Context, destination, code string, ttl time.Duration) error {
	s.Logger.InfoContext(ctx, "delivering code",
		"channel", s.Channel,
		"destination", destination,
		"code", code,
		"ttl", ttl,
	)
	return nil
}

func (s *LogSender) SendLink(ctx context.Context, destination, url string, ttl time.Duration) error {
	s.Logger.InfoContext(ctx, "delivering link",
		"channel", s.Channel,
		"destination", destination,
		"url", url,
		"ttl", ttl,
	)
	return nil
}
