package delivery

import (
	"context"
	"sync"
	"time"
)

// Message is one delivery captured by a Recorder.
type Message struct {
	Destination string
	Code        string
	URL         string
	TTL         time.Duration
}

// Recorder keeps every delivery in memory. Err, when set, is returned from
// every send instead.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (r *Recorder) SendCode(_ context.Context, destination, code string, ttl time.Duration) error {
	return r.record(Message{Destination: destination, Code: code, TTL: ttl})
}

func (r *Recorder) SendLink(_ context.Context, destination, url string, ttl time.Duration) error {
	return r.record(Message{Destination: destination, URL: url, TTL: ttl})
}

func (r *Recorder) record(m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, m)
	return nil
}

// Messages returns a copy of everything delivered so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Last returns the most recent delivery.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}
