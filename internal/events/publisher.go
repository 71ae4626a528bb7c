package events

import (
	"context"
	"log/slog"
	"sync"
)

// Publisher delivers events. Publishing is best-effort: implementations log
// failures rather than returning them, since the state change has already
// committed.
type Publisher interface {
	Publish(ctx context.Context, e Envelope)
}

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, e Envelope) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "event",
		"type", e.EventType,
		"id", e.EventID,
		"correlation", e.CorrelationID,
		"payload", string(e.Payload),
	)
}

// Multi fans an event out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Envelope) {
	for _, p := range m {
		p.Publish(ctx, e)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Publish(_ context.Context, e Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}

// Types returns the event types published so far, in order.
func (r *Recorder) Types() []string {
	var types []string
	for _, e := range r.Events() {
		types = append(types, e.EventType)
	}
	return types
}
