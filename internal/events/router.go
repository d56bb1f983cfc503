// Package events fans per-session events out to delivery sinks.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chat-gateway/backend/internal/model"
)

// Sink receives events for asynchronous delivery. Deliver hands the
// event to the sink's own queue and must never block on sink I/O;
// anything slower than a channel send belongs behind the sink.
type Sink interface {
	Deliver(event model.Event)
}

// Router applies the suppressed-type filter and hands each surviving
// event to every registered sink. Per-session ordering is preserved:
// Publish is called from a single goroutine per session, and each
// Deliver enqueues synchronously.
type Router struct {
	mu         sync.RWMutex
	sinks      []Sink
	suppressed map[model.EventType]struct{}
}

// NewRouter creates a Router that drops the given event types.
func NewRouter(suppressed []model.EventType) *Router {
	set := make(map[model.EventType]struct{}, len(suppressed))
	for _, t := range suppressed {
		set[t] = struct{}{}
	}
	return &Router{suppressed: set}
}

// AddSink registers a delivery sink. Sinks registered after events have
// been published only see subsequent events.
func (r *Router) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Suppressed reports whether events of type t are filtered out.
func (r *Router) Suppressed(t model.EventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.suppressed[t]
	return ok
}

// Publish evaluates the filter once and delivers the event to every
// sink in registration order.
func (r *Router) Publish(event model.Event) {
	r.mu.RLock()
	_, drop := r.suppressed[event.Type]
	sinks := r.sinks
	r.mu.RUnlock()

	if drop {
		return
	}

	for _, s := range sinks {
		s.Deliver(event)
	}
}

// New stamps a fresh event for a session.
func New(sessionID string, t model.EventType, payload interface{}) model.Event {
	return model.Event{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
