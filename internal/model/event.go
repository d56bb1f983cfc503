package model

import "time"

// EventType identifies a notification emitted by a session's driver or
// by the registry itself.
type EventType string

const (
	// Lifecycle events
	EventSessionStarting       EventType = "session.starting"
	EventSessionAuthenticating EventType = "session.authenticating"
	EventSessionAuthenticated  EventType = "session.authenticated"
	EventSessionReady          EventType = "session.ready"
	EventSessionDisconnected   EventType = "session.disconnected"
	EventSessionFailed         EventType = "session.failed"
	EventSessionTerminated     EventType = "session.terminated"

	// Domain events
	EventMessageReceived EventType = "message.received"
	EventMessageAck      EventType = "message.ack"
)

// Event is a discrete notification originating from one session.
// Events are ephemeral: they are fanned out to the configured sinks and
// never persisted by the core.
type Event struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
