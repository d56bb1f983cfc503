// Package driver defines the seam between the gateway core and the
// messaging automation engine backing each session.
package driver

import (
	"context"

	"github.com/chat-gateway/backend/internal/model"
)

// Event is a raw notification from the automation engine, before the
// owning session stamps it with identity and timing.
type Event struct {
	Type    model.EventType
	Payload interface{}
}

// Credentials is the opaque durable authentication material a driver
// needs to reconnect without a fresh interactive pairing.
type Credentials []byte

// Driver is one session's exclusive handle to the automation engine.
//
// Implementations are not required to be safe for concurrent use: the
// owning session serializes every call. Connecting is expensive and may
// take seconds; Invoke calls and the event stream are fast.
type Driver interface {
	// Connect establishes the automation connection, performing a fresh
	// pairing or resuming from previously stored credentials. Progress
	// is reported on the event stream.
	Connect(ctx context.Context) error

	// Disconnect releases the underlying resource and closes the event
	// stream. It is safe to call more than once.
	Disconnect(ctx context.Context) error

	// Invoke executes a domain operation (send, query, ...) against the
	// connected engine.
	Invoke(ctx context.Context, op string, args map[string]interface{}) (interface{}, error)

	// Events returns the stream of notifications. The channel is closed
	// when the driver disconnects for good.
	Events() <-chan Event

	// Credentials returns the current durable auth material, or nil if
	// the driver has not authenticated yet.
	Credentials() Credentials
}

// Factory builds the driver for one session identity. creds is nil when
// no stored material exists and a fresh pairing is required.
type Factory func(identity string, creds Credentials) Driver
