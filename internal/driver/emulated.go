package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chat-gateway/backend/internal/model"
)

// eventBufferSize bounds the emulated event stream. The owning session
// drains the stream promptly, so the buffer only absorbs short bursts.
const eventBufferSize = 64

// Emulated simulates the messaging automation engine: it performs a
// connect/authenticate handshake over the event stream and answers a
// small set of domain operations. It stands in wherever a real engine
// driver would be wired, and is the default for local development.
type Emulated struct {
	identity     string
	connectDelay time.Duration

	mu        sync.Mutex
	creds     Credentials
	connected bool
	closed    bool
	events    chan Event
}

// NewEmulated creates an emulated driver for the given identity,
// resuming from creds when non-nil.
func NewEmulated(identity string, creds Credentials) *Emulated {
	return &Emulated{
		identity: identity,
		creds:    creds,
		events:   make(chan Event, eventBufferSize),
	}
}

// NewEmulatedFactory returns a Factory producing emulated drivers with
// the given artificial connect delay.
func NewEmulatedFactory(connectDelay time.Duration) Factory {
	return func(identity string, creds Credentials) Driver {
		d := NewEmulated(identity, creds)
		d.connectDelay = connectDelay
		return d
	}
}

// Connect runs the simulated handshake: authenticating, authenticated,
// then ready. Fresh pairings mint new credentials.
func (d *Emulated) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("driver closed")
	}
	if d.connected {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	d.emit(model.EventSessionAuthenticating, nil)

	if d.connectDelay > 0 {
		select {
		case <-time.After(d.connectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.Lock()
	if d.creds == nil {
		d.creds = Credentials("token:" + uuid.New().String())
	}
	d.connected = true
	d.mu.Unlock()

	d.emit(model.EventSessionAuthenticated, nil)
	d.emit(model.EventSessionReady, nil)
	return nil
}

// Disconnect tears the simulated connection down and closes the event
// stream. Subsequent calls are no-ops.
func (d *Emulated) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.connected = false
	close(d.events)
	return nil
}

// Invoke answers the emulated operation set:
//
//	send:  acknowledges a message and emits a message.ack event
//	query: returns the connection status
func (d *Emulated) Invoke(ctx context.Context, op string, args map[string]interface{}) (interface{}, error) {
	d.mu.Lock()
	connected := d.connected
	d.mu.Unlock()

	if !connected {
		return nil, fmt.Errorf("driver not connected")
	}

	switch op {
	case "send":
		messageID := uuid.New().String()
		d.emit(model.EventMessageAck, map[string]interface{}{
			"messageId": messageID,
			"to":        args["to"],
		})
		return map[string]interface{}{"messageId": messageID}, nil
	case "query":
		return map[string]interface{}{"connected": true, "identity": d.identity}, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

// Events returns the driver's notification stream.
func (d *Emulated) Events() <-chan Event {
	return d.events
}

// Credentials returns the current durable auth material.
func (d *Emulated) Credentials() Credentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creds
}

// SimulateIncoming injects a domain event as if the remote service had
// delivered a message. Used by tests and the development loop.
func (d *Emulated) SimulateIncoming(payload interface{}) {
	d.emit(model.EventMessageReceived, payload)
}

// SimulateDisconnect injects a transient connection loss without
// closing the event stream.
func (d *Emulated) SimulateDisconnect(reason string) {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
	d.emit(model.EventSessionDisconnected, map[string]interface{}{"reason": reason})
}

func (d *Emulated) emit(t model.EventType, payload interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.events <- Event{Type: t, Payload: payload}:
	default:
		// Stream saturated, drop rather than block the engine.
	}
}
