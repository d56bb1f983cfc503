// Package ws relays session events to WebSocket subscribers.
package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/chat-gateway/backend/internal/buffer"
	"github.com/chat-gateway/backend/internal/model"
)

// Wildcard subscribes a connection to events from every session.
const Wildcard = "all"

// defaultHistorySize is the number of recent frames replayed to a new
// subscriber of a specific session.
const defaultHistorySize = 64

// Broadcaster fans events out to WebSocket connections subscribed to a
// session identity or to the wildcard. Delivery is best-effort: a
// saturated or closed connection is dropped rather than blocking the
// others, and never blocks the event producer.
type Broadcaster struct {
	historySize int

	mu      sync.RWMutex
	clients map[*Client]struct{}
	history map[string]*buffer.FrameRing
}

// NewBroadcaster creates a Broadcaster keeping historySize recent
// frames per session for replay. historySize <= 0 uses the default.
func NewBroadcaster(historySize int) *Broadcaster {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Broadcaster{
		historySize: historySize,
		clients:     make(map[*Client]struct{}),
		history:     make(map[string]*buffer.FrameRing),
	}
}

// Deliver encodes the event once and queues it to every subscribed
// connection. Implements the event router's sink contract.
func (b *Broadcaster) Deliver(event model.Event) {
	frame, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws: failed to encode event %s: %v", event.ID, err)
		return
	}

	b.mu.Lock()
	ring, ok := b.history[event.SessionID]
	if !ok {
		ring = buffer.NewFrameRing(b.historySize)
		b.history[event.SessionID] = ring
	}
	ring.Append(frame)
	clients := make([]*Client, 0, len(b.clients))
	for c := range b.clients {
		if c.sessionID == Wildcard || c.sessionID == event.SessionID {
			clients = append(clients, c)
		}
	}
	b.mu.Unlock()

	for _, c := range clients {
		if !c.trySend(frame) {
			log.Printf("ws: subscriber of %q too slow, disconnecting", c.sessionID)
			b.remove(c)
		}
	}
}

// register adds a client and replays recent history for a specific
// session subscription. Replay happens under the lock so a concurrent
// Deliver cannot queue a live frame ahead of the history; trySend
// never blocks, so holding the lock across the loop is safe.
func (b *Broadcaster) register(c *Client) {
	b.mu.Lock()
	b.clients[c] = struct{}{}
	if c.sessionID != Wildcard {
		if ring, ok := b.history[c.sessionID]; ok {
			for _, frame := range ring.Snapshot() {
				if !c.trySend(frame) {
					delete(b.clients, c)
					b.mu.Unlock()
					c.close()
					return
				}
			}
		}
	}
	b.mu.Unlock()
}

// remove drops the client from the subscriber set and closes it.
// Safe to call more than once for the same client.
func (b *Broadcaster) remove(c *Client) {
	b.mu.Lock()
	_, ok := b.clients[c]
	delete(b.clients, c)
	b.mu.Unlock()

	if ok {
		c.close()
	}
}

// SubscriberCount returns the number of connections receiving events
// for identity, wildcard subscribers included.
func (b *Broadcaster) SubscriberCount(identity string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for c := range b.clients {
		if c.sessionID == Wildcard || c.sessionID == identity {
			n++
		}
	}
	return n
}

// ClientCount returns the total number of connections.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// DropHistory discards the replay buffer for a session. Called when a
// session is terminated for good.
func (b *Broadcaster) DropHistory(identity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.history, identity)
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	clients := make([]*Client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.clients = make(map[*Client]struct{})
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
