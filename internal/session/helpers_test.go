package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chat-gateway/backend/internal/db"
	"github.com/chat-gateway/backend/internal/driver"
	"github.com/chat-gateway/backend/internal/events"
	"github.com/chat-gateway/backend/internal/model"
	"github.com/chat-gateway/backend/internal/store"
)

// fakeDriver is a controllable driver that records how it is used.
type fakeDriver struct {
	identity     string
	failConnect  bool
	connectDelay time.Duration
	tracker      *connTracker

	mu        sync.Mutex
	creds     driver.Credentials
	connected bool
	closed    bool
	events    chan driver.Event

	inFlight    int32
	overlaps    int32
	invocations int32
}

func newFakeDriver(identity string, creds driver.Credentials) *fakeDriver {
	return &fakeDriver{
		identity: identity,
		creds:    creds,
		events:   make(chan driver.Event, 64),
	}
}

func (d *fakeDriver) Connect(ctx context.Context) error {
	if d.tracker != nil {
		d.tracker.start()
		defer d.tracker.end()
	}

	if d.failConnect {
		return fmt.Errorf("pairing rejected")
	}

	d.emit(model.EventSessionAuthenticating, nil)

	if d.connectDelay > 0 {
		time.Sleep(d.connectDelay)
	}

	d.mu.Lock()
	if d.creds == nil {
		d.creds = driver.Credentials("fake:" + d.identity)
	}
	d.connected = true
	d.mu.Unlock()

	d.emit(model.EventSessionAuthenticated, nil)
	d.emit(model.EventSessionReady, nil)
	return nil
}

func (d *fakeDriver) Disconnect(ctx context.Context) error {
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

func (d *fakeDriver) Invoke(ctx context.Context, op string, args map[string]interface{}) (interface{}, error) {
	if n := atomic.AddInt32(&d.inFlight, 1); n > 1 {
		atomic.AddInt32(&d.overlaps, 1)
	}
	time.Sleep(time.Millisecond)
	atomic.AddInt32(&d.inFlight, -1)
	atomic.AddInt32(&d.invocations, 1)

	if op == "boom" {
		return nil, fmt.Errorf("engine rejected %s", op)
	}
	return map[string]interface{}{"op": op}, nil
}

func (d *fakeDriver) Events() <-chan driver.Event {
	return d.events
}

func (d *fakeDriver) Credentials() driver.Credentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creds
}

func (d *fakeDriver) emit(t model.EventType, payload interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.events <- driver.Event{Type: t, Payload: payload}
}

func (d *fakeDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// connTracker records how many connects run at once.
type connTracker struct {
	mu     sync.Mutex
	active int
	max    int
}

func (c *connTracker) start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active++
	if c.active > c.max {
		c.max = c.active
	}
}

func (c *connTracker) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active--
}

func (c *connTracker) peak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max
}

// fakeFactory builds fakeDrivers and keeps handles to them so tests can
// reach into driver state.
type fakeFactory struct {
	connectDelay time.Duration
	tracker      *connTracker

	mu      sync.Mutex
	failFor map[string]bool
	drivers map[string]*fakeDriver
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		failFor: make(map[string]bool),
		drivers: make(map[string]*fakeDriver),
	}
}

func (f *fakeFactory) factory(identity string, creds driver.Credentials) driver.Driver {
	f.mu.Lock()
	defer f.mu.Unlock()

	d := newFakeDriver(identity, creds)
	d.failConnect = f.failFor[identity]
	d.connectDelay = f.connectDelay
	d.tracker = f.tracker
	f.drivers[identity] = d
	return d
}

func (f *fakeFactory) driver(identity string) *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drivers[identity]
}

// captureSink records delivered events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *captureSink) Deliver(event model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) bySession(identity string) []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []model.Event
	for _, e := range c.events {
		if e.SessionID == identity {
			out = append(out, e)
		}
	}
	return out
}

func (c *captureSink) waitFor(t *testing.T, identity string, eventType model.EventType) model.Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range c.bySession(identity) {
			if e.Type == eventType {
				return e
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s event for session %s", eventType, identity)
	return model.Event{}
}

func setupTestRegistry(t *testing.T, factory driver.Factory) (*Registry, *store.SessionStore, *captureSink) {
	t.Helper()

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	sessionStore := store.NewSessionStore(database)

	sink := &captureSink{}
	router := events.NewRouter(nil)
	router.AddSink(sink)

	registry := NewRegistry(sessionStore, factory, router, Config{
		ReadyTimeout: 2 * time.Second,
	})
	t.Cleanup(func() { registry.Shutdown(context.Background()) })

	return registry, sessionStore, sink
}
