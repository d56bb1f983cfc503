package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/chat-gateway/backend/internal/driver"
	"github.com/chat-gateway/backend/internal/events"
	"github.com/chat-gateway/backend/internal/model"
)

// Session owns one driver instance and its lifecycle state. The driver
// handle is never shared: all access goes through the session, which
// serializes calls with opMu. State transitions are driven only by
// driver events consumed by the pump goroutine.
type Session struct {
	identity string
	drv      driver.Driver

	// opMu serializes every driver call (connect, invoke, disconnect)
	// for this identity. It is never held while touching the registry.
	opMu sync.Mutex

	mu           sync.RWMutex
	state        model.SessionState
	createdAt    time.Time
	lastActivity time.Time

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}

	readyTimeout time.Duration

	publish   func(model.Event)
	persist   func(driver.Credentials)
	onFailure func(identity string, s *Session)
}

func newSession(identity string, drv driver.Driver, readyTimeout time.Duration) *Session {
	now := time.Now()
	return &Session{
		identity:     identity,
		drv:          drv,
		state:        model.SessionStateStarting,
		createdAt:    now,
		lastActivity: now,
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
		readyTimeout: readyTimeout,
	}
}

// Identity returns the session's identity.
func (s *Session) Identity() string {
	return s.identity
}

// State returns the current lifecycle state.
func (s *Session) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a point-in-time snapshot of the session.
func (s *Session) Info() model.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.SessionInfo{
		Identity:     s.identity,
		State:        s.state,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

// WaitReady blocks until the session first reaches CONNECTED, the
// session dies, the configured ready timeout elapses, or ctx is done.
func (s *Session) WaitReady(ctx context.Context) error {
	timeout := s.readyTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return &model.NotReadyError{State: s.State()}
	case <-timer.C:
		return model.ErrReadyTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invoke executes a domain operation against the driver. Operations are
// accepted only in CONNECTED and are serialized per identity.
func (s *Session) Invoke(ctx context.Context, op string, args map[string]interface{}) (interface{}, error) {
	switch state := s.State(); {
	case state == model.SessionStateTerminating || state == model.SessionStateTerminated:
		return nil, model.ErrSessionTerminated
	case state != model.SessionStateConnected:
		return nil, &model.NotReadyError{State: state}
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	result, err := s.drv.Invoke(ctx, op, args)
	if err != nil {
		return nil, &model.DriverError{Op: op, Err: err}
	}

	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	return result, nil
}

// start launches the event pump and the initial connect attempt.
func (s *Session) start(ctx context.Context) {
	go s.pump()
	go s.connect(ctx)
}

func (s *Session) connect(ctx context.Context) {
	s.opMu.Lock()
	err := s.drv.Connect(ctx)
	s.opMu.Unlock()

	if err != nil {
		s.fail(&model.DriverError{Op: "connect", Err: err})
		// Release the driver so the event stream closes.
		s.opMu.Lock()
		s.drv.Disconnect(context.Background())
		s.opMu.Unlock()
	}
}

// pump consumes the driver event stream, applies state transitions and
// forwards each event to the router. It is the only goroutine mutating
// state from driver activity, which keeps per-session event order.
func (s *Session) pump() {
	for ev := range s.drv.Events() {
		s.apply(ev)
		if s.publish != nil {
			s.publish(events.New(s.identity, ev.Type, ev.Payload))
		}
	}

	// Stream closed. Expected during termination; anything else means
	// the driver died underneath us.
	state := s.State()
	if state != model.SessionStateTerminating && !state.Terminal() {
		s.fail(nil)
	}
	close(s.done)
}

func (s *Session) apply(ev driver.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == model.SessionStateTerminating || s.state.Terminal() {
		return
	}

	switch ev.Type {
	case model.EventSessionAuthenticating:
		s.state = model.SessionStateAuthenticating
	case model.EventSessionAuthenticated:
		s.state = model.SessionStateAuthenticating
	case model.EventSessionReady:
		s.state = model.SessionStateConnected
		// Persist before signalling readiness so a caller observing
		// ready can rely on the store record existing.
		if s.persist != nil {
			if creds := s.drv.Credentials(); creds != nil {
				s.persist(creds)
			}
		}
		s.readyOnce.Do(func() { close(s.ready) })
	case model.EventSessionDisconnected:
		s.state = model.SessionStateDisconnected
	}

	s.lastActivity = time.Now()
}

// fail marks the session FAILED, emits a failure event and asks the
// registry to drop it. FAILED sessions are not retried here; recovery
// is a coordinator or caller decision.
func (s *Session) fail(cause error) {
	s.mu.Lock()
	if s.state.Terminal() || s.state == model.SessionStateTerminating {
		s.mu.Unlock()
		return
	}
	s.state = model.SessionStateFailed
	s.mu.Unlock()

	payload := map[string]interface{}{}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	if s.publish != nil {
		s.publish(events.New(s.identity, model.EventSessionFailed, payload))
	}
	if cause != nil {
		log.Printf("session %s failed: %v", s.identity, cause)
	} else {
		log.Printf("session %s failed: driver event stream closed", s.identity)
	}

	if s.onFailure != nil {
		s.onFailure(s.identity, s)
	}
}

// terminate transitions the session to TERMINATED, waiting for any
// in-flight driver operation before releasing the driver. Idempotent.
func (s *Session) terminate(ctx context.Context) {
	s.mu.Lock()
	if s.state == model.SessionStateTerminating || s.state == model.SessionStateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = model.SessionStateTerminating
	s.mu.Unlock()

	s.opMu.Lock()
	if err := s.drv.Disconnect(ctx); err != nil {
		log.Printf("session %s: driver disconnect: %v", s.identity, err)
	}
	s.opMu.Unlock()

	// The disconnect closed the event stream, so the pump is draining.
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		log.Printf("session %s: event pump did not drain in time", s.identity)
	}

	s.mu.Lock()
	s.state = model.SessionStateTerminated
	s.mu.Unlock()
}
