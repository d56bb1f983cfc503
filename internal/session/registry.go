// Package session implements the session registry: creation, lookup,
// recovery, per-identity serialization and teardown of the sessions
// wrapping the messaging automation drivers.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/chat-gateway/backend/internal/driver"
	"github.com/chat-gateway/backend/internal/events"
	"github.com/chat-gateway/backend/internal/model"
	"github.com/chat-gateway/backend/internal/store"
)

// Config holds configuration for the registry.
type Config struct {
	// ReadyTimeout bounds WaitReady for sessions that do not override it.
	ReadyTimeout time.Duration

	// ShutdownParallelism bounds how many sessions are disconnected at
	// once during Shutdown.
	ShutdownParallelism int
}

// Registry maps session identities to live sessions. It owns creation,
// lookup and removal; mutation of any single identity is serialized by
// the registry lock, while reads across identities stay concurrent.
type Registry struct {
	store   *store.SessionStore
	factory driver.Factory
	router  *events.Router

	readyTimeout        time.Duration
	shutdownParallelism int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a new Registry.
func NewRegistry(st *store.SessionStore, factory driver.Factory, router *events.Router, config Config) *Registry {
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = time.Minute
	}
	if config.ShutdownParallelism <= 0 {
		config.ShutdownParallelism = 4
	}

	return &Registry{
		store:               st,
		factory:             factory,
		router:              router,
		readyTimeout:        config.ReadyTimeout,
		shutdownParallelism: config.ShutdownParallelism,
		sessions:            make(map[string]*Session),
	}
}

// Create constructs a session for identity and starts connecting it
// asynchronously. The session is registered before the connect attempt
// completes, so a concurrent Create for the same identity observes
// ErrSessionExists. Stored credentials, when present, are handed to the
// driver for a non-interactive reconnect.
func (r *Registry) Create(ctx context.Context, identity string, config model.SessionConfig) (*Session, error) {
	if identity == "" {
		return nil, model.ErrIdentityRequired
	}

	creds, err := r.store.Get(ctx, identity)
	if err != nil && !errors.Is(err, model.ErrSessionNotFound) {
		return nil, err
	}

	readyTimeout := config.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = r.readyTimeout
	}

	r.mu.Lock()
	if _, exists := r.sessions[identity]; exists {
		r.mu.Unlock()
		return nil, model.ErrSessionExists
	}

	s := newSession(identity, r.factory(identity, creds), readyTimeout)
	s.publish = r.router.Publish
	s.persist = func(c driver.Credentials) {
		if err := r.store.Put(context.Background(), identity, c); err != nil {
			log.Printf("session %s: failed to persist credentials: %v", identity, err)
		}
	}
	s.onFailure = r.removeFailed
	r.sessions[identity] = s
	r.mu.Unlock()

	r.router.Publish(events.New(identity, model.EventSessionStarting, nil))

	// The connect outlives the caller's request, so it is detached
	// from ctx.
	s.start(context.Background())

	return s, nil
}

// Get looks a session up by identity.
func (r *Registry) Get(identity string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[identity]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return s, nil
}

// List returns a snapshot of all registered sessions.
func (r *Registry) List() []model.SessionInfo {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]model.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Remove tears the session down and drops it from the registry.
// With deleteStore it also deletes the persisted credentials, so the
// identity will not be recovered at the next startup. Removing an
// unknown identity is a no-op, but deleteStore still applies: a stopped
// session's stored state can be terminated this way.
func (r *Registry) Remove(ctx context.Context, identity string, deleteStore bool) error {
	r.mu.Lock()
	s := r.sessions[identity]
	delete(r.sessions, identity)
	r.mu.Unlock()

	if s != nil {
		s.terminate(ctx)
		r.router.Publish(events.New(identity, model.EventSessionTerminated, map[string]interface{}{
			"storeDeleted": deleteStore,
		}))
	}

	if deleteStore {
		if err := r.store.Delete(ctx, identity); err != nil {
			return err
		}
	}

	return nil
}

// removeFailed drops a session that reached FAILED, but only if the
// registry still maps the identity to that exact session. Persisted
// credentials are kept so recovery can retry later.
func (r *Registry) removeFailed(identity string, s *Session) {
	r.mu.Lock()
	if r.sessions[identity] == s {
		delete(r.sessions, identity)
	}
	r.mu.Unlock()
}

// Shutdown disconnects every live session in bounded parallel, keeping
// all persisted state. Used at process shutdown.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	sem := make(chan struct{}, r.shutdownParallelism)
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		sem <- struct{}{}
		go func(s *Session) {
			defer wg.Done()
			defer func() { <-sem }()
			s.terminate(ctx)
		}(s)
	}
	wg.Wait()
}
