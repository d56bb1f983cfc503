package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/chat-gateway/backend/internal/model"
	"github.com/chat-gateway/backend/internal/store"
)

// Coordinator re-establishes sessions for every persisted identity at
// process startup. Each identity is recovered independently: a failure
// on one never aborts the others. Connect attempts are resource-heavy,
// so the coordinator bounds how many run at once.
type Coordinator struct {
	registry      *Registry
	store         *store.SessionStore
	maxConcurrent int
}

// NewCoordinator creates a recovery coordinator.
func NewCoordinator(registry *Registry, st *store.SessionStore, maxConcurrent int) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Coordinator{
		registry:      registry,
		store:         st,
		maxConcurrent: maxConcurrent,
	}
}

// Run enumerates the stored identities and recreates a session for each,
// exactly as an explicit start request would. Identities that have a
// live session already (a race with an explicit start) are skipped. Run
// returns once every recovered session is ready or has failed.
func (c *Coordinator) Run(ctx context.Context) error {
	identities, err := c.store.List(ctx)
	if err != nil {
		return err
	}

	if len(identities) == 0 {
		return nil
	}
	log.Printf("recovering %d persisted session(s)", len(identities))

	sem := make(chan struct{}, c.maxConcurrent)
	var wg sync.WaitGroup
	for _, identity := range identities {
		wg.Add(1)
		sem <- struct{}{}
		go func(identity string) {
			defer wg.Done()
			defer func() { <-sem }()
			c.recover(ctx, identity)
		}(identity)
	}
	wg.Wait()

	return nil
}

func (c *Coordinator) recover(ctx context.Context, identity string) {
	s, err := c.registry.Create(ctx, identity, model.SessionConfig{})
	if err != nil {
		if errors.Is(err, model.ErrSessionExists) {
			log.Printf("recovery: session %s already running, skipping", identity)
			return
		}
		log.Printf("recovery: failed to create session %s: %v", identity, err)
		return
	}

	// Hold the concurrency slot until the connect attempt resolves so
	// at most maxConcurrent connects run simultaneously.
	if err := s.WaitReady(ctx); err != nil {
		log.Printf("recovery: session %s did not become ready: %v", identity, err)
	}
}
