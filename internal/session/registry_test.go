package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chat-gateway/backend/internal/model"
)

func TestRegistry_Create(t *testing.T) {
	f := newFakeFactory()
	registry, _, _ := setupTestRegistry(t, f.factory)
	ctx := context.Background()

	t.Run("duplicate identity is rejected", func(t *testing.T) {
		if _, err := registry.Create(ctx, "S1", model.SessionConfig{}); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		// The session is registered before the connect completes, so a
		// second create observes it immediately.
		_, err := registry.Create(ctx, "S1", model.SessionConfig{})
		if !errors.Is(err, model.ErrSessionExists) {
			t.Errorf("expected ErrSessionExists, got %v", err)
		}
	})

	t.Run("empty identity is rejected", func(t *testing.T) {
		_, err := registry.Create(ctx, "", model.SessionConfig{})
		if !errors.Is(err, model.ErrIdentityRequired) {
			t.Errorf("expected ErrIdentityRequired, got %v", err)
		}
	})
}

func TestRegistry_Get(t *testing.T) {
	f := newFakeFactory()
	registry, _, _ := setupTestRegistry(t, f.factory)
	ctx := context.Background()

	if _, err := registry.Get("missing"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	if _, err := registry.Create(ctx, "S1", model.SessionConfig{}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	s, err := registry.Get("S1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if s.Identity() != "S1" {
		t.Errorf("expected identity S1, got %s", s.Identity())
	}
}

func TestRegistry_List(t *testing.T) {
	f := newFakeFactory()
	registry, _, _ := setupTestRegistry(t, f.factory)
	ctx := context.Background()

	for _, id := range []string{"S1", "S2"} {
		s, err := registry.Create(ctx, id, model.SessionConfig{})
		if err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
		if err := s.WaitReady(ctx); err != nil {
			t.Fatalf("session %s did not become ready: %v", id, err)
		}
	}

	infos := registry.List()
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
	for _, info := range infos {
		if info.State != model.SessionStateConnected {
			t.Errorf("session %s: expected CONNECTED, got %s", info.Identity, info.State)
		}
	}
}

func TestRegistry_Remove(t *testing.T) {
	f := newFakeFactory()
	registry, sessionStore, sink := setupTestRegistry(t, f.factory)
	ctx := context.Background()

	t.Run("removing an unknown identity is a no-op", func(t *testing.T) {
		if err := registry.Remove(ctx, "missing", false); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("stop keeps the store record", func(t *testing.T) {
		s, err := registry.Create(ctx, "S1", model.SessionConfig{})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if err := s.WaitReady(ctx); err != nil {
			t.Fatalf("session did not become ready: %v", err)
		}

		if err := registry.Remove(ctx, "S1", false); err != nil {
			t.Fatalf("remove failed: %v", err)
		}

		if _, err := registry.Get("S1"); !errors.Is(err, model.ErrSessionNotFound) {
			t.Errorf("expected session gone from registry, got %v", err)
		}
		ok, err := sessionStore.Exists(ctx, "S1")
		if err != nil || !ok {
			t.Errorf("expected store record to survive stop, ok=%v err=%v", ok, err)
		}
		if !f.driver("S1").isClosed() {
			t.Error("expected driver to be released")
		}
		sink.waitFor(t, "S1", model.EventSessionTerminated)
	})

	t.Run("terminate deletes the store record", func(t *testing.T) {
		// S1 was stopped above; terminating the stopped identity must
		// still delete its persisted state.
		if err := registry.Remove(ctx, "S1", true); err != nil {
			t.Fatalf("remove failed: %v", err)
		}

		ok, err := sessionStore.Exists(ctx, "S1")
		if err != nil {
			t.Fatalf("exists failed: %v", err)
		}
		if ok {
			t.Error("expected store record deleted on terminate")
		}
	})
}

func TestRegistry_StorePersistsOnConnect(t *testing.T) {
	f := newFakeFactory()
	registry, sessionStore, _ := setupTestRegistry(t, f.factory)
	ctx := context.Background()

	s, err := registry.Create(ctx, "S1", model.SessionConfig{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// No record until the connect succeeds
	if err := s.WaitReady(ctx); err != nil {
		t.Fatalf("session did not become ready: %v", err)
	}

	creds, err := sessionStore.Get(ctx, "S1")
	if err != nil {
		t.Fatalf("expected credentials persisted after connect: %v", err)
	}
	if string(creds) != "fake:S1" {
		t.Errorf("unexpected persisted credentials: %q", creds)
	}
}

func TestRegistry_FailedConnectLeavesNoStoreRecord(t *testing.T) {
	f := newFakeFactory()
	f.failFor["S1"] = true
	registry, sessionStore, _ := setupTestRegistry(t, f.factory)
	ctx := context.Background()

	s, err := registry.Create(ctx, "S1", model.SessionConfig{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	s.WaitReady(ctx)

	ok, err := sessionStore.Exists(ctx, "S1")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if ok {
		t.Error("expected no store record for a session that never connected")
	}
}

func TestRegistry_LifecycleEvents(t *testing.T) {
	f := newFakeFactory()
	registry, _, sink := setupTestRegistry(t, f.factory)
	ctx := context.Background()

	s, err := registry.Create(ctx, "S1", model.SessionConfig{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	sink.waitFor(t, "S1", model.EventSessionStarting)

	if err := s.WaitReady(ctx); err != nil {
		t.Fatalf("session did not become ready: %v", err)
	}
	if err := registry.Remove(ctx, "S1", true); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	e := sink.waitFor(t, "S1", model.EventSessionTerminated)
	payload := e.Payload.(map[string]interface{})
	if payload["storeDeleted"] != true {
		t.Errorf("expected storeDeleted=true in terminated event, got %v", payload)
	}
}

func TestRegistry_Shutdown(t *testing.T) {
	f := newFakeFactory()
	registry, sessionStore, _ := setupTestRegistry(t, f.factory)
	ctx := context.Background()

	ids := []string{"S1", "S2", "S3"}
	for _, id := range ids {
		s, err := registry.Create(ctx, id, model.SessionConfig{})
		if err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
		if err := s.WaitReady(ctx); err != nil {
			t.Fatalf("session %s did not become ready: %v", id, err)
		}
	}

	done := make(chan struct{})
	go func() {
		registry.Shutdown(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	if registry.Count() != 0 {
		t.Errorf("expected empty registry after shutdown, got %d", registry.Count())
	}

	for _, id := range ids {
		if !f.driver(id).isClosed() {
			t.Errorf("driver %s not released on shutdown", id)
		}
		// Persisted state survives shutdown for later recovery
		ok, _ := sessionStore.Exists(ctx, id)
		if !ok {
			t.Errorf("store record %s should survive shutdown", id)
		}
	}
}
