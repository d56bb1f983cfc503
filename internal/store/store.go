// Package store persists per-session authentication material. The
// existence of a record is the recovery signal: a session with a record
// can be reconnected at startup without a fresh interactive pairing.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chat-gateway/backend/internal/driver"
	"github.com/chat-gateway/backend/internal/model"
)

// SessionStore provides data access for durable session credentials.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Put inserts or replaces the credentials for an identity.
func (s *SessionStore) Put(ctx context.Context, identity string, creds driver.Credentials) error {
	if identity == "" {
		return model.ErrIdentityRequired
	}

	query := `
		INSERT INTO session_credentials (identity, credentials, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET credentials = excluded.credentials, updated_at = excluded.updated_at
	`

	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query, identity, []byte(creds), now, now); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	return nil
}

// Get retrieves the credentials for an identity.
func (s *SessionStore) Get(ctx context.Context, identity string) (driver.Credentials, error) {
	query := `SELECT credentials FROM session_credentials WHERE identity = ?`

	var creds []byte
	err := s.db.QueryRowContext(ctx, query, identity).Scan(&creds)
	if err == sql.ErrNoRows {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}

	return driver.Credentials(creds), nil
}

// Exists reports whether a record exists for an identity.
func (s *SessionStore) Exists(ctx context.Context, identity string) (bool, error) {
	query := `SELECT 1 FROM session_credentials WHERE identity = ?`

	var one int
	err := s.db.QueryRowContext(ctx, query, identity).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check credentials: %w", err)
	}

	return true, nil
}

// List returns every identity with a stored record, oldest first. This
// is the recovery enumeration order.
func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	query := `SELECT identity FROM session_credentials ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}

	return identities, nil
}

// Delete removes the record for an identity. Deleting an unknown
// identity is a no-op.
func (s *SessionStore) Delete(ctx context.Context, identity string) error {
	query := `DELETE FROM session_credentials WHERE identity = ?`

	if _, err := s.db.ExecContext(ctx, query, identity); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}

	return nil
}
