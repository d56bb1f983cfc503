package model

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentityRequired is returned when a session operation is missing the identity.
	ErrIdentityRequired = errors.New("session identity is required")

	// ErrSessionNotFound is returned when no session is registered under an identity.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session whose identity is already registered.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionTerminated is returned for operations on a session that is
	// terminating or has terminated.
	ErrSessionTerminated = errors.New("session terminated")

	// ErrReadyTimeout is returned when a session does not become ready
	// within the configured deadline.
	ErrReadyTimeout = errors.New("timed out waiting for session to become ready")
)

// NotReadyError reports a domain operation attempted while the session
// was not connected. It carries the state for diagnostics.
type NotReadyError struct {
	State SessionState
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("session not ready (state %s)", e.State)
}

// DriverError wraps a failure surfaced by the automation driver itself,
// such as network loss or protocol desync.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("driver %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}
