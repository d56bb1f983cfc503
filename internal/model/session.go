package model

import "time"

// SessionState represents the lifecycle state of a messaging session.
type SessionState string

const (
	SessionStateStarting       SessionState = "STARTING"
	SessionStateAuthenticating SessionState = "AUTHENTICATING"
	SessionStateConnected      SessionState = "CONNECTED"
	SessionStateDisconnected   SessionState = "DISCONNECTED"
	SessionStateFailed         SessionState = "FAILED"
	SessionStateTerminating    SessionState = "TERMINATING"
	SessionStateTerminated     SessionState = "TERMINATED"
)

// Terminal reports whether no further transitions are possible from s.
func (s SessionState) Terminal() bool {
	return s == SessionStateFailed || s == SessionStateTerminated
}

// SessionInfo is a point-in-time snapshot of one session, safe to hand
// out across API boundaries.
type SessionInfo struct {
	Identity     string       `json:"identity"`
	State        SessionState `json:"state"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastActivity time.Time    `json:"lastActivity"`
}

// SessionConfig carries per-session options supplied at creation time.
type SessionConfig struct {
	// ReadyTimeout bounds how long a caller waiting on readiness will
	// block before receiving ErrReadyTimeout. Zero means the manager
	// default applies.
	ReadyTimeout time.Duration `json:"readyTimeout,omitempty"`
}
