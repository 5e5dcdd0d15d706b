package types

import "time"

type SessionState string

const (
	SessionStateNone      SessionState = "none"      // No session in flight
	SessionStateActive    SessionState = "active"    // Session running, clock accumulating
	SessionStateSuspended SessionState = "suspended" // Paused, clock frozen
	SessionStateExpired   SessionState = "expired"   // Terminal: closed or timed out
)

// IsTerminal returns true if the state permits no further transitions.
func (s SessionState) IsTerminal() bool {
	return s == SessionStateExpired
}

// Session is a read-only snapshot of the single in-flight session.
type Session struct {
	ID          string        `json:"id"`
	State       SessionState  `json:"state"`
	Site        string        `json:"site,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	MaxDuration time.Duration `json:"max_duration"`
	Elapsed     time.Duration `json:"elapsed"`
	Workdir     string        `json:"workdir,omitempty"`
}

// Remaining returns the time budget left before timeout.
func (s Session) Remaining() time.Duration {
	if rem := s.MaxDuration - s.Elapsed; rem > 0 {
		return rem
	}
	return 0
}
