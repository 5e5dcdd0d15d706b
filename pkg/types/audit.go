package types

import "time"

// AuditEntry records one action taken within a session.
type AuditEntry struct {
	ID         string         `json:"id,omitempty"`
	Action     string         `json:"action"`
	Timestamp  string         `json:"timestamp"` // RFC 3339
	Details    map[string]any `json:"details,omitempty"`
	Screenshot string         `json:"screenshot,omitempty"`
	Required   bool           `json:"approval_required"`
	Approved   bool           `json:"approved"`
	Token      string         `json:"approval_token,omitempty"`
}

// AuditSession is the finalized, immutable record of one session. Records are
// appended to the durable log one per line and never edited in place.
type AuditSession struct {
	SessionID      string        `json:"session_id"`
	Site           string        `json:"site,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	CleanupOK      bool          `json:"cleanup_ok"`
	Entries        []AuditEntry  `json:"entries"`
	PrevChainHash  string        `json:"prev_chain_hash"`
	ChainHash      string        `json:"chain_hash"`
}
