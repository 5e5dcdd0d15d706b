package types

import "time"

// Mode selects how the approval gate resolves prompts.
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeUnattended  Mode = "unattended"
)

// CredentialSource declares where unattended mode sources secrets from.
type CredentialSource string

const (
	SourceEnvironment CredentialSource = "environment"
	SourceVault       CredentialSource = "vault"
	SourceCache       CredentialSource = "cache"
)

// ApprovalRequest describes one action awaiting a decision. Requests are
// ephemeral: they are never persisted, only summarized into the audit trail.
type ApprovalRequest struct {
	Action  string         `json:"action"`
	Site    string         `json:"site,omitempty"`
	Tier    Tier           `json:"tier"`
	Details map[string]any `json:"details,omitempty"`
}

// ApprovalResult carries the gate's decision.
type ApprovalResult struct {
	Approved      bool          `json:"approved"`
	Token         string        `json:"token,omitempty"`
	GrantDuration time.Duration `json:"grant_duration,omitempty"`
	TwoFactorUsed bool          `json:"two_factor_used"`
	Reason        string        `json:"reason,omitempty"`
}

// ApprovalInfo is the audit-facing summary of an approval decision.
type ApprovalInfo struct {
	Required bool   `json:"required"`
	Approved bool   `json:"approved"`
	Token    string `json:"token,omitempty"`
}
