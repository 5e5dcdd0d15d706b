package types

import "context"

// PageAction is a single request handed to the browser engine.
type PageAction struct {
	Kind    ActionKind     `json:"kind"`
	Target  string         `json:"target,omitempty"` // selector or URL
	Value   string         `json:"value,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Engine is the narrow surface this core needs from the browser driver. The
// driver itself lives outside this module; URL gating happens here before
// Navigate is ever called.
type Engine interface {
	Navigate(ctx context.Context, url string) error
	Perform(ctx context.Context, action PageAction) error
}
