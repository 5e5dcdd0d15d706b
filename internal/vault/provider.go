// Package vault integrates external password-manager processes that resolve
// a site label to credentials.
package vault

import (
	"context"
	"errors"

	"github.com/browsegate/browsegate/pkg/types"
)

// ErrLocked indicates the vault needs an out-of-band unlock before any
// retrieval can succeed.
var ErrLocked = errors.New("vault is locked")

// ErrCredentialMissing indicates no source can supply the requested secret.
var ErrCredentialMissing = errors.New("credential missing")

// Provider resolves a site label to credentials. Implementations may be slow
// or locked; callers must check Status before Fetch rather than hang on a
// locked store.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// Status probes the provider's precondition. A locked or unreachable
	// vault returns ErrLocked so the caller can surface a clear error.
	Status(ctx context.Context) error

	// Fetch resolves site to credentials, or ErrCredentialMissing.
	Fetch(ctx context.Context, site string) (types.Credentials, error)
}
