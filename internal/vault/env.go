package vault

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/browsegate/browsegate/pkg/types"
)

// EnvProvider sources credentials from environment variables following the
// PREFIX_<SITE>_USERNAME / _PASSWORD / _TOKEN convention.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates a provider with the given variable prefix,
// defaulting to BROWSEGATE.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "BROWSEGATE"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "environment" }

// Status always succeeds: the process environment cannot be locked.
func (p *EnvProvider) Status(ctx context.Context) error { return nil }

func (p *EnvProvider) Fetch(ctx context.Context, site string) (types.Credentials, error) {
	base := p.prefix + "_" + SiteKey(site) + "_"
	creds := types.Credentials{
		Username: os.Getenv(base + "USERNAME"),
		Password: os.Getenv(base + "PASSWORD"),
		Token:    os.Getenv(base + "TOKEN"),
	}
	if creds.Empty() {
		return types.Credentials{}, fmt.Errorf("no %s* variables set for site %q: %w", base, site, ErrCredentialMissing)
	}
	return creds, nil
}

// Has reports whether at least one variable exists for the site, without
// reading the values. Used by the unattended source check.
func (p *EnvProvider) Has(site string) bool {
	base := p.prefix + "_" + SiteKey(site) + "_"
	for _, suffix := range []string{"USERNAME", "PASSWORD", "TOKEN"} {
		if _, ok := os.LookupEnv(base + suffix); ok {
			return true
		}
	}
	return false
}

// SiteKey normalizes a site label for use in an environment variable name:
// upper-cased with every non-alphanumeric run collapsed to one underscore.
func SiteKey(site string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToUpper(site) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
