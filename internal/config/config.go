// Package config loads and validates the browsegate configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/browsegate/browsegate/pkg/types"
)

type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Approvals ApprovalsConfig `yaml:"approvals"`
	Cache     CacheConfig     `yaml:"cache"`
	Audit     AuditConfig     `yaml:"audit"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Vault     VaultConfig     `yaml:"vault"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// NetworkConfig configures the URL validator.
type NetworkConfig struct {
	// AllowedHosts is exhaustive when non-empty: a host must match an entry
	// (exact or "*.suffix") or navigation is denied.
	AllowedHosts []string `yaml:"allowed_hosts"`

	BlockLoopback bool `yaml:"block_loopback"`
	BlockPrivate  bool `yaml:"block_private"`
}

// ApprovalsConfig configures the approval gate.
type ApprovalsConfig struct {
	Mode types.Mode `yaml:"mode"`

	// GrantDuration is the long-grant lifetime offered at the prompt.
	GrantDuration Duration `yaml:"grant_duration"`

	// TOTPSecret, when set, makes two-factor codes verify against a real
	// TOTP secret instead of a format-only check.
	TOTPSecret string `yaml:"totp_secret"`

	// Unattended settings.
	CredentialSource types.CredentialSource `yaml:"credential_source"`
	AllowDestructive bool                   `yaml:"allow_destructive"`

	// SitePolicies keys are site labels.
	SitePolicies map[string]SitePolicy `yaml:"site_policies"`
}

// SitePolicy overrides the baseline requirement for one site.
type SitePolicy struct {
	Requirement          types.Requirement `yaml:"requirement"`
	TwoFactorDestructive bool              `yaml:"two_factor_destructive"`
}

type CacheConfig struct {
	Path         string   `yaml:"path"`
	MasterKeyEnv string   `yaml:"master_key_env"`
	DefaultTTL   Duration `yaml:"default_ttl"`
}

type AuditConfig struct {
	Path      string             `yaml:"path"`
	Retention Duration           `yaml:"retention"`
	Webhook   AuditWebhookConfig `yaml:"webhook"`
}

type AuditWebhookConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout Duration          `yaml:"timeout"`
	Retries int               `yaml:"retries"`
}

type SessionsConfig struct {
	MaxDuration   Duration `yaml:"max_duration"`
	WarningMargin Duration `yaml:"warning_margin"`
	TickInterval  Duration `yaml:"tick_interval"`
	WorkdirRoot   string   `yaml:"workdir_root"`
}

type VaultConfig struct {
	Address    string `yaml:"address"`
	TokenFile  string `yaml:"token_file"`
	MountPath  string `yaml:"mount_path"`
	PathPrefix string `yaml:"path_prefix"`

	// EnvPrefix is the naming prefix for environment-sourced credentials,
	// e.g. BROWSEGATE -> BROWSEGATE_<SITE>_USERNAME.
	EnvPrefix string `yaml:"env_prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Duration is a YAML scalar holding a Go duration string.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be scalar")
	}
	dd, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns a configuration with safe baselines.
func Default() Config {
	home, _ := os.UserHomeDir()
	stateDir := filepath.Join(home, ".browsegate")
	return Config{
		Network: NetworkConfig{
			BlockLoopback: true,
			BlockPrivate:  true,
		},
		Approvals: ApprovalsConfig{
			Mode:          types.ModeInteractive,
			GrantDuration: Duration{30 * time.Minute},
		},
		Cache: CacheConfig{
			Path:         filepath.Join(stateDir, "credcache.json"),
			MasterKeyEnv: "BROWSEGATE_MASTER_KEY",
			DefaultTTL:   Duration{24 * time.Hour},
		},
		Audit: AuditConfig{
			Path:      filepath.Join(stateDir, "audit.jsonl"),
			Retention: Duration{90 * 24 * time.Hour},
			Webhook: AuditWebhookConfig{
				Timeout: Duration{10 * time.Second},
				Retries: 2,
			},
		},
		Sessions: SessionsConfig{
			MaxDuration:   Duration{2 * time.Hour},
			WarningMargin: Duration{15 * time.Minute},
			TickInterval:  Duration{time.Second},
			WorkdirRoot:   filepath.Join(stateDir, "sessions"),
		},
		Vault: VaultConfig{
			MountPath: "secret",
			EnvPrefix: "BROWSEGATE",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate performs semantic checks beyond YAML shape.
func (c Config) Validate() error {
	switch c.Approvals.Mode {
	case types.ModeInteractive, types.ModeUnattended, "":
	default:
		return fmt.Errorf("approvals.mode: unknown mode %q", c.Approvals.Mode)
	}
	if c.Approvals.Mode == types.ModeUnattended {
		switch c.Approvals.CredentialSource {
		case types.SourceEnvironment, types.SourceVault, types.SourceCache:
		case "":
			return fmt.Errorf("approvals.credential_source is required in unattended mode")
		default:
			return fmt.Errorf("approvals.credential_source: unknown source %q", c.Approvals.CredentialSource)
		}
	}
	for site, sp := range c.Approvals.SitePolicies {
		switch sp.Requirement {
		case "", types.RequireNone, types.RequirePrompt, types.RequireAlways, types.RequireTwoFactor:
		default:
			return fmt.Errorf("site_policies[%s].requirement: unknown requirement %q", site, sp.Requirement)
		}
	}
	if c.Sessions.MaxDuration.Duration <= 0 {
		return fmt.Errorf("sessions.max_duration must be positive")
	}
	if c.Sessions.WarningMargin.Duration < 0 || c.Sessions.WarningMargin.Duration >= c.Sessions.MaxDuration.Duration {
		return fmt.Errorf("sessions.warning_margin must be shorter than max_duration")
	}
	if c.Audit.Webhook.Enabled && c.Audit.Webhook.URL == "" {
		return fmt.Errorf("audit.webhook.url is required when the webhook is enabled")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}
