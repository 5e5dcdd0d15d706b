package vault

import (
	"context"
	"fmt"
	"os"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/browsegate/browsegate/internal/config"
	"github.com/browsegate/browsegate/pkg/types"
)

// HashiProvider reads credentials from a HashiCorp Vault KV v2 mount. Secrets
// live at <path_prefix>/<site> with username/password/token fields.
type HashiProvider struct {
	client     *vaultapi.Client
	mountPath  string
	pathPrefix string
}

// NewHashiProvider builds the client. Token auth only: the token comes from
// the configured token file or the VAULT_TOKEN environment variable.
func NewHashiProvider(cfg config.VaultConfig) (*HashiProvider, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}

	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}

	var token string
	if cfg.TokenFile != "" {
		data, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("read vault token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
	} else {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("no vault token: set token_file or VAULT_TOKEN")
	}
	client.SetToken(token)

	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}

	return &HashiProvider{
		client:     client,
		mountPath:  mount,
		pathPrefix: strings.Trim(cfg.PathPrefix, "/"),
	}, nil
}

func (p *HashiProvider) Name() string { return "hashicorp_vault" }

// Status treats a sealed or uninitialized server as the locked precondition.
func (p *HashiProvider) Status(ctx context.Context) error {
	health, err := p.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check: %w: %v", ErrLocked, err)
	}
	if health.Sealed || !health.Initialized {
		return fmt.Errorf("vault sealed=%t initialized=%t: %w", health.Sealed, health.Initialized, ErrLocked)
	}
	return nil
}

func (p *HashiProvider) Fetch(ctx context.Context, site string) (types.Credentials, error) {
	path := site
	if p.pathPrefix != "" {
		path = p.pathPrefix + "/" + site
	}

	secret, err := p.client.KVv2(p.mountPath).Get(ctx, path)
	if err != nil {
		return types.Credentials{}, fmt.Errorf("read vault secret %q: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return types.Credentials{}, fmt.Errorf("vault secret %q: %w", path, ErrCredentialMissing)
	}

	creds := types.Credentials{
		Username: stringField(secret.Data, "username"),
		Password: stringField(secret.Data, "password"),
		Token:    stringField(secret.Data, "token"),
	}
	if creds.Empty() {
		return types.Credentials{}, fmt.Errorf("vault secret %q has no credential fields: %w", path, ErrCredentialMissing)
	}
	return creds, nil
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
