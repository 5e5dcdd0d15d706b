package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/browsegate/browsegate/internal/approval"
	"github.com/browsegate/browsegate/internal/audit"
	"github.com/browsegate/browsegate/internal/config"
	"github.com/browsegate/browsegate/internal/credcache"
	"github.com/browsegate/browsegate/internal/netpolicy"
	"github.com/browsegate/browsegate/internal/session"
	"github.com/browsegate/browsegate/internal/vault"
	"github.com/browsegate/browsegate/pkg/types"
)

func newRunCmd() *cobra.Command {
	var (
		site        string
		maxDuration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a supervised session and execute actions from stdin",
		Long: `Starts a session and reads one command per line from stdin:

  navigate <url>
  {"kind":"click","target":"#submit"}     (any page action as JSON)
  suspend | resume | close

The session ends on "close", stdin EOF, or timeout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), cfg, site, maxDuration)
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "Site label for this session")
	cmd.Flags().DurationVar(&maxDuration, "max-duration", 0, "Session time budget (default from config)")
	return cmd
}

func runSession(ctx context.Context, cfg config.Config, site string, maxDuration time.Duration) error {
	logger := config.NewLogger(cfg.Logging, os.Stderr)

	validator, err := netpolicy.New(cfg.Network)
	if err != nil {
		return err
	}

	store, err := audit.NewStore(cfg.Audit.Path)
	if err != nil {
		return err
	}
	trail, err := audit.NewTrail(store, audit.NewWebhookSink(cfg.Audit.Webhook), logger)
	if err != nil {
		return err
	}

	// The cache is optional: without a master key we fall back to querying
	// the vault per action instead of storing anything.
	cache, err := credcache.New(cfg.Cache, logger)
	if err != nil {
		if !errors.Is(err, credcache.ErrNoMasterKey) {
			return err
		}
		logger.Warn("credential caching disabled", "reason", err)
		cache = nil
	}

	var provider vault.Provider
	if cfg.Vault.Address != "" {
		provider, err = vault.NewHashiProvider(cfg.Vault)
		if err != nil {
			return err
		}
	} else {
		provider = vault.NewEnvProvider(cfg.Vault.EnvPrefix)
	}

	gateOpts := []approval.Option{
		approval.WithPrompter(approval.NewTTYPrompter()),
		approval.WithEnvChecker(vault.NewEnvProvider(cfg.Vault.EnvPrefix)),
	}
	if hp, ok := provider.(*vault.HashiProvider); ok {
		gateOpts = append(gateOpts, approval.WithVaultStatus(hp))
	}
	if cache != nil {
		gateOpts = append(gateOpts, approval.WithCacheChecker(cache))
	}
	gate := approval.New(cfg.Approvals, logger, gateOpts...)

	manager := session.NewManager(cfg.Sessions, trail, logger)
	runner := session.NewRunner(manager, validator, gate, printEngine{}).
		WithCredentials(cache, provider)

	sess, err := manager.Start(site, maxDuration)
	if err != nil {
		return err
	}
	fmt.Printf("session %s started (budget %s)\n", sess.ID, sess.MaxDuration)

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		done, err := dispatch(ctx, manager, runner, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		if done {
			return nil
		}
		if _, ok := manager.Current(); !ok {
			fmt.Println("session ended")
			return nil
		}
	}

	if _, ok := manager.Current(); ok {
		return manager.Close(ctx)
	}
	return nil
}

func dispatch(ctx context.Context, manager *session.Manager, runner *session.Runner, line string) (done bool, err error) {
	switch {
	case line == "close":
		return true, manager.Close(ctx)
	case line == "suspend":
		return false, manager.Suspend()
	case line == "resume":
		return false, manager.Resume()
	case strings.HasPrefix(line, "navigate "):
		body, err := runner.Navigate(ctx, strings.TrimSpace(strings.TrimPrefix(line, "navigate ")))
		if body != "" {
			fmt.Println(body)
		}
		return false, err
	case strings.HasPrefix(line, "{"):
		var action types.PageAction
		if err := json.Unmarshal([]byte(line), &action); err != nil {
			return false, fmt.Errorf("parse action: %w", err)
		}
		return false, runner.Perform(ctx, action)
	default:
		return false, fmt.Errorf("unknown command %q", line)
	}
}

// printEngine stands in for the external browser driver: it echoes what the
// driver would be asked to do. The real driver is attached by the embedding
// tool through types.Engine.
type printEngine struct{}

func (printEngine) Navigate(ctx context.Context, url string) error {
	fmt.Printf("engine: navigate %s\n", url)
	return nil
}

func (printEngine) Perform(ctx context.Context, action types.PageAction) error {
	fmt.Printf("engine: %s %s\n", action.Kind, action.Target)
	return nil
}
