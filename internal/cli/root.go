// Package cli wires the browsegate commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/browsegate/browsegate/internal/config"
)

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "browsegate",
		Short:         "browsegate: supervised automated browsing sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("browsegate {{.Version}}\n")

	cmd.PersistentFlags().String("config", getenvDefault("BROWSEGATE_CONFIG", ""), "Path to config file (YAML)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newCacheCmd())

	return cmd
}

// loadConfig resolves the --config flag, falling back to defaults when no
// file is given.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
