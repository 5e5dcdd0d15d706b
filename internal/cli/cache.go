package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/browsegate/browsegate/internal/config"
	"github.com/browsegate/browsegate/internal/credcache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the encrypted credential cache",
	}
	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCacheGCCmd())
	return cmd
}

func openCache(cmd *cobra.Command) (*credcache.Cache, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg.Logging, os.Stderr)
	return credcache.New(cfg.Cache, logger)
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(cmd)
			if err != nil {
				return err
			}
			if err := cache.Clear(); err != nil {
				return err
			}
			fmt.Println("cache cleared")
			return nil
		},
	}
}

func newCacheGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Drop expired entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(cmd)
			if err != nil {
				return err
			}
			if err := cache.GC(); err != nil {
				return err
			}
			fmt.Println("expired entries dropped")
			return nil
		},
	}
}
