package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/browsegate/browsegate/internal/audit"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and maintain the audit log",
	}
	cmd.AddCommand(newAuditListCmd())
	cmd.AddCommand(newAuditShowCmd())
	cmd.AddCommand(newAuditVerifyCmd())
	cmd.AddCommand(newAuditRotateCmd())
	return cmd
}

func openStore(cmd *cobra.Command) (*audit.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return audit.NewStore(cfg.Audit.Path)
}

func newAuditListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List finalized sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			records, err := store.ReadAll()
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Printf("%s  %-24s  site=%-20s  entries=%d  duration=%s\n",
					rec.StartedAt.Format(time.RFC3339), rec.SessionID, rec.Site, len(rec.Entries), rec.Duration)
			}
			return nil
		},
	}
}

func newAuditShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one session record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			rec, ok, err := store.BySession(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return NewExitError(1, fmt.Sprintf("no record for session %s", args[0]))
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}

func newAuditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute the tamper-evidence chain and compare",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			records, err := store.ReadAll()
			if err != nil {
				return err
			}
			if err := audit.VerifyChain(records); err != nil {
				return NewExitError(1, err.Error())
			}
			fmt.Printf("chain intact: %d records\n", len(records))
			return nil
		},
	}
}

func newAuditRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Drop records outside the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := audit.NewStore(cfg.Audit.Path)
			if err != nil {
				return err
			}
			dropped, err := store.Rotate(cfg.Audit.Retention.Duration, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("dropped %d records\n", dropped)
			return nil
		},
	}
}
