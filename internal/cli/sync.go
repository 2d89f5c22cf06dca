package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var live, force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the clan roster (dry run unless --live)",
		Long: `Compare the external group roster against the clan database.

Without --live nothing is written and the report describes what would change.
--force applies external ranks even past the mismatch threshold; it needs --live.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if force && !live {
				return errors.New("--force requires --live")
			}

			req := map[string]bool{"dry_run": !live, "force": force}
			var result SyncResult

			if err := client.Post(cmd.Context(), "/api/v1/sync", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			if result.Outcome == "failed" {
				return errors.New("sync failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Write changes to the database")
	cmd.Flags().BoolVar(&force, "force", false, "Apply rank mismatches even past the threshold")

	return cmd
}

func newInactivityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inactivity",
		Short: "Report members eligible for removal or at risk",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result InactivityResult

			if err := client.Post(cmd.Context(), "/api/v1/inactivity", nil, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}
