package cli

import (
	"github.com/spf13/cobra"
)

func newRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank management commands",
	}

	cmd.AddCommand(newRankSetCmd())
	cmd.AddCommand(newRankBulkCmd())

	return cmd
}

func newRankSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <rsn> <rank>",
		Short: "Set a member's rank",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"rank": args[1]}
			var result RankChange

			if err := client.Post(cmd.Context(), memberPath(args[0], "/rank"), req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newRankBulkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bulk <rank> <rsn>...",
		Short: "Set the same rank on several members",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"rank": args[0], "rsns": args[1:]}
			var result BulkResults

			if err := client.Post(cmd.Context(), "/api/v1/ranks/bulk", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}
