package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMemberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Member lookup commands",
	}

	cmd.AddCommand(newMemberInfoCmd())
	cmd.AddCommand(newMemberHistoryCmd())
	cmd.AddCommand(newMemberExemptCmd())

	return cmd
}

func newMemberInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <rsn>",
		Short: "Show a member's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Member

			if err := client.Get(cmd.Context(), memberPath(args[0], ""), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newMemberHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <rsn>",
		Short: "Show a member's rank history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result RankHistory

			path := memberPath(args[0], fmt.Sprintf("/rank-history?limit=%d", limit))
			if err := client.Get(cmd.Context(), path, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum entries (0 for all)")

	return cmd
}

func newMemberExemptCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "exempt <rsn>",
		Short: "Exempt a member from inactivity checks for three months",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"reason": reason}
			var result Exemption

			if err := client.Post(cmd.Context(), memberPath(args[0], "/exemption"), req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the member is exempt")

	return cmd
}
