package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newPointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Event point commands",
	}

	cmd.AddCommand(newPointsAddCmd())
	cmd.AddCommand(newPointsBulkCmd())
	cmd.AddCommand(newPointsLeaderboardCmd())

	return cmd
}

func parsePoints(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("points must be a non-zero integer, got %q", s)
	}
	return n, nil
}

func newPointsAddCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "add <rsn> <points>",
		Short: "Grant points to a member (negative to remove)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := parsePoints(args[1])
			if err != nil {
				return err
			}

			req := map[string]any{"points": points, "reason": reason}
			var result Points

			if err := client.Post(cmd.Context(), memberPath(args[0], "/points"), req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the points were granted")

	return cmd
}

func newPointsBulkCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "bulk <points> <rsn>...",
		Short: "Grant the same points to several members",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := parsePoints(args[0])
			if err != nil {
				return err
			}

			req := map[string]any{"rsns": args[1:], "points": points, "reason": reason}
			var result BulkResults

			if err := client.Post(cmd.Context(), "/api/v1/points/bulk", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the points were granted")

	return cmd
}

func newPointsLeaderboardCmd() *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show active members ranked by event points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if page < 1 {
				return fmt.Errorf("page must be at least 1, got %d", page)
			}
			var result Leaderboard

			if err := client.Get(cmd.Context(), fmt.Sprintf("/api/v1/points/leaderboard?page=%d", page), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page of 50 members to show")

	return cmd
}
