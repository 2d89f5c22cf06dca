package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/clanadmin/internal/services/auth"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health and whether a run is in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result HealthResult

			if err := client.Get(cmd.Context(), "/api/v1/health", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			if result.Status != "ok" {
				return fmt.Errorf("server unhealthy: %s", result.Status)
			}
			return nil
		},
	}
}

func newHashTokenCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Generate a staff token (or hash a given one) for the server config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := auth.GenerateToken()
			if len(args) == 1 {
				token = args[0]
			}

			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}

			if save {
				if err := cfg.SaveToken(token); err != nil {
					return fmt.Errorf("saving token: %w", err)
				}
			}

			out := NewOutput(cfg.Output)
			out.Print(TokenResult{Token: token, Hash: hash})
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Also write the token to the token file")

	return cmd
}
