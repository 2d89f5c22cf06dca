package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "clanctl",
		Short: "CLI tool for the clan admin API",
		Long: `clanctl talks to the clan admin server's JSON API.

It triggers roster syncs and inactivity checks, looks up members and their
rank history, and manages ranks and event points. Commands that change data
need a staff token (see hash-token).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			// Load token from file if not provided via flag/env
			if err := cfg.LoadToken(); err != nil {
				return err
			}

			if cfg.Verbose {
				fmt.Fprintf(os.Stderr, "server: %s\n", cfg.ServerURL)
			}
			client = NewClient(cfg.ServerURL, cfg.Token, cfg.Timeout)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: CLANADMIN_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "Staff token (env: CLANADMIN_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "Token file path (env: CLANADMIN_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Request timeout")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newInactivityCmd())
	rootCmd.AddCommand(newMemberCmd())
	rootCmd.AddCommand(newRankCmd())
	rootCmd.AddCommand(newPointsCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newHashTokenCmd())

	return rootCmd
}

// Execute runs the root command; an interrupt cancels the in-flight request
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
