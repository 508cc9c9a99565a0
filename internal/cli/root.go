// Package cli implements the ptbot command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the ptbot command tree. Running ptbot without a
// subcommand starts the bot.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "ptbot",
		Short: "Discord community bot with a live FiveM status monitor",
		Long: `ptbot keeps a live FiveM / Cfx.re status message in every configured
Discord server, and provides welcome messages, support tickets and
reaction verification.

Configuration comes from .env, an optional YAML file (--config) and
environment variables such as BOT_TOKEN, OWNER_ID and STATUS_INTERVAL.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(runCmd(&configPath))
	root.AddCommand(checkCmd(&configPath))
	root.AddCommand(versionCmd())
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
