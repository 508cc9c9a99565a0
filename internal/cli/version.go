package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ptscripts/ptbot/internal/discord"
)

// Build information set via ldflags.
var (
	commit = "none"
	date   = "unknown"
)

// SetBuildInfo records the commit and build date (called from main).
func SetBuildInfo(c, d string) {
	commit = c
	date = d
}

func versionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, discord.Version)
				return
			}
			fmt.Fprintf(out, "ptbot v%s\n", discord.Version)
			fmt.Fprintf(out, "commit: %s\n", commit)
			fmt.Fprintf(out, "built: %s\n", date)
			fmt.Fprintf(out, "go: %s\n", runtime.Version())
			fmt.Fprintf(out, "os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}
