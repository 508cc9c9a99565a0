package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ptscripts/ptbot/internal/config"
	"github.com/ptscripts/ptbot/internal/errors"
	"github.com/ptscripts/ptbot/internal/statuspage"
)

func checkCmd(configPath *string) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fetch the status page once and print the parsed result",
		Long: `Fetch and parse the Cfx.re status page once, without connecting to Discord.

Exits with status 1 if the page cannot be fetched.

Examples:
  ptbot check
  ptbot check --url http://localhost:8080/status.html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if url != "" {
				cfg.Status.URL = url
			}
			if err := cfg.ValidateStatus(); err != nil {
				return err
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), statuspage.NewHTTPFetcher(cfg.Status.URL, cfg.Status.Timeout, ""), cfg.Status.URL)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "status page URL (overrides config)")
	return cmd
}

func runCheck(ctx context.Context, out io.Writer, f statuspage.Fetcher, url string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	snap, err := statuspage.FetchSnapshot(ctx, f)
	if err != nil {
		fmt.Fprintf(out, "%s %s\n", color.New(color.FgRed).Sprint("FAIL"), url)
		return errors.WrapWithCode(err, errors.ErrFetch,
			"Failed to fetch the status page", "Check the URL and your network connection")
	}

	fmt.Fprintf(out, "%s %s\n\n", color.New(color.Bold).Sprint("Status page:"), url)
	printSnapshot(out, snap)
	return nil
}

func printSnapshot(out io.Writer, snap *statuspage.Snapshot) {
	width := 0
	for _, ss := range snap.Services {
		if len(ss.Service.Name) > width {
			width = len(ss.Service.Name)
		}
	}

	for _, g := range []statuspage.Group{statuspage.GroupGaming, statuspage.GroupPlatform, statuspage.GroupCommunity} {
		fmt.Fprintln(out, color.New(color.Bold).Sprint(strings.ToUpper(string(g))))
		for _, ss := range snap.InGroup(g) {
			fmt.Fprintf(out, "  %-*s  %s\n", width, ss.Service.Name, statusColor(ss.Status).Sprint(string(ss.Status)))
		}
	}
	fmt.Fprintf(out, "\nOverall: %s\n", overallColor(snap.Overall).Sprint(string(snap.Overall)))
}

func statusColor(s statuspage.Status) *color.Color {
	switch s {
	case statuspage.StatusOperational:
		return color.New(color.FgGreen)
	case statuspage.StatusDegraded, statuspage.StatusMaintenance:
		return color.New(color.FgYellow)
	case statuspage.StatusPartialOutage, statuspage.StatusMajorOutage:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiBlack)
	}
}

func overallColor(o statuspage.Overall) *color.Color {
	switch o {
	case statuspage.OverallOperational:
		return color.New(color.FgGreen)
	case statuspage.OverallPartial:
		return color.New(color.FgYellow)
	case statuspage.OverallMajor:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiBlack)
	}
}
