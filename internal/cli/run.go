package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ptscripts/ptbot/internal/config"
	"github.com/ptscripts/ptbot/internal/discord"
	"github.com/ptscripts/ptbot/internal/health"
	"github.com/ptscripts/ptbot/internal/logger"
	"github.com/ptscripts/ptbot/internal/monitor"
	"github.com/ptscripts/ptbot/internal/statuspage"
	"github.com/ptscripts/ptbot/internal/store"
)

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and start the status monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), *configPath)
		},
	}
}

// monitorStatus is the /status payload of the health server.
type monitorStatus struct {
	Version        string    `json:"version"`
	ActiveMonitors int       `json:"active_monitors"`
	Interval       string    `json:"interval"`
	Overall        string    `json:"overall,omitempty"`
	LastFetch      time.Time `json:"last_fetch,omitempty"`
}

func statusFunc(r *monitor.Reconciler) func() interface{} {
	return func() interface{} {
		st := monitorStatus{
			Version:        discord.Version,
			ActiveMonitors: r.Registry().Len(),
			Interval:       r.Interval().String(),
		}
		if snap := r.Latest(); snap != nil {
			st.Overall = string(snap.Overall)
			st.LastFetch = snap.FetchedAt
		}
		return st
	}
}

func runBot(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.Initialize(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.File); err != nil {
		return err
	}
	defer logger.Close()

	st, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	metrics := monitor.NewMetrics()
	bot, err := discord.New(cfg, st, metrics)
	if err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		srv, err := health.NewServer(&health.Config{
			Listen:  cfg.Metrics.Listen,
			Ready:   bot.Ready,
			Status:  statusFunc(bot.Monitor()),
			Metrics: metrics.Handler(),
		})
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			if err := srv.Stop(); err != nil {
				logger.WithError(err).Warn("Failed to stop health server")
			}
		}()
	}

	logger.WithFields(logrus.Fields{
		"version":    discord.Version,
		"status_url": cfg.Status.URL,
		"interval":   cfg.Status.Interval.String(),
		"storage":    cfg.Storage.Driver,
		"services":   len(statuspage.Services),
	}).Info("Starting bot")

	if err := bot.Open(ctx); err != nil {
		return err
	}

	logger.Infof("Bot is now running. Press CTRL-C to exit.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	select {
	case <-sc:
	case <-ctx.Done():
	}
	signal.Stop(sc)

	logger.Infof("Shutting down")
	return bot.Close()
}
