// Package discord connects the bot to the Discord gateway and implements its
// slash commands, buttons and event handlers.
package discord

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/ptscripts/ptbot/internal/config"
	"github.com/ptscripts/ptbot/internal/errors"
	"github.com/ptscripts/ptbot/internal/logger"
	"github.com/ptscripts/ptbot/internal/monitor"
	"github.com/ptscripts/ptbot/internal/statuspage"
	"github.com/ptscripts/ptbot/internal/store"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsMessageContent

// Bot is a running Discord client.
type Bot struct {
	cfg       *config.Config
	session   *discordgo.Session
	store     store.Store
	messenger *Messenger
	monitor   *monitor.Reconciler
	log       *logrus.Entry

	commands   map[string]handlerFunc
	components map[string]handlerFunc

	ctx    context.Context
	cancel context.CancelFunc

	syncedMu sync.Mutex
	synced   map[string]bool

	ready        atomic.Bool
	stopPresence chan struct{}
	presenceOnce sync.Once
	rotatorOnce  sync.Once
}

// New creates the session and the status monitor. Nothing connects until Open.
func New(cfg *config.Config, st store.Store, metrics *monitor.Metrics) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New(errors.ErrConfig, "Bot token is not set", "Set BOT_TOKEN in the environment or .env file")
	}

	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrDiscord, "Error creating Discord session", "")
	}
	dg.Identify.Intents = intents

	b := &Bot{
		cfg:          cfg,
		session:      dg,
		store:        st,
		messenger:    NewMessenger(dg),
		log:          logger.WithField("component", "discord"),
		synced:       make(map[string]bool),
		stopPresence: make(chan struct{}),
	}

	fetcher := statuspage.NewHTTPFetcher(cfg.Status.URL, cfg.Status.Timeout, "")
	b.monitor, err = monitor.New(fetcher, st, b.messenger, monitor.Options{
		Interval:  cfg.Status.Interval,
		StatusURL: cfg.Status.URL,
		Metrics:   metrics,
		GuildName: func(guildID string) string { return guildName(dg, guildID) },
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Invalid status monitor settings", "Check status.interval")
	}

	b.commands = b.commandHandlers()
	b.components = b.componentHandlers()
	return b, nil
}

// Monitor returns the FiveM status reconciler.
func (b *Bot) Monitor() *monitor.Reconciler { return b.monitor }

// Ready reports whether the gateway session is up and monitors are restored.
func (b *Bot) Ready() bool { return b.ready.Load() }

// Open connects to the gateway. The monitor loop starts from the Ready event.
func (b *Bot) Open(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onInteractionCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onReactionAdd)
	b.session.AddHandler(b.onReactionRemove)

	if err := b.session.Open(); err != nil {
		return errors.WrapWithCode(err, errors.ErrDiscord, "Cannot open the session", "Check the bot token and network access")
	}
	return nil
}

// Close stops the monitor, letting an in-flight tick finish, then disconnects.
func (b *Bot) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.monitor.Stop()
	b.presenceOnce.Do(func() { close(b.stopPresence) })
	b.ready.Store(false)
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.WithFields(logrus.Fields{
		"user":   r.User.Username,
		"guilds": len(r.Guilds),
	}).Info("Logged in")

	created := 0
	for _, g := range r.Guilds {
		if err := b.syncGuild(s, g.ID); err != nil {
			b.log.WithError(err).WithField("guild", g.ID).Warn("Failed to sync commands")
			continue
		}
		created++
	}
	b.log.Infof("Synchronized commands across %d guild(s)", created)

	go b.startMonitor()
	b.rotatorOnce.Do(func() { go b.startStatusRotator(s) })
}

// startMonitor restores saved monitors and launches the loop. Ready fires
// again after a reconnect; Hydrate and Start only act the first time.
func (b *Bot) startMonitor() {
	if err := b.monitor.Hydrate(b.ctx); err != nil {
		b.log.WithError(err).Error("Failed to restore status monitors")
	}
	if b.ctx.Err() != nil {
		return
	}
	if !b.monitor.Running() {
		if err := b.monitor.Start(b.ctx); err != nil {
			b.log.WithError(err).Debug("Monitor loop already running")
		}
	}
	b.ready.Store(true)
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Guild.ID == "" || g.Unavailable {
		return
	}
	if err := b.syncGuild(s, g.ID); err != nil {
		b.log.WithError(err).WithField("guild", g.ID).Warn("Failed to sync commands")
	}
}

// syncGuild registers commands once per guild per process.
func (b *Bot) syncGuild(s *discordgo.Session, guildID string) error {
	b.syncedMu.Lock()
	defer b.syncedMu.Unlock()
	if b.synced[guildID] {
		return nil
	}
	if err := b.syncCommands(s, guildID); err != nil {
		return fmt.Errorf("bulk overwrite: %w", err)
	}
	b.synced[guildID] = true
	return nil
}

func (b *Bot) isOwner(i *discordgo.InteractionCreate) bool {
	u := interactionUser(i)
	return b.cfg.OwnerID != "" && u != nil && u.ID == b.cfg.OwnerID
}
