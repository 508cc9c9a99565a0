// Package monitor keeps one live FiveM status message per guild in sync with
// the Cfx.re status page.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/ptscripts/ptbot/internal/errors"
	"github.com/ptscripts/ptbot/internal/logger"
	"github.com/ptscripts/ptbot/internal/statuspage"
	"github.com/ptscripts/ptbot/internal/store"
)

const (
	DefaultInterval = 5 * time.Minute
	minInterval     = time.Second
)

// Disable reasons, used as the metrics label and in logs.
const (
	reasonChannelGone   = "channel_unavailable"
	reasonCannotPost    = "cannot_post"
	reasonUserRequested = "user_requested"
)

// Options configures a Reconciler.
type Options struct {
	Interval  time.Duration
	StatusURL string
	Metrics   *Metrics

	// Render builds the status embed. Defaults to RenderStatus.
	Render func(*statuspage.Snapshot) *discordgo.MessageEmbed

	// GuildName resolves a display name for logs and the global listing.
	GuildName func(guildID string) string
}

// TickResult summarizes one reconciliation tick.
type TickResult struct {
	Skipped  bool // registry was empty, nothing fetched
	Err      error
	Edited   int
	Created  int
	Disabled int
	Failed   int
}

// Info describes the monitor of one guild.
type Info struct {
	Record   Record
	Running  bool
	Interval time.Duration
	LastTick time.Time
	NextTick time.Time
}

// Reconciler owns the Registry and drives the periodic status update.
type Reconciler struct {
	fetcher   statuspage.Fetcher
	store     store.Store
	messenger Messenger
	registry  *Registry
	metrics   *Metrics

	interval  time.Duration
	statusURL string
	render    func(*statuspage.Snapshot) *discordgo.MessageEmbed
	guildName func(string) string

	log *logrus.Entry

	// tickMu serializes ticks with configure and disable so a tick never
	// resurrects a monitor that was disabled while it ran.
	tickMu sync.Mutex

	mu       sync.RWMutex
	latest   *statuspage.Snapshot
	lastTick time.Time
	nextTick time.Time
	running  bool
	stopped  bool
	hydrated bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Reconciler with an empty registry.
func New(fetcher statuspage.Fetcher, st store.Store, messenger Messenger, opts Options) (*Reconciler, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if messenger == nil {
		return nil, fmt.Errorf("messenger cannot be nil")
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Interval < minInterval {
		return nil, fmt.Errorf("interval must be at least %v, got %v", minInterval, opts.Interval)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}

	r := &Reconciler{
		fetcher:   fetcher,
		store:     st,
		messenger: messenger,
		registry:  NewRegistry(),
		metrics:   opts.Metrics,
		interval:  opts.Interval,
		statusURL: opts.StatusURL,
		render:    opts.Render,
		guildName: opts.GuildName,
		log:       logger.WithField("component", "monitor"),
	}
	if r.render == nil {
		r.render = func(snap *statuspage.Snapshot) *discordgo.MessageEmbed {
			return RenderStatus(snap, r.statusURL, r.interval)
		}
	}
	if r.guildName == nil {
		r.guildName = func(string) string { return "" }
	}
	return r, nil
}

// Registry returns the registry of active monitors.
func (r *Reconciler) Registry() *Registry { return r.registry }

// Metrics returns the collectors the reconciler reports to.
func (r *Reconciler) Metrics() *Metrics { return r.metrics }

// Interval returns the pause between the end of one tick and the next.
func (r *Reconciler) Interval() time.Duration { return r.interval }

// Hydrate loads every active monitor from the store, validating channels and
// messages on the way. It runs once per process; later calls are no-ops.
func (r *Reconciler) Hydrate(ctx context.Context) error {
	r.mu.Lock()
	if r.hydrated {
		r.mu.Unlock()
		return nil
	}
	r.hydrated = true
	r.mu.Unlock()

	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	docs, err := r.store.List(ctx)
	if err != nil {
		r.mu.Lock()
		r.hydrated = false
		r.mu.Unlock()
		return errors.WrapWithCode(err, errors.ErrStorage,
			"Failed to load monitor settings", "Check the storage path and permissions")
	}

	for guildID, doc := range docs {
		if !doc.MonitorActive || doc.StatusChannelID == "" {
			continue
		}
		rec := Record{
			GuildID:   guildID,
			GuildName: r.guildName(guildID),
			ChannelID: doc.StatusChannelID.String(),
			MessageID: doc.StatusMessageID.String(),
		}
		log := r.log.WithFields(logrus.Fields{"guild": guildID, "channel": rec.ChannelID})

		if err := r.messenger.CheckChannel(ctx, rec.ChannelID); err != nil {
			if isStale(err) {
				log.WithError(err).Warn("Status channel unavailable, disabling monitor")
				r.persistDisabled(ctx, guildID)
				r.metrics.Disabled.WithLabelValues(reasonChannelGone).Inc()
				continue
			}
			log.WithError(err).Warn("Could not verify status channel, keeping monitor")
		}

		if rec.MessageID != "" {
			if err := r.messenger.FetchMessage(ctx, rec.ChannelID, rec.MessageID); isNotFound(err) {
				log.WithField("message", rec.MessageID).Info("Status message gone, a new one will be created")
				rec.MessageID = ""
				r.persistActive(ctx, rec)
			}
		}

		r.registry.Set(rec)
		log.Info("Restored status monitor")
	}

	r.metrics.ActiveMonitors.Set(float64(r.registry.Len()))
	r.log.WithField("active", r.registry.Len()).Info("Monitor hydration complete")
	return nil
}

// Tick runs one reconciliation pass over every registered guild. A failed
// fetch leaves all messages and records untouched.
func (r *Reconciler) Tick(ctx context.Context) TickResult {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	return r.tickLocked(ctx)
}

func (r *Reconciler) tickLocked(ctx context.Context) TickResult {
	var res TickResult

	records := r.registry.Snapshot()
	if len(records) == 0 {
		res.Skipped = true
		r.metrics.Ticks.WithLabelValues("idle").Inc()
		return res
	}

	start := time.Now()
	snap, err := statuspage.FetchSnapshot(ctx, r.fetcher)
	if err != nil {
		r.log.WithError(err).Warn("Status page fetch failed, skipping tick")
		r.metrics.Ticks.WithLabelValues("fetch_failed").Inc()
		res.Err = errors.WrapWithCode(err, errors.ErrFetch,
			"Failed to fetch FiveM status", "The status page may be down, try again later")
		return res
	}
	r.setLatest(snap)

	embed := r.render(snap)
	for _, rec := range records {
		r.reconcileGuild(ctx, rec, embed, &res)
	}

	r.mu.Lock()
	r.lastTick = time.Now()
	r.mu.Unlock()

	r.metrics.observeSnapshot(snap, time.Since(start))
	r.metrics.ActiveMonitors.Set(float64(r.registry.Len()))
	r.log.WithFields(logrus.Fields{
		"overall":  snap.Overall,
		"edited":   res.Edited,
		"created":  res.Created,
		"disabled": res.Disabled,
		"failed":   res.Failed,
	}).Debug("Tick complete")
	return res
}

func (r *Reconciler) reconcileGuild(ctx context.Context, rec Record, embed *discordgo.MessageEmbed, res *TickResult) {
	log := r.log.WithFields(logrus.Fields{"guild": rec.GuildID, "channel": rec.ChannelID})

	if err := r.messenger.CheckChannel(ctx, rec.ChannelID); err != nil {
		if isStale(err) {
			log.WithError(err).Warn("Status channel unavailable, disabling monitor")
			r.disableLocked(ctx, rec.GuildID, reasonChannelGone)
			res.Disabled++
			return
		}
		log.WithError(err).Warn("Channel check failed, retrying next tick")
		r.guildFailed(res)
		return
	}

	if rec.MessageID == "" {
		r.createOrDisable(ctx, rec, embed, res, log)
		return
	}

	err := r.messenger.EditMessage(ctx, rec.ChannelID, rec.MessageID, embed)
	switch {
	case err == nil:
		res.Edited++
		r.metrics.MessagesEdited.Inc()
	case isNotFound(err):
		log.WithField("message", rec.MessageID).Info("Status message deleted, recreating")
		r.registry.SetMessageID(rec.GuildID, "")
		rec.MessageID = ""
		r.persistActive(ctx, rec)
		if r.createOrDisable(ctx, rec, embed, res, log) {
			r.metrics.SelfHeals.Inc()
		}
	case isForbidden(err):
		log.WithError(err).Warn("Cannot edit status message, posting a new one")
		if r.createOrDisable(ctx, rec, embed, res, log) {
			r.metrics.SelfHeals.Inc()
		}
	default:
		log.WithError(err).Warn("Status message update failed, retrying next tick")
		r.guildFailed(res)
	}
}

// createOrDisable posts a fresh status message for rec. A not-found or
// forbidden answer disables the monitor; other failures wait for the next tick.
func (r *Reconciler) createOrDisable(ctx context.Context, rec Record, embed *discordgo.MessageEmbed, res *TickResult, log *logrus.Entry) bool {
	msgID, err := r.messenger.CreateMessage(ctx, rec.ChannelID, embed)
	if err != nil {
		if isStale(err) {
			log.WithError(err).Warn("Cannot post status message, disabling monitor")
			r.disableLocked(ctx, rec.GuildID, reasonCannotPost)
			res.Disabled++
			return false
		}
		log.WithError(err).Warn("Status message creation failed, retrying next tick")
		r.guildFailed(res)
		return false
	}

	res.Created++
	r.metrics.MessagesCreated.Inc()
	rec.MessageID = msgID
	r.registry.SetMessageID(rec.GuildID, msgID)
	r.persistActive(ctx, rec)
	log.WithField("message", msgID).Info("Posted status message")
	return true
}

func (r *Reconciler) guildFailed(res *TickResult) {
	res.Failed++
	r.metrics.GuildErrors.Inc()
}

// Configure starts or moves the guild's monitor to channelID and posts the
// first status message immediately.
func (r *Reconciler) Configure(ctx context.Context, guildID, guildName, channelID string) (Record, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	log := r.log.WithFields(logrus.Fields{"guild": guildID, "channel": channelID})

	if err := r.messenger.CheckChannel(ctx, channelID); err != nil {
		if isStale(err) {
			return Record{}, errors.WrapWithCode(err, errors.ErrPermission,
				"I can't send messages in that channel",
				"Give me View Channel, Send Messages and Embed Links there")
		}
		return Record{}, errors.Wrap(err, "Failed to check the channel")
	}

	snap, err := statuspage.FetchSnapshot(ctx, r.fetcher)
	if err != nil {
		snap = r.Latest()
		if snap == nil {
			return Record{}, errors.WrapWithCode(err, errors.ErrFetch,
				"Failed to fetch FiveM status", "The status page may be down, try again later")
		}
		log.WithError(err).Warn("Fresh fetch failed, using last known status")
	} else {
		r.setLatest(snap)
	}

	msgID, err := r.messenger.CreateMessage(ctx, channelID, r.render(snap))
	if err != nil {
		if isStale(err) {
			return Record{}, errors.WrapWithCode(err, errors.ErrPermission,
				"I can't send messages in that channel",
				"Give me View Channel, Send Messages and Embed Links there")
		}
		return Record{}, errors.Wrap(err, "Failed to post the status message")
	}
	r.metrics.MessagesCreated.Inc()

	rec := Record{GuildID: guildID, GuildName: guildName, ChannelID: channelID, MessageID: msgID}
	r.registry.Set(rec)
	r.metrics.ActiveMonitors.Set(float64(r.registry.Len()))
	r.persistActive(ctx, rec)

	log.WithField("message", msgID).Info("Status monitor configured")
	return rec, nil
}

// Disable stops the guild's monitor. It reports false if no monitor was
// active. The status message itself is left in place.
func (r *Reconciler) Disable(ctx context.Context, guildID string) (bool, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	if _, ok := r.registry.Get(guildID); !ok {
		doc, err := r.store.Get(ctx, guildID)
		if err != nil {
			return false, errors.WrapWithCode(err, errors.ErrStorage, "Failed to read settings", "")
		}
		if !doc.MonitorActive {
			return false, nil
		}
	}

	if err := r.disableLocked(ctx, guildID, reasonUserRequested); err != nil {
		return true, errors.WrapWithCode(err, errors.ErrStorage,
			"Monitor stopped but the change could not be saved", "It may come back after a restart")
	}
	return true, nil
}

func (r *Reconciler) disableLocked(ctx context.Context, guildID, reason string) error {
	r.registry.Remove(guildID)
	r.metrics.Disabled.WithLabelValues(reason).Inc()
	r.metrics.ActiveMonitors.Set(float64(r.registry.Len()))
	r.log.WithFields(logrus.Fields{"guild": guildID, "reason": reason}).Info("Status monitor disabled")
	return r.persistDisabled(ctx, guildID)
}

// ForceUpdate runs a tick now instead of waiting for the interval.
func (r *Reconciler) ForceUpdate(ctx context.Context) TickResult {
	return r.Tick(ctx)
}

// Info returns the monitor state of one guild.
func (r *Reconciler) Info(guildID string) (Info, bool) {
	rec, ok := r.registry.Get(guildID)
	if !ok {
		return Info{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Info{
		Record:   rec,
		Running:  r.running,
		Interval: r.interval,
		LastTick: r.lastTick,
		NextTick: r.nextTick,
	}, true
}

// Monitors returns every active monitor ordered by guild id.
func (r *Reconciler) Monitors() []Record {
	return r.registry.Snapshot()
}

// Latest returns the most recent successfully fetched snapshot, or nil.
func (r *Reconciler) Latest() *statuspage.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Current fetches a fresh snapshot for an on-demand status check.
func (r *Reconciler) Current(ctx context.Context) (*statuspage.Snapshot, error) {
	snap, err := statuspage.FetchSnapshot(ctx, r.fetcher)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrFetch,
			"Failed to fetch FiveM status", "The status page may be down, try again later")
	}
	r.setLatest(snap)
	return snap, nil
}

// Render builds the status embed for snap.
func (r *Reconciler) Render(snap *statuspage.Snapshot) *discordgo.MessageEmbed {
	return r.render(snap)
}

func (r *Reconciler) setLatest(snap *statuspage.Snapshot) {
	r.mu.Lock()
	r.latest = snap
	r.mu.Unlock()
}

// Start launches the periodic loop. The first tick runs immediately and the
// interval is measured from the end of each tick, so ticks never overlap.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("monitor is already running")
	}
	if r.stopped {
		return fmt.Errorf("monitor has been stopped")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("monitor not started: %w", err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.loop(loopCtx)

	r.log.WithField("interval", r.interval).Info("Status monitor loop started")
	return nil
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		// An in-flight tick is allowed to finish on shutdown.
		r.Tick(context.WithoutCancel(ctx))

		r.mu.Lock()
		r.nextTick = time.Now().Add(r.interval)
		r.mu.Unlock()

		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop ends the loop and waits for an in-flight tick to finish. A stopped
// reconciler cannot be started again.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	r.stopped = true
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info("Status monitor loop stopped")
}

// Running reports whether the loop is active.
func (r *Reconciler) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Reconciler) persistActive(ctx context.Context, rec Record) {
	_, err := store.Update(ctx, r.store, rec.GuildID, func(s *store.GuildSettings) {
		s.StatusChannelID = store.Snowflake(rec.ChannelID)
		s.StatusMessageID = store.Snowflake(rec.MessageID)
		s.MonitorActive = true
	})
	if err != nil {
		r.metrics.PersistErrors.Inc()
		r.log.WithError(err).WithField("guild", rec.GuildID).Error("Failed to save monitor state")
	}
}

func (r *Reconciler) persistDisabled(ctx context.Context, guildID string) error {
	_, err := store.Update(ctx, r.store, guildID, func(s *store.GuildSettings) {
		s.MonitorActive = false
		s.StatusMessageID = ""
	})
	if err != nil {
		r.metrics.PersistErrors.Inc()
		r.log.WithError(err).WithField("guild", guildID).Error("Failed to save disabled monitor")
	}
	return err
}
