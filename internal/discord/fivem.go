package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ptscripts/ptbot/internal/errors"
	"github.com/ptscripts/ptbot/internal/monitor"
)

var errMonitorNotConfigured = errors.New(errors.ErrNotConfigured,
	"No FiveM status monitor is active in this server",
	"Use /fivem-monitor-configure to set one up")

func (b *Bot) handleFivemStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !deferResponse(s, i, false) {
		return
	}
	snap, err := b.monitor.Current(b.ctx)
	if err != nil {
		editResponseError(s, i, err)
		return
	}
	editResponse(s, i, b.monitor.Render(snap))
}

func (b *Bot) handleMonitorConfigure(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID := optionID(i, "channel", "")
	if channelID == "" {
		respondError(s, i, errors.New(errors.ErrConfig, "Pick a channel for the status message", ""))
		return
	}
	if !deferResponse(s, i, true) {
		return
	}

	rec, err := b.monitor.Configure(b.ctx, i.GuildID, guildName(s, i.GuildID), channelID)
	if err != nil {
		editResponseError(s, i, err)
		return
	}

	editResponse(s, i, &discordgo.MessageEmbed{
		Title:       "✅ FiveM status monitor configured",
		Description: fmt.Sprintf("The status message in <#%s> updates every %s.", rec.ChannelID, b.monitor.Interval()),
		Color:       colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Channel", Value: fmt.Sprintf("<#%s>", rec.ChannelID), Inline: true},
			{Name: "Message", Value: messageLink(rec), Inline: true},
		},
	})
}

func (b *Bot) handleMonitorDisable(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ok, err := b.monitor.Disable(b.ctx, i.GuildID)
	if err != nil {
		respondError(s, i, err)
		return
	}
	if !ok {
		respondError(s, i, errMonitorNotConfigured)
		return
	}
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "🛑 FiveM status monitor disabled",
		Description: "The status message will no longer be updated. You can delete it or configure the monitor again.",
		Color:       colorError,
	}, true)
}

func (b *Bot) handleMonitorUpdate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if _, ok := b.monitor.Info(i.GuildID); !ok {
		respondError(s, i, errMonitorNotConfigured)
		return
	}
	if !deferResponse(s, i, true) {
		return
	}

	res := b.monitor.ForceUpdate(b.ctx)
	if res.Err != nil {
		editResponseError(s, i, res.Err)
		return
	}
	editResponse(s, i, &discordgo.MessageEmbed{
		Title: "🔄 FiveM status updated",
		Description: fmt.Sprintf("Edited %d, created %d, disabled %d, failed %d.",
			res.Edited, res.Created, res.Disabled, res.Failed),
		Color: colorSuccess,
	})
}

func (b *Bot) handleMonitorInfo(s *discordgo.Session, i *discordgo.InteractionCreate) {
	info, ok := b.monitor.Info(i.GuildID)
	if !ok {
		respondError(s, i, errMonitorNotConfigured)
		return
	}
	respondEmbed(s, i, monitorInfoEmbed(info), true)
}

func (b *Bot) handleMonitorGlobal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.isOwner(i) {
		respondText(s, i, "You are not authorized to use this command.", true)
		return
	}

	recs := b.monitor.Monitors()
	var sb strings.Builder
	for _, rec := range recs {
		name := rec.GuildName
		if name == "" {
			name = guildName(s, rec.GuildID)
		}
		sb.WriteString(fmt.Sprintf("**%s** (ID: %s) → <#%s>\n", name, rec.GuildID, rec.ChannelID))
	}
	if sb.Len() == 0 {
		sb.WriteString("No active monitors.")
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🌐 Active FiveM monitors (%d)", len(recs)),
		Description: truncate(sb.String(), 4000),
		Color:       colorInfo,
	}
	if latest := b.monitor.Latest(); latest != nil {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Overall", Value: latest.Overall.Label(), Inline: true},
			{Name: "Fetched", Value: fmt.Sprintf("<t:%d:R>", latest.FetchedAt.Unix()), Inline: true},
		}
	}
	respondEmbed(s, i, embed, true)
}

func monitorInfoEmbed(info monitor.Info) *discordgo.MessageEmbed {
	state := "🟢 Running"
	if !info.Running {
		state = "🟡 Waiting for the update loop"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Channel", Value: fmt.Sprintf("<#%s>", info.Record.ChannelID), Inline: true},
		{Name: "Message", Value: messageLink(info.Record), Inline: true},
		{Name: "Interval", Value: info.Interval.String(), Inline: true},
		{Name: "State", Value: state, Inline: true},
	}
	if !info.LastTick.IsZero() {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Last update", Value: discordTime(info.LastTick), Inline: true,
		})
	}
	if !info.NextTick.IsZero() {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Next update", Value: discordTime(info.NextTick), Inline: true,
		})
	}
	return &discordgo.MessageEmbed{
		Title:  "📊 FiveM status monitor",
		Color:  colorInfo,
		Fields: fields,
	}
}

func messageLink(rec monitor.Record) string {
	if rec.MessageID == "" {
		return "Pending, created on the next update"
	}
	return fmt.Sprintf("[Jump](https://discord.com/channels/%s/%s/%s)", rec.GuildID, rec.ChannelID, rec.MessageID)
}

func discordTime(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
