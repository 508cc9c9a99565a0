package discord

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ptscripts/ptbot/internal/errors"
)

func (b *Bot) handlePing(s *discordgo.Session, i *discordgo.InteractionCreate) {
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "🏓 Pong!",
		Description: fmt.Sprintf("Latency: **%dms**", s.HeartbeatLatency().Milliseconds()),
		Color:       colorSuccess,
	}, false)
}

func (b *Bot) handleServerInfo(s *discordgo.Session, i *discordgo.InteractionCreate) {
	g, err := s.State.Guild(i.GuildID)
	if err != nil {
		respondError(s, i, errors.Wrap(err, "Could not load this server"))
		return
	}
	respondEmbed(s, i, serverInfoEmbed(g), false)
}

func serverInfoEmbed(g *discordgo.Guild) *discordgo.MessageEmbed {
	var text, voice, categories int
	for _, ch := range g.Channels {
		switch ch.Type {
		case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
			text++
		case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
			voice++
		case discordgo.ChannelTypeGuildCategory:
			categories++
		}
	}

	created := "Unknown"
	if t, err := discordgo.SnowflakeTimestamp(g.ID); err == nil {
		created = fmt.Sprintf("<t:%d:D>", t.Unix())
	}

	embed := &discordgo.MessageEmbed{
		Title: "📊 " + g.Name,
		Color: colorBrand,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "👑 Owner", Value: fmt.Sprintf("<@%s>", g.OwnerID), Inline: true},
			{Name: "🆔 Server ID", Value: g.ID, Inline: true},
			{Name: "📅 Created", Value: created, Inline: true},
			{Name: "👥 Members", Value: fmt.Sprintf("%d", g.MemberCount), Inline: true},
			{Name: "🎭 Roles", Value: fmt.Sprintf("%d", len(g.Roles)), Inline: true},
			{Name: "😀 Emojis", Value: fmt.Sprintf("%d", len(g.Emojis)), Inline: true},
			{Name: "💬 Channels", Value: fmt.Sprintf("%d text · %d voice · %d categories", text, voice, categories)},
			{Name: "🚀 Boosts", Value: fmt.Sprintf("Level %d (%d boosts)", g.PremiumTier, g.PremiumSubscriptionCount), Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if g.Icon != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: g.IconURL("256")}
	}
	return embed
}

func (b *Bot) handleServerIcon(s *discordgo.Session, i *discordgo.InteractionCreate) {
	g, err := s.State.Guild(i.GuildID)
	if err != nil {
		respondError(s, i, errors.Wrap(err, "Could not load this server"))
		return
	}
	if g.Icon == "" {
		respondError(s, i, errors.New(errors.ErrNotConfigured, "This server has no icon", ""))
		return
	}
	url := g.IconURL("1024")
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "🖼️ " + g.Name,
		Description: fmt.Sprintf("[Download](%s)", url),
		Color:       colorBrand,
		Image:       &discordgo.MessageEmbedImage{URL: url},
	}, false)
}
