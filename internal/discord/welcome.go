package discord

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/ptscripts/ptbot/internal/errors"
	"github.com/ptscripts/ptbot/internal/store"
)

func (b *Bot) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	log := b.log.WithFields(logrus.Fields{"guild": m.GuildID, "user": m.User.ID})

	settings, err := b.store.Get(b.ctx, m.GuildID)
	if err != nil {
		log.WithError(err).Error("Failed to load welcome settings")
		return
	}
	if settings.WelcomeChannelID == "" {
		return
	}

	guild, err := s.State.Guild(m.GuildID)
	if err != nil {
		guild, err = s.Guild(m.GuildID)
		if err != nil {
			log.WithError(err).Warn("Guild not found for welcome message")
			return
		}
	}

	channelID := settings.WelcomeChannelID.String()
	if err := b.messenger.CheckChannel(b.ctx, channelID); err != nil {
		log.WithError(err).WithField("channel", channelID).Error("Welcome channel unavailable")
		return
	}

	embed := welcomeEmbed(m.Member, guild, time.Now())
	if _, err := b.messenger.SendComplex(b.ctx, channelID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}); err != nil {
		log.WithError(err).Error("Error sending welcome message")
		return
	}
	log.Info("Welcome message sent")
}

// welcomeEmbed renders the greeting for member joining guild.
func welcomeEmbed(member *discordgo.Member, guild *discordgo.Guild, now time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "🌟 A new member has arrived in the city! 🌟",
		Description: fmt.Sprintf("## Welcome %s! 👋\n\n"+
			"🎭 You have arrived at **%s**, where every story begins with a decision...\n\n"+
			"### 🚀 **First steps:**\n"+
			"🔐 **Verification:** head to the verification channel and react to get full access\n"+
			"📋 **Rules:** read our rules to keep the city in harmony\n"+
			"🎤 **Introduce yourself:** tell us who you are and what brings you here\n"+
			"🎮 **Roleplay:** dive into the experience!\n\n"+
			"### 💡 **Need help?**\n"+
			"🎫 Open a support ticket and our staff will assist you\n"+
			"👥 Ask other members of the community\n\n"+
			"✨ *We hope you have an unforgettable time here!* ✨",
			member.Mention(), guild.Name),
		Color:     colorBrand,
		Timestamp: now.UTC().Format(time.RFC3339),
		Thumbnail: &discordgo.MessageEmbedThumbnail{URL: member.AvatarURL("")},
		Fields: []*discordgo.MessageEmbedField{{
			Name:  "🎯 Your adventure starts now",
			Value: "Explore the channels, meet new people and enjoy unique experiences",
		}},
	}

	footer := &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("👥 Member #%d • Join the adventure in %s", guild.MemberCount, guild.Name),
	}
	if guild.Icon != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: guild.IconURL("")}
		footer.IconURL = guild.IconURL("")
	}
	embed.Footer = footer
	return embed
}

func (b *Bot) handleWelcomeConfigure(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID := optionID(i, "channel", "")
	if err := b.messenger.CheckChannel(b.ctx, channelID); err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrPermission,
			"I can't send messages in that channel",
			"Give me View Channel, Send Messages and Embed Links there"))
		return
	}

	_, err := store.Update(b.ctx, b.store, i.GuildID, func(gs *store.GuildSettings) {
		gs.WelcomeChannelID = store.Snowflake(channelID)
	})
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error saving the configuration", ""))
		return
	}

	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "✅ Welcome channel configured",
		Description: fmt.Sprintf("Welcome messages will be sent in <#%s>", channelID),
		Color:       colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Server", Value: guildName(s, i.GuildID), Inline: true},
			{Name: "Channel", Value: fmt.Sprintf("<#%s>", channelID), Inline: true},
		},
	}, true)
}

func (b *Bot) handleWelcomeDisable(s *discordgo.Session, i *discordgo.InteractionCreate) {
	settings, err := b.store.Get(b.ctx, i.GuildID)
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error reading the configuration", ""))
		return
	}
	if settings.WelcomeChannelID == "" {
		respondError(s, i, errors.New(errors.ErrNotConfigured,
			"Welcome messages are not configured", "Use /welcome-configure to set a channel"))
		return
	}

	_, err = store.Update(b.ctx, b.store, i.GuildID, func(gs *store.GuildSettings) {
		gs.WelcomeChannelID = ""
	})
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error saving the configuration", ""))
		return
	}
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "🛑 Welcome messages disabled",
		Description: "New members will no longer be greeted.",
		Color:       colorError,
	}, true)
}

func (b *Bot) handleWelcomeInfo(s *discordgo.Session, i *discordgo.InteractionCreate) {
	settings, err := b.store.Get(b.ctx, i.GuildID)
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error reading the configuration", ""))
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "ℹ️ Welcome configuration",
		Color: colorInfo,
	}
	if settings.WelcomeChannelID == "" {
		embed.Description = "Welcome messages are disabled. Use /welcome-configure to enable them."
	} else {
		embed.Description = "Welcome messages are enabled."
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Channel", Value: fmt.Sprintf("<#%s>", settings.WelcomeChannelID), Inline: true},
		}
	}
	respondEmbed(s, i, embed, true)
}

func (b *Bot) handleWelcomePreview(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guild, err := s.State.Guild(i.GuildID)
	if err != nil {
		respondError(s, i, errors.Wrap(err, "Could not load this server"))
		return
	}
	member := i.Member
	if member == nil {
		respondError(s, i, errors.New(errors.ErrConfig, "Previews only work inside a server", ""))
		return
	}

	data := &discordgo.InteractionResponseData{
		Content: "**Preview of the welcome message:**",
		Embeds:  []*discordgo.MessageEmbed{welcomeEmbed(member, guild, time.Now())},
		Flags:   discordgo.MessageFlagsEphemeral,
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		b.log.WithError(err).Warn("Failed to send welcome preview")
	}
}
