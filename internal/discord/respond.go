package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/ptscripts/ptbot/internal/errors"
	"github.com/ptscripts/ptbot/internal/logger"
)

// Version is shown in embed footers and by `ptbot version`.
const Version = "2.1.0"

// Embed colours.
const (
	colorSuccess = 0x00ff00
	colorError   = 0xff0000
	colorInfo    = 0x3498db
	colorWarning = 0xffaa00
	colorBrand   = 0x7289da
)

func createFooter(embed *discordgo.MessageEmbed, s *discordgo.Session) {
	if s.State != nil && s.State.User != nil {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text:    fmt.Sprintf("%s | v%s", s.State.User.Username, Version),
			IconURL: s.State.User.AvatarURL(""),
		}
	}
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	createFooter(embed, s)
	data := &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{embed},
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		logger.WithError(err).WithField("interaction", i.ID).Warn("Failed to respond to interaction")
	}
}

func respondText(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		logger.WithError(err).WithField("interaction", i.ID).Warn("Failed to respond to interaction")
	}
}

// respondError logs err and shows the user its short form.
func respondError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	logInteractionError(i, err)
	respondEmbed(s, i, errorEmbed(err), true)
}

// deferResponse acknowledges an interaction whose work may outlast the
// three second reply window. Follow up with editResponse.
func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) bool {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		logger.WithError(err).WithField("interaction", i.ID).Warn("Failed to defer interaction")
		return false
	}
	return true
}

func editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	createFooter(embed, s)
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		logger.WithError(err).WithField("interaction", i.ID).Warn("Failed to edit interaction response")
	}
}

func editResponseError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	logInteractionError(i, err)
	editResponse(s, i, errorEmbed(err))
}

func errorEmbed(err error) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Error",
		Description: errors.UserMessage(err),
		Color:       colorError,
	}
}

func logInteractionError(i *discordgo.InteractionCreate, err error) {
	entry := logger.WithError(err).WithField("guild", i.GuildID)
	if i.Type == discordgo.InteractionApplicationCommand {
		entry = entry.WithField("command", i.ApplicationCommandData().Name)
	}
	if errors.IsCode(err, errors.ErrNotConfigured) || errors.IsCode(err, errors.ErrPermission) {
		entry.Info("Command rejected")
		return
	}
	entry.Error("Command failed")
}

// interactionUser returns the invoking user for guild and DM interactions.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func options(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

// optionID returns the snowflake of a channel, role or user option, or def
// when the option was not given.
func optionID(i *discordgo.InteractionCreate, name, def string) string {
	if o, ok := options(i)[name]; ok {
		if id, ok := o.Value.(string); ok {
			return id
		}
	}
	return def
}

func optionString(i *discordgo.InteractionCreate, name string) string {
	if o, ok := options(i)[name]; ok {
		return o.StringValue()
	}
	return ""
}

func guildName(s *discordgo.Session, guildID string) string {
	if g, err := s.State.Guild(guildID); err == nil {
		return g.Name
	}
	return guildID
}
