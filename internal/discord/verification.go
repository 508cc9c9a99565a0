package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/ptscripts/ptbot/internal/errors"
	"github.com/ptscripts/ptbot/internal/store"
)

// isVerificationMessage reports whether msg is a verification prompt posted
// by the bot itself.
func isVerificationMessage(msg *discordgo.Message, botID string) bool {
	if msg == nil || msg.Author == nil || msg.Author.ID != botID || len(msg.Embeds) == 0 {
		return false
	}
	return strings.Contains(strings.ToLower(msg.Embeds[0].Title), "verification")
}

// emojiString renders a reaction emoji the way it is stored in settings.
func emojiString(e discordgo.Emoji) string {
	if e.ID != "" {
		return e.MessageFormat()
	}
	return e.Name
}

// verificationTarget resolves the settings and member a reaction applies to,
// or returns nil settings when the reaction is not a verification.
func (b *Bot) verificationTarget(s *discordgo.Session, r *discordgo.MessageReaction) (*store.GuildSettings, *logrus.Entry) {
	if r.GuildID == "" || s.State.User == nil || r.UserID == s.State.User.ID {
		return nil, nil
	}
	log := b.log.WithFields(logrus.Fields{"guild": r.GuildID, "user": r.UserID, "message": r.MessageID})

	settings, err := b.store.Get(b.ctx, r.GuildID)
	if err != nil {
		log.WithError(err).Error("Failed to load verification settings")
		return nil, nil
	}
	if settings.VerificationRoleID == "" || emojiString(r.Emoji) != settings.Emoji() {
		return nil, nil
	}

	msg, err := s.State.Message(r.ChannelID, r.MessageID)
	if err != nil {
		msg, err = s.ChannelMessage(r.ChannelID, r.MessageID)
		if err != nil {
			log.WithError(err).Debug("Reaction on unknown message")
			return nil, nil
		}
	}
	if !isVerificationMessage(msg, s.State.User.ID) {
		return nil, nil
	}
	return settings, log
}

func (b *Bot) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	settings, log := b.verificationTarget(s, r.MessageReaction)
	if settings == nil {
		return
	}
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		return
	}
	roleID := settings.VerificationRoleID.String()
	if r.Member != nil && hasRole(r.Member, roleID) {
		return
	}

	if err := s.GuildMemberRoleAdd(r.GuildID, r.UserID, roleID); err != nil {
		log.WithError(classify(err)).Error("Error adding verification role")
		return
	}
	log.Info("User verified")

	dm, err := s.UserChannelCreate(r.UserID)
	if err != nil {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title:       "✅ Verification Complete",
		Description: fmt.Sprintf("You have been successfully verified in **%s**!", guildName(s, r.GuildID)),
		Color:       colorSuccess,
	}
	if _, err := b.messenger.SendComplex(b.ctx, dm.ID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}); err != nil {
		log.WithError(err).Debug("Could not DM verification confirmation")
	}
}

func (b *Bot) onReactionRemove(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	settings, log := b.verificationTarget(s, r.MessageReaction)
	if settings == nil {
		return
	}
	roleID := settings.VerificationRoleID.String()
	if m, err := s.State.Member(r.GuildID, r.UserID); err == nil && !hasRole(m, roleID) {
		return
	}
	if err := s.GuildMemberRoleRemove(r.GuildID, r.UserID, roleID); err != nil {
		log.WithError(classify(err)).Error("Error removing verification role")
		return
	}
	log.Info("User unverified")
}

func hasRole(m *discordgo.Member, roleID string) bool {
	for _, id := range m.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

func verificationEmbed(roleID, emoji string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "🔐 Server Verification",
		Description: fmt.Sprintf("By verifying you accept the server's code of conduct and agree to behave appropriately.\n\n"+
			"To get access to the server and receive the <@&%s> role, react with %s to this message.", roleID, emoji),
		Color: colorSuccess,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("React with %s to verify", emoji),
		},
	}
}

func (b *Bot) handleVerification(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID := optionID(i, "channel", i.ChannelID)

	settings, err := b.store.Get(b.ctx, i.GuildID)
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error reading the configuration", ""))
		return
	}
	if settings.VerificationRoleID == "" {
		respondError(s, i, errors.New(errors.ErrNotConfigured,
			"Verification role not configured!", "Use /verification-role first"))
		return
	}
	if _, err := s.State.Role(i.GuildID, settings.VerificationRoleID.String()); err != nil {
		respondError(s, i, errors.New(errors.ErrNotConfigured,
			fmt.Sprintf("Verification role not found! (ID: %s)", settings.VerificationRoleID),
			"Use /verification-role to pick an existing role"))
		return
	}

	emoji := settings.Emoji()
	msg, err := b.messenger.SendComplex(b.ctx, channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{verificationEmbed(settings.VerificationRoleID.String(), emoji)},
	})
	if err != nil {
		respondError(s, i, errors.WrapWithCode(classify(err), errors.ErrPermission,
			"An error occurred while creating the verification message!", "Check my permissions in that channel"))
		return
	}
	if err := s.MessageReactionAdd(channelID, msg.ID, reactionAPIName(emoji)); err != nil {
		b.log.WithError(err).WithField("emoji", emoji).Warn("Failed to add verification reaction")
	}
	respondText(s, i, fmt.Sprintf("✅ Verification message sent to <#%s>", channelID), true)
}

// reactionAPIName converts a stored emoji to the form the reaction endpoint
// expects: unicode as is, custom emoji as name:id.
func reactionAPIName(emoji string) string {
	if strings.HasPrefix(emoji, "<") && strings.HasSuffix(emoji, ">") {
		parts := strings.Split(strings.Trim(emoji, "<>"), ":")
		if len(parts) == 3 {
			return parts[1] + ":" + parts[2]
		}
	}
	return emoji
}

func (b *Bot) handleVerificationRole(s *discordgo.Session, i *discordgo.InteractionCreate) {
	roleID := optionID(i, "role", "")
	b.saveSetting(s, i, func(gs *store.GuildSettings) {
		gs.VerificationRoleID = store.Snowflake(roleID)
	}, fmt.Sprintf("✅ Verification role set to <@&%s>", roleID))
}

func (b *Bot) handleVerificationEmoji(s *discordgo.Session, i *discordgo.InteractionCreate) {
	emoji := strings.TrimSpace(optionString(i, "emoji"))
	if emoji == "" {
		respondError(s, i, errors.New(errors.ErrConfig, "Please provide an emoji", ""))
		return
	}
	b.saveSetting(s, i, func(gs *store.GuildSettings) {
		gs.VerificationEmoji = emoji
	}, fmt.Sprintf("✅ Verification emoji set to %s", emoji))
}
