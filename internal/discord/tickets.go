package discord

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/ptscripts/ptbot/internal/errors"
	"github.com/ptscripts/ptbot/internal/store"
)

const (
	createTicketID = "create_ticket"
	closeTicketID  = "close_ticket"

	ticketPrefix     = "ticket-"
	ticketCloseDelay = 5 * time.Second
	transcriptTime   = "2006-01-02 15:04:05"
)

var (
	channelNameRe = regexp.MustCompile(`[^a-z0-9_-]+`)
	ticketOwnerRe = regexp.MustCompile(`\((\d+)\)\s*$`)
)

// ticketChannelName returns the channel name of username's ticket, in the
// form Discord itself normalizes channel names to.
func ticketChannelName(username string) string {
	name := strings.ToLower(strings.TrimSpace(username))
	name = strings.ReplaceAll(name, " ", "-")
	name = channelNameRe.ReplaceAllString(name, "")
	if name == "" {
		name = "user"
	}
	name = ticketPrefix + name
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}

func ticketTopic(u *discordgo.User) string {
	return fmt.Sprintf("Support ticket for %s (%s)", displayName(u), u.ID)
}

// ticketOwner extracts the creator's user id from a ticket channel topic.
func ticketOwner(topic string) string {
	if m := ticketOwnerRe.FindStringSubmatch(topic); m != nil {
		return m[1]
	}
	return ""
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func ticketOverwrites(guildID, userID, botID string, staffRoles []store.Snowflake) []*discordgo.PermissionOverwrite {
	overwrites := []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{
			ID:    userID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionAttachFiles | discordgo.PermissionEmbedLinks | discordgo.PermissionReadMessageHistory,
		},
		{
			ID:    botID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionManageChannels | discordgo.PermissionManageMessages | discordgo.PermissionReadMessageHistory,
		},
	}
	for _, roleID := range staffRoles {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    roleID.String(),
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionManageMessages | discordgo.PermissionReadMessageHistory,
		})
	}
	return overwrites
}

func (b *Bot) handleTicketPanel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID := optionID(i, "channel", i.ChannelID)

	embed := &discordgo.MessageEmbed{
		Title: "🎫 Support Tickets",
		Description: "Need help? Click the button below to open a private ticket with our staff.\n\n" +
			"Please describe your problem in detail once the ticket is created.",
		Color: colorInfo,
	}
	createFooter(embed, s)
	_, err := b.messenger.SendComplex(b.ctx, channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					CustomID: createTicketID,
					Label:    "Create Ticket",
					Style:    discordgo.PrimaryButton,
					Emoji:    &discordgo.ComponentEmoji{Name: "🎫"},
				},
			}},
		},
	})
	if err != nil {
		respondError(s, i, errors.WrapWithCode(classify(err), errors.ErrPermission,
			"I couldn't post the ticket panel there", "Check my permissions in that channel"))
		return
	}
	respondText(s, i, fmt.Sprintf("✅ Ticket panel posted in <#%s>", channelID), true)
}

func (b *Bot) handleCreateTicket(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	if user == nil || i.GuildID == "" {
		return
	}
	if !deferResponse(s, i, true) {
		return
	}
	log := b.log.WithFields(logrus.Fields{"guild": i.GuildID, "user": user.ID})

	name := ticketChannelName(user.Username)
	if existing := findChannelByName(s, i.GuildID, name); existing != nil {
		editResponseError(s, i, errors.New(errors.ErrConfig,
			fmt.Sprintf("You already have an open ticket: <#%s>", existing.ID), ""))
		return
	}

	settings, err := b.store.Get(b.ctx, i.GuildID)
	if err != nil {
		editResponseError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "An error occurred while creating your ticket", ""))
		return
	}

	data := discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                ticketTopic(user),
		PermissionOverwrites: ticketOverwrites(i.GuildID, user.ID, s.State.User.ID, settings.StaffRoleIDs),
	}
	if settings.TicketCategoryID != "" {
		if cat, err := s.State.Channel(settings.TicketCategoryID.String()); err == nil && cat.Type == discordgo.ChannelTypeGuildCategory {
			data.ParentID = cat.ID
		}
	}

	ch, err := s.GuildChannelCreateComplex(i.GuildID, data, discordgo.WithContext(b.ctx))
	if err != nil {
		err = classify(err)
		editResponseError(s, i, errors.WrapWithCode(err, errors.ErrPermission,
			"I don't have permission to create channels!", "Give me Manage Channels"))
		return
	}

	if mention := staffMention(settings); mention != "" {
		if err := b.messenger.Send(b.ctx, ch.ID, fmt.Sprintf("%s - New ticket created by %s", mention, user.Mention())); err != nil {
			log.WithError(err).Warn("Failed to mention staff in ticket")
		}
	}

	welcome := &discordgo.MessageEmbed{
		Title: "🎫 Support Ticket Created",
		Description: fmt.Sprintf("Hello %s! Thanks for opening a ticket.\n\n"+
			"Please describe your problem in detail and our staff will help you shortly.\n\n"+
			"To close this ticket, click the button below.", user.Mention()),
		Color: colorSuccess,
		Footer: &discordgo.MessageEmbedFooter{
			Text:    "Ticket created by " + displayName(user),
			IconURL: user.AvatarURL(""),
		},
	}
	_, err = b.messenger.SendComplex(b.ctx, ch.ID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{welcome},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					CustomID: closeTicketID,
					Label:    "Close Ticket",
					Style:    discordgo.DangerButton,
					Emoji:    &discordgo.ComponentEmoji{Name: "🔒"},
				},
			}},
		},
	})
	if err != nil {
		log.WithError(err).Warn("Failed to post ticket welcome")
	}

	editResponse(s, i, &discordgo.MessageEmbed{
		Description: fmt.Sprintf("✅ Your ticket has been created: <#%s>", ch.ID),
		Color:       colorSuccess,
	})
	log.WithField("channel", ch.ID).Info("Ticket created")
}

func staffMention(settings *store.GuildSettings) string {
	if settings.StaffMentionRoleID != "" {
		return fmt.Sprintf("<@&%s>", settings.StaffMentionRoleID)
	}
	mentions := make([]string, 0, len(settings.StaffRoleIDs))
	for _, id := range settings.StaffRoleIDs {
		mentions = append(mentions, fmt.Sprintf("<@&%s>", id))
	}
	return strings.Join(mentions, " ")
}

func findChannelByName(s *discordgo.Session, guildID, name string) *discordgo.Channel {
	g, err := s.State.Guild(guildID)
	if err != nil {
		return nil
	}
	for _, ch := range g.Channels {
		if ch.Name == name {
			return ch
		}
	}
	return nil
}

// canCloseTicket reports whether member may close the ticket channel.
func canCloseTicket(member *discordgo.Member, ch *discordgo.Channel, settings *store.GuildSettings) bool {
	if member == nil || member.User == nil {
		return false
	}
	if ticketOwner(ch.Topic) == member.User.ID {
		return true
	}
	for _, roleID := range member.Roles {
		if settings.IsStaffRole(roleID) {
			return true
		}
	}
	return member.Permissions&discordgo.PermissionManageChannels != 0
}

func (b *Bot) handleCloseTicket(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ch, err := s.State.Channel(i.ChannelID)
	if err != nil {
		ch, err = s.Channel(i.ChannelID)
		if err != nil {
			respondError(s, i, errors.Wrap(err, "Could not load this channel"))
			return
		}
	}
	if !strings.HasPrefix(ch.Name, ticketPrefix) {
		respondError(s, i, errors.New(errors.ErrConfig, "This button can only be used in ticket channels!", ""))
		return
	}

	settings, err := b.store.Get(b.ctx, i.GuildID)
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "An error occurred while closing the ticket", ""))
		return
	}
	if !canCloseTicket(i.Member, ch, settings) {
		respondError(s, i, errors.New(errors.ErrPermission, "You don't have permission to close this ticket!", ""))
		return
	}

	closer := interactionUser(i)
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "🔒 Closing Ticket",
		Description: fmt.Sprintf("This ticket will be closed in %d seconds...", int(ticketCloseDelay/time.Second)),
		Color:       colorError,
	}, false)

	go b.closeTicket(s, ch, closer, settings)
}

// closeTicket archives the conversation and deletes the channel.
func (b *Bot) closeTicket(s *discordgo.Session, ch *discordgo.Channel, closer *discordgo.User, settings *store.GuildSettings) {
	ctx := b.ctx
	log := b.log.WithFields(logrus.Fields{"guild": ch.GuildID, "channel": ch.ID, "ticket": ch.Name})

	msgs, err := channelHistory(ctx, s, ch.ID)
	if err != nil {
		log.WithError(err).Error("Failed to read ticket history")
	}

	ownerID := ticketOwner(ch.Topic)
	ownerName := ownerID
	if ownerID != "" {
		if m, err := s.State.Member(ch.GuildID, ownerID); err == nil && m.User != nil {
			ownerName = displayName(m.User)
		} else if u, err := s.User(ownerID); err == nil {
			ownerName = displayName(u)
		}
	}

	created, _ := discordgo.SnowflakeTimestamp(ch.ID)
	closedAt := time.Now()
	transcript := buildTranscript(ch.Name, ownerName, created, closedAt, msgs)
	fileName := fmt.Sprintf("transcript-%s.txt", ch.Name)

	if settings.TranscriptChannelID != "" {
		embed := &discordgo.MessageEmbed{
			Title: "📝 Ticket Transcript",
			Description: fmt.Sprintf("**Channel:** %s\n**User:** %s\n**Closed by:** %s\n**Date:** %s",
				ch.Name, ownerName, displayName(closer), closedAt.Format(transcriptTime)),
			Color: colorInfo,
		}
		_, err := b.messenger.SendComplex(ctx, settings.TranscriptChannelID.String(), &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{embed},
			Files:  []*discordgo.File{transcriptFile(fileName, transcript)},
		})
		if err != nil {
			log.WithError(err).Error("Error sending transcript to channel")
		}
	}

	if ownerID != "" {
		b.dmTranscript(ctx, s, ownerID, ch, closer, fileName, transcript, log)
	}

	time.Sleep(ticketCloseDelay)
	if _, err := s.ChannelDelete(ch.ID); err != nil {
		log.WithError(err).Error("Error deleting ticket channel")
		return
	}
	log.WithField("closed_by", closer.ID).Info("Ticket closed")
}

func (b *Bot) dmTranscript(ctx context.Context, s *discordgo.Session, userID string, ch *discordgo.Channel, closer *discordgo.User, fileName, transcript string, log *logrus.Entry) {
	dm, err := s.UserChannelCreate(userID)
	if err != nil {
		log.WithError(err).Warn("Could not open DM for transcript")
		return
	}
	embed := &discordgo.MessageEmbed{
		Title: "📝 Your Ticket Transcript",
		Description: fmt.Sprintf("Your ticket in **%s** has been closed.\n\n**Channel:** %s\n**Closed by:** %s",
			guildName(s, ch.GuildID), ch.Name, displayName(closer)),
		Color: colorInfo,
	}
	_, err = b.messenger.SendComplex(ctx, dm.ID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Files:  []*discordgo.File{transcriptFile(fileName, transcript)},
	})
	switch {
	case err == nil:
	case isDiscordErrorCode(err, discordgo.ErrCodeCannotSendMessagesToThisUser):
		log.WithField("user", userID).Info("User has DMs disabled, transcript not delivered")
	default:
		log.WithError(err).Warn("Error sending transcript by DM")
	}
}

func transcriptFile(name, content string) *discordgo.File {
	return &discordgo.File{
		Name:        name,
		ContentType: "text/plain",
		Reader:      strings.NewReader(content),
	}
}

// channelHistory returns every message of the channel, oldest first.
func channelHistory(ctx context.Context, s *discordgo.Session, channelID string) ([]*discordgo.Message, error) {
	var all []*discordgo.Message
	before := ""
	for {
		batch, err := s.ChannelMessages(channelID, 100, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return all, err
		}
		all = append(all, batch...)
		if len(batch) < 100 {
			break
		}
		before = batch[len(batch)-1].ID
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].Timestamp.Before(all[b].Timestamp) })
	return all, nil
}

// buildTranscript renders a plain text log of a ticket. msgs must be oldest first.
func buildTranscript(channelName, owner string, created, closed time.Time, msgs []*discordgo.Message) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Ticket Transcript: %s\n", channelName))
	sb.WriteString(fmt.Sprintf("User: %s\n", owner))
	sb.WriteString(fmt.Sprintf("Created: %s\n", created.Format(transcriptTime)))
	sb.WriteString(fmt.Sprintf("Closed: %s\n", closed.Format(transcriptTime)))
	sb.WriteString(strings.Repeat("=", 50))
	sb.WriteString("\n\n")

	for _, m := range msgs {
		author := "unknown"
		if m.Author != nil {
			author = fmt.Sprintf("%s (%s)", displayName(m.Author), m.Author.Username)
		}
		content := m.Content
		if content == "" {
			content = "[No content]"
		}
		for _, e := range m.Embeds {
			if e.Title != "" {
				content += fmt.Sprintf("\n[Embed: %s]", e.Title)
			}
			if e.Description != "" {
				content += "\n" + e.Description
			}
		}
		for _, a := range m.Attachments {
			content += fmt.Sprintf("\n[Attachment: %s]", a.Filename)
		}
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n", m.Timestamp.Format(transcriptTime), author, content))
	}
	return sb.String()
}

func (b *Bot) handleTicketCategory(s *discordgo.Session, i *discordgo.InteractionCreate) {
	categoryID := optionID(i, "category", "")
	b.saveSetting(s, i, func(gs *store.GuildSettings) {
		gs.TicketCategoryID = store.Snowflake(categoryID)
	}, fmt.Sprintf("✅ New tickets will be created in <#%s>", categoryID))
}

func (b *Bot) handleTicketStaffRole(s *discordgo.Session, i *discordgo.InteractionCreate) {
	roleID := optionID(i, "role", "")
	var added bool
	msg := func() string {
		if added {
			return fmt.Sprintf("✅ <@&%s> added as a staff role", roleID)
		}
		return fmt.Sprintf("✅ <@&%s> removed from the staff roles", roleID)
	}
	settings, err := store.Update(b.ctx, b.store, i.GuildID, func(gs *store.GuildSettings) {
		added = gs.ToggleStaffRole(roleID)
	})
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error saving the configuration", ""))
		return
	}

	roles := make([]string, 0, len(settings.StaffRoleIDs))
	for _, id := range settings.StaffRoleIDs {
		roles = append(roles, fmt.Sprintf("<@&%s>", id))
	}
	list := strings.Join(roles, ", ")
	if list == "" {
		list = "None"
	}
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Description: msg(),
		Color:       colorSuccess,
		Fields:      []*discordgo.MessageEmbedField{{Name: "Staff roles", Value: list}},
	}, true)
}

func (b *Bot) handleTicketTranscripts(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID := optionID(i, "channel", "")
	b.saveSetting(s, i, func(gs *store.GuildSettings) {
		gs.TranscriptChannelID = store.Snowflake(channelID)
	}, fmt.Sprintf("✅ Ticket transcripts will be sent to <#%s>", channelID))
}

func (b *Bot) handleTicketStaffMention(s *discordgo.Session, i *discordgo.InteractionCreate) {
	roleID := optionID(i, "role", "")
	b.saveSetting(s, i, func(gs *store.GuildSettings) {
		gs.StaffMentionRoleID = store.Snowflake(roleID)
	}, fmt.Sprintf("✅ <@&%s> will be mentioned on new tickets", roleID))
}

// saveSetting applies fn to the guild's settings and confirms with msg.
func (b *Bot) saveSetting(s *discordgo.Session, i *discordgo.InteractionCreate, fn func(*store.GuildSettings), msg string) {
	if _, err := store.Update(b.ctx, b.store, i.GuildID, fn); err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error saving the configuration", ""))
		return
	}
	respondEmbed(s, i, &discordgo.MessageEmbed{Description: msg, Color: colorSuccess}, true)
}

func staffRolesEmbed(settings *store.GuildSettings, g *discordgo.Guild) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:  "👥 Ticket staff roles",
		Color:  colorInfo,
		Footer: &discordgo.MessageEmbedFooter{Text: "🔔 = role mentioned when a ticket is opened"},
	}
	if g != nil {
		embed.Description = fmt.Sprintf("Current settings for **%s**", g.Name)
	}
	if len(settings.StaffRoleIDs) == 0 {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Status", Value: "🔴 No staff roles configured"},
			{Name: "To configure", Value: "Use `/ticket-staff-role` to add a staff role"},
		}
		return embed
	}

	lines := make([]string, 0, len(settings.StaffRoleIDs))
	found := 0
	for _, id := range settings.StaffRoleIDs {
		line := roleMention(g, id.String())
		if !strings.HasPrefix(line, "⚠️") {
			found++
		}
		if id == settings.StaffMentionRoleID {
			line += " 🔔"
		}
		lines = append(lines, line)
	}
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "🛡️ Staff roles", Value: strings.Join(lines, "\n")},
	}
	if settings.StaffMentionRoleID != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "🔔 Mention role", Value: roleMention(g, settings.StaffMentionRoleID.String()), Inline: true,
		})
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name: "📊 Total roles", Value: fmt.Sprintf("%d", found), Inline: true,
	})
	return embed
}

func (b *Bot) handleTicketStaffRoles(s *discordgo.Session, i *discordgo.InteractionCreate) {
	settings, err := b.store.Get(b.ctx, i.GuildID)
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error reading the configuration", ""))
		return
	}
	g, _ := s.State.Guild(i.GuildID)
	respondEmbed(s, i, staffRolesEmbed(settings, g), false)
}

func (b *Bot) handleTicketTranscriptsDisable(s *discordgo.Session, i *discordgo.InteractionCreate) {
	settings, err := b.store.Get(b.ctx, i.GuildID)
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error reading the configuration", ""))
		return
	}
	if settings.TranscriptChannelID == "" {
		respondError(s, i, errors.New(errors.ErrNotConfigured,
			"No transcript channel is configured in this server", "Use /ticket-transcripts to set one"))
		return
	}
	if _, err := store.Update(b.ctx, b.store, i.GuildID, func(gs *store.GuildSettings) {
		gs.TranscriptChannelID = ""
	}); err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error saving the configuration", ""))
		return
	}
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "✅ Transcripts disabled",
		Description: "Closed tickets will no longer be logged to a channel.",
		Color:       colorSuccess,
		Fields: []*discordgo.MessageEmbedField{{
			Name:  "Effect",
			Value: "• No transcripts are posted when tickets close\n• Ticket creators still get a copy by DM\n• Re-enable with `/ticket-transcripts`",
		}},
	}, true)
}

// transcriptInfoEmbed describes the transcript setup. perms is the bot's
// permission set in the transcript channel, or -1 when unknown.
func transcriptInfoEmbed(settings *store.GuildSettings, ch *discordgo.Channel, perms int64) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "📝 Transcript settings", Color: colorInfo}
	if settings.TranscriptChannelID == "" {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Status", Value: "🔴 Transcripts disabled"},
			{Name: "To enable", Value: "Use `/ticket-transcripts` to choose a channel"},
			{Name: "Note", Value: "Ticket creators still receive their transcript by DM"},
		}
		return embed
	}

	channel := fmt.Sprintf("❌ Channel not found (ID: %s)", settings.TranscriptChannelID)
	if ch != nil {
		channel = fmt.Sprintf("<#%s>", ch.ID)
	}
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Status", Value: "🟢 Transcripts enabled", Inline: true},
		{Name: "Channel", Value: channel, Inline: true},
	}
	if ch != nil && perms >= 0 {
		check := func(p int64, label string) string {
			if perms&p != 0 {
				return "✅ " + label
			}
			return "❌ " + label
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Bot permissions",
			Value: strings.Join([]string{
				check(discordgo.PermissionSendMessages, "Send messages"),
				check(discordgo.PermissionAttachFiles, "Attach files"),
				check(discordgo.PermissionEmbedLinks, "Embed links"),
			}, "\n"),
		})
	}
	return embed
}

func (b *Bot) handleTicketTranscriptsInfo(s *discordgo.Session, i *discordgo.InteractionCreate) {
	settings, err := b.store.Get(b.ctx, i.GuildID)
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error reading the configuration", ""))
		return
	}
	var ch *discordgo.Channel
	perms := int64(-1)
	if id := settings.TranscriptChannelID.String(); id != "" {
		if c, err := s.State.Channel(id); err == nil {
			ch = c
			if p, err := s.State.UserChannelPermissions(s.State.User.ID, id); err == nil {
				perms = p
			}
		}
	}
	respondEmbed(s, i, transcriptInfoEmbed(settings, ch, perms), true)
}
