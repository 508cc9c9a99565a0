package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/ptscripts/ptbot/internal/errors"
	"github.com/ptscripts/ptbot/internal/store"
)

const (
	purgeMax        = 100
	maxTimeout      = 28 * 24 * time.Hour
	bulkDeleteLimit = 14 * 24 * time.Hour
	defaultBanDays  = 1
	noReason        = "Not specified"

	moderationPermissions = discordgo.PermissionBanMembers | discordgo.PermissionManageMessages | discordgo.PermissionModerateMembers
)

var errNoModeration = errors.New(errors.ErrPermission,
	"You don't have permission to use moderation commands",
	"Ask an administrator to add your role with /moderator-role-add")

// hasModerationPermission reports whether member may use the moderation
// commands: administrators, members holding a moderation permission, or
// members with one of the guild's moderation roles.
func hasModerationPermission(member *discordgo.Member, settings *store.GuildSettings) bool {
	if member == nil {
		return false
	}
	if member.Permissions&discordgo.PermissionAdministrator != 0 || member.Permissions&moderationPermissions != 0 {
		return true
	}
	for _, roleID := range member.Roles {
		if settings.IsModerationRole(roleID) {
			return true
		}
	}
	return false
}

// highestRole returns the position of the highest of roleIDs, 0 for none.
func highestRole(roles []*discordgo.Role, roleIDs []string) int {
	top := 0
	for _, r := range roles {
		for _, id := range roleIDs {
			if r.ID == id && r.Position > top {
				top = r.Position
			}
		}
	}
	return top
}

// checkHierarchy rejects acting on the actor themself, the guild owner, or a
// member whose top role is not below both the actor's and the bot's.
func checkHierarchy(g *discordgo.Guild, actor, target, bot *discordgo.Member, verb string) error {
	if actor.User.ID == target.User.ID {
		return errors.New(errors.ErrConfig, fmt.Sprintf("You can't %s yourself", verb), "")
	}
	if target.User.ID == g.OwnerID {
		return errors.New(errors.ErrPermission, fmt.Sprintf("You can't %s the server owner", verb), "")
	}
	targetTop := highestRole(g.Roles, target.Roles)
	if actor.User.ID != g.OwnerID && targetTop >= highestRole(g.Roles, actor.Roles) {
		return errors.New(errors.ErrPermission,
			fmt.Sprintf("You can't %s someone with a role equal to or above yours", verb), "")
	}
	if bot != nil && targetTop >= highestRole(g.Roles, bot.Roles) {
		return errors.New(errors.ErrPermission,
			fmt.Sprintf("I can't %s someone with a role equal to or above mine", verb),
			"Move my role above theirs in Server Settings > Roles")
	}
	return nil
}

// purgeTargets picks up to amount message ids from msgs (newest first),
// optionally only those by userID. Messages older than fourteen days cannot
// be bulk deleted and are skipped.
func purgeTargets(msgs []*discordgo.Message, userID string, amount int, now time.Time) []string {
	ids := make([]string, 0, amount)
	for _, m := range msgs {
		if len(ids) == amount {
			break
		}
		if userID != "" && (m.Author == nil || m.Author.ID != userID) {
			continue
		}
		if now.Sub(m.Timestamp) >= bulkDeleteLimit {
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids
}

func isTimedOut(m *discordgo.Member, now time.Time) bool {
	return m.CommunicationDisabledUntil != nil && m.CommunicationDisabledUntil.After(now)
}

func optionInt(i *discordgo.InteractionCreate, name string, def int64) int64 {
	if o, ok := options(i)[name]; ok {
		return o.IntValue()
	}
	return def
}

func optionReason(i *discordgo.InteractionCreate) string {
	if r := strings.TrimSpace(optionString(i, "reason")); r != "" {
		return r
	}
	return noReason
}

// member returns a guild member from the state cache, or over REST.
func (b *Bot) member(s *discordgo.Session, guildID, userID string) (*discordgo.Member, error) {
	if m, err := s.State.Member(guildID, userID); err == nil {
		return m, nil
	}
	m, err := s.GuildMember(guildID, userID, discordgo.WithContext(b.ctx))
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

// moderationContext loads what every moderation command needs, replying
// with an error and returning nil settings when the invoker is not allowed.
func (b *Bot) moderationContext(s *discordgo.Session, i *discordgo.InteractionCreate) (*store.GuildSettings, *discordgo.Guild) {
	settings, err := b.store.Get(b.ctx, i.GuildID)
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error reading the configuration", ""))
		return nil, nil
	}
	if !hasModerationPermission(i.Member, settings) {
		respondError(s, i, errNoModeration)
		return nil, nil
	}
	g, err := s.State.Guild(i.GuildID)
	if err != nil {
		respondError(s, i, errors.Wrap(err, "Could not load this server"))
		return nil, nil
	}
	return settings, g
}

// target resolves the "user" option and checks the role hierarchy.
func (b *Bot) target(s *discordgo.Session, i *discordgo.InteractionCreate, g *discordgo.Guild, verb string) *discordgo.Member {
	userID := optionID(i, "user", "")
	target, err := b.member(s, i.GuildID, userID)
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrConfig, "That user is not a member of this server", ""))
		return nil
	}
	bot, _ := b.member(s, i.GuildID, s.State.User.ID)
	if err := checkHierarchy(g, i.Member, target, bot, verb); err != nil {
		respondError(s, i, err)
		return nil
	}
	return target
}

// sendDM reports whether the embed reached the user.
func (b *Bot) sendDM(s *discordgo.Session, userID string, embed *discordgo.MessageEmbed) bool {
	dm, err := s.UserChannelCreate(userID, discordgo.WithContext(b.ctx))
	if err != nil {
		return false
	}
	_, err = b.messenger.SendComplex(b.ctx, dm.ID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}})
	return err == nil
}

func yesNo(v bool) string {
	if v {
		return "✅ Yes"
	}
	return "❌ No"
}

func (b *Bot) handlePurge(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if _, g := b.moderationContext(s, i); g == nil {
		return
	}
	amount := int(optionInt(i, "amount", 0))
	if amount < 1 || amount > purgeMax {
		respondError(s, i, errors.New(errors.ErrConfig, "Amount must be between 1 and 100", ""))
		return
	}
	userID := optionID(i, "user", "")

	if perms, err := s.State.UserChannelPermissions(s.State.User.ID, i.ChannelID); err == nil &&
		perms&discordgo.PermissionManageMessages == 0 {
		respondError(s, i, errors.New(errors.ErrPermission,
			"I don't have permission to manage messages in this channel", "Give me Manage Messages here"))
		return
	}
	if !deferResponse(s, i, true) {
		return
	}

	limit := amount
	if userID != "" {
		limit = min(amount*2, purgeMax)
	}
	msgs, err := s.ChannelMessages(i.ChannelID, limit, "", "", "", discordgo.WithContext(b.ctx))
	if err != nil {
		editResponseError(s, i, errors.WrapWithCode(classify(err), errors.ErrDiscord, "Failed to read the channel history", ""))
		return
	}
	ids := purgeTargets(msgs, userID, amount, time.Now())
	if err := s.ChannelMessagesBulkDelete(i.ChannelID, ids, discordgo.WithContext(b.ctx)); err != nil {
		editResponseError(s, i, errors.WrapWithCode(classify(err), errors.ErrPermission,
			"I couldn't delete the messages", "Check my Manage Messages permission"))
		return
	}

	desc := fmt.Sprintf("Deleted **%d** messages", len(ids))
	if userID != "" {
		desc += fmt.Sprintf(" from <@%s>", userID)
	}
	editResponse(s, i, &discordgo.MessageEmbed{
		Title:       "🧹 Messages deleted",
		Description: desc + ".",
		Color:       colorSuccess,
	})
	b.log.WithFields(logrus.Fields{
		"guild":   i.GuildID,
		"channel": i.ChannelID,
		"by":      interactionUser(i).ID,
		"deleted": len(ids),
	}).Info("Messages purged")
}

func (b *Bot) handleBan(s *discordgo.Session, i *discordgo.InteractionCreate) {
	_, g := b.moderationContext(s, i)
	if g == nil {
		return
	}
	target := b.target(s, i, g, "ban")
	if target == nil {
		return
	}
	reason := optionReason(i)
	days := int(optionInt(i, "delete_days", defaultBanDays))
	if days < 0 || days > 7 {
		days = defaultBanDays
	}
	moderator := interactionUser(i)
	if !deferResponse(s, i, true) {
		return
	}

	dmSent := b.sendDM(s, target.User.ID, &discordgo.MessageEmbed{
		Title:       "🔨 You have been banned",
		Description: fmt.Sprintf("You have been banned from **%s**", g.Name),
		Color:       colorError,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reason", Value: reason},
			{Name: "Moderator", Value: displayName(moderator)},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	auditReason := fmt.Sprintf("Banned by %s - %s", moderator.Username, reason)
	if err := s.GuildBanCreateWithReason(i.GuildID, target.User.ID, auditReason, days, discordgo.WithContext(b.ctx)); err != nil {
		editResponseError(s, i, errors.WrapWithCode(classify(err), errors.ErrPermission,
			"I couldn't ban that user", "Check my Ban Members permission"))
		return
	}

	editResponse(s, i, &discordgo.MessageEmbed{
		Title:       "🔨 User banned",
		Description: fmt.Sprintf("**%s** has been banned from the server.", displayName(target.User)),
		Color:       colorError,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: fmt.Sprintf("<@%s> (%s)", target.User.ID, target.User.ID), Inline: true},
			{Name: "Moderator", Value: moderator.Mention(), Inline: true},
			{Name: "Reason", Value: reason},
			{Name: "Messages deleted", Value: fmt.Sprintf("%d day(s)", days), Inline: true},
			{Name: "DM sent", Value: yesNo(dmSent), Inline: true},
		},
	})
	b.log.WithFields(logrus.Fields{"guild": i.GuildID, "user": target.User.ID, "by": moderator.ID}).Info("User banned")
}

func (b *Bot) handleTimeout(s *discordgo.Session, i *discordgo.InteractionCreate) {
	_, g := b.moderationContext(s, i)
	if g == nil {
		return
	}
	minutes := optionInt(i, "minutes", 0)
	duration := time.Duration(minutes) * time.Minute
	if minutes < 1 || duration > maxTimeout {
		respondError(s, i, errors.New(errors.ErrConfig,
			"Duration must be between 1 and 40320 minutes (28 days)", ""))
		return
	}
	target := b.target(s, i, g, "time out")
	if target == nil {
		return
	}
	reason := optionReason(i)
	moderator := interactionUser(i)
	if !deferResponse(s, i, true) {
		return
	}

	until := time.Now().Add(duration)
	dmSent := b.sendDM(s, target.User.ID, &discordgo.MessageEmbed{
		Title:       "🔇 You have been timed out",
		Description: fmt.Sprintf("You have been timed out in **%s**", g.Name),
		Color:       colorWarning,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Duration", Value: fmt.Sprintf("%d minutes", minutes), Inline: true},
			{Name: "Reason", Value: reason},
			{Name: "Moderator", Value: displayName(moderator)},
			{Name: "Ends", Value: discordTime(until)},
		},
	})

	if err := s.GuildMemberTimeout(i.GuildID, target.User.ID, &until, discordgo.WithContext(b.ctx)); err != nil {
		editResponseError(s, i, errors.WrapWithCode(classify(err), errors.ErrPermission,
			"I couldn't time out that user", "Check my Timeout Members permission"))
		return
	}

	editResponse(s, i, &discordgo.MessageEmbed{
		Title:       "🔇 User timed out",
		Description: fmt.Sprintf("**%s** has been timed out.", displayName(target.User)),
		Color:       colorWarning,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: fmt.Sprintf("<@%s> (%s)", target.User.ID, target.User.ID), Inline: true},
			{Name: "Moderator", Value: moderator.Mention(), Inline: true},
			{Name: "Duration", Value: fmt.Sprintf("%d minutes", minutes), Inline: true},
			{Name: "Reason", Value: reason},
			{Name: "Ends", Value: discordTime(until), Inline: true},
			{Name: "DM sent", Value: yesNo(dmSent), Inline: true},
		},
	})
	b.log.WithFields(logrus.Fields{
		"guild":   i.GuildID,
		"user":    target.User.ID,
		"by":      moderator.ID,
		"minutes": minutes,
	}).Info("User timed out")
}

func (b *Bot) handleTimeoutRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if _, g := b.moderationContext(s, i); g == nil {
		return
	}
	target, err := b.member(s, i.GuildID, optionID(i, "user", ""))
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrConfig, "That user is not a member of this server", ""))
		return
	}
	if !isTimedOut(target, time.Now()) {
		respondEmbed(s, i, &discordgo.MessageEmbed{
			Title:       "ℹ️ Not timed out",
			Description: fmt.Sprintf("**%s** is not currently timed out.", displayName(target.User)),
			Color:       colorInfo,
		}, true)
		return
	}

	if err := s.GuildMemberTimeout(i.GuildID, target.User.ID, nil, discordgo.WithContext(b.ctx)); err != nil {
		respondError(s, i, errors.WrapWithCode(classify(err), errors.ErrPermission,
			"I couldn't remove the timeout", "Check my Timeout Members permission"))
		return
	}
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "🔊 Timeout removed",
		Description: fmt.Sprintf("**%s** can talk again.", displayName(target.User)),
		Color:       colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: fmt.Sprintf("<@%s> (%s)", target.User.ID, target.User.ID), Inline: true},
			{Name: "Moderator", Value: interactionUser(i).Mention(), Inline: true},
		},
	}, true)
}

func (b *Bot) handleModeratorRoleAdd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	roleID := optionID(i, "role", "")
	var added bool
	if _, err := store.Update(b.ctx, b.store, i.GuildID, func(gs *store.GuildSettings) {
		added = gs.AddModerationRole(roleID)
	}); err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error saving the configuration", ""))
		return
	}
	if !added {
		respondEmbed(s, i, &discordgo.MessageEmbed{
			Description: fmt.Sprintf("ℹ️ <@&%s> is already a moderation role", roleID),
			Color:       colorInfo,
		}, true)
		return
	}
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "✅ Moderation role added",
		Description: fmt.Sprintf("Members with <@&%s> can now use the moderation commands.", roleID),
		Color:       colorSuccess,
	}, true)
}

func (b *Bot) handleModeratorRoleRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	roleID := optionID(i, "role", "")
	var removed bool
	if _, err := store.Update(b.ctx, b.store, i.GuildID, func(gs *store.GuildSettings) {
		removed = gs.RemoveModerationRole(roleID)
	}); err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error saving the configuration", ""))
		return
	}
	if !removed {
		respondError(s, i, errors.New(errors.ErrNotConfigured,
			fmt.Sprintf("<@&%s> is not a moderation role", roleID), "Use /moderation-info to see the configured roles"))
		return
	}
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "✅ Moderation role removed",
		Description: fmt.Sprintf("<@&%s> can no longer use the moderation commands.", roleID),
		Color:       colorSuccess,
	}, true)
}

func moderationInfoEmbed(settings *store.GuildSettings, g *discordgo.Guild) *discordgo.MessageEmbed {
	roles := make([]string, 0, len(settings.ModerationRoleIDs))
	for _, id := range settings.ModerationRoleIDs {
		roles = append(roles, roleMention(g, id.String()))
	}
	rolesText := strings.Join(roles, "\n")
	if rolesText == "" {
		rolesText = "Not configured"
	}
	return &discordgo.MessageEmbed{
		Title: "🛡️ Moderation settings",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "👮 Moderation roles", Value: rolesText},
			{Name: "🔐 Always allowed", Value: "• Administrators\n• Members with `Ban Members`\n• Members with `Manage Messages`\n• Members with `Timeout Members`"},
			{Name: "⚙️ Commands", Value: "• `/purge` delete messages\n• `/ban` ban a user\n• `/timeout` time out a user\n• `/timeout-remove` lift a timeout"},
		},
	}
}

// roleMention renders a role, or a warning when it no longer exists.
func roleMention(g *discordgo.Guild, roleID string) string {
	if g != nil {
		for _, r := range g.Roles {
			if r.ID == roleID {
				return fmt.Sprintf("<@&%s>", roleID)
			}
		}
	}
	return fmt.Sprintf("⚠️ Role not found (ID: %s)", roleID)
}

func (b *Bot) handleModerationInfo(s *discordgo.Session, i *discordgo.InteractionCreate) {
	settings, err := b.store.Get(b.ctx, i.GuildID)
	if err != nil {
		respondError(s, i, errors.WrapWithCode(err, errors.ErrStorage, "Error reading the configuration", ""))
		return
	}
	g, _ := s.State.Guild(i.GuildID)
	respondEmbed(s, i, moderationInfoEmbed(settings, g), true)
}

// roleAssignEmbed reports the progress or outcome of a mass role assignment.
func roleAssignEmbed(roleID string, total, pending, done, failed int, failures []string, finished bool) *discordgo.MessageEmbed {
	if !finished {
		return &discordgo.MessageEmbed{
			Title: "🔄 Assigning roles...",
			Description: fmt.Sprintf("Assigning <@&%s> to %d members.\n\n**Progress:** %d/%d\n**Succeeded:** %d\n**Failed:** %d",
				roleID, pending, done+failed, pending, done, failed),
			Color: colorWarning,
		}
	}

	embed := &discordgo.MessageEmbed{Color: colorSuccess}
	switch {
	case done == pending:
		embed.Title = "✅ Roles assigned"
		embed.Description = fmt.Sprintf("<@&%s> was assigned to **%d** members.", roleID, done)
	case done > 0:
		embed.Title = "⚠️ Roles partially assigned"
		embed.Description = fmt.Sprintf("<@&%s> was assigned to **%d** members.\n**%d** assignments failed.", roleID, done, failed)
		embed.Color = colorWarning
	default:
		embed.Title = "❌ Role assignment failed"
		embed.Description = fmt.Sprintf("<@&%s> could not be assigned to any member.", roleID)
		embed.Color = colorError
	}
	embed.Fields = []*discordgo.MessageEmbedField{{
		Name: "📊 Summary",
		Value: fmt.Sprintf("**Total members:** %d\n**Already had the role:** %d\n**Succeeded:** %d\n**Failed:** %d",
			total, total-pending, done, failed),
	}}
	if len(failures) > 0 {
		list := failures
		if len(list) > 5 {
			list = append(list[:5:5], fmt.Sprintf("... and %d more", len(failures)-5))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "❌ Failed assignments",
			Value: strings.Join(list, "\n"),
		})
	}
	return embed
}

// allMembers pages through the guild member list.
func (b *Bot) allMembers(s *discordgo.Session, guildID string) ([]*discordgo.Member, error) {
	var all []*discordgo.Member
	after := ""
	for {
		page, err := s.GuildMembers(guildID, after, 1000, discordgo.WithContext(b.ctx))
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < 1000 {
			return all, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (b *Bot) handleRoleAssignAll(s *discordgo.Session, i *discordgo.InteractionCreate) {
	roleID := optionID(i, "role", "")
	g, err := s.State.Guild(i.GuildID)
	if err != nil {
		respondError(s, i, errors.Wrap(err, "Could not load this server"))
		return
	}
	if roleID == g.ID {
		respondError(s, i, errors.New(errors.ErrConfig, "You can't assign the @everyone role", ""))
		return
	}
	bot, err := b.member(s, i.GuildID, s.State.User.ID)
	if err != nil {
		respondError(s, i, errors.Wrap(err, "Could not load my own member"))
		return
	}
	role := highestRole(g.Roles, []string{roleID})
	if role >= highestRole(g.Roles, bot.Roles) {
		respondError(s, i, errors.New(errors.ErrPermission,
			fmt.Sprintf("I can't assign <@&%s> because it is at or above my highest role", roleID),
			"Move my role above it in Server Settings > Roles"))
		return
	}
	if i.Member.User.ID != g.OwnerID && role >= highestRole(g.Roles, i.Member.Roles) {
		respondError(s, i, errors.New(errors.ErrPermission,
			fmt.Sprintf("You can't assign <@&%s> because it is at or above your highest role", roleID), ""))
		return
	}
	if !deferResponse(s, i, false) {
		return
	}

	members, err := b.allMembers(s, i.GuildID)
	if err != nil {
		editResponseError(s, i, errors.WrapWithCode(classify(err), errors.ErrDiscord, "Failed to list the server members", ""))
		return
	}
	var pending []*discordgo.Member
	for _, m := range members {
		if m.User != nil && !hasRole(m, roleID) {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		editResponse(s, i, &discordgo.MessageEmbed{
			Title:       "ℹ️ Nothing to do",
			Description: fmt.Sprintf("Every member already has <@&%s>.", roleID),
			Color:       colorInfo,
		})
		return
	}

	log := b.log.WithFields(logrus.Fields{"guild": i.GuildID, "role": roleID, "by": i.Member.User.ID})
	editResponse(s, i, roleAssignEmbed(roleID, len(members), len(pending), 0, 0, nil, false))

	var done, failed int
	var failures []string
	for n, m := range pending {
		if err := s.GuildMemberRoleAdd(i.GuildID, m.User.ID, roleID, discordgo.WithContext(b.ctx)); err != nil {
			failed++
			failures = append(failures, fmt.Sprintf("%s (%v)", displayName(m.User), classify(err)))
		} else {
			done++
		}
		if b.ctx.Err() != nil {
			break
		}
		if (n+1)%10 == 0 && n+1 < len(pending) {
			editResponse(s, i, roleAssignEmbed(roleID, len(members), len(pending), done, failed, nil, false))
		}
	}

	editResponse(s, i, roleAssignEmbed(roleID, len(members), len(pending), done, failed, failures, true))
	log.WithFields(logrus.Fields{"assigned": done, "failed": failed}).Info("Mass role assignment finished")
}
