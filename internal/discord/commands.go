package discord

import (
	"github.com/bwmarrin/discordgo"
)

var (
	permAdministrator  int64 = discordgo.PermissionAdministrator
	permManageGuild    int64 = discordgo.PermissionManageServer
	permManageChannels int64 = discordgo.PermissionManageChannels
	permManageRoles    int64 = discordgo.PermissionManageRoles

	dmPermission = false
)

var textChannelTypes = []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews}

func channelOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  description,
		Required:     required,
		ChannelTypes: textChannelTypes,
	}
}

func userOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        name,
		Description: description,
		Required:    true,
	}
}

func intOption(name, description string, required bool, lo, hi float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		Required:    required,
		MinValue:    &lo,
		MaxValue:    hi,
	}
}

var reasonOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionString,
	Name:        "reason",
	Description: "Reason (shown to the user and in the audit log)",
}

func roleOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionRole,
		Name:        name,
		Description: description,
		Required:    true,
	}
}

// commands is the full set registered in every guild.
func commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		// FiveM status
		{
			Name:         "fivem-status",
			Description:  "Show the current FiveM and Cfx.re service status",
			DMPermission: &dmPermission,
		},
		{
			Name:                     "fivem-monitor-configure",
			Description:              "Post a live FiveM status message that updates automatically",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("channel", "Channel for the status message", true),
			},
		},
		{
			Name:                     "fivem-monitor-disable",
			Description:              "Stop updating the FiveM status message in this server",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
		},
		{
			Name:                     "fivem-monitor-update",
			Description:              "Refresh the FiveM status messages now",
			DefaultMemberPermissions: &permManageGuild,
			DMPermission:             &dmPermission,
		},
		{
			Name:         "fivem-monitor-info",
			Description:  "Show the FiveM status monitor settings of this server",
			DMPermission: &dmPermission,
		},
		{
			Name:        "fivem-monitor-global",
			Description: "Owner-only: list every server with an active FiveM monitor",
		},

		// Welcome
		{
			Name:                     "welcome-configure",
			Description:              "Set the channel for welcome messages",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("channel", "Channel where new members are welcomed", true),
			},
		},
		{
			Name:                     "welcome-disable",
			Description:              "Stop sending welcome messages",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
		},
		{
			Name:         "welcome-info",
			Description:  "Show the welcome message settings",
			DMPermission: &dmPermission,
		},
		{
			Name:                     "welcome-preview",
			Description:              "Preview the welcome message using yourself",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
		},

		// Tickets
		{
			Name:                     "ticket-panel",
			Description:              "Post the support ticket panel",
			DefaultMemberPermissions: &permManageChannels,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("channel", "Channel for the panel (defaults to this one)", false),
			},
		},
		{
			Name:                     "ticket-category",
			Description:              "Set the category new tickets are created in",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "category",
					Description:  "Ticket category",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildCategory},
				},
			},
		},
		{
			Name:                     "ticket-staff-role",
			Description:              "Add or remove a role that can see and close tickets",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				roleOption("role", "Staff role to toggle"),
			},
		},
		{
			Name:                     "ticket-transcripts",
			Description:              "Set the channel that receives ticket transcripts",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("channel", "Transcript channel", true),
			},
		},
		{
			Name:                     "ticket-staff-roles",
			Description:              "List the ticket staff roles",
			DefaultMemberPermissions: &permManageRoles,
			DMPermission:             &dmPermission,
		},
		{
			Name:                     "ticket-transcripts-disable",
			Description:              "Stop posting ticket transcripts to a channel",
			DefaultMemberPermissions: &permManageChannels,
			DMPermission:             &dmPermission,
		},
		{
			Name:                     "ticket-transcripts-info",
			Description:              "Show the ticket transcript settings",
			DefaultMemberPermissions: &permManageChannels,
			DMPermission:             &dmPermission,
		},
		{
			Name:                     "ticket-staff-mention",
			Description:              "Set the role mentioned when a ticket is opened",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				roleOption("role", "Role to mention"),
			},
		},

		// Verification
		{
			Name:                     "verification",
			Description:              "Post the verification message",
			DefaultMemberPermissions: &permManageRoles,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("channel", "Channel for the message (defaults to this one)", false),
			},
		},
		{
			Name:                     "verification-role",
			Description:              "Set the role given on verification",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				roleOption("role", "Verified role"),
			},
		},
		{
			Name:                     "verification-emoji",
			Description:              "Set the reaction used to verify",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "emoji",
					Description: "Unicode emoji",
					Required:    true,
				},
			},
		},

		// Moderation: open to everyone, checked per guild in the handler so
		// configured moderation roles work without Discord permissions.
		{
			Name:         "purge",
			Description:  "Delete recent messages in this channel",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				intOption("amount", "Number of messages to delete (max 100)", true, 1, 100),
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Only delete messages from this user",
				},
			},
		},
		{
			Name:         "ban",
			Description:  "Ban a user from the server",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "User to ban"),
				reasonOption,
				intOption("delete_days", "Days of messages to delete (0-7, default 1)", false, 0, 7),
			},
		},
		{
			Name:         "timeout",
			Description:  "Temporarily mute a user",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "User to time out"),
				intOption("minutes", "Duration in minutes (max 40320)", true, 1, 40320),
				reasonOption,
			},
		},
		{
			Name:         "timeout-remove",
			Description:  "Lift a user's timeout",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "User to unmute"),
			},
		},
		{
			Name:                     "moderator-role-add",
			Description:              "Allow a role to use the moderation commands",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				roleOption("role", "Moderation role"),
			},
		},
		{
			Name:                     "moderator-role-remove",
			Description:              "Stop a role from using the moderation commands",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				roleOption("role", "Moderation role"),
			},
		},
		{
			Name:                     "moderation-info",
			Description:              "Show the moderation settings",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
		},
		{
			Name:                     "role-assign-all",
			Description:              "Give a role to every member of the server",
			DefaultMemberPermissions: &permAdministrator,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				roleOption("role", "Role to assign"),
			},
		},

		// Utility
		{
			Name:        "ping",
			Description: "Show the bot latency",
		},
		{
			Name:         "server-info",
			Description:  "Show information about this server",
			DMPermission: &dmPermission,
		},
		{
			Name:         "server-icon",
			Description:  "Show this server's icon",
			DMPermission: &dmPermission,
		},
	}
}

type handlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

func (b *Bot) commandHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"fivem-status":            b.handleFivemStatus,
		"fivem-monitor-configure": b.handleMonitorConfigure,
		"fivem-monitor-disable":   b.handleMonitorDisable,
		"fivem-monitor-update":    b.handleMonitorUpdate,
		"fivem-monitor-info":      b.handleMonitorInfo,
		"fivem-monitor-global":    b.handleMonitorGlobal,

		"welcome-configure": b.handleWelcomeConfigure,
		"welcome-disable":   b.handleWelcomeDisable,
		"welcome-info":      b.handleWelcomeInfo,
		"welcome-preview":   b.handleWelcomePreview,

		"ticket-panel":         b.handleTicketPanel,
		"ticket-category":      b.handleTicketCategory,
		"ticket-staff-role":    b.handleTicketStaffRole,
		"ticket-transcripts":   b.handleTicketTranscripts,
		"ticket-staff-mention": b.handleTicketStaffMention,

		"ticket-staff-roles":         b.handleTicketStaffRoles,
		"ticket-transcripts-disable": b.handleTicketTranscriptsDisable,
		"ticket-transcripts-info":    b.handleTicketTranscriptsInfo,

		"verification":       b.handleVerification,
		"verification-role":  b.handleVerificationRole,
		"verification-emoji": b.handleVerificationEmoji,

		"purge":                 b.handlePurge,
		"ban":                   b.handleBan,
		"timeout":               b.handleTimeout,
		"timeout-remove":        b.handleTimeoutRemove,
		"moderator-role-add":    b.handleModeratorRoleAdd,
		"moderator-role-remove": b.handleModeratorRoleRemove,
		"moderation-info":       b.handleModerationInfo,
		"role-assign-all":       b.handleRoleAssignAll,

		"ping":        b.handlePing,
		"server-info": b.handleServerInfo,
		"server-icon": b.handleServerIcon,
	}
}

func (b *Bot) componentHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		createTicketID: b.handleCreateTicket,
		closeTicketID:  b.handleCloseTicket,
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		if h, ok := b.commands[name]; ok {
			h(s, i)
			return
		}
		b.log.WithField("command", name).Warn("Unknown command")
	case discordgo.InteractionMessageComponent:
		id := i.MessageComponentData().CustomID
		if h, ok := b.components[id]; ok {
			h(s, i)
			return
		}
		b.log.WithField("custom_id", id).Debug("Unhandled component")
	}
}

// syncCommands replaces the guild's commands with exactly the current set.
func (b *Bot) syncCommands(s *discordgo.Session, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, commands())
	return err
}
