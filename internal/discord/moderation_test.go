package discord

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ptscripts/ptbot/internal/errors"
	"github.com/ptscripts/ptbot/internal/store"
)

func testGuild() *discordgo.Guild {
	return &discordgo.Guild{
		ID:      "g1",
		Name:    "City",
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "g1", Position: 0},
			{ID: "member", Position: 1},
			{ID: "mod", Position: 5},
			{ID: "bot", Position: 8},
			{ID: "admin", Position: 10},
		},
	}
}

func testMember(id string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id, Username: id}, Roles: roles}
}

func TestHasModerationPermission(t *testing.T) {
	settings := &store.GuildSettings{ModerationRoleIDs: []store.Snowflake{"mod"}}

	tests := []struct {
		name   string
		member *discordgo.Member
		want   bool
	}{
		{name: "nil member", member: nil},
		{name: "plain member", member: testMember("u", "member")},
		{name: "configured role", member: testMember("u", "member", "mod"), want: true},
		{name: "administrator", member: &discordgo.Member{Permissions: discordgo.PermissionAdministrator}, want: true},
		{name: "ban members", member: &discordgo.Member{Permissions: discordgo.PermissionBanMembers}, want: true},
		{name: "manage messages", member: &discordgo.Member{Permissions: discordgo.PermissionManageMessages}, want: true},
		{name: "timeout members", member: &discordgo.Member{Permissions: discordgo.PermissionModerateMembers}, want: true},
		{name: "unrelated permission", member: &discordgo.Member{Permissions: discordgo.PermissionSendMessages}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasModerationPermission(tt.member, settings))
		})
	}
}

func TestHighestRole(t *testing.T) {
	g := testGuild()
	assert.Equal(t, 0, highestRole(g.Roles, nil))
	assert.Equal(t, 5, highestRole(g.Roles, []string{"member", "mod"}))
	assert.Equal(t, 0, highestRole(g.Roles, []string{"deleted"}))
}

func TestCheckHierarchy(t *testing.T) {
	g := testGuild()
	bot := testMember("botuser", "bot")

	tests := []struct {
		name    string
		actor   *discordgo.Member
		target  *discordgo.Member
		wantErr string
		code    string
	}{
		{name: "mod bans member", actor: testMember("m", "mod"), target: testMember("u", "member")},
		{name: "self", actor: testMember("m", "mod"), target: testMember("m", "mod"), wantErr: "yourself", code: apperrors.ErrConfig},
		{name: "owner target", actor: testMember("m", "admin"), target: testMember("owner"), wantErr: "server owner", code: apperrors.ErrPermission},
		{name: "equal role", actor: testMember("m", "mod"), target: testMember("u", "mod"), wantErr: "above yours", code: apperrors.ErrPermission},
		{name: "owner may act on anyone below the bot", actor: testMember("owner"), target: testMember("u", "mod")},
		{name: "target above bot", actor: testMember("m", "admin"), target: testMember("u", "bot"), wantErr: "above mine", code: apperrors.ErrPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkHierarchy(g, tt.actor, tt.target, bot, "ban")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, apperrors.IsCode(err, tt.code))
		})
	}
}

func TestPurgeTargets(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := func(id, author string, age time.Duration) *discordgo.Message {
		return &discordgo.Message{ID: id, Author: &discordgo.User{ID: author}, Timestamp: now.Add(-age)}
	}
	msgs := []*discordgo.Message{
		msg("5", "a", time.Minute),
		msg("4", "b", time.Hour),
		msg("3", "a", 2*time.Hour),
		msg("2", "a", 15*24*time.Hour),
		msg("1", "b", 20*24*time.Hour),
	}

	assert.Equal(t, []string{"5", "4"}, purgeTargets(msgs, "", 2, now))
	assert.Equal(t, []string{"5", "4", "3"}, purgeTargets(msgs, "", 10, now), "messages older than 14 days are skipped")
	assert.Equal(t, []string{"5", "3"}, purgeTargets(msgs, "a", 5, now))
	assert.Empty(t, purgeTargets(msgs, "c", 5, now))
}

func TestIsTimedOut(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.False(t, isTimedOut(&discordgo.Member{}, now))
	assert.False(t, isTimedOut(&discordgo.Member{CommunicationDisabledUntil: &past}, now))
	assert.True(t, isTimedOut(&discordgo.Member{CommunicationDisabledUntil: &future}, now))
}

func TestModerationInfoEmbed(t *testing.T) {
	g := testGuild()

	embed := moderationInfoEmbed(&store.GuildSettings{}, g)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "Not configured", embed.Fields[0].Value)

	embed = moderationInfoEmbed(&store.GuildSettings{ModerationRoleIDs: []store.Snowflake{"mod", "gone"}}, g)
	assert.Contains(t, embed.Fields[0].Value, "<@&mod>")
	assert.Contains(t, embed.Fields[0].Value, "Role not found (ID: gone)")
}

func TestRoleAssignEmbed(t *testing.T) {
	progress := roleAssignEmbed("r", 50, 30, 9, 1, nil, false)
	assert.Contains(t, progress.Description, "**Progress:** 10/30")
	assert.Empty(t, progress.Fields)

	ok := roleAssignEmbed("r", 50, 30, 30, 0, nil, true)
	assert.Equal(t, "✅ Roles assigned", ok.Title)
	assert.Contains(t, ok.Fields[0].Value, "**Already had the role:** 20")

	failures := []string{"a", "b", "c", "d", "e", "f", "g"}
	partial := roleAssignEmbed("r", 50, 30, 23, 7, failures, true)
	assert.Equal(t, colorWarning, partial.Color)
	require.Len(t, partial.Fields, 2)
	assert.Equal(t, 6, len(strings.Split(partial.Fields[1].Value, "\n")))
	assert.Contains(t, partial.Fields[1].Value, "... and 2 more")
	assert.Len(t, failures, 7, "caller's slice is not modified")

	none := roleAssignEmbed("r", 50, 30, 0, 30, nil, true)
	assert.Equal(t, colorError, none.Color)
}

func TestStaffRolesEmbed(t *testing.T) {
	g := testGuild()

	empty := staffRolesEmbed(&store.GuildSettings{}, g)
	assert.Contains(t, empty.Fields[0].Value, "No staff roles configured")

	embed := staffRolesEmbed(&store.GuildSettings{
		StaffRoleIDs:       []store.Snowflake{"mod", "gone"},
		StaffMentionRoleID: "mod",
	}, g)
	require.Len(t, embed.Fields, 3)
	assert.Contains(t, embed.Fields[0].Value, "<@&mod> 🔔")
	assert.Contains(t, embed.Fields[0].Value, "Role not found (ID: gone)")
	assert.Equal(t, "<@&mod>", embed.Fields[1].Value)
	assert.Equal(t, "1", embed.Fields[2].Value)
}

func TestTranscriptInfoEmbed(t *testing.T) {
	disabled := transcriptInfoEmbed(&store.GuildSettings{}, nil, -1)
	assert.Contains(t, disabled.Fields[0].Value, "disabled")

	settings := &store.GuildSettings{TranscriptChannelID: "c9"}
	missing := transcriptInfoEmbed(settings, nil, -1)
	assert.Contains(t, missing.Fields[1].Value, "Channel not found (ID: c9)")
	assert.Len(t, missing.Fields, 2)

	ch := &discordgo.Channel{ID: "c9"}
	embed := transcriptInfoEmbed(settings, ch, discordgo.PermissionSendMessages|discordgo.PermissionEmbedLinks)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "<#c9>", embed.Fields[1].Value)
	assert.Contains(t, embed.Fields[2].Value, "✅ Send messages")
	assert.Contains(t, embed.Fields[2].Value, "❌ Attach files")
}
