package discord

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptscripts/ptbot/internal/monitor"
	"github.com/ptscripts/ptbot/internal/store"
)

func restError(status, code int) error {
	e := &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
	if code != 0 {
		e.Message = &discordgo.APIErrorMessage{Code: code, Message: "test"}
	}
	return fmt.Errorf("request failed: %w", e)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantNotFound  bool
		wantForbidden bool
	}{
		{name: "nil", err: nil},
		{name: "plain error untouched", err: errors.New("boom")},
		{name: "unknown channel", err: restError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel), wantNotFound: true},
		{name: "unknown message", err: restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage), wantNotFound: true},
		{name: "missing access", err: restError(http.StatusForbidden, discordgo.ErrCodeMissingAccess), wantForbidden: true},
		{name: "missing permissions", err: restError(http.StatusForbidden, discordgo.ErrCodeMissingPermissions), wantForbidden: true},
		{name: "bare 404", err: restError(http.StatusNotFound, 0), wantNotFound: true},
		{name: "bare 403", err: restError(http.StatusForbidden, 0), wantForbidden: true},
		{name: "code wins over status", err: restError(http.StatusBadRequest, discordgo.ErrCodeUnknownMessage), wantNotFound: true},
		{name: "server error is transient", err: restError(http.StatusBadGateway, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			require.Error(t, got)
			assert.Equal(t, tt.wantNotFound, errors.Is(got, monitor.ErrNotFound))
			assert.Equal(t, tt.wantForbidden, errors.Is(got, monitor.ErrForbidden))
		})
	}
}

func TestIsDiscordErrorCode(t *testing.T) {
	err := restError(http.StatusForbidden, discordgo.ErrCodeCannotSendMessagesToThisUser)
	assert.True(t, isDiscordErrorCode(err, discordgo.ErrCodeCannotSendMessagesToThisUser))
	assert.False(t, isDiscordErrorCode(err, discordgo.ErrCodeUnknownChannel))
	assert.False(t, isDiscordErrorCode(errors.New("x"), discordgo.ErrCodeUnknownChannel))
}

func TestCommandsHaveHandlers(t *testing.T) {
	b := &Bot{}
	handlers := b.commandHandlers()

	seen := make(map[string]bool)
	for _, cmd := range commands() {
		assert.False(t, seen[cmd.Name], "duplicate command %s", cmd.Name)
		seen[cmd.Name] = true
		assert.Contains(t, handlers, cmd.Name)
		assert.LessOrEqual(t, len(cmd.Description), 100, cmd.Name)
		assert.Equal(t, strings.ToLower(cmd.Name), cmd.Name)
	}
	assert.Len(t, handlers, len(seen))

	components := b.componentHandlers()
	assert.Contains(t, components, createTicketID)
	assert.Contains(t, components, closeTicketID)
}

func TestTicketChannelName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alice", "ticket-alice"},
		{"bob_99", "ticket-bob_99"},
		{"John Doe", "ticket-john-doe"},
		{"dots.and.stuff", "ticket-dotsandstuff"},
		{"!!!", "ticket-user"},
		{strings.Repeat("a", 120), "ticket-" + strings.Repeat("a", 93)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ticketChannelName(tt.in), tt.in)
	}
}

func TestTicketOwner(t *testing.T) {
	u := &discordgo.User{ID: "123456789", Username: "alice", GlobalName: "Alice (Admin)"}
	topic := ticketTopic(u)

	assert.Equal(t, "Support ticket for Alice (Admin) (123456789)", topic)
	assert.Equal(t, "123456789", ticketOwner(topic))
	assert.Empty(t, ticketOwner("just a channel"))
	assert.Empty(t, ticketOwner(""))
}

func TestTicketOverwrites(t *testing.T) {
	ow := ticketOverwrites("guild", "user", "bot", []store.Snowflake{"staff1", "staff2"})

	require.Len(t, ow, 5)
	assert.Equal(t, "guild", ow[0].ID)
	assert.Equal(t, int64(discordgo.PermissionViewChannel), ow[0].Deny)
	assert.Equal(t, discordgo.PermissionOverwriteTypeMember, ow[1].Type)
	assert.NotZero(t, ow[1].Allow&discordgo.PermissionSendMessages)
	assert.NotZero(t, ow[2].Allow&discordgo.PermissionManageChannels)
	assert.Equal(t, "staff2", ow[4].ID)
	assert.Equal(t, discordgo.PermissionOverwriteTypeRole, ow[4].Type)
}

func TestCanCloseTicket(t *testing.T) {
	ch := &discordgo.Channel{Name: "ticket-alice", Topic: "Support ticket for Alice (1)"}
	settings := &store.GuildSettings{StaffRoleIDs: []store.Snowflake{"staff"}}

	tests := []struct {
		name   string
		member *discordgo.Member
		want   bool
	}{
		{"creator", &discordgo.Member{User: &discordgo.User{ID: "1"}}, true},
		{"staff role", &discordgo.Member{User: &discordgo.User{ID: "2"}, Roles: []string{"other", "staff"}}, true},
		{"manage channels", &discordgo.Member{User: &discordgo.User{ID: "3"}, Permissions: discordgo.PermissionManageChannels}, true},
		{"anyone else", &discordgo.Member{User: &discordgo.User{ID: "4"}, Roles: []string{"other"}}, false},
		{"no member", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canCloseTicket(tt.member, ch, settings))
		})
	}
}

func TestStaffMention(t *testing.T) {
	assert.Empty(t, staffMention(&store.GuildSettings{}))
	assert.Equal(t, "<@&a> <@&b>", staffMention(&store.GuildSettings{StaffRoleIDs: []store.Snowflake{"a", "b"}}))
	assert.Equal(t, "<@&m>", staffMention(&store.GuildSettings{
		StaffRoleIDs:       []store.Snowflake{"a"},
		StaffMentionRoleID: "m",
	}))
}

func TestBuildTranscript(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []*discordgo.Message{
		{
			Author:    &discordgo.User{Username: "bot", GlobalName: "PT Bot"},
			Timestamp: base,
			Embeds:    []*discordgo.MessageEmbed{{Title: "Ticket Created", Description: "hello"}},
		},
		{
			Author:      &discordgo.User{Username: "alice"},
			Content:     "my server is down",
			Timestamp:   base.Add(time.Minute),
			Attachments: []*discordgo.MessageAttachment{{Filename: "log.txt"}},
		},
	}

	out := buildTranscript("ticket-alice", "Alice", base.Add(-time.Hour), base.Add(time.Hour), msgs)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "Ticket Transcript: ticket-alice", lines[0])
	assert.Equal(t, "User: Alice", lines[1])
	assert.Equal(t, "Created: 2024-03-01 11:00:00", lines[2])
	assert.Equal(t, "Closed: 2024-03-01 13:00:00", lines[3])
	assert.Equal(t, strings.Repeat("=", 50), lines[4])
	assert.Contains(t, out, "[2024-03-01 12:00:00] PT Bot (bot): [No content]\n[Embed: Ticket Created]\nhello\n")
	assert.Contains(t, out, "[2024-03-01 12:01:00] alice (alice): my server is down\n[Attachment: log.txt]\n")
	assert.Less(t, strings.Index(out, "PT Bot"), strings.Index(out, "my server is down"))
}

func TestIsVerificationMessage(t *testing.T) {
	bot := &discordgo.User{ID: "bot"}
	tests := []struct {
		name string
		msg  *discordgo.Message
		want bool
	}{
		{"bot prompt", &discordgo.Message{Author: bot, Embeds: []*discordgo.MessageEmbed{{Title: "🔐 Server Verification"}}}, true},
		{"case insensitive", &discordgo.Message{Author: bot, Embeds: []*discordgo.MessageEmbed{{Title: "VERIFICATION"}}}, true},
		{"other author", &discordgo.Message{Author: &discordgo.User{ID: "x"}, Embeds: []*discordgo.MessageEmbed{{Title: "Verification"}}}, false},
		{"no embed", &discordgo.Message{Author: bot, Content: "verification"}, false},
		{"other title", &discordgo.Message{Author: bot, Embeds: []*discordgo.MessageEmbed{{Title: "Status"}}}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isVerificationMessage(tt.msg, "bot"))
		})
	}
}

func TestEmojiHelpers(t *testing.T) {
	assert.Equal(t, "✅", emojiString(discordgo.Emoji{Name: "✅"}))
	assert.Equal(t, "<:ok:42>", emojiString(discordgo.Emoji{Name: "ok", ID: "42"}))

	assert.Equal(t, "✅", reactionAPIName("✅"))
	assert.Equal(t, "ok:42", reactionAPIName("<:ok:42>"))
	assert.Equal(t, "party:7", reactionAPIName("<a:party:7>"))
}

func TestWelcomeEmbed(t *testing.T) {
	member := &discordgo.Member{User: &discordgo.User{ID: "1", Username: "alice"}}
	guild := &discordgo.Guild{ID: "g", Name: "PT City", MemberCount: 42}

	e := welcomeEmbed(member, guild, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.Contains(t, e.Description, "<@1>")
	assert.Contains(t, e.Description, "**PT City**")
	assert.Equal(t, "👥 Member #42 • Join the adventure in PT City", e.Footer.Text)
	assert.Nil(t, e.Image, "no icon, no image")
	assert.Equal(t, "2024-01-01T00:00:00Z", e.Timestamp)

	guild.Icon = "abc"
	e = welcomeEmbed(member, guild, time.Now())
	require.NotNil(t, e.Image)
	assert.Contains(t, e.Image.URL, "abc")
}

func TestMonitorInfoEmbed(t *testing.T) {
	info := monitor.Info{
		Record:   monitor.Record{GuildID: "g", ChannelID: "c", MessageID: "m"},
		Running:  true,
		Interval: 5 * time.Minute,
		NextTick: time.Unix(1700000000, 0),
	}
	e := monitorInfoEmbed(info)

	values := map[string]string{}
	for _, f := range e.Fields {
		values[f.Name] = f.Value
	}
	assert.Equal(t, "<#c>", values["Channel"])
	assert.Equal(t, "[Jump](https://discord.com/channels/g/c/m)", values["Message"])
	assert.Equal(t, "5m0s", values["Interval"])
	assert.Equal(t, "<t:1700000000:R>", values["Next update"])
	assert.NotContains(t, values, "Last update")

	info.Record.MessageID = ""
	assert.Contains(t, messageLink(info.Record), "Pending")
}

func TestServerInfoEmbed(t *testing.T) {
	g := &discordgo.Guild{
		ID:          "175928847299117063",
		Name:        "PT City",
		OwnerID:     "9",
		MemberCount: 10,
		Channels: []*discordgo.Channel{
			{Type: discordgo.ChannelTypeGuildText},
			{Type: discordgo.ChannelTypeGuildText},
			{Type: discordgo.ChannelTypeGuildVoice},
			{Type: discordgo.ChannelTypeGuildCategory},
		},
	}
	e := serverInfoEmbed(g)

	assert.Equal(t, "📊 PT City", e.Title)
	var channels string
	for _, f := range e.Fields {
		if strings.Contains(f.Name, "Channels") {
			channels = f.Value
		}
	}
	assert.Equal(t, "2 text · 1 voice · 1 categories", channels)
	assert.Nil(t, e.Thumbnail)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
