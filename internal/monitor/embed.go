package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ptscripts/ptbot/internal/statuspage"
)

var groupTitles = []struct {
	group statuspage.Group
	title string
}{
	{statuspage.GroupGaming, "🎮 **Game Services**"},
	{statuspage.GroupPlatform, "🛠️ **Platform Services**"},
	{statuspage.GroupCommunity, "👥 **Community Services**"},
}

// RenderStatus builds the status embed posted in monitor channels.
func RenderStatus(snap *statuspage.Snapshot, statusURL string, interval time.Duration) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "📊 FiveM Server Status",
		Description: fmt.Sprintf("**Overall:** %s\n\nLive data from [%s](%s)",
			snap.Overall.Label(), strings.TrimPrefix(strings.TrimPrefix(statusURL, "https://"), "http://"), statusURL),
		Color:     snap.Overall.Color(),
		Timestamp: snap.FetchedAt.Format(time.RFC3339),
	}

	for _, g := range groupTitles {
		services := snap.InGroup(g.group)
		if len(services) == 0 {
			continue
		}
		lines := make([]string, 0, len(services))
		for _, ss := range services {
			lines = append(lines, fmt.Sprintf("%s %s: %s", ss.Service.Emoji, ss.Service.Name, ss.Status.Label()))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  g.title,
			Value: strings.Join(lines, "\n"),
		})
	}

	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("🔄 Updated automatically every %s", humanInterval(interval)),
	}
	return embed
}

func humanInterval(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "minute"
	case d >= time.Second && d%time.Second == 0:
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	default:
		return d.String()
	}
}
