package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// startStatusRotator cycles the "Watching ..." presence until Close.
func (b *Bot) startStatusRotator(s *discordgo.Session) {
	statuses := b.cfg.Presence.Statuses
	if len(statuses) == 0 {
		return
	}
	interval := b.cfg.Presence.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	ticker := time.NewTicker(interval)
	idx := 0
	// set initial presence immediately
	b.updateStatus(s, statuses[idx])
	for {
		select {
		case <-ticker.C:
			idx = (idx + 1) % len(statuses)
			b.updateStatus(s, statuses[idx])
		case <-b.stopPresence:
			ticker.Stop()
			return
		}
	}
}

func (b *Bot) updateStatus(s *discordgo.Session, text string) {
	err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{{
			Name: text,
			Type: discordgo.ActivityTypeWatching,
		}},
	})
	if err != nil {
		b.log.WithError(err).Debug("Failed to update presence")
	}
}
