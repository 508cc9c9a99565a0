package monitor

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrNotFound means the channel or message no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the bot may not read or post in the channel.
	ErrForbidden = errors.New("forbidden")
)

// Messenger is the chat platform surface the monitor needs. Implementations
// wrap ErrNotFound or ErrForbidden when the platform reports those conditions.
type Messenger interface {
	// CheckChannel returns nil if the channel exists and the bot can post in it.
	CheckChannel(ctx context.Context, channelID string) error
	CreateMessage(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error)
	EditMessage(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error
	FetchMessage(ctx context.Context, channelID, messageID string) error
}

// isStale reports whether err means the target is gone or unusable, as
// opposed to a transient failure worth retrying next tick.
func isStale(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden)
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func isForbidden(err error) bool { return errors.Is(err, ErrForbidden) }
