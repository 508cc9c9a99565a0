package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/ptscripts/ptbot/internal/monitor"
)

// Outbound message budget shared by every guild.
const (
	messageLimit = 5
	timeWindow   = 1 * time.Second
)

const postPermissions = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionEmbedLinks

// Messenger implements monitor.Messenger on a discordgo session.
type Messenger struct {
	session *discordgo.Session
	limiter *rate.Limiter
}

func NewMessenger(s *discordgo.Session) *Messenger {
	return &Messenger{
		session: s,
		limiter: rate.NewLimiter(rate.Every(timeWindow/messageLimit), messageLimit),
	}
}

func (m *Messenger) CheckChannel(ctx context.Context, channelID string) error {
	ch, err := m.session.State.Channel(channelID)
	if err != nil {
		ch, err = m.session.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			return classify(err)
		}
	}
	switch ch.Type {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
	default:
		return fmt.Errorf("%w: channel %s is not a text channel", monitor.ErrForbidden, channelID)
	}

	if m.session.State.User == nil {
		return nil
	}
	perms, err := m.session.State.UserChannelPermissions(m.session.State.User.ID, channelID)
	if err != nil {
		perms, err = m.session.UserChannelPermissions(m.session.State.User.ID, channelID, discordgo.WithContext(ctx))
		if err != nil {
			return classify(err)
		}
	}
	if perms&postPermissions != postPermissions {
		return fmt.Errorf("%w: missing send permissions in channel %s", monitor.ErrForbidden, channelID)
	}
	return nil
}

func (m *Messenger) CreateMessage(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}
	msg, err := m.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return msg.ID, nil
}

func (m *Messenger) EditMessage(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := m.session.ChannelMessageEditEmbed(channelID, messageID, embed, discordgo.WithContext(ctx))
	return classify(err)
}

func (m *Messenger) FetchMessage(ctx context.Context, channelID, messageID string) error {
	_, err := m.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	return classify(err)
}

// Send posts plain content through the shared limiter.
func (m *Messenger) Send(ctx context.Context, channelID, content string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := m.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return err
}

// SendComplex posts a full message through the shared limiter.
func (m *Messenger) SendComplex(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return m.session.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
}

// classify maps Discord REST failures onto the monitor sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage:
			return fmt.Errorf("%w: %v", monitor.ErrNotFound, err)
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return fmt.Errorf("%w: %v", monitor.ErrForbidden, err)
		}
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", monitor.ErrNotFound, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", monitor.ErrForbidden, err)
		}
	}
	return err
}

// isDiscordErrorCode reports whether err is a Discord REST error with code.
func isDiscordErrorCode(err error, code int) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == code
}
