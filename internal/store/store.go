// Package store persists per-guild settings documents.
//
// Every guild owns one GuildSettings document. Writers read the whole
// document, modify it and write it back; there are no field-level patches.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultVerificationEmoji is used when a guild never set its own.
const DefaultVerificationEmoji = "✅"

// Snowflake is a Discord identifier. It decodes from both JSON strings and
// JSON numbers so config.json files written by older bots still load.
type Snowflake string

func (s *Snowflake) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Snowflake(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}
	*s = Snowflake(n.String())
	return nil
}

func (s Snowflake) String() string { return string(s) }

// GuildSettings is the whole settings document of one guild.
type GuildSettings struct {
	// FiveM status monitor
	StatusChannelID Snowflake `json:"fivem_status_channel_id,omitempty"`
	StatusMessageID Snowflake `json:"fivem_status_message_id,omitempty"`
	MonitorActive   bool      `json:"fivem_monitor_active"`

	WelcomeChannelID Snowflake `json:"welcome_channel_id,omitempty"`

	TicketCategoryID    Snowflake   `json:"ticket_category_id,omitempty"`
	StaffRoleIDs        []Snowflake `json:"staff_role_ids,omitempty"`
	StaffMentionRoleID  Snowflake   `json:"staff_mention_role_id,omitempty"`
	TranscriptChannelID Snowflake   `json:"transcript_channel_id,omitempty"`

	VerificationRoleID Snowflake `json:"verification_role_id,omitempty"`
	VerificationEmoji  string    `json:"verification_emoji,omitempty"`

	ModerationRoleIDs []Snowflake `json:"moderation_role_ids,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Emoji returns the verification emoji, falling back to the default.
func (g *GuildSettings) Emoji() string {
	if g.VerificationEmoji == "" {
		return DefaultVerificationEmoji
	}
	return g.VerificationEmoji
}

// IsStaffRole reports whether roleID is one of the guild's staff roles.
func (g *GuildSettings) IsStaffRole(roleID string) bool {
	for _, id := range g.StaffRoleIDs {
		if string(id) == roleID {
			return true
		}
	}
	return false
}

// ToggleStaffRole adds roleID to the staff roles, or removes it when present.
// It reports whether the role is a staff role afterwards.
func (g *GuildSettings) ToggleStaffRole(roleID string) bool {
	for i, id := range g.StaffRoleIDs {
		if string(id) == roleID {
			g.StaffRoleIDs = append(g.StaffRoleIDs[:i], g.StaffRoleIDs[i+1:]...)
			return false
		}
	}
	g.StaffRoleIDs = append(g.StaffRoleIDs, Snowflake(roleID))
	return true
}

func (g *GuildSettings) IsModerationRole(roleID string) bool {
	for _, id := range g.ModerationRoleIDs {
		if string(id) == roleID {
			return true
		}
	}
	return false
}

// AddModerationRole reports false if roleID was already a moderation role.
func (g *GuildSettings) AddModerationRole(roleID string) bool {
	if g.IsModerationRole(roleID) {
		return false
	}
	g.ModerationRoleIDs = append(g.ModerationRoleIDs, Snowflake(roleID))
	return true
}

// RemoveModerationRole reports false if roleID was not a moderation role.
func (g *GuildSettings) RemoveModerationRole(roleID string) bool {
	for i, id := range g.ModerationRoleIDs {
		if string(id) == roleID {
			g.ModerationRoleIDs = append(g.ModerationRoleIDs[:i], g.ModerationRoleIDs[i+1:]...)
			return true
		}
	}
	return false
}

// Store is the guild settings persistence layer.
type Store interface {
	// Get returns the guild's document, or an empty one if none was saved yet.
	Get(ctx context.Context, guildID string) (*GuildSettings, error)

	// Put overwrites the guild's whole document.
	Put(ctx context.Context, guildID string, settings *GuildSettings) error

	// List returns every saved document keyed by guild id.
	List(ctx context.Context) (map[string]*GuildSettings, error)

	Close() error
}

// Update performs a read-modify-write of one guild's document.
func Update(ctx context.Context, s Store, guildID string, fn func(*GuildSettings)) (*GuildSettings, error) {
	settings, err := s.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	fn(settings)
	settings.UpdatedAt = time.Now().UTC()
	if err := s.Put(ctx, guildID, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Open returns the store for driver ("sqlite" or "json") at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "sqlite":
		return OpenSQLite(path)
	case "json":
		return OpenJSON(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
