package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

const lockRetries = 5

// SQLiteStore keeps one JSON settings document per guild in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer keeps the read-modify-write cycle free of SQLITE_BUSY storms.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS guild_settings (
		guild_id   TEXT PRIMARY KEY,
		settings   TEXT NOT NULL,
		updated_at TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create guild_settings table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the guild's document, or an empty one.
func (s *SQLiteStore) Get(ctx context.Context, guildID string) (*GuildSettings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT settings FROM guild_settings WHERE guild_id = ?", guildID).Scan(&raw)
	if err == sql.ErrNoRows {
		return &GuildSettings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings for guild %s: %w", guildID, err)
	}

	settings := &GuildSettings{}
	if err := json.Unmarshal([]byte(raw), settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings for guild %s: %w", guildID, err)
	}
	return settings, nil
}

// Put overwrites the guild's document, retrying while the database is locked.
func (s *SQLiteStore) Put(ctx context.Context, guildID string, settings *GuildSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings for guild %s: %w", guildID, err)
	}

	var lastErr error
	for i := 0; i < lockRetries; i++ {
		_, err := s.db.ExecContext(ctx,
			"INSERT OR REPLACE INTO guild_settings (guild_id, settings, updated_at) VALUES (?, ?, ?)",
			guildID, string(raw), time.Now().UTC())
		if err == nil {
			return nil
		}
		lastErr = err
		if !strings.Contains(err.Error(), "database is locked") {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("failed to save settings for guild %s: %w", guildID, lastErr)
}

// List returns every stored document.
func (s *SQLiteStore) List(ctx context.Context) (map[string]*GuildSettings, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT guild_id, settings FROM guild_settings")
	if err != nil {
		return nil, fmt.Errorf("failed to list guild settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*GuildSettings)
	for rows.Next() {
		var guildID, raw string
		if err := rows.Scan(&guildID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan guild settings: %w", err)
		}
		settings := &GuildSettings{}
		if err := json.Unmarshal([]byte(raw), settings); err != nil {
			// One corrupt row must not hide every other guild.
			continue
		}
		out[guildID] = settings
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate guild settings: %w", err)
	}
	return out, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
