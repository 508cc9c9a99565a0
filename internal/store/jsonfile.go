package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
)

// JSONStore keeps every guild under the "servers" key of a single JSON file,
// the config.json layout used by earlier versions of the bot. Other top-level
// keys, and guild keys this bot does not use, are preserved on write.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// OpenJSON returns a store backed by the file at path. The file is created on
// first write.
func OpenJSON(path string) (*JSONStore, error) {
	s := &JSONStore{path: path}
	if _, _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) read() (map[string]json.RawMessage, map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	servers := make(map[string]json.RawMessage)

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return doc, servers, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return doc, servers, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON in %s: %w", s.path, err)
	}
	if raw, ok := doc["servers"]; ok {
		if err := json.Unmarshal(raw, &servers); err != nil {
			return nil, nil, fmt.Errorf("invalid servers section in %s: %w", s.path, err)
		}
		if servers == nil {
			servers = make(map[string]json.RawMessage)
		}
	}
	return doc, servers, nil
}

func decodeGuild(guildID string, raw json.RawMessage) (*GuildSettings, error) {
	settings := &GuildSettings{}
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return settings, nil
	}
	if err := json.Unmarshal(raw, settings); err != nil {
		return nil, fmt.Errorf("invalid settings for guild %s: %w", guildID, err)
	}
	return settings, nil
}

// settingsKeys are the JSON keys owned by GuildSettings. Any other key in a
// guild entry belongs to someone else and is written back unchanged.
var settingsKeys = func() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(GuildSettings{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}()

// mergeGuild encodes settings over the previous raw entry. Foreign keys are
// kept, and ids previously stored as JSON numbers stay numbers.
func mergeGuild(prev json.RawMessage, settings *GuildSettings) (json.RawMessage, error) {
	old := make(map[string]json.RawMessage)
	if len(prev) > 0 && !bytes.Equal(bytes.TrimSpace(prev), []byte("null")) {
		if err := json.Unmarshal(prev, &old); err != nil {
			return nil, fmt.Errorf("invalid guild entry: %w", err)
		}
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	fresh := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fresh); err != nil {
		return nil, err
	}

	merged := make(map[string]json.RawMessage, len(old)+len(fresh))
	for k, v := range old {
		if !settingsKeys[k] {
			merged[k] = v
		}
	}
	for k, v := range fresh {
		if p, ok := old[k]; ok && isNumericID(p) {
			v = numericIDs(v)
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

func isNumericID(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		raw = bytes.TrimSpace(raw[1:])
	}
	return len(raw) > 0 && raw[0] >= '0' && raw[0] <= '9'
}

// numericIDs rewrites a digit-only string, or an array of them, as JSON numbers.
func numericIDs(raw json.RawMessage) json.RawMessage {
	var str string
	if json.Unmarshal(raw, &str) == nil {
		if isDigits(str) {
			return json.RawMessage(str)
		}
		return raw
	}
	var list []string
	if json.Unmarshal(raw, &list) != nil {
		return raw
	}
	nums := make([]json.RawMessage, 0, len(list))
	for _, v := range list {
		if !isDigits(v) {
			return raw
		}
		nums = append(nums, json.RawMessage(v))
	}
	out, err := json.Marshal(nums)
	if err != nil {
		return raw
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *JSONStore) write(doc map[string]json.RawMessage, servers map[string]json.RawMessage) error {
	raw, err := json.Marshal(servers)
	if err != nil {
		return fmt.Errorf("failed to encode servers: %w", err)
	}
	doc["servers"] = raw

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", s.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

func (s *JSONStore) Get(ctx context.Context, guildID string) (*GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, servers, err := s.read()
	if err != nil {
		return nil, err
	}
	return decodeGuild(guildID, servers[guildID])
}

func (s *JSONStore) Put(ctx context.Context, guildID string, settings *GuildSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	doc, servers, err := s.read()
	if err != nil {
		return err
	}
	entry, err := mergeGuild(servers[guildID], settings)
	if err != nil {
		return fmt.Errorf("failed to encode guild %s: %w", guildID, err)
	}
	servers[guildID] = entry
	return s.write(doc, servers)
}

func (s *JSONStore) List(ctx context.Context) (map[string]*GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, servers, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*GuildSettings, len(servers))
	for id, raw := range servers {
		if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		settings, err := decodeGuild(id, raw)
		if err != nil {
			return nil, err
		}
		out[id] = settings
	}
	return out, nil
}

func (s *JSONStore) Close() error { return nil }
