package monitor

import (
	"sort"
	"sync"
)

// Record is one guild's active status monitor.
type Record struct {
	GuildID   string
	GuildName string
	ChannelID string
	// MessageID is empty when no message exists yet; the next tick creates one.
	MessageID string
}

// Registry is the in-memory view of which guilds have an active monitor.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]Record)}
}

// Set registers rec, replacing any previous record for the guild.
func (r *Registry) Set(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.GuildID] = rec
}

// Get returns the guild's record, if registered.
func (r *Registry) Get(guildID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[guildID]
	return rec, ok
}

// Remove drops the guild and reports whether it was registered.
func (r *Registry) Remove(guildID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[guildID]
	delete(r.records, guildID)
	return ok
}

// SetMessageID replaces the message id of a registered guild. It reports
// false if the guild is no longer registered.
func (r *Registry) SetMessageID(guildID, messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[guildID]
	if !ok {
		return false
	}
	rec.MessageID = messageID
	r.records[guildID] = rec
	return true
}

// Snapshot returns a copy of all records ordered by guild id. Callers iterate
// the copy and apply changes through the Registry methods.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

// Len returns the number of active monitors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
