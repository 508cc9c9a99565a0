package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ptscripts/ptbot/internal/errors"
	"github.com/ptscripts/ptbot/internal/statuspage"
	"github.com/ptscripts/ptbot/internal/store"
)

const samplePage = `<div>FiveM</div><span>Operational</span>
<div>RedM</div><span>Major Outage</span>
<h2>Some Systems Experiencing Issues</h2>`

// fakeMessenger keeps channels and messages in memory. A channel absent from
// channels answers ErrNotFound; a message absent from messages likewise.
type fakeMessenger struct {
	mu        sync.Mutex
	channels  map[string]error
	messages  map[string]string // message id -> channel id
	editErr   map[string]error  // message id -> error
	createErr map[string]error  // channel id -> error
	nextID    int
	creates   int
	edits     int
	checks    int
}

func newFakeMessenger(channels ...string) *fakeMessenger {
	m := &fakeMessenger{
		channels:  make(map[string]error),
		messages:  make(map[string]string),
		editErr:   make(map[string]error),
		createErr: make(map[string]error),
	}
	for _, c := range channels {
		m.channels[c] = nil
	}
	return m
}

func (m *fakeMessenger) addMessage(channelID, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[messageID] = channelID
}

func (m *fakeMessenger) CheckChannel(_ context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks++
	err, ok := m.channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	return err
}

func (m *fakeMessenger) CreateMessage(_ context.Context, channelID string, _ *discordgo.MessageEmbed) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createErr[channelID]; err != nil {
		return "", err
	}
	m.creates++
	m.nextID++
	id := fmt.Sprintf("new-%d", m.nextID)
	m.messages[id] = channelID
	return id, nil
}

func (m *fakeMessenger) EditMessage(_ context.Context, channelID, messageID string, _ *discordgo.MessageEmbed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editErr[messageID]; err != nil {
		return err
	}
	if ch, ok := m.messages[messageID]; !ok || ch != channelID {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	m.edits++
	return nil
}

func (m *fakeMessenger) FetchMessage(_ context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.messages[messageID]; !ok || ch != channelID {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}

type memStore struct {
	mu     sync.Mutex
	docs   map[string]store.GuildSettings
	putErr error
	puts   int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]store.GuildSettings)}
}

func (s *memStore) Get(_ context.Context, guildID string) (*store.GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docs[guildID]
	return &doc, nil
}

func (s *memStore) Put(_ context.Context, guildID string, settings *store.GuildSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	s.docs[guildID] = *settings
	return nil
}

func (s *memStore) List(context.Context) (map[string]*store.GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*store.GuildSettings, len(s.docs))
	for id, doc := range s.docs {
		doc := doc
		out[id] = &doc
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) doc(guildID string) store.GuildSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[guildID]
}

type countingFetcher struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *countingFetcher) Fetch(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.err
}

func (f *countingFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	rec     *Reconciler
	msgr    *fakeMessenger
	store   *memStore
	fetcher *countingFetcher
}

func newFixture(t *testing.T, channels ...string) *fixture {
	t.Helper()
	f := &fixture{
		msgr:    newFakeMessenger(channels...),
		store:   newMemStore(),
		fetcher: &countingFetcher{text: samplePage},
	}
	rec, err := New(f.fetcher, f.store, f.msgr, Options{StatusURL: "https://status.cfx.re"})
	require.NoError(t, err)
	f.rec = rec
	return f
}

// counterValue reads a counter (optionally one label value) from the registry.
func counterValue(t *testing.T, m *Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label == "" || (len(metric.GetLabel()) > 0 && metric.GetLabel()[0].GetValue() == label) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestNew_Validation(t *testing.T) {
	msgr := newFakeMessenger()
	st := newMemStore()
	f := &countingFetcher{}

	_, err := New(nil, st, msgr, Options{})
	assert.Error(t, err)
	_, err = New(f, nil, msgr, Options{})
	assert.Error(t, err)
	_, err = New(f, st, nil, Options{})
	assert.Error(t, err)
	_, err = New(f, st, msgr, Options{Interval: 10 * time.Millisecond})
	assert.Error(t, err)

	r, err := New(f, st, msgr, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, r.Interval())
}

func TestTick_EmptyRegistrySkipsFetch(t *testing.T) {
	f := newFixture(t)

	res := f.rec.Tick(context.Background())

	assert.True(t, res.Skipped)
	assert.Equal(t, 0, f.fetcher.count())
	assert.Nil(t, f.rec.Latest())
}

func TestTick_EditsInPlaceAndIsIdempotent(t *testing.T) {
	f := newFixture(t, "c1")
	f.msgr.addMessage("c1", "m1")
	f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1", MessageID: "m1"})

	for i := 0; i < 2; i++ {
		res := f.rec.Tick(context.Background())
		require.NoError(t, res.Err)
		assert.Equal(t, 1, res.Edited)
	}

	rec, ok := f.rec.Registry().Get("g1")
	require.True(t, ok)
	assert.Equal(t, "m1", rec.MessageID)
	assert.Equal(t, 2, f.msgr.edits)
	assert.Equal(t, 0, f.msgr.creates)
	assert.Equal(t, 0, f.store.puts, "unchanged records are not re-saved")

	latest := f.rec.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, statuspage.OverallPartial, latest.Overall)
	assert.Equal(t, float64(2), counterValue(t, f.rec.Metrics(), "ptbot_monitor_messages_edited_total", ""))
}

func TestTick_CreatesMessageWhenNoneRecorded(t *testing.T) {
	f := newFixture(t, "c1")
	f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1"})

	res := f.rec.Tick(context.Background())

	assert.Equal(t, 1, res.Created)
	rec, _ := f.rec.Registry().Get("g1")
	assert.Equal(t, "new-1", rec.MessageID)

	doc := f.store.doc("g1")
	assert.True(t, doc.MonitorActive)
	assert.Equal(t, store.Snowflake("c1"), doc.StatusChannelID)
	assert.Equal(t, store.Snowflake("new-1"), doc.StatusMessageID)
}

func TestTick_SelfHealsDeletedMessage(t *testing.T) {
	f := newFixture(t, "c1")
	f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1", MessageID: "gone"})

	res := f.rec.Tick(context.Background())

	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Disabled)
	rec, ok := f.rec.Registry().Get("g1")
	require.True(t, ok)
	assert.Equal(t, "new-1", rec.MessageID)
	assert.Equal(t, store.Snowflake("new-1"), f.store.doc("g1").StatusMessageID)
	assert.Equal(t, float64(1), counterValue(t, f.rec.Metrics(), "ptbot_monitor_self_heals_total", ""))

	// The healed message is edited from now on.
	res = f.rec.Tick(context.Background())
	assert.Equal(t, 1, res.Edited)
	assert.Equal(t, 1, f.msgr.creates)
}

func TestTick_DeletedMessageClearedOnDiskWhenRecreateFails(t *testing.T) {
	f := newFixture(t, "c1")
	f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1", MessageID: "gone"})
	f.store.docs["g1"] = store.GuildSettings{StatusChannelID: "c1", StatusMessageID: "gone", MonitorActive: true}
	f.msgr.createErr["c1"] = errors.New("discord 500")

	res := f.rec.Tick(context.Background())

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Disabled)
	rec, ok := f.rec.Registry().Get("g1")
	require.True(t, ok)
	assert.Empty(t, rec.MessageID)

	doc := f.store.doc("g1")
	assert.Empty(t, doc.StatusMessageID)
	assert.True(t, doc.MonitorActive)
	assert.Equal(t, store.Snowflake("c1"), doc.StatusChannelID)

	// Next tick posts the replacement.
	delete(f.msgr.createErr, "c1")
	res = f.rec.Tick(context.Background())
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, store.Snowflake("new-1"), f.store.doc("g1").StatusMessageID)
}

func TestTick_DisablesWhenChannelGone(t *testing.T) {
	f := newFixture(t)
	f.store.docs["g1"] = store.GuildSettings{StatusChannelID: "c1", StatusMessageID: "m1", MonitorActive: true}
	f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1", MessageID: "m1"})

	res := f.rec.Tick(context.Background())

	assert.Equal(t, 1, res.Disabled)
	_, ok := f.rec.Registry().Get("g1")
	assert.False(t, ok)
	doc := f.store.doc("g1")
	assert.False(t, doc.MonitorActive)
	assert.Empty(t, doc.StatusMessageID)
	assert.Equal(t, store.Snowflake("c1"), doc.StatusChannelID)

	// Nothing left to do: the next tick does not even fetch.
	calls := f.fetcher.count()
	res = f.rec.Tick(context.Background())
	assert.True(t, res.Skipped)
	assert.Equal(t, calls, f.fetcher.count())
}

func TestTick_DisablesWhenCannotPostInChannel(t *testing.T) {
	f := newFixture(t, "c1")
	f.msgr.channels["c1"] = fmt.Errorf("missing permissions: %w", ErrForbidden)
	f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1", MessageID: "m1"})

	res := f.rec.Tick(context.Background())

	assert.Equal(t, 1, res.Disabled)
	assert.Equal(t, 0, f.rec.Registry().Len())
	assert.Equal(t, float64(1), counterValue(t, f.rec.Metrics(), "ptbot_monitor_disabled_total", reasonChannelGone))
}

func TestTick_ForbiddenEdit(t *testing.T) {
	t.Run("recreates when posting still works", func(t *testing.T) {
		f := newFixture(t, "c1")
		f.msgr.addMessage("c1", "m1")
		f.msgr.editErr["m1"] = ErrForbidden
		f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1", MessageID: "m1"})

		res := f.rec.Tick(context.Background())

		assert.Equal(t, 1, res.Created)
		rec, ok := f.rec.Registry().Get("g1")
		require.True(t, ok)
		assert.Equal(t, "new-1", rec.MessageID)
	})

	t.Run("disables when posting is forbidden too", func(t *testing.T) {
		f := newFixture(t, "c1")
		f.msgr.addMessage("c1", "m1")
		f.msgr.editErr["m1"] = ErrForbidden
		f.msgr.createErr["c1"] = ErrForbidden
		f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1", MessageID: "m1"})

		res := f.rec.Tick(context.Background())

		assert.Equal(t, 1, res.Disabled)
		assert.Equal(t, 0, f.rec.Registry().Len())
		assert.False(t, f.store.doc("g1").MonitorActive)
		assert.Equal(t, float64(1), counterValue(t, f.rec.Metrics(), "ptbot_monitor_disabled_total", reasonCannotPost))
	})
}

func TestTick_TransientErrorsKeepMonitor(t *testing.T) {
	f := newFixture(t, "c1", "c2")
	f.msgr.addMessage("c1", "m1")
	f.msgr.editErr["m1"] = errors.New("502 bad gateway")
	f.msgr.createErr["c2"] = errors.New("connection reset")
	f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1", MessageID: "m1"})
	f.rec.Registry().Set(Record{GuildID: "g2", ChannelID: "c2"})

	res := f.rec.Tick(context.Background())

	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 2, f.rec.Registry().Len())
	rec, _ := f.rec.Registry().Get("g1")
	assert.Equal(t, "m1", rec.MessageID)
}

func TestTick_FetchFailureChangesNothing(t *testing.T) {
	f := newFixture(t, "c1")
	f.msgr.addMessage("c1", "m1")
	f.fetcher.err = fmt.Errorf("%w: HTTP 503", statuspage.ErrFetch)
	f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1", MessageID: "m1"})
	f.rec.Registry().Set(Record{GuildID: "g2", ChannelID: "gone", MessageID: "m2"})

	res := f.rec.Tick(context.Background())

	require.Error(t, res.Err)
	assert.True(t, apperrors.IsCode(res.Err, apperrors.ErrFetch))
	assert.ErrorIs(t, res.Err, statuspage.ErrFetch)
	assert.Equal(t, 0, f.msgr.checks)
	assert.Equal(t, 0, f.msgr.edits)
	assert.Equal(t, 0, f.msgr.creates)
	assert.Equal(t, 0, f.store.puts)
	assert.Equal(t, 2, f.rec.Registry().Len())
	assert.Nil(t, f.rec.Latest())
}

func TestTick_FetchFailureKeepsPreviousSnapshot(t *testing.T) {
	f := newFixture(t, "c1")
	f.msgr.addMessage("c1", "m1")
	f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1", MessageID: "m1"})

	f.rec.Tick(context.Background())
	before := f.rec.Latest()
	require.NotNil(t, before)

	f.fetcher.setErr(statuspage.ErrFetch)
	f.rec.Tick(context.Background())
	assert.Same(t, before, f.rec.Latest())
}

func TestTick_PersistFailureDoesNotAbortTick(t *testing.T) {
	f := newFixture(t, "c1", "c2")
	f.store.putErr = errors.New("disk full")
	f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1"})
	f.rec.Registry().Set(Record{GuildID: "g2", ChannelID: "c2"})

	res := f.rec.Tick(context.Background())

	assert.Equal(t, 2, res.Created)
	rec1, _ := f.rec.Registry().Get("g1")
	rec2, _ := f.rec.Registry().Get("g2")
	assert.NotEmpty(t, rec1.MessageID)
	assert.NotEmpty(t, rec2.MessageID)
	assert.Equal(t, float64(2), counterValue(t, f.rec.Metrics(), "ptbot_monitor_persist_errors_total", ""))
}

func TestTick_TwoGuildsOneChannelDeleted(t *testing.T) {
	f := newFixture(t, "cA")
	f.msgr.addMessage("cA", "mA")
	f.store.docs["A"] = store.GuildSettings{StatusChannelID: "cA", StatusMessageID: "mA", MonitorActive: true}
	f.store.docs["B"] = store.GuildSettings{StatusChannelID: "cB", StatusMessageID: "mB", MonitorActive: true}
	f.rec.Registry().Set(Record{GuildID: "A", ChannelID: "cA", MessageID: "mA"})
	f.rec.Registry().Set(Record{GuildID: "B", ChannelID: "cB", MessageID: "mB"})

	res := f.rec.Tick(context.Background())

	assert.Equal(t, 1, res.Edited)
	assert.Equal(t, 1, res.Disabled)
	assert.Equal(t, []Record{{GuildID: "A", ChannelID: "cA", MessageID: "mA"}}, f.rec.Monitors())
	assert.True(t, f.store.doc("A").MonitorActive)
	assert.False(t, f.store.doc("B").MonitorActive)
}

func TestHydrate(t *testing.T) {
	f := newFixture(t, "c1", "c3")
	f.msgr.addMessage("c1", "m1")
	f.store.docs["ok"] = store.GuildSettings{StatusChannelID: "c1", StatusMessageID: "m1", MonitorActive: true}
	f.store.docs["nochannel"] = store.GuildSettings{StatusChannelID: "c2", StatusMessageID: "m2", MonitorActive: true}
	f.store.docs["nomessage"] = store.GuildSettings{StatusChannelID: "c3", StatusMessageID: "m3", MonitorActive: true}
	f.store.docs["inactive"] = store.GuildSettings{StatusChannelID: "c1", MonitorActive: false}
	f.store.docs["welcomeonly"] = store.GuildSettings{WelcomeChannelID: "w1"}

	require.NoError(t, f.rec.Hydrate(context.Background()))

	assert.Equal(t, []Record{
		{GuildID: "nomessage", ChannelID: "c3"},
		{GuildID: "ok", ChannelID: "c1", MessageID: "m1"},
	}, f.rec.Monitors())

	assert.False(t, f.store.doc("nochannel").MonitorActive)
	nomsg := f.store.doc("nomessage")
	assert.True(t, nomsg.MonitorActive)
	assert.Empty(t, nomsg.StatusMessageID)
	assert.Equal(t, 0, f.fetcher.count(), "hydration never fetches")

	// The next tick creates the missing message.
	res := f.rec.Tick(context.Background())
	assert.Equal(t, 1, res.Edited)
	assert.Equal(t, 1, res.Created)
}

func TestHydrate_RunsOnce(t *testing.T) {
	f := newFixture(t, "c1")
	f.store.docs["g1"] = store.GuildSettings{StatusChannelID: "c1", MonitorActive: true}

	require.NoError(t, f.rec.Hydrate(context.Background()))
	f.rec.Registry().Remove("g1")
	require.NoError(t, f.rec.Hydrate(context.Background()))

	assert.Equal(t, 0, f.rec.Registry().Len())
}

func TestHydrate_UsesGuildNames(t *testing.T) {
	msgr := newFakeMessenger("c1")
	st := newMemStore()
	st.docs["g1"] = store.GuildSettings{StatusChannelID: "c1", MonitorActive: true}
	r, err := New(&countingFetcher{text: samplePage}, st, msgr, Options{
		GuildName: func(id string) string { return "Guild " + id },
	})
	require.NoError(t, err)

	require.NoError(t, r.Hydrate(context.Background()))

	rec, ok := r.Registry().Get("g1")
	require.True(t, ok)
	assert.Equal(t, "Guild g1", rec.GuildName)
}

func TestConfigure(t *testing.T) {
	t.Run("posts and persists", func(t *testing.T) {
		f := newFixture(t, "c1")

		rec, err := f.rec.Configure(context.Background(), "g1", "Test Guild", "c1")
		require.NoError(t, err)

		assert.Equal(t, Record{GuildID: "g1", GuildName: "Test Guild", ChannelID: "c1", MessageID: "new-1"}, rec)
		got, ok := f.rec.Registry().Get("g1")
		require.True(t, ok)
		assert.Equal(t, rec, got)
		doc := f.store.doc("g1")
		assert.True(t, doc.MonitorActive)
		assert.Equal(t, store.Snowflake("new-1"), doc.StatusMessageID)
		assert.NotNil(t, f.rec.Latest())
	})

	t.Run("moves to another channel", func(t *testing.T) {
		f := newFixture(t, "c1", "c2")
		_, err := f.rec.Configure(context.Background(), "g1", "", "c1")
		require.NoError(t, err)

		rec, err := f.rec.Configure(context.Background(), "g1", "", "c2")
		require.NoError(t, err)

		assert.Equal(t, "c2", rec.ChannelID)
		assert.Equal(t, 1, f.rec.Registry().Len())
		assert.Equal(t, store.Snowflake("c2"), f.store.doc("g1").StatusChannelID)
	})

	t.Run("falls back to last snapshot", func(t *testing.T) {
		f := newFixture(t, "c1", "c2")
		_, err := f.rec.Configure(context.Background(), "g1", "", "c1")
		require.NoError(t, err)
		f.fetcher.setErr(statuspage.ErrFetch)

		_, err = f.rec.Configure(context.Background(), "g2", "", "c2")
		assert.NoError(t, err)
		assert.Equal(t, 2, f.rec.Registry().Len())
	})

	t.Run("fails without any snapshot", func(t *testing.T) {
		f := newFixture(t, "c1")
		f.fetcher.err = statuspage.ErrFetch

		_, err := f.rec.Configure(context.Background(), "g1", "", "c1")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrFetch))
		assert.Equal(t, 0, f.rec.Registry().Len())
		assert.Equal(t, 0, f.msgr.creates)
	})

	t.Run("rejects channel without permission", func(t *testing.T) {
		f := newFixture(t, "c1")
		f.msgr.channels["c1"] = ErrForbidden

		_, err := f.rec.Configure(context.Background(), "g1", "", "c1")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrPermission))
		assert.Equal(t, 0, f.rec.Registry().Len())
		assert.Equal(t, 0, f.store.puts)
	})
}

func TestDisable(t *testing.T) {
	f := newFixture(t, "c1")
	_, err := f.rec.Configure(context.Background(), "g1", "", "c1")
	require.NoError(t, err)

	ok, err := f.rec.Disable(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, f.rec.Registry().Len())
	doc := f.store.doc("g1")
	assert.False(t, doc.MonitorActive)
	assert.Equal(t, store.Snowflake("c1"), doc.StatusChannelID)

	ok, err = f.rec.Disable(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.rec.Disable(context.Background(), "never")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInfo(t *testing.T) {
	f := newFixture(t, "c1")
	_, ok := f.rec.Info("g1")
	assert.False(t, ok)

	_, err := f.rec.Configure(context.Background(), "g1", "G", "c1")
	require.NoError(t, err)
	f.rec.Tick(context.Background())

	info, ok := f.rec.Info("g1")
	require.True(t, ok)
	assert.Equal(t, "c1", info.Record.ChannelID)
	assert.Equal(t, DefaultInterval, info.Interval)
	assert.False(t, info.Running)
	assert.False(t, info.LastTick.IsZero())
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, "c1")
	f.rec.Registry().Set(Record{GuildID: "g1", ChannelID: "c1"})

	require.NoError(t, f.rec.Start(context.Background()))
	assert.Error(t, f.rec.Start(context.Background()), "second start is rejected")
	assert.True(t, f.rec.Running())

	// The first tick runs immediately.
	require.Eventually(t, func() bool { return f.fetcher.count() >= 1 }, 2*time.Second, 10*time.Millisecond)

	f.rec.Stop()
	assert.False(t, f.rec.Running())
	calls := f.fetcher.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, f.fetcher.count(), "no ticks after stop")

	f.rec.Stop()
}

func TestStart_ParentCancelStopsLoop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, f.rec.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		f.rec.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}

func TestStart_RefusedAfterStop(t *testing.T) {
	f := newFixture(t)

	// Shutdown can win the race against a late Start.
	f.rec.Stop()
	assert.Error(t, f.rec.Start(context.Background()))
	assert.False(t, f.rec.Running())
	assert.Equal(t, 0, f.fetcher.count())
}

func TestStart_RefusedWithCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.rec.Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.rec.Running())
}
