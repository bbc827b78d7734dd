package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/waigayahq/waigaya/internal/bus"
	"github.com/waigayahq/waigaya/pkg/protocol"
)

// captureStore records every persisted config.
type captureStore struct {
	mu    sync.Mutex
	saved []Config
	err   error
}

func (s *captureStore) SaveConfig(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, cfg)
	return nil
}

func (s *captureStore) last() (Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return Config{}, false
	}
	return s.saved[len(s.saved)-1], true
}

// captureEvents collects bus events synchronously.
type captureEvents struct {
	mu     sync.Mutex
	events []bus.Event
}

func (e *captureEvents) attach(b *bus.EventBus) {
	b.Subscribe("test", func(ev bus.Event) {
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
	})
}

func (e *captureEvents) byName(name string) []bus.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []bus.Event
	for _, ev := range e.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func newSlackStub(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func memberInfoHandler(member bool, names map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/conversations.info":
			id := r.URL.Query().Get("channel")
			name := names[id]
			if name == "" {
				name = "general"
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"ok": true,
				"channel": map[string]interface{}{
					"id": id, "name": name, "is_member": member,
				},
			})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
		}
	}
}

func TestUpdateConfigRestoresWatchList(t *testing.T) {
	c := NewClient(nil, bus.New())
	c.UpdateConfig(Config{
		BotToken: "xoxb-t",
		Channels: []string{"C1", "C2"},
		WatchedChannelData: map[string]Channel{
			"C1": {ID: "C1", Name: "general"},
		},
	})

	if !c.IsWatched("C1") || !c.IsWatched("C2") {
		t.Error("watch-list not restored from config")
	}
	if c.IsWatched("C3") {
		t.Error("unexpected channel watched")
	}

	// A later update without channels keeps the restored list.
	c.UpdateConfig(Config{BotToken: "xoxb-t2"})
	if !c.IsWatched("C1") {
		t.Error("watch-list dropped by unrelated update")
	}
	if got := c.Config().BotToken; got != "xoxb-t2" {
		t.Errorf("bot token = %q", got)
	}
}

func TestAddWatchChannel(t *testing.T) {
	srv := newSlackStub(t, memberInfoHandler(true, map[string]string{"C1": "dev", "C2": "ops"}))

	b := bus.New()
	var events captureEvents
	events.attach(b)

	store := &captureStore{}
	c := NewClient(store, b, WithAPIBase(srv.URL))
	c.UpdateConfig(Config{BotToken: "xoxb-t"})

	t.Run("first add sets current channel name", func(t *testing.T) {
		if got := c.CurrentChannelName(); got != DefaultChannelName {
			t.Fatalf("initial name = %q", got)
		}

		ch, err := c.AddWatchChannel(context.Background(), "C1")
		if err != nil {
			t.Fatalf("AddWatchChannel: %v", err)
		}
		if ch.Name != "dev" {
			t.Errorf("channel name = %q", ch.Name)
		}
		if got := c.CurrentChannelName(); got != "dev" {
			t.Errorf("current name = %q, want dev", got)
		}
	})

	t.Run("second add keeps current channel name", func(t *testing.T) {
		if _, err := c.AddWatchChannel(context.Background(), "C2"); err != nil {
			t.Fatalf("AddWatchChannel: %v", err)
		}
		if got := c.CurrentChannelName(); got != "dev" {
			t.Errorf("current name = %q, want dev", got)
		}
	})

	t.Run("duplicate add rejected", func(t *testing.T) {
		if _, err := c.AddWatchChannel(context.Background(), "C1"); !errors.Is(err, ErrAlreadyWatched) {
			t.Errorf("err = %v, want ErrAlreadyWatched", err)
		}
	})

	t.Run("config persisted with watch-list", func(t *testing.T) {
		cfg, ok := store.last()
		if !ok {
			t.Fatal("nothing persisted")
		}
		if len(cfg.Channels) != 2 || cfg.Channels[0] != "C1" || cfg.Channels[1] != "C2" {
			t.Errorf("persisted channels = %v", cfg.Channels)
		}
		if cfg.WatchedChannelData["C2"].Name != "ops" {
			t.Errorf("persisted data = %v", cfg.WatchedChannelData)
		}
	})

	t.Run("watch change events announced", func(t *testing.T) {
		evs := events.byName(protocol.EventChannelWatchChanged)
		if len(evs) != 2 {
			t.Fatalf("events = %d, want 2", len(evs))
		}
		if evs[0].Payload != "dev" || evs[1].Payload != "dev" {
			t.Errorf("payloads = %v %v", evs[0].Payload, evs[1].Payload)
		}
	})
}

func TestAddWatchChannelRejectsNonMember(t *testing.T) {
	srv := newSlackStub(t, memberInfoHandler(false, nil))

	c := NewClient(nil, bus.New(), WithAPIBase(srv.URL))
	c.UpdateConfig(Config{BotToken: "xoxb-t"})

	if _, err := c.AddWatchChannel(context.Background(), "C1"); !errors.Is(err, ErrBotNotMember) {
		t.Errorf("err = %v, want ErrBotNotMember", err)
	}
	if c.IsWatched("C1") {
		t.Error("non-member channel entered watch-list")
	}
}

func TestRemoveWatchChannel(t *testing.T) {
	srv := newSlackStub(t, memberInfoHandler(true, map[string]string{"C1": "dev", "C2": "ops"}))

	b := bus.New()
	var events captureEvents
	events.attach(b)

	c := NewClient(&captureStore{}, b, WithAPIBase(srv.URL))
	c.UpdateConfig(Config{BotToken: "xoxb-t"})

	ctx := context.Background()
	c.AddWatchChannel(ctx, "C1")
	c.AddWatchChannel(ctx, "C2")

	t.Run("remove unknown channel rejected", func(t *testing.T) {
		if err := c.RemoveWatchChannel("C9"); !errors.Is(err, ErrNotWatched) {
			t.Errorf("err = %v, want ErrNotWatched", err)
		}
	})

	t.Run("remove keeps remaining entries", func(t *testing.T) {
		if err := c.RemoveWatchChannel("C1"); err != nil {
			t.Fatalf("RemoveWatchChannel: %v", err)
		}
		w := c.WatchedChannels()
		if len(w.IDs) != 1 || w.IDs[0] != "C2" {
			t.Errorf("watched = %v", w.IDs)
		}
		if _, ok := w.Data["C1"]; ok {
			t.Error("removed channel data kept")
		}
	})

	t.Run("emptying the list resets the sentinel", func(t *testing.T) {
		if err := c.RemoveWatchChannel("C2"); err != nil {
			t.Fatalf("RemoveWatchChannel: %v", err)
		}
		if got := c.CurrentChannelName(); got != DefaultChannelName {
			t.Errorf("current name = %q, want %q", got, DefaultChannelName)
		}
	})
}

func TestTestConnection(t *testing.T) {
	t.Run("missing tokens fail before any network", func(t *testing.T) {
		c := NewClient(nil, bus.New(), WithAPIBase("http://127.0.0.1:1"))
		err := c.TestConnection(context.Background(), Config{BotToken: "xoxb-t"})
		if !errors.Is(err, ErrMissingTokens) {
			t.Errorf("err = %v, want ErrMissingTokens", err)
		}
	})

	t.Run("malformed app token rejected after auth", func(t *testing.T) {
		srv := newSlackStub(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "user": "bot"})
		})
		c := NewClient(nil, bus.New(), WithAPIBase(srv.URL))
		err := c.TestConnection(context.Background(), Config{BotToken: "xoxb-t", AppToken: "xoxb-wrong"})
		if !errors.Is(err, ErrBadAppToken) {
			t.Errorf("err = %v, want ErrBadAppToken", err)
		}
	})

	t.Run("full probe succeeds without retaining state", func(t *testing.T) {
		srv := newSlackStub(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/auth.test":
				json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "user": "bot"})
			case "/apps.connections.open":
				json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "url": "wss://example.com/x"})
			}
		})
		c := NewClient(nil, bus.New(), WithAPIBase(srv.URL))
		if err := c.TestConnection(context.Background(), Config{BotToken: "xoxb-t", AppToken: "xapp-t"}); err != nil {
			t.Fatalf("TestConnection: %v", err)
		}
		if c.Connected() {
			t.Error("probe changed connection state")
		}
		if got := c.Config().BotToken; got != "" {
			t.Errorf("probe stored credentials: %q", got)
		}
	})
}

func TestConnectLifecycle(t *testing.T) {
	srv := newSlackStub(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth.test":
			json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "user": "bot"})
		case "/apps.connections.open":
			// Unreachable transport endpoint: the detached socket task fails
			// on dial and unwinds on its own.
			json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "url": "ws://127.0.0.1:1/x"})
		}
	})

	c := NewClient(nil, bus.New(), WithAPIBase(srv.URL))

	t.Run("connect without tokens rejected", func(t *testing.T) {
		if err := c.Connect(context.Background()); !errors.Is(err, ErrMissingTokens) {
			t.Errorf("err = %v, want ErrMissingTokens", err)
		}
	})

	c.UpdateConfig(Config{BotToken: "xoxb-t", AppToken: "xapp-t"})

	t.Run("connect marks state connected", func(t *testing.T) {
		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		if !c.Connected() {
			t.Error("not marked connected")
		}
	})

	t.Run("reconnect replaces the transport task", func(t *testing.T) {
		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("second Connect: %v", err)
		}
		if !c.Connected() {
			t.Error("not connected after reconnect")
		}
	})

	t.Run("disconnect clears state immediately", func(t *testing.T) {
		c.Disconnect()
		if c.Connected() {
			t.Error("still connected after Disconnect")
		}
	})
}

func TestUserCacheFallback(t *testing.T) {
	calls := 0
	srv := newSlackStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users.info" {
			t.Errorf("path = %q", r.URL.Path)
		}
		calls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":   true,
			"user": map[string]interface{}{"id": "U7", "name": "carol", "profile": map[string]string{}},
		})
	})

	c := NewClient(nil, bus.New(), WithAPIBase(srv.URL))
	c.UpdateConfig(Config{BotToken: "xoxb-t"})

	ctx := context.Background()
	if got := c.userByID(ctx, "U7").Name; got != "carol" {
		t.Fatalf("name = %q", got)
	}
	// Second lookup is served from the cache.
	if got := c.userByID(ctx, "U7").Name; got != "carol" {
		t.Fatalf("name = %q", got)
	}
	if calls != 1 {
		t.Errorf("users.info calls = %d, want 1", calls)
	}
	if c.UserCount() != 1 {
		t.Errorf("UserCount = %d", c.UserCount())
	}
}

func TestSetLocalEmojisFiltersAliases(t *testing.T) {
	c := NewClient(nil, bus.New())
	c.SetLocalEmojis(map[string]string{
		"party":  "https://emoji.example.com/party.gif",
		"thumbs": "alias:thumbsup",
	})

	if _, ok := c.EmojiURL("thumbs"); ok {
		t.Error("alias entry survived local load")
	}
	if u, ok := c.EmojiURL("party"); !ok || u != "https://emoji.example.com/party.gif" {
		t.Errorf("party = %q, %v", u, ok)
	}

	status := c.CacheStatus()
	if status.Emojis != 1 {
		t.Errorf("emoji cache size = %d", status.Emojis)
	}
}
