package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/waigayahq/waigaya/internal/bus"
	"github.com/waigayahq/waigaya/pkg/protocol"
)

func watchedTestClient(t *testing.T, channels ...string) (*Client, *captureEvents) {
	t.Helper()
	b := bus.New()
	var events captureEvents
	events.attach(b)

	c := NewClient(nil, b)
	if len(channels) > 0 {
		c.UpdateConfig(Config{Channels: channels})
	}
	return c, &events
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("watched channel message published", func(t *testing.T) {
		c, events := watchedTestClient(t, "C1")
		c.SetLocalUsers(map[string]User{
			"U1": {ID: "U1", Name: "alice", RealName: "Alice", Profile: Profile{Image72: "http://x/72.png"}},
		})

		c.handleMessage(ctx, inboundEvent{
			Type: "message", Channel: "C1", User: "U1", Text: "hello", TS: "1.000",
		})

		evs := events.byName(protocol.EventMessageReady)
		if len(evs) != 1 {
			t.Fatalf("events = %d, want 1", len(evs))
		}
		msg := evs[0].Payload.(Message)
		if msg.Text != "hello" || msg.User != "Alice" || msg.UserIcon != "http://x/72.png" {
			t.Errorf("message = %+v", msg)
		}
		if msg.Channel != "C1" || msg.Timestamp != "1.000" {
			t.Errorf("message = %+v", msg)
		}
	})

	t.Run("unwatched channel dropped", func(t *testing.T) {
		c, events := watchedTestClient(t, "C1")
		c.handleMessage(ctx, inboundEvent{Type: "message", Channel: "C9", User: "U1", Text: "hi", TS: "1"})
		if len(events.byName(protocol.EventMessageReady)) != 0 {
			t.Error("unwatched message published")
		}
	})

	t.Run("empty message with no images suppressed", func(t *testing.T) {
		c, events := watchedTestClient(t, "C1")
		c.handleMessage(ctx, inboundEvent{Type: "message", Channel: "C1", User: "U1", Text: "", TS: "1"})
		if len(events.byName(protocol.EventMessageReady)) != 0 {
			t.Error("empty message published")
		}
	})

	t.Run("unknown author degrades, message still flows", func(t *testing.T) {
		c, events := watchedTestClient(t, "C1")
		c.handleMessage(ctx, inboundEvent{Type: "message", Channel: "C1", User: "U404", Text: "orphan", TS: "1"})
		evs := events.byName(protocol.EventMessageReady)
		if len(evs) != 1 {
			t.Fatalf("events = %d, want 1", len(evs))
		}
		if got := evs[0].Payload.(Message).User; got != "unknown" {
			t.Errorf("author = %q, want unknown", got)
		}
	})
}

func TestHandleReaction(t *testing.T) {
	ctx := context.Background()

	t.Run("added and removed actions", func(t *testing.T) {
		c, events := watchedTestClient(t, "C1")
		c.SetLocalUsers(map[string]User{"U1": {ID: "U1", RealName: "Alice"}})

		item := &struct {
			Channel string `json:"channel"`
			TS      string `json:"ts"`
		}{Channel: "C1", TS: "5.000"}

		c.handleReaction(ctx, inboundEvent{Type: "reaction_added", User: "U1", Reaction: "tada", Item: item})
		c.handleReaction(ctx, inboundEvent{Type: "reaction_removed", User: "U1", Reaction: "tada", Item: item})

		evs := events.byName(protocol.EventReactionReady)
		if len(evs) != 2 {
			t.Fatalf("events = %d, want 2", len(evs))
		}
		first := evs[0].Payload.(Reaction)
		second := evs[1].Payload.(Reaction)
		if first.Action != "added" || second.Action != "removed" {
			t.Errorf("actions = %q %q", first.Action, second.Action)
		}
		if first.User != "Alice" || first.Reaction != "tada" || first.MessageTS != "5.000" {
			t.Errorf("reaction = %+v", first)
		}
	})

	t.Run("missing item dropped", func(t *testing.T) {
		c, events := watchedTestClient(t, "C1")
		c.handleReaction(ctx, inboundEvent{Type: "reaction_added", User: "U1", Reaction: "tada"})
		if len(events.byName(protocol.EventReactionReady)) != 0 {
			t.Error("itemless reaction published")
		}
	})

	t.Run("unwatched channel dropped", func(t *testing.T) {
		c, events := watchedTestClient(t, "C1")
		item := &struct {
			Channel string `json:"channel"`
			TS      string `json:"ts"`
		}{Channel: "C9", TS: "5"}
		c.handleReaction(ctx, inboundEvent{Type: "reaction_added", User: "U1", Reaction: "tada", Item: item})
		if len(events.byName(protocol.EventReactionReady)) != 0 {
			t.Error("unwatched reaction published")
		}
	})
}

func TestResolveReplyContext(t *testing.T) {
	ctx := context.Background()

	t.Run("thread root has no reply context", func(t *testing.T) {
		c, _ := watchedTestClient(t, "C1")
		user, text := c.resolveReplyContext(ctx, inboundEvent{Channel: "C1", TS: "1.0", ThreadTS: "1.0"})
		if user != "" || text != "" {
			t.Errorf("got %q %q, want empty", user, text)
		}
	})

	t.Run("parent fetched and truncated", func(t *testing.T) {
		longText := "0123456789012345678901234567890123456789012345678901234567890123456789"
		srv := newSlackStub(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/conversations.replies":
				json.NewEncoder(w).Encode(map[string]interface{}{
					"ok":       true,
					"messages": []map[string]string{{"user": "U1", "text": longText}},
				})
			case "/users.info":
				json.NewEncoder(w).Encode(map[string]interface{}{
					"ok":   true,
					"user": map[string]interface{}{"id": "U1", "real_name": "Alice", "profile": map[string]string{}},
				})
			}
		})

		b := bus.New()
		c := NewClient(nil, b, WithAPIBase(srv.URL))
		c.UpdateConfig(Config{BotToken: "xoxb-t", Channels: []string{"C1"}})

		user, text := c.resolveReplyContext(ctx, inboundEvent{Channel: "C1", TS: "2.0", ThreadTS: "1.0"})
		if user != "Alice" {
			t.Errorf("parent user = %q", user)
		}
		if len([]rune(text)) != parentTextLimit {
			t.Errorf("parent text length = %d runes, want %d", len([]rune(text)), parentTextLimit)
		}
	})

	t.Run("lookup failure degrades to no context", func(t *testing.T) {
		c, _ := watchedTestClient(t, "C1")
		user, text := c.resolveReplyContext(ctx, inboundEvent{Channel: "C1", TS: "2.0", ThreadTS: "1.0"})
		if user != "" || text != "" {
			t.Errorf("got %q %q, want empty on failure", user, text)
		}
	})
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short unchanged", "hello", 10, "hello"},
		{"exact unchanged", "hello", 5, "hello"},
		{"ascii truncated", "hello world", 5, "hello"},
		{"multibyte counted as runes", "こんにちは世界", 5, "こんにちは"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateRunes(tt.in, tt.limit); got != tt.want {
				t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}

func TestCandidateURLs(t *testing.T) {
	f := fileObject{
		URLPrivateDownload: "http://x/dl",
		URLPrivate:         "http://x/priv",
		Thumb480:           "http://x/480",
		Thumb360:           "http://x/360",
	}
	got := f.candidateURLs()
	want := []string{"http://x/dl", "http://x/480", "http://x/360", "http://x/priv"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	sparse := fileObject{Thumb360: "http://x/360"}
	if got := sparse.candidateURLs(); len(got) != 1 || got[0] != "http://x/360" {
		t.Errorf("sparse candidates = %v", got)
	}
}

func TestResolveImagesSkipsNonImageFiles(t *testing.T) {
	c, _ := watchedTestClient(t, "C1")
	images := c.resolveImages(context.Background(), []fileObject{
		{Mimetype: "application/pdf", URLPrivate: "http://127.0.0.1:1/doc.pdf", Name: "doc.pdf"},
	})
	if len(images) != 0 {
		t.Errorf("non-image attachment resolved: %v", images)
	}
}
