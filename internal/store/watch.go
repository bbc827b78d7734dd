package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/waigayahq/waigaya/internal/bus"
	"github.com/waigayahq/waigaya/internal/slack"
	"github.com/waigayahq/waigaya/pkg/protocol"
)

// debounce window for editors that write snapshot files in several bursts.
const watchDebounce = 250 * time.Millisecond

// SnapshotCache is the in-memory cache side of the daemon. Disk changes are
// pushed here first so enrichment and UI clients see the same snapshot.
type SnapshotCache interface {
	SetLocalUsers(map[string]slack.User)
	SetLocalEmojis(map[string]string)
}

// Watch observes the data directory and republishes snapshot events when
// the user or emoji blob changes on disk, so externally edited snapshots
// reach the caches and connected UI clients without a restart. Blocks until
// ctx is done.
func (s *Store) Watch(ctx context.Context, events bus.EventPublisher, cache SnapshotCache) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.dataDir); err != nil {
		return err
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			if name == usersFile || name == emojisFile {
				pending[name] = time.Now()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("snapshot watcher error", "error", err)
		case now := <-ticker.C:
			for name, seen := range pending {
				if now.Sub(seen) < watchDebounce {
					continue
				}
				delete(pending, name)
				s.publishSnapshot(name, events, cache)
			}
		}
	}
}

func (s *Store) publishSnapshot(name string, events bus.EventPublisher, cache SnapshotCache) {
	switch name {
	case usersFile:
		users, err := s.LoadUsers()
		if err != nil {
			slog.Warn("reload users snapshot", "error", err)
			return
		}
		slog.Info("users snapshot changed on disk", "count", len(users))
		if cache != nil {
			cache.SetLocalUsers(users)
		}
		events.Publish(bus.Event{Name: protocol.EventUserSnapshotReady, Payload: users})
	case emojisFile:
		emojis, err := s.LoadEmojis()
		if err != nil {
			slog.Warn("reload emojis snapshot", "error", err)
			return
		}
		slog.Info("emojis snapshot changed on disk", "count", len(emojis))
		if cache != nil {
			cache.SetLocalEmojis(emojis)
		}
		events.Publish(bus.Event{Name: protocol.EventEmojiSnapshotReady, Payload: emojis})
	}
}
