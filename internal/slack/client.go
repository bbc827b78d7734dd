// Package slack implements the real-time ingestion core: the Web API
// gateway, the Socket Mode transport, the enrichment pipeline, and the
// connection supervisor that owns all shared state.
//
// Concurrency model: one long-lived socket task per active connection plus
// short-lived tasks per UI command, all sharing a single state container
// behind one RWMutex. Data needed for a request is copied out under a brief
// lock, the network I/O runs lock-free, and results are written back under a
// fresh brief lock.
package slack

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/waigayahq/waigaya/internal/bus"
	"github.com/waigayahq/waigaya/pkg/protocol"
)

// DefaultChannelName is the sentinel shown while no channel is watched.
const DefaultChannelName = "waigaya"

// ConfigStore persists the Slack configuration blob after semantic
// mutations. Failures are logged, never propagated to the caller.
type ConfigStore interface {
	SaveConfig(Config) error
}

// Client is the connection supervisor. It owns the config, the watch-list,
// both caches, and the connection state, and gates all access through mu.
type Client struct {
	api    *api
	images *imageResolver
	store  ConfigStore
	events bus.EventPublisher

	// lookup collapses concurrent users.info calls for the same id into one
	// in-flight request.
	lookup singleflight.Group

	mu                 sync.RWMutex
	config             Config
	watched            []string // insertion-ordered watch-list
	users              map[string]User
	emojis             map[string]string
	currentChannelName string
	connected          bool
	cancelSocket       context.CancelFunc
}

// Option customizes a Client.
type Option func(*Client)

// WithAPIBase points the Web API wrapper at a non-default base URL.
// Used by tests.
func WithAPIBase(baseURL string) Option {
	return func(c *Client) { c.api = newAPI(baseURL) }
}

// NewClient creates a disconnected supervisor with empty caches.
func NewClient(store ConfigStore, events bus.EventPublisher, opts ...Option) *Client {
	c := &Client{
		api:                newAPI(""),
		images:             newImageResolver(),
		store:              store,
		events:             events,
		users:              make(map[string]User),
		emojis:             make(map[string]string),
		currentChannelName: DefaultChannelName,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpdateConfig merges a partial config update into the current one. A
// non-empty channels list in the update also replaces the watch-list.
func (c *Client) UpdateConfig(update Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(update.Channels) > 0 {
		slog.Info("restoring watched channels", "count", len(update.Channels))
		c.watched = append([]string(nil), update.Channels...)
	}
	c.config = c.config.Merge(update)
}

// Config returns a snapshot copy of the current configuration.
func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configSnapshotLocked()
}

// configSnapshotLocked deep-copies the config. Callers hold mu.
func (c *Client) configSnapshotLocked() Config {
	snap := c.config
	snap.Channels = append([]string(nil), c.config.Channels...)
	if c.config.WatchedChannelData != nil {
		snap.WatchedChannelData = make(map[string]Channel, len(c.config.WatchedChannelData))
		for k, v := range c.config.WatchedChannelData {
			snap.WatchedChannelData[k] = v
		}
	}
	return snap
}

// CurrentChannelName returns the display name derived from the first watched
// channel, or the default sentinel while the watch-list is empty.
func (c *Client) CurrentChannelName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentChannelName
}

// Connected reports whether a transport task is believed live.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// TestConnection validates the given credentials end to end: bot token via
// auth.test, app token format, then a full push-handshake probe that does
// not retain the connection. Never mutates shared state.
func (c *Client) TestConnection(ctx context.Context, cfg Config) error {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return ErrMissingTokens
	}

	user, err := c.api.AuthTest(ctx, cfg.BotToken)
	if err != nil {
		return err
	}
	slog.Info("bot token verified", "user", user)

	if !strings.HasPrefix(cfg.AppToken, appTokenPrefix) {
		return ErrBadAppToken
	}

	if _, err := c.api.OpenConnection(ctx, cfg.AppToken); err != nil {
		return err
	}
	slog.Info("socket mode handshake verified")
	return nil
}

// Connect authenticates the bot credential and spawns the socket transport
// as a detached background task, cancelling any previous one first. It
// returns once authentication succeeds; push-socket failures are logged by
// the task itself, not surfaced, since the request/response surface stays
// usable without the socket.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	botToken := c.config.BotToken
	appToken := c.config.AppToken
	c.mu.RUnlock()

	if botToken == "" || appToken == "" {
		return ErrMissingTokens
	}

	if _, err := c.api.AuthTest(ctx, botToken); err != nil {
		return err
	}
	slog.Info("slack authenticated")

	// The socket task outlives the connect request, so it runs on its own
	// cancellation scope rather than the caller's ctx.
	socketCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.connected = true
	prev := c.cancelSocket
	c.cancelSocket = cancel
	c.mu.Unlock()

	if prev != nil {
		prev() // fire-and-forget: the old task unwinds on its own
	}

	go func() {
		if err := c.runSocket(socketCtx, appToken); err != nil {
			slog.Warn("socket mode unavailable, request/response only", "error", err)
		}
	}()

	return nil
}

// Disconnect cancels any active transport and marks the state disconnected
// immediately, without waiting for the task to observe cancellation.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel := c.cancelSocket
	c.cancelSocket = nil
	c.connected = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	slog.Info("slack disconnected")
}

// markDisconnected is called by the socket task when its loop exits.
func (c *Client) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

// ListChannels returns every conversation visible to the bot, accumulated
// across pagination cursors.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	c.mu.RLock()
	token := c.config.BotToken
	c.mu.RUnlock()

	if token == "" {
		return nil, ErrMissingToken
	}

	channels, err := c.api.ListChannels(ctx, token)
	if err != nil {
		return nil, err
	}
	slog.Info("channel list fetched", "count", len(channels))
	return channels, nil
}

// ChannelInfo fetches a single channel snapshot, degrading to an "unknown"
// placeholder on lookup failure.
func (c *Client) ChannelInfo(ctx context.Context, channelID string) Channel {
	c.mu.RLock()
	token := c.config.BotToken
	c.mu.RUnlock()
	return c.api.ChannelInfo(ctx, token, channelID)
}

// AddWatchChannel inserts a channel into the watch-list after verifying bot
// membership, persists the config, and announces the new current channel.
func (c *Client) AddWatchChannel(ctx context.Context, channelID string) (Channel, error) {
	c.mu.RLock()
	watched := c.isWatchedLocked(channelID)
	c.mu.RUnlock()
	if watched {
		return Channel{}, ErrAlreadyWatched
	}

	info := c.ChannelInfo(ctx, channelID)
	if info.IsMember != nil && !*info.IsMember {
		return Channel{}, ErrBotNotMember
	}

	c.mu.Lock()
	if c.isWatchedLocked(channelID) {
		c.mu.Unlock()
		return Channel{}, ErrAlreadyWatched
	}
	c.watched = append(c.watched, channelID)
	c.config.Channels = append([]string(nil), c.watched...)
	if c.config.WatchedChannelData == nil {
		c.config.WatchedChannelData = make(map[string]Channel)
	}
	c.config.WatchedChannelData[channelID] = info
	if len(c.watched) == 1 {
		c.currentChannelName = info.Name
	}
	name := c.currentChannelName
	cfg := c.configSnapshotLocked()
	c.mu.Unlock()

	c.persistConfig(cfg)
	c.events.Publish(bus.Event{Name: protocol.EventChannelWatchChanged, Payload: name})

	slog.Info("channel watch added", "channel", channelID, "name", info.Name)
	return info, nil
}

// RemoveWatchChannel deletes a channel from the watch-list, resetting the
// current channel name to the default sentinel when the list empties.
func (c *Client) RemoveWatchChannel(channelID string) error {
	c.mu.Lock()
	idx := -1
	for i, id := range c.watched {
		if id == channelID {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return ErrNotWatched
	}
	c.watched = append(c.watched[:idx], c.watched[idx+1:]...)
	c.config.Channels = append([]string(nil), c.watched...)
	delete(c.config.WatchedChannelData, channelID)
	if len(c.watched) == 0 {
		c.currentChannelName = DefaultChannelName
	}
	name := c.currentChannelName
	cfg := c.configSnapshotLocked()
	c.mu.Unlock()

	c.persistConfig(cfg)
	c.events.Publish(bus.Event{Name: protocol.EventChannelWatchChanged, Payload: name})

	slog.Info("channel watch removed", "channel", channelID)
	return nil
}

// WatchedChannels returns the watch-list ids and their snapshots.
func (c *Client) WatchedChannels() WatchedChannels {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := WatchedChannels{
		IDs:  append([]string(nil), c.watched...),
		Data: make(map[string]Channel, len(c.config.WatchedChannelData)),
	}
	for k, v := range c.config.WatchedChannelData {
		out.Data[k] = v
	}
	return out
}

// IsWatched reports watch-list membership.
func (c *Client) IsWatched(channelID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isWatchedLocked(channelID)
}

func (c *Client) isWatchedLocked(channelID string) bool {
	for _, id := range c.watched {
		if id == channelID {
			return true
		}
	}
	return false
}

// persistConfig hands the config to the store outside any lock. Persistence
// failures do not fail the triggering operation.
func (c *Client) persistConfig(cfg Config) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveConfig(cfg); err != nil {
		slog.Error("config save failed", "error", err)
	}
}

// ReloadUsers bulk-fetches the member roster into the identity cache and
// returns the snapshot for persistence by the caller.
func (c *Client) ReloadUsers(ctx context.Context) (map[string]User, error) {
	c.mu.RLock()
	token := c.config.BotToken
	c.mu.RUnlock()

	if token == "" {
		return nil, ErrMissingToken
	}

	users, err := c.api.ListUsers(ctx, token)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.users = users
	c.mu.Unlock()

	slog.Info("user cache reloaded", "count", len(users))
	return users, nil
}

// UserCount returns the identity cache size.
func (c *Client) UserCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// userByID resolves a user cache-first, falling back to users.info and
// populating the cache. Concurrent lookups for the same id are collapsed.
// Failures degrade to a synthetic "unknown" profile.
func (c *Client) userByID(ctx context.Context, userID string) User {
	c.mu.RLock()
	u, ok := c.users[userID]
	token := c.config.BotToken
	c.mu.RUnlock()
	if ok {
		return u
	}

	v, _, _ := c.lookup.Do(userID, func() (interface{}, error) {
		fetched, ok := c.api.UserInfo(ctx, token, userID)
		if !ok {
			return User{Name: "unknown"}, nil
		}
		c.mu.Lock()
		c.users[userID] = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	return v.(User)
}

// FetchEmojis refreshes the emoji cache from the platform and returns the
// filtered name→URL snapshot.
func (c *Client) FetchEmojis(ctx context.Context) (map[string]string, error) {
	c.mu.RLock()
	token := c.config.BotToken
	c.mu.RUnlock()

	if token == "" {
		return nil, ErrMissingToken
	}

	emojis, err := c.api.ListEmojis(ctx, token)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.emojis = emojis
	c.mu.Unlock()

	slog.Info("custom emojis fetched", "count", len(emojis))

	snap := make(map[string]string, len(emojis))
	for k, v := range emojis {
		snap[k] = v
	}
	return snap, nil
}

// EmojiURL resolves a cached custom emoji image URL.
func (c *Client) EmojiURL(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.emojis[name]
	return u, ok
}

// CacheStatus reports in-memory cache sizes.
func (c *Client) CacheStatus() CacheStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStatus{Users: len(c.users), Emojis: len(c.emojis)}
}

// SetLocalUsers bulk-replaces the identity cache from a persisted snapshot.
func (c *Client) SetLocalUsers(users map[string]User) {
	c.mu.Lock()
	c.users = make(map[string]User, len(users))
	for k, v := range users {
		c.users[k] = v
	}
	count := len(c.users)
	c.mu.Unlock()
	slog.Info("local user snapshot loaded", "count", count)
}

// SetLocalEmojis bulk-replaces the emoji cache from a persisted snapshot,
// keeping only retrievable HTTP(S) entries.
func (c *Client) SetLocalEmojis(emojis map[string]string) {
	c.mu.Lock()
	c.emojis = make(map[string]string, len(emojis))
	for k, v := range emojis {
		if strings.HasPrefix(v, "http") {
			c.emojis[k] = v
		}
	}
	count := len(c.emojis)
	c.mu.Unlock()
	slog.Info("local emoji snapshot loaded", "count", count)
}
