package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/waigayahq/waigaya/internal/bus"
	"github.com/waigayahq/waigaya/internal/slack"
	"github.com/waigayahq/waigaya/internal/store"
	"github.com/waigayahq/waigaya/pkg/protocol"
)

// SlackMethods exposes the Slack client and the snapshot store over the
// gateway RPC surface.
type SlackMethods struct {
	slack  *slack.Client
	store  *store.Store
	events bus.EventPublisher
}

// NewSlackMethods creates the handler set.
func NewSlackMethods(sc *slack.Client, st *store.Store, events bus.EventPublisher) *SlackMethods {
	return &SlackMethods{slack: sc, store: st, events: events}
}

// Register binds every RPC method.
func (m *SlackMethods) Register(router *MethodRouter) {
	router.Register(protocol.MethodSettingsSave, m.handleSettingsSave)
	router.Register(protocol.MethodSettingsLoad, m.handleSettingsLoad)

	router.Register(protocol.MethodSlackConnect, m.handleConnect)
	router.Register(protocol.MethodSlackDisconnect, m.handleDisconnect)
	router.Register(protocol.MethodSlackTest, m.handleTest)

	router.Register(protocol.MethodChannelsList, m.handleChannelsList)
	router.Register(protocol.MethodChannelsAdd, m.handleChannelsAdd)
	router.Register(protocol.MethodChannelsRemove, m.handleChannelsRemove)
	router.Register(protocol.MethodChannelsInfo, m.handleChannelsInfo)
	router.Register(protocol.MethodChannelsWatched, m.handleChannelsWatched)
	router.Register(protocol.MethodChannelsCurrent, m.handleChannelsCurrent)

	router.Register(protocol.MethodUsersReload, m.handleUsersReload)
	router.Register(protocol.MethodUsersCount, m.handleUsersCount)

	router.Register(protocol.MethodEmojisFetch, m.handleEmojisFetch)
	router.Register(protocol.MethodEmojisSave, m.handleEmojisSave)
	router.Register(protocol.MethodEmojisLastUpdated, m.handleEmojisLastUpdated)
	router.Register(protocol.MethodEmojisURL, m.handleEmojiURL)

	router.Register(protocol.MethodCacheStatus, m.handleCacheStatus)
	router.Register(protocol.MethodCacheLoadUsers, m.handleCacheLoadUsers)
	router.Register(protocol.MethodCacheLoadEmojis, m.handleCacheLoadEmojis)

	router.Register(protocol.MethodHealth, m.handleHealth)
}

func decodeParams(req *protocol.RequestFrame, v interface{}) error {
	if len(req.Params) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params, v)
}

// channelParams is the shared parameter shape for per-channel methods.
type channelParams struct {
	Channel string `json:"channel"`
}

func (m *SlackMethods) handleSettingsSave(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var update slack.Config
	if err := decodeParams(req, &update); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "invalid settings payload"))
		return
	}

	m.slack.UpdateConfig(update)
	merged := m.slack.Config()
	if err := m.store.SaveConfig(merged); err != nil {
		slog.Error("persist settings", "error", err)
		client.SendResponse(protocol.NewErrorResponse(req.ID, "failed to persist settings"))
		return
	}

	client.SendResponse(protocol.NewResponse(req.ID, merged))
}

func (m *SlackMethods) handleSettingsLoad(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	cfg, err := m.store.LoadConfig()
	if err != nil {
		slog.Error("load settings", "error", err)
		client.SendResponse(protocol.NewErrorResponse(req.ID, "failed to load settings"))
		return
	}
	if cfg == nil {
		cfg = &slack.Config{}
	}
	client.SendResponse(protocol.NewResponse(req.ID, cfg))
}

func (m *SlackMethods) handleConnect(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var update slack.Config
	if err := decodeParams(req, &update); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "invalid connect payload"))
		return
	}

	m.slack.UpdateConfig(update)
	if err := m.store.SaveConfig(m.slack.Config()); err != nil {
		slog.Warn("persist config before connect", "error", err)
	}

	if err := m.slack.Connect(ctx); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err.Error()))
		return
	}

	client.SendResponse(protocol.NewResponse(req.ID, map[string]bool{"connected": true}))
}

func (m *SlackMethods) handleDisconnect(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	m.slack.Disconnect()
	client.SendResponse(protocol.NewResponse(req.ID, map[string]bool{"connected": false}))
}

func (m *SlackMethods) handleTest(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var cfg slack.Config
	if err := decodeParams(req, &cfg); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "invalid test payload"))
		return
	}

	if err := m.slack.TestConnection(ctx, cfg); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err.Error()))
		return
	}
	client.SendResponse(protocol.NewResponse(req.ID, map[string]bool{"ok": true}))
}

func (m *SlackMethods) handleChannelsList(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	channels, err := m.slack.ListChannels(ctx)
	if err != nil {
		slog.Error("list channels", "error", err)
		client.SendResponse(protocol.NewErrorResponse(req.ID, err.Error()))
		return
	}
	client.SendResponse(protocol.NewResponse(req.ID, channels))
}

func (m *SlackMethods) handleChannelsAdd(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params channelParams
	if err := decodeParams(req, &params); err != nil || params.Channel == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "missing channel id"))
		return
	}

	ch, err := m.slack.AddWatchChannel(ctx, params.Channel)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err.Error()))
		return
	}
	client.SendResponse(protocol.NewResponse(req.ID, ch))
}

func (m *SlackMethods) handleChannelsRemove(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params channelParams
	if err := decodeParams(req, &params); err != nil || params.Channel == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "missing channel id"))
		return
	}

	if err := m.slack.RemoveWatchChannel(params.Channel); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err.Error()))
		return
	}
	client.SendResponse(protocol.NewResponse(req.ID, m.slack.WatchedChannels()))
}

func (m *SlackMethods) handleChannelsInfo(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params channelParams
	if err := decodeParams(req, &params); err != nil || params.Channel == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "missing channel id"))
		return
	}
	client.SendResponse(protocol.NewResponse(req.ID, m.slack.ChannelInfo(ctx, params.Channel)))
}

func (m *SlackMethods) handleChannelsWatched(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewResponse(req.ID, m.slack.WatchedChannels()))
}

func (m *SlackMethods) handleChannelsCurrent(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewResponse(req.ID, map[string]string{
		"name": m.slack.CurrentChannelName(),
	}))
}

func (m *SlackMethods) handleUsersReload(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	users, err := m.slack.ReloadUsers(ctx)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err.Error()))
		return
	}

	// Snapshot persistence is best-effort; the in-memory cache is already
	// refreshed.
	if err := m.store.SaveUsers(users); err != nil {
		slog.Warn("persist users snapshot", "error", err)
	}
	m.events.Publish(bus.Event{Name: protocol.EventUserSnapshotReady, Payload: users})

	client.SendResponse(protocol.NewResponse(req.ID, map[string]int{"count": len(users)}))
}

func (m *SlackMethods) handleUsersCount(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewResponse(req.ID, map[string]int{"count": m.slack.UserCount()}))
}

func (m *SlackMethods) handleEmojisFetch(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	emojis, err := m.slack.FetchEmojis(ctx)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err.Error()))
		return
	}

	if err := m.store.SaveEmojis(emojis); err != nil {
		slog.Warn("persist emojis snapshot", "error", err)
	}
	m.events.Publish(bus.Event{Name: protocol.EventEmojiSnapshotReady, Payload: emojis})

	client.SendResponse(protocol.NewResponse(req.ID, emojis))
}

func (m *SlackMethods) handleEmojisSave(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var emojis map[string]string
	if err := decodeParams(req, &emojis); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "invalid emoji payload"))
		return
	}

	if err := m.store.SaveEmojis(emojis); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "failed to persist emojis"))
		return
	}
	m.slack.SetLocalEmojis(emojis)
	m.events.Publish(bus.Event{Name: protocol.EventEmojiSnapshotReady, Payload: emojis})

	client.SendResponse(protocol.NewResponse(req.ID, map[string]int{"count": len(emojis)}))
}

func (m *SlackMethods) handleEmojisLastUpdated(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	if mtime, ok := m.store.EmojisLastModified(); ok {
		client.SendResponse(protocol.NewResponse(req.ID, map[string]int64{"lastUpdated": mtime.Unix()}))
		return
	}
	client.SendResponse(protocol.NewResponse(req.ID, nil))
}

func (m *SlackMethods) handleEmojiURL(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		Name string `json:"name"`
	}
	if err := decodeParams(req, &params); err != nil || params.Name == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "missing emoji name"))
		return
	}

	url, ok := m.slack.EmojiURL(params.Name)
	if !ok {
		client.SendResponse(protocol.NewResponse(req.ID, nil))
		return
	}
	client.SendResponse(protocol.NewResponse(req.ID, map[string]string{"url": url}))
}

func (m *SlackMethods) handleCacheStatus(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewResponse(req.ID, m.slack.CacheStatus()))
}

func (m *SlackMethods) handleCacheLoadUsers(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	users, err := m.store.LoadUsers()
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "failed to load users snapshot"))
		return
	}

	m.slack.SetLocalUsers(users)
	m.events.Publish(bus.Event{Name: protocol.EventUserSnapshotReady, Payload: users})
	client.SendResponse(protocol.NewResponse(req.ID, map[string]int{"count": len(users)}))
}

func (m *SlackMethods) handleCacheLoadEmojis(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	emojis, err := m.store.LoadEmojis()
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "failed to load emojis snapshot"))
		return
	}

	m.slack.SetLocalEmojis(emojis)
	m.events.Publish(bus.Event{Name: protocol.EventEmojiSnapshotReady, Payload: emojis})
	client.SendResponse(protocol.NewResponse(req.ID, emojis))
}

func (m *SlackMethods) handleHealth(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewResponse(req.ID, map[string]interface{}{
		"status":    "ok",
		"connected": m.slack.Connected(),
		"protocol":  protocol.ProtocolVersion,
	}))
}
