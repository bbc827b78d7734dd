package protocol

// RPC method name constants exposed to the host UI over the gateway socket.

// Settings persistence
const (
	MethodSettingsSave = "settings.save"
	MethodSettingsLoad = "settings.load"
)

// Connection lifecycle
const (
	MethodSlackConnect    = "slack.connect"
	MethodSlackDisconnect = "slack.disconnect"
	MethodSlackTest       = "slack.test"
)

// Watch-list management
const (
	MethodChannelsList    = "channels.list"
	MethodChannelsAdd     = "channels.add"
	MethodChannelsRemove  = "channels.remove"
	MethodChannelsInfo    = "channels.info"
	MethodChannelsWatched = "channels.watched"
	MethodChannelsCurrent = "channels.current"
)

// User identity cache
const (
	MethodUsersReload = "users.reload"
	MethodUsersCount  = "users.count"
)

// Custom emoji cache
const (
	MethodEmojisFetch       = "emojis.fetch"
	MethodEmojisSave        = "emojis.save"
	MethodEmojisLastUpdated = "emojis.lastUpdated"
	MethodEmojisURL         = "emojis.url"
)

// Local snapshot management
const (
	MethodCacheStatus     = "cache.status"
	MethodCacheLoadUsers  = "cache.loadUsers"
	MethodCacheLoadEmojis = "cache.loadEmojis"
)

// System
const (
	MethodHealth = "health"
)
