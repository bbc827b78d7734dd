package protocol

// ProtocolVersion is bumped on breaking frame-format changes.
const ProtocolVersion = 1

// Event names pushed from the daemon to connected UI clients.
const (
	// EventMessageReady carries a fully enriched message presentation event.
	EventMessageReady = "message.ready"

	// EventReactionReady carries a reaction added/removed presentation event.
	EventReactionReady = "reaction.ready"

	// EventChannelWatchChanged carries the current channel display name after
	// a watch-list mutation.
	EventChannelWatchChanged = "channel.watch.changed"

	// EventEmojiSnapshotReady carries the name→URL custom emoji mapping after
	// a fetch or a local snapshot load.
	EventEmojiSnapshotReady = "emoji.snapshot.ready"

	// EventUserSnapshotReady signals that the on-disk user snapshot changed
	// and was reloaded into the identity cache.
	EventUserSnapshotReady = "user.snapshot.ready"
)

// Frame types on the gateway socket.
const (
	FrameRequest  = "req"
	FrameResponse = "res"
	FrameEvent    = "event"
)
