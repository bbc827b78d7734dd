package slack

import "encoding/json"

// Config carries the Slack credentials and the channel watch-list.
// JSON field names match the persisted blob format of the desktop app.
type Config struct {
	BotToken           string             `json:"botToken"`
	AppToken           string             `json:"appToken"`
	Channels           []string           `json:"channels"`
	WatchedChannelData map[string]Channel `json:"watchedChannelData"`
}

// Merge overlays a partially-specified update onto c. Empty fields in the
// update are treated as unset and keep the existing value. Returns the
// merged result; c is not mutated.
func (c Config) Merge(update Config) Config {
	merged := c
	if update.BotToken != "" {
		merged.BotToken = update.BotToken
	}
	if update.AppToken != "" {
		merged.AppToken = update.AppToken
	}
	if len(update.Channels) > 0 {
		merged.Channels = update.Channels
	}
	if len(update.WatchedChannelData) > 0 {
		merged.WatchedChannelData = update.WatchedChannelData
	}
	return merged
}

// Channel is the snapshot of a Slack conversation kept alongside the
// watch-list. Immutable once fetched; refreshed only by re-fetch.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate *bool  `json:"is_private,omitempty"`
	IsMember  *bool  `json:"is_member,omitempty"`
}

// User is a cached identity profile. Extra fields from the platform are
// retained in Raw so persisted snapshots survive round-trips losslessly.
type User struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	RealName string  `json:"real_name,omitempty"`
	Profile  Profile `json:"profile"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the full platform document in Raw so that persisted
// user snapshots round-trip without field loss.
func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*u = User(a)
	u.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the captured document when one exists.
func (u User) MarshalJSON() ([]byte, error) {
	if len(u.Raw) > 0 {
		return u.Raw, nil
	}
	type alias User
	return json.Marshal(alias(u))
}

// Profile is the nested profile object of a Slack user.
type Profile struct {
	DisplayName string `json:"display_name,omitempty"`
	RealName    string `json:"real_name,omitempty"`
	Image72     string `json:"image_72,omitempty"`
	Image48     string `json:"image_48,omitempty"`
}

// DisplayName derives the mention display name with the platform's priority
// order: profile display name, real name, account name, then "unknown".
func (u User) DisplayName() string {
	switch {
	case u.Profile.DisplayName != "":
		return u.Profile.DisplayName
	case u.RealName != "":
		return u.RealName
	case u.Name != "":
		return u.Name
	default:
		return "unknown"
	}
}

// AuthorName derives the author/actor name shown on messages and reactions:
// real name first, then account name.
func (u User) AuthorName() string {
	switch {
	case u.RealName != "":
		return u.RealName
	case u.Name != "":
		return u.Name
	default:
		return "unknown"
	}
}

// IconURL picks the author avatar, preferring the 72px rendition.
func (u User) IconURL() string {
	if u.Profile.Image72 != "" {
		return u.Profile.Image72
	}
	return u.Profile.Image48
}

// Message is the fully enriched, UI-ready representation of a message.
type Message struct {
	Text        string      `json:"text"`
	User        string      `json:"user"`
	UserIcon    string      `json:"userIcon"`
	Channel     string      `json:"channel,omitempty"`
	Timestamp   string      `json:"timestamp,omitempty"`
	ThreadTS    string      `json:"threadTs,omitempty"`
	ReplyToUser string      `json:"replyToUser,omitempty"`
	ReplyToText string      `json:"replyToText,omitempty"`
	Images      []ImageData `json:"images,omitempty"`
}

// ImageData is an inline image payload resolved to a data URI.
type ImageData struct {
	DataURL string `json:"dataUrl"`
	Name    string `json:"name,omitempty"`
}

// Reaction is the UI-ready representation of a reaction change.
type Reaction struct {
	Action    string `json:"action"` // "added" or "removed"
	Reaction  string `json:"reaction"`
	User      string `json:"user"`
	Channel   string `json:"channel"`
	MessageTS string `json:"message_ts"`
}

// CacheStatus reports in-memory cache sizes.
type CacheStatus struct {
	Users  int `json:"users"`
	Emojis int `json:"emojis"`
}

// WatchedChannels is the watch-list snapshot returned to the UI.
type WatchedChannels struct {
	IDs  []string           `json:"ids"`
	Data map[string]Channel `json:"data"`
}
