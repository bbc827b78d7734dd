package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://slack.com/api"
	appTokenPrefix = "xapp-"
)

// api is the stateless request/response wrapper around the Slack Web API.
// Every call takes the token explicitly; the supervisor copies tokens out of
// its locked state before calling, so no lock is ever held across I/O.
type api struct {
	baseURL string
	http    *http.Client
}

func newAPI(baseURL string) *api {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &api{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// call performs one Web API request and decodes the response into out, which
// must embed an `ok`/`error` pair. Transport failures come back wrapped;
// platform failures (ok=false) come back as *APIError.
func (a *api) call(ctx context.Context, httpMethod, method, token string, params url.Values, out interface{}) error {
	endpoint := a.baseURL + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

type apiStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s apiStatus) check(method string) error {
	if s.OK {
		return nil
	}
	reason := s.Error
	if reason == "" {
		reason = "unknown_error"
	}
	return &APIError{Method: method, Reason: reason}
}

type authTestResponse struct {
	apiStatus
	User string `json:"user"`
}

// AuthTest validates a bot token and returns the authenticated identity.
func (a *api) AuthTest(ctx context.Context, token string) (string, error) {
	var resp authTestResponse
	if err := a.call(ctx, http.MethodPost, "auth.test", token, nil, &resp); err != nil {
		return "", err
	}
	if err := resp.check("auth.test"); err != nil {
		return "", err
	}
	return resp.User, nil
}

type conversationsListResponse struct {
	apiStatus
	Channels []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		IsPrivate bool   `json:"is_private"`
		IsMember  bool   `json:"is_member"`
	} `json:"channels"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// ListChannels pages through conversations.list until the cursor is
// exhausted, accumulating every entry.
func (a *api) ListChannels(ctx context.Context, token string) ([]Channel, error) {
	var all []Channel
	cursor := ""

	for {
		params := url.Values{
			"types":            {"public_channel,private_channel"},
			"exclude_archived": {"true"},
			"limit":            {"1000"},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp conversationsListResponse
		if err := a.call(ctx, http.MethodGet, "conversations.list", token, params, &resp); err != nil {
			return nil, err
		}
		if err := resp.check("conversations.list"); err != nil {
			return nil, err
		}

		for _, ch := range resp.Channels {
			private, member := ch.IsPrivate, ch.IsMember
			all = append(all, Channel{
				ID:        ch.ID,
				Name:      ch.Name,
				IsPrivate: &private,
				IsMember:  &member,
			})
		}

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return all, nil
		}
	}
}

type conversationsInfoResponse struct {
	apiStatus
	Channel *struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		IsPrivate bool   `json:"is_private"`
		IsMember  bool   `json:"is_member"`
	} `json:"channel"`
}

// ChannelInfo fetches a single channel snapshot. Lookup failures degrade to
// an "unknown" placeholder rather than an error, matching how the watch-list
// treats channels the bot cannot see.
func (a *api) ChannelInfo(ctx context.Context, token, channelID string) Channel {
	unknown := Channel{ID: channelID, Name: "unknown"}
	if token == "" {
		return unknown
	}

	var resp conversationsInfoResponse
	params := url.Values{"channel": {channelID}}
	if err := a.call(ctx, http.MethodGet, "conversations.info", token, params, &resp); err != nil {
		return unknown
	}
	if resp.Channel == nil {
		return unknown
	}

	private, member := resp.Channel.IsPrivate, resp.Channel.IsMember
	return Channel{
		ID:        resp.Channel.ID,
		Name:      resp.Channel.Name,
		IsPrivate: &private,
		IsMember:  &member,
	}
}

type usersListResponse struct {
	apiStatus
	Members []json.RawMessage `json:"members"`
}

// ListUsers fetches the full member roster, keeping only entries that expose
// a profile sub-object.
func (a *api) ListUsers(ctx context.Context, token string) (map[string]User, error) {
	var resp usersListResponse
	if err := a.call(ctx, http.MethodGet, "users.list", token, nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.check("users.list"); err != nil {
		return nil, err
	}

	users := make(map[string]User)
	for _, raw := range resp.Members {
		var probe struct {
			ID      string           `json:"id"`
			Profile *json.RawMessage `json:"profile"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		if probe.ID == "" || probe.Profile == nil {
			continue
		}
		var u User
		if err := json.Unmarshal(raw, &u); err != nil {
			continue
		}
		users[probe.ID] = u
	}
	return users, nil
}

type usersInfoResponse struct {
	apiStatus
	User *User `json:"user"`
}

// UserInfo fetches a single user profile.
func (a *api) UserInfo(ctx context.Context, token, userID string) (User, bool) {
	if token == "" || userID == "" {
		return User{}, false
	}

	var resp usersInfoResponse
	params := url.Values{"user": {userID}}
	if err := a.call(ctx, http.MethodGet, "users.info", token, params, &resp); err != nil {
		return User{}, false
	}
	if resp.User == nil {
		return User{}, false
	}
	return *resp.User, true
}

type emojiListResponse struct {
	apiStatus
	Emoji map[string]string `json:"emoji"`
}

// ListEmojis fetches the workspace's custom emoji mapping, dropping alias
// entries (values that are not HTTP(S) URLs).
func (a *api) ListEmojis(ctx context.Context, token string) (map[string]string, error) {
	var resp emojiListResponse
	if err := a.call(ctx, http.MethodGet, "emoji.list", token, nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.check("emoji.list"); err != nil {
		return nil, err
	}

	emojis := make(map[string]string, len(resp.Emoji))
	for name, u := range resp.Emoji {
		if strings.HasPrefix(u, "http") {
			emojis[name] = u
		}
	}
	return emojis, nil
}

type conversationsRepliesResponse struct {
	apiStatus
	Messages []struct {
		Text string `json:"text"`
		User string `json:"user"`
	} `json:"messages"`
}

// ThreadParent fetches the first message of a thread. Returns the parent
// author id and text, or ok=false when the lookup fails for any reason.
func (a *api) ThreadParent(ctx context.Context, token, channelID, threadTS string) (userID, text string, ok bool) {
	if token == "" {
		return "", "", false
	}

	var resp conversationsRepliesResponse
	params := url.Values{
		"channel":   {channelID},
		"ts":        {threadTS},
		"limit":     {"1"},
		"inclusive": {"true"},
	}
	if err := a.call(ctx, http.MethodGet, "conversations.replies", token, params, &resp); err != nil {
		return "", "", false
	}
	if !resp.OK || len(resp.Messages) == 0 {
		return "", "", false
	}
	return resp.Messages[0].User, resp.Messages[0].Text, true
}

type connectionsOpenResponse struct {
	apiStatus
	URL string `json:"url"`
}

// OpenConnection performs the push-connection handshake with the app-level
// token and returns the one-time transport URL.
func (a *api) OpenConnection(ctx context.Context, appToken string) (string, error) {
	var resp connectionsOpenResponse
	if err := a.call(ctx, http.MethodPost, "apps.connections.open", appToken, nil, &resp); err != nil {
		return "", err
	}
	if err := resp.check("apps.connections.open"); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", &APIError{Method: "apps.connections.open", Reason: "no url in response"}
	}
	return resp.URL, nil
}
