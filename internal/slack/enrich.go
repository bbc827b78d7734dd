package slack

import (
	"context"
	"log/slog"

	"github.com/waigayahq/waigaya/internal/bus"
	"github.com/waigayahq/waigaya/pkg/protocol"
)

// parentTextLimit bounds the reply-context preview, in runes.
const parentTextLimit = 50

// handleEvent routes a decoded platform event through the enrichment
// pipeline. Events for channels outside the watch-list are discarded with no
// side effect.
func (c *Client) handleEvent(ctx context.Context, ev inboundEvent) {
	switch ev.Type {
	case "reaction_added", "reaction_removed":
		c.handleReaction(ctx, ev)
	case "message":
		c.handleMessage(ctx, ev)
	}
}

func (c *Client) handleReaction(ctx context.Context, ev inboundEvent) {
	if ev.Item == nil || ev.Item.Channel == "" || !c.IsWatched(ev.Item.Channel) {
		return
	}

	action := "added"
	if ev.Type == "reaction_removed" {
		action = "removed"
	}

	actor := c.userByID(ctx, ev.User)
	c.events.Publish(bus.Event{Name: protocol.EventReactionReady, Payload: Reaction{
		Action:    action,
		Reaction:  ev.Reaction,
		User:      actor.AuthorName(),
		Channel:   ev.Item.Channel,
		MessageTS: ev.Item.TS,
	}})
}

func (c *Client) handleMessage(ctx context.Context, ev inboundEvent) {
	if ev.Channel == "" || !c.IsWatched(ev.Channel) {
		return
	}

	text := c.resolveMentions(ctx, ev.Text)
	author := c.userByID(ctx, ev.User)

	replyToUser, replyToText := c.resolveReplyContext(ctx, ev)
	images := c.resolveImages(ctx, ev.Files)

	// A message that resolved to neither text nor images has nothing to
	// show; suppress it.
	if text == "" && len(images) == 0 {
		return
	}

	msg := Message{
		Text:        text,
		User:        author.AuthorName(),
		UserIcon:    author.IconURL(),
		Channel:     ev.Channel,
		Timestamp:   ev.TS,
		ThreadTS:    ev.ThreadTS,
		ReplyToUser: replyToUser,
		ReplyToText: replyToText,
		Images:      images,
	}
	c.events.Publish(bus.Event{Name: protocol.EventMessageReady, Payload: msg})
	slog.Debug("message forwarded", "channel", ev.Channel, "ts", ev.TS)
}

// resolveReplyContext fetches the thread parent for a reply. Lookup or
// identity failures degrade to no reply context rather than a partial one.
func (c *Client) resolveReplyContext(ctx context.Context, ev inboundEvent) (user, text string) {
	if ev.ThreadTS == "" || ev.ThreadTS == ev.TS {
		return "", ""
	}

	c.mu.RLock()
	token := c.config.BotToken
	c.mu.RUnlock()

	parentID, parentText, ok := c.api.ThreadParent(ctx, token, ev.Channel, ev.ThreadTS)
	if !ok {
		return "", ""
	}

	parent := c.userByID(ctx, parentID)
	truncated := truncateRunes(parentText, parentTextLimit)
	return parent.AuthorName(), c.resolveMentions(ctx, truncated)
}

// resolveImages fetches each image attachment, trying candidate URLs in
// priority order and omitting attachments that fail everywhere.
func (c *Client) resolveImages(ctx context.Context, files []fileObject) []ImageData {
	if len(files) == 0 {
		return nil
	}

	c.mu.RLock()
	token := c.config.BotToken
	c.mu.RUnlock()

	var images []ImageData
	for _, f := range files {
		if !isImageMime(f.Mimetype) {
			continue
		}

		fetched := false
		for _, u := range f.candidateURLs() {
			if dataURL, ok := c.images.fetch(ctx, token, u, f.Mimetype); ok {
				images = append(images, ImageData{DataURL: dataURL, Name: f.Name})
				fetched = true
				break
			}
		}
		if !fetched {
			slog.Warn("image fetch failed on all URLs", "name", f.Name)
		}
	}
	return images
}

// candidateURLs lists download URLs in priority order: the authenticated
// download URL, progressively smaller thumbnails, then the generic private
// URL.
func (f fileObject) candidateURLs() []string {
	var urls []string
	for _, u := range []string{f.URLPrivateDownload, f.Thumb480, f.Thumb360, f.URLPrivate} {
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
