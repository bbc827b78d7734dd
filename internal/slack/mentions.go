package slack

import (
	"context"
	"regexp"
	"strings"
)

// mentionRe matches inline user references, with or without a display label:
// <@U12345> and <@U12345|label>.
var mentionRe = regexp.MustCompile(`<@(U[A-Z0-9]+)(?:\|[^>]*)?>`)

// resolveMentions rewrites user-reference tokens in text into styled display
// spans. Distinct user ids are resolved in first-seen order, and all
// occurrences of one id (labeled or not) are replaced before moving to the
// next.
func (c *Client) resolveMentions(ctx context.Context, text string) string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text
	}

	var userIDs []string
	seen := make(map[string]bool)
	for _, m := range matches {
		if id := m[1]; !seen[id] {
			seen[id] = true
			userIDs = append(userIDs, id)
		}
	}

	result := text
	for _, id := range userIDs {
		user := c.userByID(ctx, id)
		name := escapeHTML(user.DisplayName())

		re, err := regexp.Compile(`<@` + regexp.QuoteMeta(id) + `(?:\|[^>]*)?>`)
		if err != nil {
			continue
		}
		result = re.ReplaceAllString(result, `<span class="slack-mention">@`+name+`</span>`)
	}
	return result
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
