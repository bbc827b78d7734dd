package slack

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// imageResolver downloads private Slack files and encodes them as data URIs.
//
// Slack file URLs answer an authenticated GET with a redirect to a CDN host
// that embeds its own short-lived token in the target URL. The bearer
// credential must not be forwarded to that second host, so redirects are
// disabled on the first hop and the Location target is fetched with a plain
// unauthenticated client.
type imageResolver struct {
	authed *http.Client // redirect-following disabled
	plain  *http.Client
}

func newImageResolver() *imageResolver {
	return &imageResolver{
		authed: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		plain: &http.Client{Timeout: 30 * time.Second},
	}
}

// fetch resolves one file URL to a data URI. Returns ok=false on any
// failure, including an HTML body (an auth/error page, not image bytes).
func (r *imageResolver) fetch(ctx context.Context, token, fileURL, declaredMime string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.authed.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		location := resp.Header.Get("Location")
		if location == "" {
			return "", false
		}
		return r.fetchRedirectTarget(ctx, location, declaredMime)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return encodeBody(resp, fileURL, declaredMime)

	default:
		slog.Warn("image download failed", "status", resp.StatusCode)
		return "", false
	}
}

// fetchRedirectTarget performs the second, unauthenticated hop.
func (r *imageResolver) fetchRedirectTarget(ctx context.Context, location, declaredMime string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", false
	}

	resp, err := r.plain.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("image redirect target failed", "status", resp.StatusCode)
		return "", false
	}
	return encodeBody(resp, location, declaredMime)
}

// encodeBody validates the content type, derives the effective MIME, and
// base64-encodes the body into a data URI.
func encodeBody(resp *http.Response, fromURL, declaredMime string) (string, bool) {
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		slog.Warn("image URL returned HTML", "url", fromURL)
		return "", false
	}

	mime := declaredMime
	if isImageMime(contentType) {
		mime = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(body), true
}

func isImageMime(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}
