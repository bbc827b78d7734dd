package slack

import (
	"errors"
	"fmt"
)

// Validation errors, returned before any network call is attempted.
var (
	ErrMissingTokens  = errors.New("bot token and app token are required")
	ErrMissingToken   = errors.New("bot token is not configured")
	ErrAlreadyWatched = errors.New("channel is already being watched")
	ErrNotWatched     = errors.New("channel is not being watched")
	ErrBotNotMember   = errors.New("bot is not a member of the channel")
	ErrBadAppToken    = errors.New("app token must start with " + appTokenPrefix)
)

// APIError means the platform answered but reported failure. It is distinct
// from transport errors, which are returned as wrapped network errors.
type APIError struct {
	Method string // Web API method, e.g. "conversations.list"
	Reason string // platform error string, e.g. "invalid_auth"
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Reason)
}

// IsAPIError reports whether err is a platform-level failure.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
