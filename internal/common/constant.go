package common

// SessionHeaderName is the HTTP header used to carry the access token on
// requests, kept for compatibility with clients of the original API.
const SessionHeaderName = "X-Session-Id"

// SessionCookieName is the cookie fallback for the same token.
const SessionCookieName = "session_id"

// Conflict reasons reported by the Push Reconciler. The vocabulary is fixed;
// clients match on these strings.
const (
	ReasonServerNewer = "Server has newer version"
	ReasonNotFound    = "Item not found on server"
)
