// Package common defines shared constants and sentinel errors used across
// the server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorEmailTaken   = errors.New("email already registered")

	// Change Feed errors. A malformed cursor is a client error and must be
	// rejected, not silently ignored: ignoring it would serve a wrong page.
	ErrInvalidCursor = errors.New("invalid cursor format")

	// ErrStaleWrite reports a guarded write that found a newer row than the
	// one the caller checked against. FOR UPDATE takes no lock when the row
	// does not exist yet, so two first creates of one id can both pass the
	// conflict check; the write itself re-checks and returns this instead of
	// letting the older timestamp win.
	ErrStaleWrite = errors.New("stale write")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired   = errors.New("token expired")
	ErrSessionExpired = errors.New("session expired")
)
