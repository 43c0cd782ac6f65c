package models

import "time"

// Record is a vault entry owned by one user. All credential fields and the
// attached domain list are opaque encrypted blobs; the server stores and
// orders them but never inspects their contents.
//
// Updated drives everything: the change feed order, cursor pagination, and
// last-write-wins conflict resolution. Every accepted mutation moves it
// forward (or keeps it equal, never backward). DeletedAt non-nil marks a
// tombstone that stays visible to the change feed.
type Record struct {
	ID           string
	UserID       string
	UsernameData []byte
	PasswordData []byte
	Notes        []byte
	Domains      [][]byte
	CreatedAt    time.Time
	Updated      time.Time
	DeletedAt    *time.Time
}

// Cursor is the decoded resumption token of the change feed: the (updated,
// id) sort key of the last record returned on the previous page. It is
// derived data, never stored server-side.
type Cursor struct {
	Updated time.Time
	ID      string
}
