package models

import "time"

// Session is a server-stored refresh session. The opaque Token is what the
// client presents to rotate its access token; expired sessions are rejected.
type Session struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
