// Package models holds the server-side persistence models.
package models

import "time"

// User is an account that owns a vault. EncryptionKey is an opaque per-user
// blob supplied at registration; the server never derives anything from it
// except the avatar seed.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	EncryptionKey []byte
	CreatedAt     time.Time
}
