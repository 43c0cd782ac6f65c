// Package seed creates demo accounts and records on an empty database, for
// local development and manual client testing.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/passwords-you-take-anywhere/server/internal/server/auth"
	"github.com/passwords-you-take-anywhere/server/internal/server/models"
	"github.com/passwords-you-take-anywhere/server/internal/server/repositories/repomanager"
)

type demoUser struct {
	email    string
	password string
}

var demoUsers = []demoUser{
	{"alice@example.com", "Alice!234"},
	{"bob@example.com", "Bob!23456"},
	{"carol@example.com", "Carol!234"},
}

// Each demo record carries several attached domains to exercise the
// list-shaped attachment storage.
var demoDomains = [][]string{
	{"example.com", "www.example.com"},
	{"mail.example.com", "smtp.example.com"},
	{"github.com", "gist.github.com", "api.github.com"},
	{"bank.example", "secure.bank.example"},
	{"forum.example", "api.forum.example"},
}

// IfEmpty populates demo data when no users exist yet. Returns true when
// seeding happened.
func IfEmpty(ctx context.Context, db *sql.DB, rm repomanager.RepositoryManager) (bool, error) {
	userRepo := rm.Users(db)
	recordRepo := rm.Records(db)

	n, err := userRepo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("error counting users: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	now := time.Now().UTC()

	for i, du := range demoUsers {
		hash, err := auth.HashPassword(du.password)
		if err != nil {
			return false, err
		}
		key := []byte(fmt.Sprintf("key-%02d-%024d", i+1, 0))
		user, err := userRepo.Create(ctx, &models.User{
			Email:         du.email,
			PasswordHash:  hash,
			EncryptionKey: key,
		})
		if err != nil {
			return false, fmt.Errorf("error creating demo user: %w", err)
		}

		for offset, domains := range demoDomains {
			ts := now.AddDate(0, 0, -(offset + 1))
			rec := &models.Record{
				ID:           uuid.NewString(),
				UserID:       user.ID,
				UsernameData: []byte(fmt.Sprintf("%s_%d", du.email, offset+1)),
				PasswordData: []byte(fmt.Sprintf("%s_site%d", du.password, offset+1)),
				Notes:        []byte(fmt.Sprintf("seeded record %d for %s", offset+1, du.email)),
				CreatedAt:    ts,
				Updated:      ts,
			}
			if err := recordRepo.Upsert(ctx, rec); err != nil {
				return false, fmt.Errorf("error creating demo record: %w", err)
			}
			blobs := make([][]byte, 0, len(domains))
			for _, d := range domains {
				blobs = append(blobs, []byte(d))
			}
			if err := recordRepo.ReplaceDomains(ctx, user.ID, rec.ID, blobs); err != nil {
				return false, fmt.Errorf("error creating demo domains: %w", err)
			}
		}
	}

	return true, nil
}
