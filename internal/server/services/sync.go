// Package services contains server-side business logic. This file implements
// SyncService: the change feed (paginated, resumable reads) and the push
// reconciler (last-write-wins application of client batches).
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/passwords-you-take-anywhere/server/internal/common"
	"github.com/passwords-you-take-anywhere/server/internal/dbx"
	"github.com/passwords-you-take-anywhere/server/internal/server/models"
	"github.com/passwords-you-take-anywhere/server/internal/server/repositories/repomanager"
)

const (
	// DefaultPageSize is used when the client does not request a limit.
	DefaultPageSize = 100
	// MaxPageSize caps the requested limit; oversized requests are clamped,
	// not rejected.
	MaxPageSize = 1000
)

// RecordUpsert is one create or update item of a push batch. Updated is the
// client's claim of causal recency, not a request-received time.
type RecordUpsert struct {
	ID           string
	UsernameData []byte
	PasswordData []byte
	Notes        []byte
	Domains      [][]byte
	Updated      time.Time
}

// RecordDelete is one soft-delete item of a push batch.
type RecordDelete struct {
	ID      string
	Updated time.Time
}

// Conflict reports an item the reconciler rejected. ServerUpdated is the zero
// time when the server holds no row for the id at all.
type Conflict struct {
	ID            string
	ClientUpdated time.Time
	ServerUpdated time.Time
	Reason        string
}

// PushResult sums applied mutations across a batch and lists its conflicts.
// Conflicts are data, not errors: the batch keeps processing past them.
type PushResult struct {
	Applied   int
	Conflicts []Conflict
}

// SyncService implements the two sync contracts over the records repository.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

// NewSyncService constructs a SyncService using the given DB handle and
// repository manager.
func NewSyncService(db *sql.DB, m repomanager.RepositoryManager) *SyncService {
	return &SyncService{db: db, repomanager: m}
}

// GetChanges returns one page of the user's record mutations ordered by
// (updated, id), including tombstones. since filters to strictly newer
// records; cursorStr resumes a previous page. A nextCursor is returned only
// when more pages remain.
func (s *SyncService) GetChanges(ctx context.Context, userID string, since *time.Time, cursorStr string, limit int) ([]*models.Record, string, bool, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var cursor *models.Cursor
	if cursorStr != "" {
		c, err := decodeCursor(cursorStr)
		if err != nil {
			return nil, "", false, err
		}
		cursor = c
	}

	repo := s.repomanager.Records(s.db)

	// Fetch one row beyond the page: its presence means has_more, and the
	// cursor is built from the last row actually included, not the extra one.
	rows, err := repo.ListChanges(ctx, userID, since, cursor, limit+1)
	if err != nil {
		return nil, "", false, fmt.Errorf("error selecting changes: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	for _, rec := range rows {
		domains, err := repo.ListDomains(ctx, userID, rec.ID)
		if err != nil {
			return nil, "", false, fmt.Errorf("error selecting domains: %w", err)
		}
		rec.Domains = domains
	}

	nextCursor := ""
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		nextCursor = encodeCursor(models.Cursor{Updated: last.Updated, ID: last.ID})
	}

	return rows, nextCursor, hasMore, nil
}

// PushChanges applies a client batch with last-write-wins resolution. The
// whole batch runs in one transaction: either every accepted item commits or
// none does. Each record's conflict check happens after its row is locked, so
// two concurrent pushes against the same id cannot both win.
func (s *SyncService) PushChanges(ctx context.Context, userID string, creates, updates []*RecordUpsert, deletes []*RecordDelete) (*PushResult, error) {
	result := &PushResult{}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Records(tx)

		for _, item := range creates {
			existing, err := repo.GetForUpdate(ctx, userID, item.ID)
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return err
			}

			if existing != nil && existing.Updated.After(item.Updated) {
				result.Conflicts = append(result.Conflicts, Conflict{
					ID:            item.ID,
					ClientUpdated: item.Updated,
					ServerUpdated: existing.Updated,
					Reason:        common.ReasonServerNewer,
				})
				continue
			}

			rec := &models.Record{
				ID:           item.ID,
				UserID:       userID,
				UsernameData: item.UsernameData,
				PasswordData: item.PasswordData,
				Notes:        item.Notes,
				CreatedAt:    item.Updated,
				Updated:      item.Updated,
			}
			// Create-overwrite keeps the record's original creation time.
			if existing != nil {
				rec.CreatedAt = existing.CreatedAt
			}
			if err := repo.Upsert(ctx, rec); err != nil {
				if errors.Is(err, common.ErrStaleWrite) {
					// A concurrent push created this id with a newer
					// timestamp between our absent-row check and the write.
					// The insert waited out that transaction, so the row is
					// locked and readable now.
					current, gerr := repo.GetForUpdate(ctx, userID, item.ID)
					if gerr != nil {
						return gerr
					}
					result.Conflicts = append(result.Conflicts, Conflict{
						ID:            item.ID,
						ClientUpdated: item.Updated,
						ServerUpdated: current.Updated,
						Reason:        common.ReasonServerNewer,
					})
					continue
				}
				return err
			}
			if err := repo.ReplaceDomains(ctx, userID, item.ID, item.Domains); err != nil {
				return err
			}
			result.Applied++
		}

		for _, item := range updates {
			existing, err := repo.GetForUpdate(ctx, userID, item.ID)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					// Covers ids owned by other users too: indistinguishable
					// from true absence.
					result.Conflicts = append(result.Conflicts, Conflict{
						ID:            item.ID,
						ClientUpdated: item.Updated,
						Reason:        common.ReasonNotFound,
					})
					continue
				}
				return err
			}

			if existing.Updated.After(item.Updated) {
				result.Conflicts = append(result.Conflicts, Conflict{
					ID:            item.ID,
					ClientUpdated: item.Updated,
					ServerUpdated: existing.Updated,
					Reason:        common.ReasonServerNewer,
				})
				continue
			}

			rec := &models.Record{
				ID:           item.ID,
				UserID:       userID,
				UsernameData: item.UsernameData,
				PasswordData: item.PasswordData,
				Notes:        item.Notes,
				Updated:      item.Updated,
			}
			if err := repo.Update(ctx, rec); err != nil {
				return err
			}
			if err := repo.ReplaceDomains(ctx, userID, item.ID, item.Domains); err != nil {
				return err
			}
			result.Applied++
		}

		for _, item := range deletes {
			existing, err := repo.GetForUpdate(ctx, userID, item.ID)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					// Deleting an absent record is a no-op, not a conflict.
					continue
				}
				return err
			}

			if existing.Updated.After(item.Updated) {
				result.Conflicts = append(result.Conflicts, Conflict{
					ID:            item.ID,
					ClientUpdated: item.Updated,
					ServerUpdated: existing.Updated,
					Reason:        common.ReasonServerNewer,
				})
				continue
			}

			if err := repo.SoftDelete(ctx, userID, item.ID, item.Updated); err != nil {
				return err
			}
			result.Applied++
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error applying push batch: %w", err)
	}

	return result, nil
}
