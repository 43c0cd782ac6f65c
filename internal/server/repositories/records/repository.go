package records

import (
	"context"
	"time"

	"github.com/passwords-you-take-anywhere/server/internal/server/models"
)

// Repository is the storage surface used by the sync engine. All operations
// are scoped by userID: an id owned by another user behaves exactly like an
// absent id.
type Repository interface {
	// GetForUpdate reads one record and, when running inside a transaction,
	// locks its row so the LWW check is evaluated against post-lock state.
	// Returns common.ErrorNotFound if the user has no such record.
	GetForUpdate(ctx context.Context, userID, id string) (*models.Record, error)

	// Upsert installs a record wholesale (create or create-overwrite),
	// clearing any tombstone. The write is guarded against the stored
	// updated timestamp: if a concurrently committed row is newer than
	// rec.Updated, nothing changes and common.ErrStaleWrite is returned.
	Upsert(ctx context.Context, rec *models.Record) error

	// Update overwrites the credential fields and updated timestamp of an
	// existing record and clears its tombstone.
	Update(ctx context.Context, rec *models.Record) error

	// SoftDelete marks a record deleted, setting both deleted_at and updated
	// to ts. Fields and domains are left untouched.
	SoftDelete(ctx context.Context, userID, id string, ts time.Time) error

	// ReplaceDomains atomically swaps the full domain list of a record.
	ReplaceDomains(ctx context.Context, userID, recordID string, domains [][]byte) error

	// ListDomains returns the domain blobs of a record in stored order.
	ListDomains(ctx context.Context, userID, recordID string) ([][]byte, error)

	// ListChanges returns up to limit records ordered by (updated, id),
	// filtered by the optional since timestamp and resumption cursor.
	// Tombstones are included. Domains are not hydrated.
	ListChanges(ctx context.Context, userID string, since *time.Time, cursor *models.Cursor, limit int) ([]*models.Record, error)
}
