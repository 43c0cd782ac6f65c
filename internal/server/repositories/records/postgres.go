// Package records provides the PostgreSQL-backed repository for secret
// records and their attached domain lists.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/passwords-you-take-anywhere/server/internal/common"
	"github.com/passwords-you-take-anywhere/server/internal/dbx"
	"github.com/passwords-you-take-anywhere/server/internal/server/models"
)

// PostgresRepository implements record storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetForUpdate reads one record by (userID, id) with a row lock. Inside the
// push transaction this makes the conflict check-then-write atomic per record.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, userID, id string) (*models.Record, error) {
	query := `
		SELECT id, username_data, password_data, notes, created_at, updated, deleted_at
		FROM records
		WHERE user_id = $1 AND id = $2
		FOR UPDATE
	`
	rec := &models.Record{UserID: userID}
	var deletedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID, id).Scan(
		&rec.ID, &rec.UsernameData, &rec.PasswordData, &rec.Notes,
		&rec.CreatedAt, &rec.Updated, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if deletedAt.Valid {
		rec.DeletedAt = &deletedAt.Time
	}
	return rec, nil
}

// Upsert installs a record wholesale by (user_id, id). Used by the create
// path, including create-overwrite; the caller decides which created_at to
// preserve. Any tombstone is cleared.
//
// The DO UPDATE clause is guarded by records.updated <= EXCLUDED.updated.
// When the id did not exist at check time, GetForUpdate locked nothing, and a
// concurrent transaction may commit a newer row before this insert runs; the
// guard keeps that newer row intact and the zero-rows result becomes
// common.ErrStaleWrite for the caller to re-read and report.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.Record) error {
	query := `
		INSERT INTO records (user_id, id, username_data, password_data, notes, created_at, updated, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)
		ON CONFLICT (user_id, id)
		DO UPDATE SET
			username_data = EXCLUDED.username_data,
			password_data = EXCLUDED.password_data,
			notes = EXCLUDED.notes,
			created_at = EXCLUDED.created_at,
			updated = EXCLUDED.updated,
			deleted_at = NULL
		WHERE records.updated <= EXCLUDED.updated;
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.UserID, rec.ID, rec.UsernameData, rec.PasswordData, rec.Notes, rec.CreatedAt, rec.Updated)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrStaleWrite
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// Update overwrites the credential fields of an existing record, advances
// updated, and clears deleted_at (an update always undeletes).
func (r *PostgresRepository) Update(ctx context.Context, rec *models.Record) error {
	query := `
		UPDATE records
		SET username_data = $3, password_data = $4, notes = $5, updated = $6, deleted_at = NULL
		WHERE user_id = $1 AND id = $2;
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.UserID, rec.ID, rec.UsernameData, rec.PasswordData, rec.Notes, rec.Updated)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// SoftDelete sets deleted_at = updated = ts, turning the record into a
// tombstone that the change feed keeps serving.
func (r *PostgresRepository) SoftDelete(ctx context.Context, userID, id string, ts time.Time) error {
	query := `
		UPDATE records
		SET deleted_at = $3, updated = $3
		WHERE user_id = $1 AND id = $2;
	`
	res, err := r.db.ExecContext(ctx, query, userID, id, ts)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// ReplaceDomains deletes every prior domain row of the record and installs
// the new list. Must run inside the same transaction as the record write so
// no partial state is ever observable.
func (r *PostgresRepository) ReplaceDomains(ctx context.Context, userID, recordID string, domains [][]byte) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM record_domains WHERE user_id = $1 AND record_id = $2;`,
		userID, recordID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for i, d := range domains {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO record_domains (user_id, record_id, pos, encrypted_domain) VALUES ($1, $2, $3, $4);`,
			userID, recordID, i+1, d); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

// ListDomains returns the encrypted domain blobs of a record ordered by pos.
func (r *PostgresRepository) ListDomains(ctx context.Context, userID, recordID string) ([][]byte, error) {
	query := `
		SELECT encrypted_domain FROM record_domains
		WHERE user_id = $1 AND record_id = $2
		ORDER BY pos;
	`
	rows, err := r.db.QueryContext(ctx, query, userID, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to select domains: %w", err)
	}
	defer rows.Close()

	var result [][]byte
	for rows.Next() {
		var d []byte
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListChanges selects up to limit records for userID in (updated, id) order.
// The cursor predicate deliberately falls back to id comparison on equal
// timestamps: several records may share one updated value (a single push
// batch produces them), and a plain updated > cursor would skip or repeat
// rows across pages.
func (r *PostgresRepository) ListChanges(ctx context.Context, userID string, since *time.Time, cursor *models.Cursor, limit int) ([]*models.Record, error) {
	query := `
		SELECT id, username_data, password_data, notes, created_at, updated, deleted_at
		FROM records
		WHERE user_id = $1`
	args := []any{userID}

	if since != nil {
		args = append(args, *since)
		query += fmt.Sprintf(" AND updated > $%d", len(args))
	}
	if cursor != nil {
		args = append(args, cursor.Updated, cursor.ID)
		query += fmt.Sprintf(" AND (updated > $%d OR (updated = $%d AND id > $%d))",
			len(args)-1, len(args)-1, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY updated, id LIMIT $%d;", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec := &models.Record{UserID: userID}
		var deletedAt sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.UsernameData, &rec.PasswordData, &rec.Notes,
			&rec.CreatedAt, &rec.Updated, &deletedAt,
		); err != nil {
			return nil, err
		}
		if deletedAt.Valid {
			rec.DeletedAt = &deletedAt.Time
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
