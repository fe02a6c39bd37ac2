package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blobvault/blobvault/internal/common"
	"github.com/blobvault/blobvault/internal/dbx"
	"github.com/blobvault/blobvault/internal/server/models"
)

// PostgresRepository implements upload record storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uploadColumns = `id, object_key, bucket, content_type, size_bytes, status, folder_id, owner_id, tenant_id, expires_at, created_at, updated_at, deleted_at`

func scanUpload(scan func(dest ...any) error) (*models.Upload, error) {
	var u models.Upload
	var status string
	err := scan(&u.ID, &u.ObjectKey, &u.Bucket, &u.ContentType, &u.SizeBytes, &status,
		&u.FolderID, &u.OwnerID, &u.TenantID, &u.ExpiresAt, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	u.Status = models.UploadStatus(status)
	return &u, nil
}

// Create inserts a new pending record. The object key carries a UNIQUE
// constraint; a collision surfaces as a db error.
func (r *PostgresRepository) Create(ctx context.Context, upload *models.Upload) error {
	query := `
		INSERT INTO uploads (id, object_key, bucket, content_type, size_bytes, status, folder_id, owner_id, tenant_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`
	res, err := r.db.ExecContext(ctx, query,
		upload.ID, upload.ObjectKey, upload.Bucket, upload.ContentType, upload.SizeBytes,
		string(upload.Status), upload.FolderID, upload.OwnerID, upload.TenantID, upload.ExpiresAt, upload.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// GetByObjectKey returns the record for the given key regardless of status.
func (r *PostgresRepository) GetByObjectKey(ctx context.Context, objectKey string) (*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE object_key = $1`

	u, err := scanUpload(r.db.QueryRowContext(ctx, query, objectKey).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}
	return u, nil
}

// MarkCommitted atomically flips matching pending, unexpired records to
// committed. The filter on status makes resubmitting a commit a no-op for
// the already-committed subset; the filter on expires_at keeps expired
// reservations uncommittable.
func (r *PostgresRepository) MarkCommitted(ctx context.Context, objectKeys []string, now time.Time) ([]*models.Upload, error) {
	if len(objectKeys) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(objectKeys))
	args := make([]any, 0, len(objectKeys)+1)
	args = append(args, now)
	for i, key := range objectKeys {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, key)
	}

	query := `
		UPDATE uploads
		SET status = 'committed', updated_at = $1
		WHERE object_key IN (` + strings.Join(placeholders, ", ") + `)
			AND status = 'pending'
			AND expires_at > $1
		RETURNING ` + uploadColumns

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to commit uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.Upload
	for rows.Next() {
		u, err := scanUpload(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkDeleted flips the record to deleted only while it still has the status
// the caller observed. The status predicate makes two racing deletions of the
// same record resolve to exactly one flip; the loser sees zero rows affected
// and must not credit the quota.
func (r *PostgresRepository) MarkDeleted(ctx context.Context, id string, from models.UploadStatus, now time.Time) (bool, error) {
	query := `UPDATE uploads SET status = 'deleted', deleted_at = $1, updated_at = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, now, id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to mark deleted: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

// MarkCleanupFailed quarantines a record only while it is still pending, so
// the transition stays forward-only even if a commit races the sweeper.
func (r *PostgresRepository) MarkCleanupFailed(ctx context.Context, id string) error {
	query := `UPDATE uploads SET status = 'cleanup_failed' WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark cleanup_failed: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}

// DeleteByID removes the row outright. Used for expired reservations that
// never became real data.
func (r *PostgresRepository) DeleteByID(ctx context.Context, id string) error {
	query := `DELETE FROM uploads WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}

// SelectExpired returns up to limit expired pending records, oldest first.
func (r *PostgresRepository) SelectExpired(ctx context.Context, now time.Time, limit int) ([]*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.Upload
	for rows.Next() {
		u, err := scanUpload(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SelectCommitted lists committed uploads newest first. With a tenant the
// listing is tenant-wide; without one it covers the owner's personal uploads.
func (r *PostgresRepository) SelectCommitted(ctx context.Context, tenantID *string, ownerID string, limit int) ([]*models.Upload, error) {
	var query string
	var args []any
	if tenantID != nil {
		query = `SELECT ` + uploadColumns + ` FROM uploads
			WHERE status = 'committed' AND tenant_id = $1
			ORDER BY created_at DESC LIMIT $2`
		args = []any{*tenantID, limit}
	} else {
		query = `SELECT ` + uploadColumns + ` FROM uploads
			WHERE status = 'committed' AND tenant_id IS NULL AND owner_id = $1
			ORDER BY created_at DESC LIMIT $2`
		args = []any{ownerID, limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.Upload
	for rows.Next() {
		u, err := scanUpload(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
