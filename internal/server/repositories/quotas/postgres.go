package quotas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blobvault/blobvault/internal/common"
	"github.com/blobvault/blobvault/internal/dbx"
	"github.com/blobvault/blobvault/internal/server/models"
)

// PostgresRepository implements quota storage over a dbx.DBTX. used_bytes is
// never mutated by read-modify-write; every change is a single conditional
// or floored arithmetic statement evaluated atomically by the database.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the quota row for a tenant.
func (r *PostgresRepository) Get(ctx context.Context, tenantID string) (*models.StorageQuota, error) {
	query := `SELECT tenant_id, limit_bytes, used_bytes, created_at, updated_at FROM storage_quotas WHERE tenant_id = $1`

	q := &models.StorageQuota{}
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&q.TenantID, &q.LimitBytes, &q.UsedBytes, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select quota: %w", err)
	}
	return q, nil
}

// TryAddUsage performs the conditional increment that makes concurrent
// commits for the same tenant race-safe without an exclusive lock: of two
// commits that would jointly exceed the limit, at most one predicate holds.
func (r *PostgresRepository) TryAddUsage(ctx context.Context, tenantID string, delta int64) (bool, error) {
	query := `
		UPDATE storage_quotas
		SET used_bytes = used_bytes + $1, updated_at = now()
		WHERE tenant_id = $2 AND used_bytes + $1 <= limit_bytes
	`
	result, err := r.db.ExecContext(ctx, query, delta, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to add usage: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

// CreateIfAbsent bootstraps a tenant's quota row. ON CONFLICT DO NOTHING
// keeps concurrent first commits from failing on the unique key; the loser
// reports false and retries the conditional increment instead.
func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, tenantID string, limitBytes, usedBytes int64) (bool, error) {
	query := `
		INSERT INTO storage_quotas (tenant_id, limit_bytes, used_bytes)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, tenantID, limitBytes, usedBytes)
	if err != nil {
		return false, fmt.Errorf("failed to create quota: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

// ReleaseUsage credits bytes back, floored at zero to tolerate accounting
// drift. A missing row is not an error; there is nothing to credit.
func (r *PostgresRepository) ReleaseUsage(ctx context.Context, tenantID string, delta int64) error {
	query := `
		UPDATE storage_quotas
		SET used_bytes = GREATEST(used_bytes - $1, 0), updated_at = now()
		WHERE tenant_id = $2
	`
	_, err := r.db.ExecContext(ctx, query, delta, tenantID)
	if err != nil {
		return fmt.Errorf("failed to release usage: %w", err)
	}
	return nil
}
