package quotas

import (
	"context"

	"github.com/blobvault/blobvault/internal/server/models"
)

type Repository interface {
	// Get returns the quota row for a tenant, or common.ErrNotFound.
	Get(ctx context.Context, tenantID string) (*models.StorageQuota, error)

	// TryAddUsage increments used_bytes by delta only if the result stays
	// within limit_bytes, in a single atomic statement. Returns false when
	// the increment was rejected or no quota row exists.
	TryAddUsage(ctx context.Context, tenantID string, delta int64) (bool, error)

	// CreateIfAbsent inserts a quota row with the given limit and initial
	// usage. Returns false when a row already exists (concurrent creation).
	CreateIfAbsent(ctx context.Context, tenantID string, limitBytes, usedBytes int64) (bool, error)

	// ReleaseUsage decrements used_bytes by delta, floored at zero.
	ReleaseUsage(ctx context.Context, tenantID string, delta int64) error
}
