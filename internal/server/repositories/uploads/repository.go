package uploads

import (
	"context"
	"time"

	"github.com/blobvault/blobvault/internal/server/models"
)

type Repository interface {
	// Create inserts a new pending upload record.
	Create(ctx context.Context, upload *models.Upload) error

	// GetByObjectKey returns the record for the given key regardless of
	// status, or common.ErrNotFound.
	GetByObjectKey(ctx context.Context, objectKey string) (*models.Upload, error)

	// MarkCommitted flips pending, unexpired records matching the given
	// keys to committed and returns the affected rows. Keys that are
	// absent, already committed, or past their reservation deadline are
	// silently skipped.
	MarkCommitted(ctx context.Context, objectKeys []string, now time.Time) ([]*models.Upload, error)

	// MarkDeleted flips a record to deleted only while it still has the
	// status the caller observed, and reports whether this call performed
	// the flip. A false result means a concurrent deletion got there
	// first; the winner owns any quota credit.
	MarkDeleted(ctx context.Context, id string, from models.UploadStatus, now time.Time) (bool, error)

	// MarkCleanupFailed quarantines a pending record the sweeper could
	// not reclaim.
	MarkCleanupFailed(ctx context.Context, id string) error

	// DeleteByID removes a record outright (expired reservations only).
	DeleteByID(ctx context.Context, id string) error

	// SelectExpired returns up to limit pending records whose reservation
	// deadline has passed, oldest deadline first.
	SelectExpired(ctx context.Context, now time.Time, limit int) ([]*models.Upload, error)

	// SelectCommitted lists committed uploads for a tenant (or, when
	// tenantID is nil, the owner's personal uploads), newest first.
	SelectCommitted(ctx context.Context, tenantID *string, ownerID string, limit int) ([]*models.Upload, error)
}
