package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/blobvault/blobvault/internal/server/blobstore"
)

// RunCleanupPass reclaims abandoned reservations: pending records whose
// deadline passed without a commit. For each expired record the blob is
// deleted (absent counts as deleted) and the record removed outright, since
// pending reservations never contributed to quota. A record whose blob or
// row cannot be deleted is quarantined as cleanup_failed and will not be
// picked up again; recovery is manual.
//
// The pass is bounded by CleanupBatchSize and is safe to invoke on a fixed
// schedule.
func (s *UploadService) RunCleanupPass(ctx context.Context) (*CleanupResult, error) {
	uploadRepo := s.repomanager.Uploads(s.db)

	expired, err := uploadRepo.SelectExpired(ctx, s.now(), s.config.CleanupBatchSize)
	if err != nil {
		return nil, fmt.Errorf("error selecting expired uploads: %w", err)
	}

	result := &CleanupResult{}

	for _, upload := range expired {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := s.store.Delete(ctx, upload.ObjectKey)
		if err != nil && !errors.Is(err, blobstore.ErrObjectNotFound) {
			// quarantine and keep going; one failure must not halt the batch
			s.logger.Error(ctx, "cleanup blob deletion failed, quarantining",
				"record_id", upload.ID, "object_key", upload.ObjectKey, "error", err.Error())
			if markErr := uploadRepo.MarkCleanupFailed(ctx, upload.ID); markErr != nil {
				s.logger.Error(ctx, "failed to quarantine record",
					"record_id", upload.ID, "error", markErr.Error())
			}
			result.Quarantined++
			result.QuarantinedKeys = append(result.QuarantinedKeys, upload.ObjectKey)
			continue
		}

		if err := uploadRepo.DeleteByID(ctx, upload.ID); err != nil {
			s.logger.Error(ctx, "failed to delete reclaimed record",
				"record_id", upload.ID, "error", err.Error())
			if markErr := uploadRepo.MarkCleanupFailed(ctx, upload.ID); markErr != nil {
				s.logger.Error(ctx, "failed to quarantine record",
					"record_id", upload.ID, "error", markErr.Error())
			}
			result.Quarantined++
			result.QuarantinedKeys = append(result.QuarantinedKeys, upload.ObjectKey)
			continue
		}

		result.Reclaimed++
	}

	s.logger.Info(ctx, "cleanup pass finished",
		"scanned", len(expired), "reclaimed", result.Reclaimed, "quarantined", result.Quarantined)
	return result, nil
}
