package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blobvault/blobvault/internal/common"
	"github.com/blobvault/blobvault/internal/dbx"
	"github.com/blobvault/blobvault/internal/server/blobstore"
	"github.com/blobvault/blobvault/internal/server/models"
)

// DeleteUpload reverses an upload: it removes the blob first and, only when
// that succeeds, marks the record deleted and credits the quota back. An
// already-absent blob counts as success since the desired end state (object
// gone) is achieved.
func (s *UploadService) DeleteUpload(ctx context.Context, caller Principal, rawKey string) error {
	key := s.normalizeObjectKey(rawKey)

	uploadRepo := s.repomanager.Uploads(s.db)
	upload, err := uploadRepo.GetByObjectKey(ctx, key)
	if err != nil {
		return err
	}

	if !canAccess(caller, upload) {
		return common.ErrForbidden
	}

	if upload.Status == models.StatusDeleted {
		// already deleted; idempotent success, no quota change
		return nil
	}

	if err := s.store.Delete(ctx, key); err != nil {
		if !errors.Is(err, blobstore.ErrObjectNotFound) {
			s.logger.Error(ctx, "blob deletion failed", "object_key", key, "error", err.Error())
			return &common.ExternalStoreError{Op: "delete", Key: key, Err: err}
		}
		s.logger.Warn(ctx, "blob already absent on delete", "object_key", key)
	}

	wasCommitted := upload.Status == models.StatusCommitted

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		flipped, err := s.repomanager.Uploads(tx).MarkDeleted(ctx, upload.ID, upload.Status, s.now())
		if err != nil {
			return err
		}
		if !flipped {
			// a concurrent deletion won the status flip and with it the
			// quota credit; this call is an idempotent success
			return nil
		}
		if wasCommitted && upload.TenantID != nil && upload.SizeBytes > 0 {
			if err := s.repomanager.Quotas(tx).ReleaseUsage(ctx, *upload.TenantID, upload.SizeBytes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error deleting upload: %w", err)
	}

	s.logger.Info(ctx, "upload deleted", "record_id", upload.ID, "object_key", key)
	return nil
}

// DeleteUploadsBatch deletes the given keys with bounded concurrency and
// aggregates per-key outcomes. Keys are normalized and deduplicated first.
// One key's failure never aborts the others; the batch itself never fails.
func (s *UploadService) DeleteUploadsBatch(ctx context.Context, caller Principal, rawKeys []string) *BatchDeleteResult {
	keys := make([]string, 0, len(rawKeys))
	seen := make(map[string]struct{}, len(rawKeys))
	for _, raw := range rawKeys {
		key := s.normalizeObjectKey(raw)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	result := &BatchDeleteResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.DeleteConcurrency)

	for _, key := range keys {
		g.Go(func() error {
			err := s.DeleteUpload(gctx, caller, key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, KeyError{
					ObjectKey: key,
					Message:   err.Error(),
				})
			} else {
				result.Succeeded++
			}
			// errors are aggregated, never propagated: a failure must not
			// cancel the sibling deletions
			return nil
		})
	}

	_ = g.Wait()

	if result.Failed > 0 {
		s.logger.Warn(ctx, "batch deletion finished with failures",
			"succeeded", result.Succeeded, "failed", result.Failed)
	}
	return result
}
