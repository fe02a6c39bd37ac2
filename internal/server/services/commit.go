package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/blobvault/blobvault/internal/common"
	"github.com/blobvault/blobvault/internal/dbx"
	"github.com/blobvault/blobvault/internal/server/models"
	"github.com/blobvault/blobvault/internal/server/repositories/quotas"
)

// CommitUploads confirms that the given objects were written to the blob
// store. Within one transaction it flips matching pending records to
// committed and applies their sizes to the owning tenants' quotas through a
// conditional increment. If any tenant's increment is rejected the whole
// commit rolls back and the records stay pending, eligible for retry or
// eventual cleanup.
//
// Keys may be passed as full URLs; they are normalized to bare keys first.
func (s *UploadService) CommitUploads(ctx context.Context, objectKeys []string) ([]*models.Upload, error) {
	keys := make([]string, 0, len(objectKeys))
	seen := make(map[string]struct{}, len(objectKeys))
	for _, raw := range objectKeys {
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
	if len(keys) == 0 {
		return nil, common.ErrNothingToCommit
	}

	var committed []*models.Upload

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		uploadRepo := s.repomanager.Uploads(tx)
		quotaRepo := s.repomanager.Quotas(tx)

		rows, err := uploadRepo.MarkCommitted(ctx, keys, s.now())
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return common.ErrNothingToCommit
		}

		totals := make(map[string]int64)
		for _, u := range rows {
			if u.TenantID != nil {
				totals[*u.TenantID] += u.SizeBytes
			}
		}

		for tenantID, total := range totals {
			if err := s.chargeQuota(ctx, quotaRepo, tenantID, total); err != nil {
				return err
			}
		}

		committed = rows
		return nil
	})

	if err != nil {
		if errors.Is(err, common.ErrNothingToCommit) {
			return nil, err
		}
		var quotaErr *common.QuotaExceededError
		if errors.As(err, &quotaErr) {
			s.logger.Warn(ctx, "commit rejected by quota",
				"tenant_id", quotaErr.TenantID, "requested_bytes", quotaErr.RequestedBytes,
				"used_bytes", quotaErr.UsedBytes, "limit_bytes", quotaErr.LimitBytes)
			return nil, err
		}
		return nil, fmt.Errorf("error committing uploads: %w", err)
	}

	s.logger.Info(ctx, "uploads committed", "count", len(committed))
	return committed, nil
}

// chargeQuota applies total bytes to a tenant's usage. The conditional
// increment is the final authority on the quota invariant; bootstrap of a
// missing row is guarded against the default limit and against concurrent
// creation.
func (s *UploadService) chargeQuota(ctx context.Context, quotaRepo quotas.Repository, tenantID string, total int64) error {
	ok, err := quotaRepo.TryAddUsage(ctx, tenantID, total)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	q, err := quotaRepo.Get(ctx, tenantID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	if q == nil {
		// First commit for this tenant. The initial usage may not itself
		// exceed the default ceiling.
		if total > s.config.DefaultQuotaBytes {
			return &common.QuotaExceededError{
				TenantID:       tenantID,
				UsedBytes:      0,
				LimitBytes:     s.config.DefaultQuotaBytes,
				RequestedBytes: total,
			}
		}
		created, err := quotaRepo.CreateIfAbsent(ctx, tenantID, s.config.DefaultQuotaBytes, total)
		if err != nil {
			return err
		}
		if created {
			return nil
		}
		// Lost the creation race; the row exists now, retry the increment.
		ok, err = quotaRepo.TryAddUsage(ctx, tenantID, total)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		q, err = quotaRepo.Get(ctx, tenantID)
		if err != nil {
			return err
		}
	}

	return &common.QuotaExceededError{
		TenantID:       tenantID,
		UsedBytes:      q.UsedBytes,
		LimitBytes:     q.LimitBytes,
		RequestedBytes: total,
	}
}
