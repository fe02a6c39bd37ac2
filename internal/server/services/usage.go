package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/blobvault/blobvault/internal/common"
	"github.com/blobvault/blobvault/internal/server/models"
)

// GetUsage reports a tenant's storage usage. A tenant without a quota row
// yet reports zero usage against the platform default limit.
func (s *UploadService) GetUsage(ctx context.Context, tenantID string) (*models.UsageInfo, error) {
	quotaRepo := s.repomanager.Quotas(s.db)

	usedBytes := int64(0)
	limitBytes := s.config.DefaultQuotaBytes

	q, err := quotaRepo.Get(ctx, tenantID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("error reading quota: %w", err)
	}
	if q != nil {
		usedBytes = q.UsedBytes
		limitBytes = q.LimitBytes
	}

	available := limitBytes - usedBytes
	if available < 0 {
		available = 0
	}

	percent := 0.0
	if limitBytes > 0 {
		percent = float64(usedBytes) / float64(limitBytes) * 100
	}

	return &models.UsageInfo{
		UsedBytes:      usedBytes,
		LimitBytes:     limitBytes,
		AvailableBytes: available,
		UsagePercent:   percent,
	}, nil
}
