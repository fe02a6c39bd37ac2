package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blobvault/blobvault/internal/common"
	"github.com/blobvault/blobvault/internal/logging"
	"github.com/blobvault/blobvault/internal/server/blobstore"
	sc "github.com/blobvault/blobvault/internal/server/config"
	"github.com/blobvault/blobvault/internal/server/models"
	"github.com/blobvault/blobvault/internal/server/repositories/repomanager"
)

const publicCacheControl = "public, max-age=31536000"

// UploadService implements the upload lifecycle: reservation, commit,
// deletion, cleanup, and usage reporting.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       blobstore.Store
	config      *sc.Config
	logger      logging.Logger

	now func() time.Time
}

func NewUploadService(db *sql.DB, rm repomanager.RepositoryManager, store blobstore.Store, config *sc.Config, logger logging.Logger) *UploadService {
	return &UploadService{
		db:          db,
		repomanager: rm,
		store:       store,
		config:      config,
		logger:      logger.With("module", "upload_service"),
		now:         time.Now,
	}
}

// RequestUpload validates the reservation, optimistically pre-checks the
// tenant quota, creates a pending record with a bounded deadline, and issues
// a presigned write credential for exactly that key and content type.
//
// The pre-check is best effort: the commit-time conditional increment is the
// final authority, so two racing reservations may both pass here and one of
// them fail at commit.
func (s *UploadService) RequestUpload(ctx context.Context, caller Principal, req UploadRequest) (*UploadGrant, error) {
	if req.SizeBytes <= 0 || req.SizeBytes > s.config.MaxFileSizeBytes {
		return nil, common.NewValidationError("size_bytes",
			fmt.Sprintf("must be between 1 and %d", s.config.MaxFileSizeBytes))
	}
	if !s.contentTypeAllowed(req.ContentType) {
		return nil, common.NewValidationError("content_type", fmt.Sprintf("%q is not allowed", req.ContentType))
	}

	if caller.TenantID != nil {
		if err := s.precheckQuota(ctx, *caller.TenantID, req.SizeBytes); err != nil {
			return nil, err
		}
	}

	now := s.now()
	expiresAt := now.Add(s.config.ReservationWindow)
	objectKey := s.buildObjectKey(caller, req)

	upload := &models.Upload{
		ID:          uuid.NewString(),
		ObjectKey:   objectKey,
		Bucket:      s.config.S3Bucket,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		Status:      models.StatusPending,
		FolderID:    req.FolderID,
		OwnerID:     caller.UserID,
		TenantID:    caller.TenantID,
		ExpiresAt:   &expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	uploadRepo := s.repomanager.Uploads(s.db)
	if err := uploadRepo.Create(ctx, upload); err != nil {
		return nil, fmt.Errorf("error creating upload record: %w", err)
	}

	cacheControl := ""
	if req.Public {
		cacheControl = publicCacheControl
	}

	// The credential lifetime equals the reservation window so it cannot
	// outlive the record's cleanup eligibility.
	uploadURL, err := s.store.PresignPut(ctx, objectKey, req.ContentType, cacheControl, s.config.ReservationWindow)
	if err != nil {
		// The pending row stays behind and self-expires; the sweeper
		// reclaims it.
		s.logger.Error(ctx, "presign failed after reservation", "object_key", objectKey, "error", err.Error())
		return nil, &common.ExternalStoreError{Op: "presign", Key: objectKey, Err: err}
	}

	grant := &UploadGrant{
		RecordID:  upload.ID,
		UploadURL: uploadURL,
		ObjectKey: objectKey,
	}
	if req.Public {
		grant.PublicURL = s.publicURL(objectKey)
	}

	s.logger.Info(ctx, "upload reserved", "record_id", upload.ID, "object_key", objectKey, "size_bytes", req.SizeBytes)
	return grant, nil
}

// precheckQuota rejects a reservation that would obviously breach the limit,
// before any record or credential is created.
func (s *UploadService) precheckQuota(ctx context.Context, tenantID string, sizeBytes int64) error {
	quotaRepo := s.repomanager.Quotas(s.db)

	usedBytes := int64(0)
	limitBytes := s.config.DefaultQuotaBytes

	q, err := quotaRepo.Get(ctx, tenantID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("error reading quota: %w", err)
	}
	if q != nil {
		usedBytes = q.UsedBytes
		limitBytes = q.LimitBytes
	}

	if usedBytes+sizeBytes > limitBytes {
		return &common.QuotaExceededError{
			TenantID:       tenantID,
			UsedBytes:      usedBytes,
			LimitBytes:     limitBytes,
			RequestedBytes: sizeBytes,
		}
	}
	return nil
}

func (s *UploadService) contentTypeAllowed(contentType string) bool {
	for _, allowed := range s.config.AllowedContentTypes {
		if contentType == allowed {
			return true
		}
	}
	return false
}

// buildObjectKey derives a globally-unique key namespaced by tenant (or
// owner, for personal uploads) and visibility.
func (s *UploadService) buildObjectKey(caller Principal, req UploadRequest) string {
	visibility := models.VisibilityPrivate
	if req.Public {
		visibility = models.VisibilityPublic
	}

	scope := fmt.Sprintf("users/%s", caller.UserID)
	if caller.TenantID != nil {
		scope = fmt.Sprintf("tenants/%s", *caller.TenantID)
	}

	return fmt.Sprintf("%s/%s/%s-%s", scope, visibility, uuid.NewString(), SanitizeFileName(req.FileName))
}

const maxFileNameLength = 100

// SanitizeFileName strips path separators, restricts the name to a safe
// character set, and caps its length before it is embedded in an object key.
func SanitizeFileName(name string) string {
	// keep only the last path element, for both separator conventions
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	safe := b.String()
	safe = strings.Trim(safe, ".")
	if len(safe) > maxFileNameLength {
		safe = safe[len(safe)-maxFileNameLength:]
	}
	if safe == "" {
		safe = "file"
	}
	return safe
}

// normalizeObjectKey accepts a bare key, a full URL, or a public URL and
// reduces it to the bare object key.
func (s *UploadService) normalizeObjectKey(raw string) string {
	key := strings.TrimSpace(raw)

	if u, err := url.Parse(key); err == nil && u.Scheme != "" {
		key = strings.TrimPrefix(u.Path, "/")
		// path-style URLs carry the bucket as the first path element
		key = strings.TrimPrefix(key, s.config.S3Bucket+"/")
	}

	return key
}

func (s *UploadService) publicURL(objectKey string) string {
	base := strings.TrimSuffix(s.config.PublicBaseURL, "/")
	return base + "/" + objectKey
}

// DownloadURL issues a presigned GET for a committed upload, applying the
// same authorization rule as deletion.
func (s *UploadService) DownloadURL(ctx context.Context, caller Principal, rawKey string) (string, error) {
	key := s.normalizeObjectKey(rawKey)

	uploadRepo := s.repomanager.Uploads(s.db)
	upload, err := uploadRepo.GetByObjectKey(ctx, key)
	if err != nil {
		return "", err
	}
	if !canAccess(caller, upload) {
		return "", common.ErrForbidden
	}
	if upload.Status != models.StatusCommitted {
		return "", common.ErrNotFound
	}

	return s.store.PresignGet(ctx, key, s.config.ReservationWindow)
}

// ListUploads returns committed uploads for the caller's active tenant, or
// the caller's personal uploads when no tenant is active.
func (s *UploadService) ListUploads(ctx context.Context, caller Principal, limit int) ([]*models.Upload, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	uploadRepo := s.repomanager.Uploads(s.db)
	return uploadRepo.SelectCommitted(ctx, caller.TenantID, caller.UserID, limit)
}

// canAccess reports whether the caller may act on the record: the record's
// tenant matches the caller's active tenant, or the record is personal and
// owned by the caller.
func canAccess(caller Principal, upload *models.Upload) bool {
	if upload.TenantID != nil {
		return caller.TenantID != nil && *caller.TenantID == *upload.TenantID
	}
	return upload.OwnerID == caller.UserID
}
