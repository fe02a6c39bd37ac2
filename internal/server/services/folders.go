package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blobvault/blobvault/internal/common"
	"github.com/blobvault/blobvault/internal/logging"
	"github.com/blobvault/blobvault/internal/server/models"
	"github.com/blobvault/blobvault/internal/server/repositories/repomanager"
)

// FolderService manages tenant-scoped folder hierarchies. Folders organize
// committed uploads; deleting a folder cascades to its children and re-files
// contained uploads to the unfiled state, never destroying them.
type FolderService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger

	now func() time.Time
}

func NewFolderService(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger) *FolderService {
	return &FolderService{
		db:          db,
		repomanager: rm,
		logger:      logger.With("module", "folder_service"),
		now:         time.Now,
	}
}

const maxFolderNameLength = 120

// CreateFolder creates a folder under the caller's active tenant, optionally
// nested under a parent folder of the same tenant.
func (s *FolderService) CreateFolder(ctx context.Context, caller Principal, name string, parentID *string) (*models.Folder, error) {
	if caller.TenantID == nil {
		return nil, common.ErrForbidden
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.NewValidationError("name", "must not be empty")
	}
	if len(name) > maxFolderNameLength {
		return nil, common.NewValidationError("name", fmt.Sprintf("must not exceed %d characters", maxFolderNameLength))
	}

	folderRepo := s.repomanager.Folders(s.db)

	if parentID != nil {
		parent, err := folderRepo.GetByID(ctx, *parentID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, common.NewValidationError("parent_id", "parent folder does not exist")
			}
			return nil, err
		}
		if parent.TenantID != *caller.TenantID {
			return nil, common.ErrForbidden
		}
	}

	folder := &models.Folder{
		ID:        uuid.NewString(),
		Name:      name,
		ParentID:  parentID,
		TenantID:  *caller.TenantID,
		CreatedAt: s.now(),
	}

	if err := folderRepo.Create(ctx, folder); err != nil {
		return nil, fmt.Errorf("error creating folder: %w", err)
	}

	s.logger.Info(ctx, "folder created", "folder_id", folder.ID, "tenant_id", folder.TenantID)
	return folder, nil
}

// ListFolders returns all folders of the caller's active tenant.
func (s *FolderService) ListFolders(ctx context.Context, caller Principal) ([]*models.Folder, error) {
	if caller.TenantID == nil {
		return nil, common.ErrForbidden
	}
	return s.repomanager.Folders(s.db).ListByTenant(ctx, *caller.TenantID)
}

// DeleteFolder removes a folder of the caller's active tenant.
func (s *FolderService) DeleteFolder(ctx context.Context, caller Principal, id string) error {
	if caller.TenantID == nil {
		return common.ErrForbidden
	}

	folderRepo := s.repomanager.Folders(s.db)

	folder, err := folderRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if folder.TenantID != *caller.TenantID {
		return common.ErrForbidden
	}

	if err := folderRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info(ctx, "folder deleted", "folder_id", id, "tenant_id", folder.TenantID)
	return nil
}
