package folders

import (
	"context"

	"github.com/blobvault/blobvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, folder *models.Folder) error
	GetByID(ctx context.Context, id string) (*models.Folder, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Folder, error)

	// Delete removes the folder; child folders cascade at the schema level
	// and contained uploads are re-filed to unfiled (folder_id NULL).
	Delete(ctx context.Context, id string) error
}
