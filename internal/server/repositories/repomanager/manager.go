package repomanager

import (
	"context"
	"database/sql"

	"github.com/blobvault/blobvault/internal/dbx"
	"github.com/blobvault/blobvault/internal/server/repositories/folders"
	"github.com/blobvault/blobvault/internal/server/repositories/quotas"
	"github.com/blobvault/blobvault/internal/server/repositories/uploads"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Uploads(db dbx.DBTX) uploads.Repository
	Quotas(db dbx.DBTX) quotas.Repository
	Folders(db dbx.DBTX) folders.Repository
}
