package models

import "time"

// Folder is a hierarchical container for uploads, scoped to a tenant.
// Deleting a folder cascades to child folders; contained uploads become
// unfiled rather than being deleted.
type Folder struct {
	ID       string
	Name     string
	ParentID *string
	TenantID string

	CreatedAt time.Time
}
