// Package models defines server-side data models persisted in the database.
package models

import "time"

// UploadStatus tracks an upload record through its lifecycle. Transitions
// are forward-only: pending -> committed -> deleted, or pending ->
// cleanup_failed when the sweeper cannot reclaim an expired reservation.
type UploadStatus string

const (
	StatusPending       UploadStatus = "pending"
	StatusCommitted     UploadStatus = "committed"
	StatusDeleted       UploadStatus = "deleted"
	StatusCleanupFailed UploadStatus = "cleanup_failed"
)

// Visibility controls where in the bucket an object lives and whether a
// public URL is derivable for it.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Upload is one reserved-or-completed object in the blob store.
type Upload struct {
	// ID is the opaque record identifier, generated at reservation time.
	ID string
	// ObjectKey is the fully-qualified blob-store path. Immutable.
	ObjectKey string
	// Bucket is the logical storage bucket name.
	Bucket string

	ContentType string
	SizeBytes   int64

	Status UploadStatus

	// FolderID optionally files the upload under a folder. Nil means unfiled.
	FolderID *string

	// OwnerID is the uploading principal. TenantID is the owning
	// organization; nil for personal uploads, in which case OwnerID
	// governs authorization.
	OwnerID  string
	TenantID *string

	// ExpiresAt is the reservation deadline, set only while pending.
	ExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}
