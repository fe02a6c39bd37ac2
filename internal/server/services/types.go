// Package services implements the upload lifecycle and storage quota
// operations: reservation with presigned write credentials, quota-safe
// commit, authorized deletion, orphan cleanup, and usage reporting.
package services

// Principal is the already-authenticated caller identity handed in by the
// host. TenantID is the caller's active organization; nil for personal
// context.
type Principal struct {
	UserID   string
	TenantID *string
}

// UploadRequest is the input to RequestUpload.
type UploadRequest struct {
	FileName    string
	ContentType string
	SizeBytes   int64
	Public      bool
	FolderID    *string
}

// UploadGrant is the reservation result: the record id, the presigned write
// credential, the object key, and (for public uploads) the public URL.
type UploadGrant struct {
	RecordID  string `json:"record_id"`
	UploadURL string `json:"upload_url"`
	ObjectKey string `json:"object_key"`
	PublicURL string `json:"public_url,omitempty"`
}

// KeyError is a per-key failure inside a batch deletion.
type KeyError struct {
	ObjectKey string `json:"object_key"`
	Message   string `json:"message"`
}

// BatchDeleteResult aggregates per-key outcomes of a batch deletion. A batch
// never fails wholesale; failures are reported here.
type BatchDeleteResult struct {
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Errors    []KeyError `json:"errors,omitempty"`
}

// CleanupResult reports one cleanup pass for observability.
type CleanupResult struct {
	Reclaimed       int      `json:"reclaimed"`
	Quarantined     int      `json:"quarantined"`
	QuarantinedKeys []string `json:"quarantined_keys,omitempty"`
}
