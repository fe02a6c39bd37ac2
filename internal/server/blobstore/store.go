// Package blobstore defines the contract this service expects from the
// object storage backend and provides an S3 implementation.
package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by Delete when the object is already absent.
// Callers generally treat this as a soft success: the desired end state
// (object gone) is achieved.
var ErrObjectNotFound = errors.New("object not found")

// Store is the blob-store contract: time-limited write credentials scoped to
// a key and content type, deletion with a distinguishable not-found outcome,
// and read credentials for private objects.
type Store interface {
	// PresignPut returns a presigned PUT URL for exactly the given key and
	// content type, valid for the given duration. A non-empty cacheControl
	// is pinned into the signed request.
	PresignPut(ctx context.Context, key, contentType, cacheControl string, expires time.Duration) (string, error)

	// PresignGet returns a presigned GET URL for the given key.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)

	// Delete removes the object. Returns ErrObjectNotFound when the object
	// does not exist.
	Delete(ctx context.Context, key string) error
}
