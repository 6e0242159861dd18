package storage

import (
	"context"
	"io"
)

// BlobStorage is the contract for tarball storage. Implementations may be
// slow or transiently unavailable; Delete must be idempotent, so removing a
// key that does not exist is not an error.
type BlobStorage interface {
	// Store saves content at the given key
	Store(ctx context.Context, key string, content io.Reader, contentType string) error

	// Retrieve gets content from the given key
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes content at the given key. Missing keys are a no-op.
	Delete(ctx context.Context, key string) error

	// Exists checks if content exists at the given key
	Exists(ctx context.Context, key string) (bool, error)
}
