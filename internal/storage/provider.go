// Package storage persists crawled images in a blob store and hands back
// stable URLs for the OCR service and the review UI.
package storage

import "context"

// Provider writes image blobs under a key and returns a public URL.
// Writes are idempotent by key: the store stage retries whole messages,
// so re-uploading the same key must overwrite, not duplicate.
type Provider interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Close() error
}
