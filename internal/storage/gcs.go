package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// ClientFactory abstracts GCS client construction so tests can inject a
// client pointed at a fake server.
type ClientFactory interface {
	NewClient(ctx context.Context) (*storage.Client, error)
}

// ADCFactory builds clients with Application Default Credentials.
type ADCFactory struct{}

// NewClient creates a GCS client using ADC.
func (ADCFactory) NewClient(ctx context.Context) (*storage.Client, error) {
	return storage.NewClient(ctx)
}

// GCSProvider implements Provider on a Google Cloud Storage bucket.
type GCSProvider struct {
	client *storage.Client
	bucket string
	log    *zap.Logger
}

// NewGCSProvider initializes a GCS client and verifies the bucket is
// reachable, so misconfiguration fails at startup rather than on the
// first upload.
func NewGCSProvider(ctx context.Context, bucket string, factory ClientFactory, log *zap.Logger) (*GCSProvider, error) {
	if factory == nil {
		factory = ADCFactory{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	client, err := factory.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn("failed to close GCS client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket %q attributes: %w", bucket, err)
	}

	return &GCSProvider{client: client, bucket: bucket, log: log}, nil
}

// Put uploads the blob and returns its public object URL. Writing the
// same key twice overwrites the object.
func (g *GCSProvider) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	wc := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			g.log.Warn("failed to close GCS writer after write failure", zap.Error(closeErr))
		}
		return "", fmt.Errorf("failed to write GCS object %q: %w", key, err)
	}
	// Close finalizes the upload; the object does not exist until it
	// returns.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize GCS object %q: %w", key, err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, key), nil
}

// Close closes the underlying client.
func (g *GCSProvider) Close() error {
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("failed to close GCS client: %w", err)
	}
	return nil
}
