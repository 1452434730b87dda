package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSBlobs stores blobs in a Google Cloud Storage bucket.
type GCSBlobs struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCSBlobs creates a GCS-backed blob store. When client is nil one is
// created from application default credentials. baseURL defaults to the
// bucket's public storage.googleapis.com address.
func NewGCSBlobs(ctx context.Context, client *storage.Client, bucket, baseURL string) (*GCSBlobs, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	if client == nil {
		c, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create gcs client: %w", err)
		}
		client = c
	}
	if baseURL == "" {
		baseURL = gcsPublicHost + "/" + bucket
	}
	return &GCSBlobs{client: client, bucket: bucket, baseURL: baseURL}, nil
}

func (b *GCSBlobs) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize gcs object %s: %w", key, err)
	}
	return publicURL(b.baseURL, key), nil
}

func (b *GCSBlobs) Get(ctx context.Context, key string) (*Blob, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open gcs object %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gcs object %s: %w", key, err)
	}
	return &Blob{Data: data, ContentType: r.Attrs.ContentType}, nil
}

// Close releases the underlying client.
func (b *GCSBlobs) Close() error {
	return b.client.Close()
}

var _ Blobs = (*GCSBlobs)(nil)
