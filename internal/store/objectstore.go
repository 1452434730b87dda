package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

const contentTypeMeta = "content-type"

// ObjectBlobs stores blobs in a NATS JetStream object store bucket.
type ObjectBlobs struct {
	obj     nats.ObjectStore
	baseURL string
}

// NewObjectBlobs wraps an object store. baseURL defaults to DefaultBlobBaseURL.
func NewObjectBlobs(obj nats.ObjectStore, baseURL string) *ObjectBlobs {
	if baseURL == "" {
		baseURL = DefaultBlobBaseURL
	}
	return &ObjectBlobs{obj: obj, baseURL: baseURL}
}

func (b *ObjectBlobs) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	meta := &nats.ObjectMeta{
		Name:     key,
		Metadata: map[string]string{contentTypeMeta: contentType},
	}
	if _, err := b.obj.Put(meta, bytes.NewReader(data), nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return publicURL(b.baseURL, key), nil
}

func (b *ObjectBlobs) Get(ctx context.Context, key string) (*Blob, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	info, err := b.obj.GetInfo(key, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	data, err := b.obj.GetBytes(key, nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return &Blob{Data: data, ContentType: info.Metadata[contentTypeMeta]}, nil
}

var _ Blobs = (*ObjectBlobs)(nil)
