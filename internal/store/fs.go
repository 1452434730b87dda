package store

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// DefaultBlobBaseURL is the path the server mounts local blobs under.
const DefaultBlobBaseURL = "/blobs"

// FSBlobs stores blobs as files under a root directory.
type FSBlobs struct {
	root    string
	baseURL string
}

// NewFSBlobs creates the root directory if needed. baseURL prefixes returned
// URLs and defaults to DefaultBlobBaseURL.
func NewFSBlobs(root, baseURL string) (*FSBlobs, error) {
	if baseURL == "" {
		baseURL = DefaultBlobBaseURL
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FSBlobs{root: root, baseURL: baseURL}, nil
}

func (b *FSBlobs) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	path := filepath.Join(b.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	// Write to a temp file then rename so readers never see a partial blob
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return publicURL(b.baseURL, key), nil
}

func (b *FSBlobs) Get(_ context.Context, key string) (*Blob, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(b.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &Blob{Data: data, ContentType: contentType}, nil
}

var _ Blobs = (*FSBlobs)(nil)
