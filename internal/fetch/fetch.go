// Package fetch downloads remote images with retries and an optional
// in-memory cache keyed by URL.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/patrickmn/go-cache"
)

const (
	defaultAttempts   = 3
	defaultRetryDelay = 500 * time.Millisecond
	defaultMaxBytes   = 20 << 20

	cacheExpiration = 30 * time.Minute
	cacheCleanup    = time.Hour
)

// Object is a downloaded payload and its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// Config configures a Fetcher.
type Config struct {
	HTTPClient *http.Client
	Attempts   uint          // Total attempts per URL (default: 3)
	RetryDelay time.Duration // Base delay between attempts (default: 500ms)
	MaxBytes   int64         // Largest accepted body (default: 20 MiB)
	Cache      bool          // Cache successful downloads by URL
}

// Fetcher downloads URLs. Client errors (4xx) are not retried.
type Fetcher struct {
	client   *http.Client
	attempts uint
	delay    time.Duration
	maxBytes int64
	cache    *cache.Cache
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	f := &Fetcher{
		client:   cfg.HTTPClient,
		attempts: cfg.Attempts,
		delay:    cfg.RetryDelay,
		maxBytes: cfg.MaxBytes,
	}
	if cfg.Cache {
		f.cache = cache.New(cacheExpiration, cacheCleanup)
	}
	return f
}

// Get downloads url, retrying transient failures.
func (f *Fetcher) Get(ctx context.Context, url string) (*Object, error) {
	if f.cache != nil {
		if v, ok := f.cache.Get(url); ok {
			return v.(*Object), nil
		}
	}

	obj, err := retry.DoWithData(
		func() (*Object, error) {
			return f.get(ctx, url)
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	if f.cache != nil {
		f.cache.Set(url, obj, cache.DefaultExpiration)
	}
	return obj, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, retry.Unrecoverable(fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, retry.Unrecoverable(fmt.Errorf("body exceeds %d bytes", f.maxBytes))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &Object{Data: data, ContentType: contentType}, nil
}
