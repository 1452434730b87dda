// Package illustrate turns page prompts into stored illustrations.
//
// Each page is submitted to the image provider and polled independently.
// A page that fails for any reason gets the placeholder image, so the
// result always has one illustration per prompt, numbered 1..N.
package illustrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/picturebook/internal/fetch"
	"github.com/jackzampolin/picturebook/internal/providers"
	"github.com/jackzampolin/picturebook/internal/store"
)

// Defaults for generation requests and polling.
const (
	DefaultPlaceholderURL = "/static/placeholder-illustration.png"
	DefaultPollInterval   = 10 * time.Second
	DefaultPollTimeout    = 5 * time.Minute
	DefaultSize           = 1024
	DefaultContrast       = 3.5

	blobPutAttempts = 3
)

// SafePrompt replaces a prompt the provider's moderation rejected.
const SafePrompt = "A cheerful children's picture book illustration of friendly animals playing together in a sunny meadow with flowers and a rainbow, soft watercolor colors, gentle and safe for young children."

var (
	// ErrJobFailed is reported when the provider marks a job FAILED.
	ErrJobFailed = errors.New("image job failed")

	// ErrPollTimeout is reported when a job is not complete before the poll deadline.
	ErrPollTimeout = errors.New("image job did not complete before deadline")
)

// Illustration is the outcome for one page.
type Illustration struct {
	PageNumber  int    `json:"page_number"`
	ImageURL    string `json:"image_url"`
	Prompt      string `json:"prompt"`
	Placeholder bool   `json:"placeholder"`
}

// Config configures a Generator.
type Config struct {
	Provider providers.ImageProvider
	Blobs    store.Blobs
	Fetcher  *fetch.Fetcher // Downloads completed images

	PlaceholderURL string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	Width          int
	Height         int
	Contrast       float64

	// MaxConcurrency bounds in-flight pages; 0 means every page at once.
	MaxConcurrency int

	Logger *slog.Logger
}

// Generator produces illustrations for a narrative's pages.
type Generator struct {
	provider       providers.ImageProvider
	blobs          store.Blobs
	fetcher        *fetch.Fetcher
	placeholderURL string
	pollInterval   time.Duration
	pollTimeout    time.Duration
	width          int
	height         int
	contrast       float64
	maxConcurrency int
	logger         *slog.Logger
}

// NewGenerator creates a Generator, filling unset fields with defaults.
func NewGenerator(cfg Config) *Generator {
	if cfg.PlaceholderURL == "" {
		cfg.PlaceholderURL = DefaultPlaceholderURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultSize
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultSize
	}
	if cfg.Contrast <= 0 {
		cfg.Contrast = DefaultContrast
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetch.New(fetch.Config{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator{
		provider:       cfg.Provider,
		blobs:          cfg.Blobs,
		fetcher:        cfg.Fetcher,
		placeholderURL: cfg.PlaceholderURL,
		pollInterval:   cfg.PollInterval,
		pollTimeout:    cfg.PollTimeout,
		width:          cfg.Width,
		height:         cfg.Height,
		contrast:       cfg.Contrast,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         cfg.Logger,
	}
}

// GenerateAll illustrates every prompt concurrently and returns one
// Illustration per prompt in prompt order. It never fails: pages that cannot
// be illustrated record the placeholder image.
func (g *Generator) GenerateAll(ctx context.Context, narrativeID string, prompts []string) []Illustration {
	results := make([]Illustration, len(prompts))

	var eg errgroup.Group
	if g.maxConcurrency > 0 {
		eg.SetLimit(g.maxConcurrency)
	}
	for i, prompt := range prompts {
		eg.Go(func() error {
			results[i] = g.page(ctx, narrativeID, i+1, prompt)
			return nil
		})
	}
	_ = eg.Wait()

	placeholders := 0
	for _, r := range results {
		if r.Placeholder {
			placeholders++
		}
	}
	g.logger.Info("illustrations settled",
		"narrative_id", narrativeID,
		"pages", len(results),
		"placeholders", placeholders)
	return results
}

func (g *Generator) page(ctx context.Context, narrativeID string, pageNumber int, prompt string) Illustration {
	logger := g.logger.With("narrative_id", narrativeID, "page", pageNumber)
	start := time.Now()

	url, err := g.illustrate(ctx, logger, narrativeID, pageNumber, prompt)
	if err != nil {
		logger.Warn("illustration failed, using placeholder", "error", err)
		return Illustration{
			PageNumber:  pageNumber,
			ImageURL:    g.placeholderURL,
			Prompt:      prompt,
			Placeholder: true,
		}
	}

	logger.Info("illustration stored", "url", url, "duration", time.Since(start).Round(time.Millisecond))
	return Illustration{
		PageNumber: pageNumber,
		ImageURL:   url,
		Prompt:     prompt,
	}
}

func (g *Generator) illustrate(ctx context.Context, logger *slog.Logger, narrativeID string, pageNumber int, prompt string) (string, error) {
	if g.provider == nil {
		return "", providers.ErrNotConfigured
	}
	if g.blobs == nil {
		return "", errors.New("no blob store configured")
	}

	job, err := g.submit(ctx, prompt)
	if errors.Is(err, providers.ErrContentModerated) {
		logger.Warn("prompt rejected by provider moderation, retrying with safe prompt")
		job, err = g.submit(ctx, SafePrompt)
	}
	if err != nil {
		return "", fmt.Errorf("submit failed: %w", err)
	}

	imageURL, err := g.await(ctx, logger, job.ID)
	if err != nil {
		return "", err
	}

	obj, err := g.fetcher.Get(ctx, imageURL)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}

	key := fmt.Sprintf("%s/page-%d-%s%s", narrativeID, pageNumber, uuid.NewString()[:8], extensionFor(obj.ContentType))
	url, err := retry.DoWithData(
		func() (string, error) {
			return g.blobs.Put(ctx, key, obj.Data, obj.ContentType)
		},
		retry.Context(ctx),
		retry.Attempts(blobPutAttempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", fmt.Errorf("blob put failed: %w", err)
	}
	return url, nil
}

func (g *Generator) submit(ctx context.Context, prompt string) (*providers.ImageJob, error) {
	job, err := g.provider.Submit(ctx, &providers.ImageRequest{
		Prompt:   prompt,
		Width:    g.width,
		Height:   g.height,
		Contrast: g.contrast,
		Enhance:  true,
	})
	if err != nil {
		return nil, err
	}
	if job == nil || job.ID == "" {
		return nil, providers.ErrMissingJobID
	}
	return job, nil
}

// await polls a job at a fixed interval until it completes, fails, or the
// wall-clock deadline passes. Status errors are treated as still pending.
func (g *Generator) await(ctx context.Context, logger *slog.Logger, jobID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: job %s after %d polls", ErrPollTimeout, jobID, polls-1)
			}
			return "", ctx.Err()
		case <-ticker.C:
		}

		job, err := g.provider.Status(ctx, jobID)
		if err != nil {
			logger.Debug("status poll failed", "job_id", jobID, "poll", polls, "error", err)
			continue
		}
		switch {
		case job.State == providers.JobComplete && job.ImageURL != "":
			return job.ImageURL, nil
		case job.State == providers.JobFailed:
			return "", fmt.Errorf("%w: %s", ErrJobFailed, jobID)
		default:
			logger.Debug("image job pending", "job_id", jobID, "poll", polls, "state", job.State)
		}
	}
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
