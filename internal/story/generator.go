// Package story turns a set of photos and customization choices into a
// paginated narrative.
//
// Generate never fails because of the text provider: a missing provider,
// a provider error or an unusable completion all resolve to a pre-written
// story chosen by theme.
package story

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackzampolin/picturebook/internal/fetch"
	"github.com/jackzampolin/picturebook/internal/providers"
)

// ErrNoImages is returned when Generate is called without photos.
var ErrNoImages = errors.New("at least one image url is required")

const (
	maxTitleLen        = 100
	defaultMaxTokens   = 2000
	defaultTemperature = 0.8
)

// Narrative is a titled story whose body holds marker-delimited pages.
type Narrative struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Fallback bool   `json:"fallback"`
}

// Config configures a Generator.
type Config struct {
	// Client is the text provider. Nil means every call uses the fallback.
	Client providers.LLMClient

	// Photos downloads photos so they can be sent inline. When nil, or when a
	// download fails, the photo is passed to the provider by URL.
	Photos *fetch.Fetcher

	Model       string
	MaxTokens   int
	Temperature float64
	Logger      *slog.Logger
}

// Generator writes stories.
type Generator struct {
	client      providers.LLMClient
	photos      *fetch.Fetcher
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(cfg Config) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator{
		client:      cfg.Client,
		photos:      cfg.Photos,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Generate writes a narrative from imageURLs. The only error is ErrNoImages;
// every provider failure resolves to the fallback story for the theme.
func (g *Generator) Generate(ctx context.Context, imageURLs []string, custom *Customization) (*Narrative, error) {
	if len(imageURLs) == 0 {
		return nil, ErrNoImages
	}
	c := custom.WithDefaults()

	if g.client == nil {
		g.logger.Warn("no text provider configured, using fallback story", "theme", c.Theme)
		return Fallback(c.Theme), nil
	}

	userPrompt, err := UserPrompt(c, len(imageURLs))
	if err != nil {
		g.logger.Error("story prompt failed, using fallback story", "theme", c.Theme, "error", err)
		return Fallback(c.Theme), nil
	}

	req := &providers.ChatRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Messages: []providers.Message{
			{Role: "system", Content: SystemPrompt()},
			{Role: "user", Content: userPrompt, Images: g.images(ctx, imageURLs)},
		},
	}

	result, err := g.client.Chat(ctx, req)
	if err != nil {
		if errors.Is(err, providers.ErrNotConfigured) {
			g.logger.Warn("text provider not configured, using fallback story", "theme", c.Theme)
		} else {
			g.logger.Warn("story generation failed, using fallback story", "theme", c.Theme, "error", err)
		}
		return Fallback(c.Theme), nil
	}

	title, body, ok := parseCompletion(result.Content)
	if !ok {
		g.logger.Warn("story completion malformed, using fallback story",
			"theme", c.Theme,
			"provider", result.Provider,
			"content_length", len(result.Content))
		return Fallback(c.Theme), nil
	}

	g.logger.Info("story generated",
		"title", title,
		"provider", result.Provider,
		"model", result.ModelUsed,
		"tokens", result.TotalTokens,
		"duration", result.ExecutionTime)
	return &Narrative{Title: title, Body: body}, nil
}

func (g *Generator) images(ctx context.Context, urls []string) []providers.Image {
	images := make([]providers.Image, 0, len(urls))
	for _, u := range urls {
		img := providers.Image{URL: u}
		if g.photos != nil {
			obj, err := g.photos.Get(ctx, u)
			if err != nil {
				g.logger.Debug("photo download failed, sending by url", "url", u, "error", err)
			} else {
				img.Data = obj.Data
				img.MIMEType = obj.ContentType
			}
		}
		images = append(images, img)
	}
	return images
}

// parseCompletion takes the first non-blank line as the title, with any
// leading heading markup removed and capped at 100 characters. The
// remaining text is the body. It reports false when either part is empty.
func parseCompletion(content string) (title, body string, ok bool) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		title = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		title = strings.Trim(title, "*")
		title = truncateRunes(strings.TrimSpace(title), maxTitleLen)
		body = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		break
	}
	if title == "" || body == "" {
		return "", "", false
	}
	return title, body, true
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
