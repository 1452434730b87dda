package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/jackzampolin/picturebook/internal/fetch"
)

const (
	GeminiName         = "gemini"
	geminiDefaultModel = "gemini-2.5-flash"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
	RPS          float64
	BaseURL      string // Optional (tests)

	// Photos downloads images given only by URL. The Gemini API reads file
	// URIs from its own file store, not arbitrary web URLs.
	Photos *fetch.Fetcher
}

// GeminiClient implements LLMClient using the Google GenAI SDK.
// The SDK client is created lazily on first use since construction needs a context.
type GeminiClient struct {
	cfg     GeminiConfig
	limiter *RateLimiter

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = geminiDefaultModel
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1.0
	}
	if cfg.Photos == nil {
		cfg.Photos = fetch.New(fetch.Config{Cache: true})
	}
	return &GeminiClient{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RPS),
	}
}

// Name returns the provider identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	cc := &genai.ClientConfig{
		APIKey:  c.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	c.client = client
	return client, nil
}

// Chat sends the conversation to Gemini. System messages become the system
// instruction and all other messages are sent as user content.
func (c *GeminiClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	model := req.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  GeminiName,
		Attempts:  1,
	}

	client, err := c.sdk(ctx)
	if err != nil {
		return result, err
	}

	config := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		if m.Role == "system" {
			config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
			continue
		}
		parts := []*genai.Part{genai.NewPartFromText(m.Content)}
		for _, img := range m.Images {
			part, err := c.imagePart(ctx, img)
			if err != nil {
				result.ErrorType = "image_fetch"
				result.ErrorMessage = err.Error()
				return result, err
			}
			parts = append(parts, part)
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return result, err
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	result.ExecutionTime = time.Since(start)
	if err != nil {
		result.ErrorType = "api_error"
		result.ErrorMessage = err.Error()
		return result, fmt.Errorf("gemini generate content failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		result.ErrorType = "empty_response"
		result.ErrorMessage = "no content in response"
		return result, ErrEmptyCompletion
	}

	result.Success = true
	result.Content = text
	result.ModelUsed = model
	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		result.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return result, nil
}

// imagePart sends image bytes inline. URL-only images are downloaded first
// unless they already point at Gemini's file store or Cloud Storage.
func (c *GeminiClient) imagePart(ctx context.Context, img Image) (*genai.Part, error) {
	data, mime := img.Data, img.MIMEType
	if len(data) == 0 {
		if isGeminiFileURI(img.URL) {
			if mime == "" {
				mime = "image/jpeg"
			}
			return genai.NewPartFromURI(img.URL, mime), nil
		}
		obj, err := c.cfg.Photos.Get(ctx, img.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch image for gemini: %w", err)
		}
		data = obj.Data
		if mime == "" {
			mime = obj.ContentType
		}
	}
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	return genai.NewPartFromBytes(data, mime), nil
}

func isGeminiFileURI(uri string) bool {
	return strings.HasPrefix(uri, "gs://") ||
		strings.HasPrefix(uri, "https://generativelanguage.googleapis.com/")
}

var _ LLMClient = (*GeminiClient)(nil)
