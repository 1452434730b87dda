package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	LeonardoName    = "leonardo"
	LeonardoBaseURL = "https://cloud.leonardo.ai/api/rest/v1"
)

// LeonardoConfig holds configuration for the Leonardo image client.
type LeonardoConfig struct {
	APIKey  string
	BaseURL string
	ModelID string // Optional; provider default when empty
	RPS     float64
	Timeout time.Duration
}

// LeonardoClient implements ImageProvider against the Leonardo generations API.
type LeonardoClient struct {
	apiKey  string
	baseURL string
	modelID string
	client  *http.Client
	limiter *RateLimiter
}

// NewLeonardoClient creates a new Leonardo image client.
func NewLeonardoClient(cfg LeonardoConfig) *LeonardoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = LeonardoBaseURL
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 2.0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &LeonardoClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		modelID: cfg.ModelID,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: NewRateLimiter(cfg.RPS),
	}
}

// Name returns the provider identifier.
func (c *LeonardoClient) Name() string {
	return LeonardoName
}

type leonardoGenerationRequest struct {
	Prompt        string  `json:"prompt"`
	ModelID       string  `json:"modelId,omitempty"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	NumImages     int     `json:"num_images"`
	Contrast      float64 `json:"contrast,omitempty"`
	EnhancePrompt bool    `json:"enhancePrompt"`
}

type leonardoGenerationResponse struct {
	SDGenerationJob *struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
}

type leonardoStatusResponse struct {
	GenerationsByPK *struct {
		Status          string `json:"status"`
		GeneratedImages []struct {
			URL string `json:"url"`
		} `json:"generated_images"`
	} `json:"generations_by_pk"`
}

// Submit starts a single-image generation job. Submissions are not retried:
// a moderation rejection returns ErrContentModerated and a success body
// without a generation id returns ErrMissingJobID.
func (c *LeonardoClient) Submit(ctx context.Context, req *ImageRequest) (*ImageJob, error) {
	body := leonardoGenerationRequest{
		Prompt:        req.Prompt,
		ModelID:       c.modelID,
		Width:         req.Width,
		Height:        req.Height,
		NumImages:     1,
		Contrast:      req.Contrast,
		EnhancePrompt: req.Enhance,
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/generations", body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		if status >= 400 && status < 500 && strings.Contains(strings.ToLower(string(respBody)), "moderation") {
			return nil, fmt.Errorf("%w: %s", ErrContentModerated, truncate(string(respBody), 200))
		}
		return nil, fmt.Errorf("leonardo submit error (status %d): %s", status, truncate(string(respBody), 200))
	}

	var gen leonardoGenerationResponse
	if err := json.Unmarshal(respBody, &gen); err != nil {
		return nil, fmt.Errorf("failed to unmarshal generation response: %w", err)
	}
	if gen.SDGenerationJob == nil || gen.SDGenerationJob.GenerationID == "" {
		return nil, ErrMissingJobID
	}

	return &ImageJob{ID: gen.SDGenerationJob.GenerationID, State: JobPending}, nil
}

// Status reports the state of a generation job. Unknown provider states
// are reported as pending.
func (c *LeonardoClient) Status(ctx context.Context, jobID string) (*ImageJob, error) {
	status, respBody, err := c.do(ctx, http.MethodGet, "/generations/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("leonardo status error (status %d): %s", status, truncate(string(respBody), 200))
	}

	var st leonardoStatusResponse
	if err := json.Unmarshal(respBody, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status response: %w", err)
	}

	job := &ImageJob{ID: jobID, State: JobPending}
	if st.GenerationsByPK == nil {
		return job, nil
	}
	switch JobState(st.GenerationsByPK.Status) {
	case JobComplete:
		job.State = JobComplete
		if len(st.GenerationsByPK.GeneratedImages) > 0 {
			job.ImageURL = st.GenerationsByPK.GeneratedImages[0].URL
		}
	case JobFailed:
		job.State = JobFailed
	}
	return job, nil
}

func (c *LeonardoClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.limiter.Record429(retryAfter)
		return resp.StatusCode, respBody, &RateLimitError{
			Message:    "Leonardo rate limited",
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
		}
	}
	return resp.StatusCode, respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ ImageProvider = (*LeonardoClient)(nil)
