package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by provider implementations.
var (
	// ErrNotConfigured is returned when a named provider has no credential or is disabled.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrContentModerated is returned when an image provider rejects a prompt
	// with its own content moderation filter.
	ErrContentModerated = errors.New("prompt rejected by provider content moderation")

	// ErrMissingJobID is returned when a submission succeeds without a job identifier.
	ErrMissingJobID = errors.New("provider response missing job id")

	// ErrEmptyCompletion is returned when a text provider answers without content.
	ErrEmptyCompletion = errors.New("provider returned empty completion")
)

// RateLimitError carries the provider's Retry-After hint for a 429 response.
type RateLimitError struct {
	Message    string
	StatusCode int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// LLMClient is the interface for multimodal text generation.
type LLMClient interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the client identifier (e.g., "openrouter").
	Name() string
}

// ImageProvider submits asynchronous image generation jobs.
// Submission and completion are separate calls; callers poll Status.
type ImageProvider interface {
	// Name returns the provider identifier (e.g., "leonardo").
	Name() string

	// Submit starts a generation job and returns its identifier.
	Submit(ctx context.Context, req *ImageRequest) (*ImageJob, error)

	// Status reports the current state of a job.
	Status(ctx context.Context, jobID string) (*ImageJob, error)
}

// Image is a photo attached to a chat message. Data takes precedence over URL
// when both are set.
type Image struct {
	URL      string
	Data     []byte
	MIMEType string
}

// Message represents a chat message.
type Message struct {
	Role    string  `json:"role"` // "system", "user", "assistant"
	Content string  `json:"content"`
	Images  []Image `json:"-"` // For vision models, in order
}

// ChatRequest is a request to an LLM.
type ChatRequest struct {
	// Required
	Messages []Message `json:"messages"`

	// Model selection (uses client default if empty)
	Model string `json:"model,omitempty"`

	// Generation parameters
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	// Request tracking
	RequestID string `json:"-"`
}

// ChatResult is the complete response from an LLM call.
type ChatResult struct {
	Content string `json:"content"`

	// Token counts
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	ExecutionTime time.Duration `json:"execution_time"`

	// Provider info
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	// Request tracking
	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`

	// Success/error
	Success      bool   `json:"success"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ImageRequest asks for a single square illustration.
type ImageRequest struct {
	Prompt   string  `json:"prompt"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Contrast float64 `json:"contrast"`
	Enhance  bool    `json:"enhance"`
}

// JobState is the provider-reported state of an image job.
type JobState string

const (
	JobPending  JobState = "PENDING"
	JobComplete JobState = "COMPLETE"
	JobFailed   JobState = "FAILED"
)

// ImageJob is an image generation job as reported by the provider.
type ImageJob struct {
	ID       string   `json:"id"`
	State    JobState `json:"state"`
	ImageURL string   `json:"image_url,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (j *ImageJob) Done() bool {
	return j.State == JobComplete || j.State == JobFailed
}
