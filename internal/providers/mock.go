package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	MockClientName = "mock"
	MockImageName  = "mock-image"
)

// MockClient is an LLMClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	lastRequest  *ChatRequest
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.lastRequest = req
	c.mu.Unlock()

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	if c.ShouldFail {
		result.ErrorType = "mock_failure"
		result.ErrorMessage = "mock client configured to fail"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("mock client configured to fail")
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		result.ErrorType = "mock_failure"
		result.ErrorMessage = fmt.Sprintf("mock client failed after %d requests", c.FailAfter)
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("mock client failed after %d requests", c.FailAfter)
	}

	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		result.ErrorType = "context_cancelled"
		result.ErrorMessage = ctx.Err().Error()
		result.ExecutionTime = time.Since(start)
		return result, ctx.Err()
	}

	result.Success = true
	result.Content = c.ResponseText
	result.ExecutionTime = time.Since(start)

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(m.Content) / 4 // Rough estimate
	}
	result.PromptTokens = promptTokens
	result.CompletionTokens = len(c.ResponseText) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	return result, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// LastRequest returns the most recent request, or nil.
func (c *MockClient) LastRequest() *ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRequest
}

var _ LLMClient = (*MockClient)(nil)

// MockImageProvider is an ImageProvider for testing. Behavior is driven by
// callbacks so tests can script moderation rejections, failures and slow jobs.
type MockImageProvider struct {
	// SubmitFunc decides the outcome of a submission. Defaults to accepting
	// every prompt with a sequential job id.
	SubmitFunc func(req *ImageRequest) (*ImageJob, error)

	// StatusFunc decides the state of a job on each poll. Defaults to
	// completing immediately with ImageURL.
	StatusFunc func(jobID string, poll int) (*ImageJob, error)

	// ImageURL is returned for completed jobs by the default StatusFunc.
	ImageURL string

	mu       sync.Mutex
	nextID   int
	prompts  []string
	requests []ImageRequest
	polls    map[string]int
}

// NewMockImageProvider creates a mock that completes every job on the first poll.
func NewMockImageProvider(imageURL string) *MockImageProvider {
	return &MockImageProvider{
		ImageURL: imageURL,
		polls:    make(map[string]int),
	}
}

// Name returns the provider identifier.
func (p *MockImageProvider) Name() string {
	return MockImageName
}

// Submit records the request and applies SubmitFunc.
func (p *MockImageProvider) Submit(ctx context.Context, req *ImageRequest) (*ImageJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.prompts = append(p.prompts, req.Prompt)
	p.requests = append(p.requests, *req)
	p.nextID++
	id := fmt.Sprintf("job-%d", p.nextID)
	fn := p.SubmitFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &ImageJob{ID: id, State: JobPending}, nil
}

// Status applies StatusFunc with the 1-based poll count for the job.
func (p *MockImageProvider) Status(ctx context.Context, jobID string) (*ImageJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.polls == nil {
		p.polls = make(map[string]int)
	}
	p.polls[jobID]++
	poll := p.polls[jobID]
	fn := p.StatusFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(jobID, poll)
	}
	return &ImageJob{ID: jobID, State: JobComplete, ImageURL: p.ImageURL}, nil
}

// Prompts returns every prompt submitted, in submission order.
func (p *MockImageProvider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

// Requests returns every submitted request, in submission order.
func (p *MockImageProvider) Requests() []ImageRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ImageRequest(nil), p.requests...)
}

var _ ImageProvider = (*MockImageProvider)(nil)
