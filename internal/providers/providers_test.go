package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMockClient(t *testing.T) {
	t.Run("chat", func(t *testing.T) {
		c := NewMockClient()
		c.ResponseText = "hello world"

		result, err := c.Chat(context.Background(), &ChatRequest{
			Model: "test-model",
			Messages: []Message{
				{Role: "user", Content: "test"},
			},
		})

		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if !result.Success {
			t.Errorf("Success = false, want true")
		}
		if result.Content != "hello world" {
			t.Errorf("Content = %q, want %q", result.Content, "hello world")
		}
		if c.RequestCount() != 1 {
			t.Errorf("RequestCount = %d, want 1", c.RequestCount())
		}
		if c.LastRequest().Model != "test-model" {
			t.Errorf("LastRequest().Model = %q", c.LastRequest().Model)
		}
	})

	t.Run("fail after", func(t *testing.T) {
		c := NewMockClient()
		c.FailAfter = 1

		req := &ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}}
		if _, err := c.Chat(context.Background(), req); err != nil {
			t.Fatalf("first call error = %v", err)
		}
		if _, err := c.Chat(context.Background(), req); err == nil {
			t.Error("second call should fail")
		}
	})
}

func TestMockImageProvider(t *testing.T) {
	p := NewMockImageProvider("https://img.example/1.png")

	job, err := p.Submit(context.Background(), &ImageRequest{Prompt: "a fox", Width: 1024, Height: 1024})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if job.ID == "" || job.State != JobPending {
		t.Errorf("job = %+v", job)
	}

	st, err := p.Status(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !st.Done() || st.ImageURL != "https://img.example/1.png" {
		t.Errorf("status = %+v", st)
	}
	if got := p.Prompts(); len(got) != 1 || got[0] != "a fox" {
		t.Errorf("Prompts() = %v", got)
	}
}

func TestRateLimiter(t *testing.T) {
	t.Run("burst then wait", func(t *testing.T) {
		rl := NewRateLimiter(2)
		if !rl.TryConsume() || !rl.TryConsume() {
			t.Fatal("expected burst of 2 tokens")
		}
		if rl.TryConsume() {
			t.Error("expected bucket to be empty")
		}
		status := rl.Status()
		if status.TotalConsumed != 2 {
			t.Errorf("TotalConsumed = %d, want 2", status.TotalConsumed)
		}
		if status.TokensLimit != 2 {
			t.Errorf("TokensLimit = %d, want 2", status.TokensLimit)
		}
	})

	t.Run("record 429 drains bucket", func(t *testing.T) {
		rl := NewRateLimiter(5)
		rl.Record429(time.Second)
		if rl.TryConsume() {
			t.Error("expected no tokens after 429")
		}
		if rl.Status().Last429Time.IsZero() {
			t.Error("Last429Time not recorded")
		}
	})

	t.Run("wait respects context", func(t *testing.T) {
		rl := NewRateLimiter(0.1)
		rl.TryConsume()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := rl.Wait(ctx); err == nil {
			t.Error("expected context error")
		}
	})
}

func TestOpenAIClient_Chat(t *testing.T) {
	t.Run("vision request", func(t *testing.T) {
		var body map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			data, _ := io.ReadAll(r.Body)
			json.Unmarshal(data, &body)
			chatCompletionHandler(t, "A dog in a park")(w, r)
		}))
		defer server.Close()

		client := NewOpenAIClient(OpenAIConfig{
			APIKey:  "test-key",
			BaseURL: server.URL,
			RPS:     100,
		})

		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{
				{Role: "system", Content: "You write stories."},
				{Role: "user", Content: "Look", Images: []Image{{URL: "https://example.com/dog.jpg"}}},
			},
			MaxTokens: 100,
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Content != "A dog in a park" {
			t.Errorf("Content = %q", result.Content)
		}
		if result.Provider != OpenAIName {
			t.Errorf("Provider = %q", result.Provider)
		}

		msgs, _ := body["messages"].([]any)
		if len(msgs) != 2 {
			t.Fatalf("messages = %d, want 2", len(msgs))
		}
		userParts, ok := msgs[1].(map[string]any)["content"].([]any)
		if !ok || len(userParts) != 2 {
			t.Errorf("user content = %v", msgs[1])
		}
	})

	t.Run("client error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
		}))
		defer server.Close()

		client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, RPS: 100})
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "x"}},
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if result.ErrorType != "http_error" {
			t.Errorf("ErrorType = %q", result.ErrorType)
		}
	})
}

func TestGeminiClient_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "The Brave Kitten"}]}}],
			"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 3, "totalTokenCount": 7}
		}`))
	}))
	defer server.Close()

	client := NewGeminiClient(GeminiConfig{APIKey: "test-key", BaseURL: server.URL, RPS: 100})
	result, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "You write stories."},
			{Role: "user", Content: "Go", Images: []Image{{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"}}},
		},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if result.Content != "The Brave Kitten" {
		t.Errorf("Content = %q", result.Content)
	}
	if result.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", result.TotalTokens)
	}
}

func TestGeminiClient_InlinesURLPhotos(t *testing.T) {
	photo := []byte{0xff, 0xd8, 0xff, 0xe0, 'j', 'f', 'i', 'f'}
	photos := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cat.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(photo)
	}))
	defer photos.Close()

	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": [{"content": {"role": "model", "parts": [{"text": "ok"}]}}]}`))
	}))
	defer server.Close()

	client := NewGeminiClient(GeminiConfig{APIKey: "test-key", BaseURL: server.URL, RPS: 100})

	t.Run("web url is downloaded", func(t *testing.T) {
		_, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "Go", Images: []Image{{URL: photos.URL + "/cat.jpg"}}}},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if !strings.Contains(body, "inlineData") || strings.Contains(body, "fileData") {
			t.Errorf("request body should carry inline image data: %s", body)
		}
		if !strings.Contains(body, "image/jpeg") {
			t.Errorf("request body missing mime type: %s", body)
		}
	})

	t.Run("file store uri is referenced", func(t *testing.T) {
		_, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "Go", Images: []Image{{URL: "gs://bucket/cat.jpg"}}}},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if !strings.Contains(body, "fileData") || !strings.Contains(body, "gs://bucket/cat.jpg") {
			t.Errorf("request body should reference the file uri: %s", body)
		}
	})

	t.Run("unreachable photo fails the call", func(t *testing.T) {
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "Go", Images: []Image{{URL: photos.URL + "/missing.jpg"}}}},
		})
		if err == nil {
			t.Fatal("expected error for missing photo")
		}
		if result.ErrorType != "image_fetch" {
			t.Errorf("ErrorType = %q, want image_fetch", result.ErrorType)
		}
	})
}

func TestErrorSentinels(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrContentModerated)
	if !errors.Is(wrapped, ErrContentModerated) {
		t.Error("ErrContentModerated should survive wrapping")
	}
	rle := &RateLimitError{Message: "limited", RetryAfter: 2 * time.Second}
	if !strings.Contains(rle.Error(), "retry after 2s") {
		t.Errorf("Error() = %q", rle.Error())
	}
}
