package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestFetcher_Get(t *testing.T) {
	t.Run("detects content type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(pngHeader)
		}))
		defer server.Close()

		obj, err := New(Config{}).Get(context.Background(), server.URL+"/a.png")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if obj.ContentType != "image/png" {
			t.Errorf("ContentType = %q, want image/png", obj.ContentType)
		}
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg"))
		}))
		defer server.Close()

		f := New(Config{RetryDelay: time.Millisecond})
		obj, err := f.Get(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(obj.Data) != "jpeg" || obj.ContentType != "image/jpeg" {
			t.Errorf("obj = %+v", obj)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("does not retry not found", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.NotFound(w, r)
		}))
		defer server.Close()

		_, err := New(Config{RetryDelay: time.Millisecond}).Get(context.Background(), server.URL)
		if err == nil {
			t.Fatal("expected error")
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("caches by url", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write([]byte("photo"))
		}))
		defer server.Close()

		f := New(Config{Cache: true})
		for i := 0; i < 3; i++ {
			if _, err := f.Get(context.Background(), server.URL); err != nil {
				t.Fatalf("Get() error = %v", err)
			}
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("rejects oversized body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(make([]byte, 64))
		}))
		defer server.Close()

		_, err := New(Config{MaxBytes: 16}).Get(context.Background(), server.URL)
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(Config{}).Get(ctx, "http://127.0.0.1:1/never")
		if err == nil {
			t.Fatal("expected error")
		}
	})
}
