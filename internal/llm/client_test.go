package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func TestCompleteReturnsChoiceContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system+user messages, got %+v", req.Messages)
		}
		w.Write(completionBody(t, "  ANALYSIS COMPLETE  "))
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		Model:        "test-model",
		SystemPrompt: "You analyse Oracle telemetry.",
	})
	out, err := client.Complete(context.Background(), "summarise findings", 512)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "ANALYSIS COMPLETE" {
		t.Errorf("expected trimmed content, got %q", out)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{BaseURL: srv.URL, Model: "m"})
	_, err := client.Complete(context.Background(), "p", 64)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestCompleteMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{BaseURL: srv.URL, Model: "m"})
	_, err := client.Complete(context.Background(), "p", 64)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if Retryable(err) {
		t.Error("malformed responses must not be retried")
	}
}

func TestRetryRecoversFromRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(completionBody(t, "recovered"))
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{BaseURL: srv.URL, Model: "m"})
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Millisecond}

	start := time.Now()
	out, err := Do(context.Background(), policy, func(ctx context.Context) (string, error) {
		return client.Complete(ctx, "p", 64)
	})
	if err != nil {
		t.Fatalf("expected third attempt to succeed, got %v", err)
	}
	if out != "recovered" {
		t.Errorf("unexpected output %q", out)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	// base + 2*base between attempts
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("expected doubling backoff delays, elapsed %v", elapsed)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{BaseURL: srv.URL, Model: "m"})
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	_, err := Do(context.Background(), policy, func(ctx context.Context) (string, error) {
		return client.Complete(ctx, "p", 64)
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after exhaustion, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
}

func TestRetryJitterWithTinyBaseDelay(t *testing.T) {
	var calls atomic.Int32
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Nanosecond, Jitter: true}

	out, err := Do(context.Background(), policy, func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", ErrRateLimited
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if out != "ok" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}, func(ctx context.Context) (string, error) {
		return "", ErrRateLimited
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEmbedReturnsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	embedder := NewHTTPEmbedder(srv.URL, "", "embed-model", 0)
	vec, err := embedder.Embed(context.Background(), "slow query on ORDERS")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3 dims, got %d", len(vec))
	}
}

func TestRateLimiterBlocksAtCapacity(t *testing.T) {
	limiter := NewRateLimiter(100, 1)

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	start := time.Now()
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("expected second acquisition to wait for refill, elapsed %v", elapsed)
	}
}

func TestRateLimiterRespectsContext(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
