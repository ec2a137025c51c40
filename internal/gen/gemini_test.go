package gen

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

func TestGemini_Generate_CallsGenerateContent(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		b, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		_ = json.Unmarshal(b, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "candidates": [{"content": {"parts": [{"text": "` + "```python\\nprint(120)\\n```" + `"}]}, "finishReason": "STOP"}]
}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	code, err := g.Generate(ctx, Prompt{Task: "print 120"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if code != "print(120)" {
		t.Fatalf("unexpected code: %q", code)
	}
	if gotKey != "k" {
		t.Fatalf("api key not sent as query param, got %q", gotKey)
	}
	if !strings.Contains(gotPath, "/v1beta/models/gemini-test:generateContent") {
		t.Fatalf("unexpected path: %q", gotPath)
	}

	contents, _ := gotBody["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	c0 := contents[0].(map[string]any)
	parts := c0["parts"].([]any)
	text, _ := parts[0].(map[string]any)["text"].(string)
	if !strings.Contains(text, "print 120") || !strings.Contains(text, "Requirements:") {
		t.Fatalf("instruction not sent: %q", text)
	}
}

func TestGemini_Generate_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "quota exceeded"}}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := g.Generate(context.Background(), Prompt{Task: "x"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", genErr.StatusCode)
	}
	if !genErr.Retryable {
		t.Fatalf("429 should be classified retryable")
	}
	if genErr.RetryAfter == nil || *genErr.RetryAfter != 7*time.Second {
		t.Fatalf("retry-after not parsed: %v", genErr.RetryAfter)
	}
}

func TestGemini_Generate_BadRequestNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid model"}}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := g.Generate(context.Background(), Prompt{Task: "x"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Retryable {
		t.Fatalf("400 should not be retryable")
	}
}

func TestGemini_Generate_EmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := g.Generate(context.Background(), Prompt{Task: "x"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if !strings.Contains(genErr.Message, "empty completion") {
		t.Fatalf("unexpected message: %q", genErr.Message)
	}
}

func TestGemini_Generate_RequiresAPIKey(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{BaseURL: srv.URL})
	_, err := g.Generate(context.Background(), Prompt{Task: "x"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if called {
		t.Fatalf("no request should be made without a key")
	}
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	now := time.Now()
	v := now.Add(30 * time.Second).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(v, now)
	if d == nil || *d < 29*time.Second || *d > 31*time.Second {
		t.Fatalf("unexpected duration: %v", d)
	}
	if parseRetryAfter("", now) != nil {
		t.Fatalf("empty header should parse to nil")
	}
}
