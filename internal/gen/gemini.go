package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiConfig holds everything the adapter needs; the credential is passed
// in explicitly rather than read from ambient process state.
type GeminiConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	MaxOutputTokens int
	// Timeout bounds a single generateContent call. Zero means no bound
	// beyond the caller's context.
	Timeout time.Duration
}

// Gemini calls the Google generateContent endpoint and returns the reply
// as fence-stripped source text.
type Gemini struct {
	cfg    GeminiConfig
	client *http.Client
}

func NewGemini(cfg GeminiConfig) *Gemini {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 2048
	}
	// No client-level timeout; per-request context deadlines bound the call.
	return &Gemini{cfg: cfg, client: &http.Client{Timeout: 0}}
}

func (g *Gemini) Generate(ctx context.Context, p Prompt) (string, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return "", &GenerationError{Provider: "google", Message: "API key not configured"}
	}
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	body := map[string]any{
		"contents": []map[string]any{{
			"role":  "user",
			"parts": []map[string]any{{"text": buildInstruction(p)}},
		}},
		"generationConfig": map[string]any{
			"maxOutputTokens": g.cfg.MaxOutputTokens,
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", &GenerationError{Provider: "google", Message: err.Error()}
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.cfg.BaseURL, url.PathEscape(g.cfg.Model))
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", &GenerationError{Provider: "google", Message: err.Error()}
	}
	q := u.Query()
	q.Set("key", g.cfg.APIKey)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(b))
	if err != nil {
		return "", &GenerationError{Provider: "google", Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", &GenerationError{Provider: "google", Message: fmt.Sprintf("generateContent request failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	rawBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ra := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		msg := fmt.Sprintf("generateContent failed: %s", strings.TrimSpace(string(rawBytes)))
		return "", errorFromHTTPStatus("google", resp.StatusCode, msg, ra)
	}

	var raw map[string]any
	if err := json.Unmarshal(rawBytes, &raw); err != nil {
		return "", &GenerationError{Provider: "google", Message: fmt.Sprintf("malformed response: %v", err)}
	}

	text := completionText(raw)
	code := stripFences(text)
	if code == "" {
		return "", &GenerationError{Provider: "google", Message: "empty completion"}
	}
	return code, nil
}

// completionText concatenates the text parts of candidates[0].
func completionText(raw map[string]any) string {
	cands, ok := raw["candidates"].([]any)
	if !ok || len(cands) == 0 {
		return ""
	}
	c0, ok := cands[0].(map[string]any)
	if !ok {
		return ""
	}
	content, ok := c0["content"].(map[string]any)
	if !ok {
		return ""
	}
	parts, ok := content["parts"].([]any)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, pAny := range parts {
		p, ok := pAny.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := p["text"].(string); t != "" {
			b.WriteString(t)
		}
	}
	return b.String()
}
