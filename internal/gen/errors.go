package gen

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// GenerationError reports a failed or unusable model completion. The loop
// treats every GenerationError as fatal; Retryable records whether the
// upstream status would have permitted a retry so callers that add backoff
// later do not need to reclassify.
type GenerationError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *time.Duration
	Message    string
}

func (e *GenerationError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "generation failed"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status=%d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, msg)
}

// errorFromHTTPStatus classifies a non-2xx provider response. Timeouts,
// rate limits and server-side failures are marked retryable; client errors
// are not.
func errorFromHTTPStatus(provider string, statusCode int, message string, retryAfter *time.Duration) *GenerationError {
	retryable := false
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		retryable = true
	}
	return &GenerationError{
		Provider:   provider,
		StatusCode: statusCode,
		Retryable:  retryable,
		RetryAfter: retryAfter,
		Message:    message,
	}
}

// parseRetryAfter parses a Retry-After header value, accepting integer
// seconds or an HTTP-date.
func parseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}
