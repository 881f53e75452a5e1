package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitInfo is the server-side rate limit view parsed from response
// headers.
type RateLimitInfo struct {
	RetryAfter            time.Duration
	RequestsRemaining     int
	InputTokensRemaining  int
	OutputTokensRemaining int
	ResetTime             int64
}

// ParseRateLimitHeaders extracts rate limit info from Anthropic-style
// response headers.
func ParseRateLimitHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{
		RequestsRemaining:     -1,
		InputTokensRemaining:  -1,
		OutputTokensRemaining: -1,
	}

	if retryAfter := headers.Get("retry-after"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
			info.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	resetHeaders := []string{
		"anthropic-ratelimit-requests-reset",
		"anthropic-ratelimit-input-tokens-reset",
		"anthropic-ratelimit-output-tokens-reset",
	}
	for _, header := range resetHeaders {
		if resetStr := headers.Get(header); resetStr != "" {
			if resetTime, err := time.Parse(time.RFC3339, resetStr); err == nil {
				info.ResetTime = resetTime.Unix()
				break
			}
		}
	}

	if remaining := headers.Get("anthropic-ratelimit-requests-remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.RequestsRemaining = n
		}
	}
	if remaining := headers.Get("anthropic-ratelimit-input-tokens-remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.InputTokensRemaining = n
		}
	}
	if remaining := headers.Get("anthropic-ratelimit-output-tokens-remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.OutputTokensRemaining = n
		}
	}

	return info
}
