package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/genui-go/genui/pkg/protocol"
)

// HTTPError is a non-2xx response mapped into the error taxonomy.
type HTTPError struct {
	StatusCode int
	Kind       protocol.ErrorKind
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d: %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether a retry can reasonably succeed: rate limits
// and server errors yes, everything else no.
func (e *HTTPError) IsRetryable() bool {
	return e.Kind == protocol.ErrorKindRateLimit || e.Kind == protocol.ErrorKindServer
}

// ErrorEvent converts the error into its stream representation.
func (e *HTTPError) ErrorEvent() protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Kind:       e.Kind,
		Message:    e.Message,
		Retryable:  e.IsRetryable(),
		StatusCode: e.StatusCode,
		RetryAfter: e.RetryAfter,
	}
}

// ClassifyStatus maps an HTTP status to an error kind.
func ClassifyStatus(status int) protocol.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return protocol.ErrorKindAuthentication
	case status == http.StatusTooManyRequests:
		return protocol.ErrorKindRateLimit
	case status >= 500:
		return protocol.ErrorKindServer
	default:
		return protocol.ErrorKindValidation
	}
}

const maxErrorBody = 64 * 1024

// ErrorFromResponse builds an HTTPError from a non-2xx response, preferring
// the API error message over the raw body.
func ErrorFromResponse(resp *http.Response) *HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := http.StatusText(resp.StatusCode)
	var apiErr struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	} else if len(body) > 0 {
		message = string(body)
	}

	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Kind:       ClassifyStatus(resp.StatusCode),
		Message:    message,
	}
	if httpErr.Kind == protocol.ErrorKindRateLimit {
		info := ParseRateLimitHeaders(resp.Header)
		httpErr.RetryAfter = info.RetryAfter
	}
	return httpErr
}
